// Package authz implements role-based access control for the ledger and the
// stake token. Each role is administered by another role; by default the
// admin role administers every role, including itself.
package authz

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/alexbensimon/pakt/pkg/identity"
)

// Role names a capability. The values match the role identifiers clients
// already use against the deployed contracts.
type Role string

const (
	RoleAdmin    Role = "DEFAULT_ADMIN_ROLE"
	RoleVerifier Role = "PAKT_VERIFIER_ROLE"
	RoleMinter   Role = "MINTER_ROLE"
	RolePauser   Role = "PAUSER_ROLE"
)

// ParseRole accepts one of the known role names.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleVerifier, RoleMinter, RolePauser:
		return r, nil
	}
	return "", fmt.Errorf("authz: unknown role %q", s)
}

// ErrMissingRole matches every *MissingRoleError under errors.Is.
var ErrMissingRole = errors.New("authz: missing role")

// ErrRenounceForOther is returned when an account tries to renounce a role
// on behalf of another account.
var ErrRenounceForOther = errors.New("authz: can only renounce roles for self")

// MissingRoleError reports that Account lacks Role.
type MissingRoleError struct {
	Account identity.Address
	Role    Role
}

func (e *MissingRoleError) Error() string {
	return fmt.Sprintf("authz: account %s is missing role %s", e.Account.Hex(), e.Role)
}

func (e *MissingRoleError) Unwrap() error { return ErrMissingRole }

// Grant is one role membership.
type Grant struct {
	Role    Role             `json:"role"`
	Account identity.Address `json:"account"`
}

// Registry stores role memberships. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	members map[Grant]struct{}
	admins  map[Role]Role
}

func NewRegistry() *Registry {
	return &Registry{
		members: make(map[Grant]struct{}),
		admins:  make(map[Role]Role),
	}
}

// Bootstrap grants role to account without an authorization check. It is
// meant for construction time only.
func (r *Registry) Bootstrap(role Role, account identity.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[Grant{Role: role, Account: account}] = struct{}{}
}

// SetAdmin makes admin the role that administers role.
func (r *Registry) SetAdmin(role, admin Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins[role] = admin
}

// AdminOf returns the role administering role.
func (r *Registry) AdminOf(role Role) Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adminOfLocked(role)
}

func (r *Registry) adminOfLocked(role Role) Role {
	if admin, ok := r.admins[role]; ok {
		return admin
	}
	return RoleAdmin
}

func (r *Registry) Has(role Role, account identity.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[Grant{Role: role, Account: account}]
	return ok
}

// Require returns a *MissingRoleError unless account holds role.
func (r *Registry) Require(role Role, account identity.Address) error {
	if !r.Has(role, account) {
		return &MissingRoleError{Account: account, Role: role}
	}
	return nil
}

// Grant adds account to role. The caller must hold the role's admin role.
// It reports whether membership changed.
func (r *Registry) Grant(caller identity.Address, role Role, account identity.Address) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdminLocked(caller, role); err != nil {
		return false, err
	}
	g := Grant{Role: role, Account: account}
	if _, ok := r.members[g]; ok {
		return false, nil
	}
	r.members[g] = struct{}{}
	return true, nil
}

// Revoke removes account from role. The caller must hold the role's admin role.
func (r *Registry) Revoke(caller identity.Address, role Role, account identity.Address) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdminLocked(caller, role); err != nil {
		return false, err
	}
	return r.removeLocked(role, account), nil
}

// Renounce removes caller's own membership of role.
func (r *Registry) Renounce(caller identity.Address, role Role, account identity.Address) (bool, error) {
	if caller != account {
		return false, ErrRenounceForOther
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(role, account), nil
}

func (r *Registry) removeLocked(role Role, account identity.Address) bool {
	g := Grant{Role: role, Account: account}
	if _, ok := r.members[g]; !ok {
		return false
	}
	delete(r.members, g)
	return true
}

func (r *Registry) requireAdminLocked(caller identity.Address, role Role) error {
	admin := r.adminOfLocked(role)
	if _, ok := r.members[Grant{Role: admin, Account: caller}]; !ok {
		return &MissingRoleError{Account: caller, Role: admin}
	}
	return nil
}

// Members lists the accounts holding role in address order.
func (r *Registry) Members(role Role) []identity.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []identity.Address
	for g := range r.members {
		if g.Role == role {
			out = append(out, g.Account)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}

// Grants returns every membership, sorted, for persistence.
func (r *Registry) Grants() []Grant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Grant, 0, len(r.members))
	for g := range r.members {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].Account.Hex() < out[j].Account.Hex()
	})
	return out
}

// Restore replaces all memberships with grants.
func (r *Registry) Restore(grants []Grant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members = make(map[Grant]struct{}, len(grants))
	for _, g := range grants {
		r.members[g] = struct{}{}
	}
}
