package authz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexbensimon/pakt/pkg/identity"
)

var (
	admin    = identity.LabelAddress("admin")
	verifier = identity.LabelAddress("verifier")
	stranger = identity.LabelAddress("stranger")
)

func TestRegistry_GrantRequiresAdmin(t *testing.T) {
	r := NewRegistry()
	r.Bootstrap(RoleAdmin, admin)

	changed, err := r.Grant(admin, RoleVerifier, verifier)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, r.Has(RoleVerifier, verifier))

	changed, err = r.Grant(admin, RoleVerifier, verifier)
	require.NoError(t, err)
	assert.False(t, changed, "second grant is a no-op")

	_, err = r.Grant(stranger, RoleVerifier, stranger)
	var missing *MissingRoleError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, stranger, missing.Account)
	assert.Equal(t, RoleAdmin, missing.Role)
	assert.True(t, errors.Is(err, ErrMissingRole))
}

func TestRegistry_RevokeAndRenounce(t *testing.T) {
	r := NewRegistry()
	r.Bootstrap(RoleAdmin, admin)
	r.Bootstrap(RoleVerifier, verifier)

	_, err := r.Renounce(stranger, RoleVerifier, verifier)
	assert.ErrorIs(t, err, ErrRenounceForOther)

	changed, err := r.Renounce(verifier, RoleVerifier, verifier)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, r.Has(RoleVerifier, verifier))

	r.Bootstrap(RoleVerifier, verifier)
	_, err = r.Revoke(verifier, RoleVerifier, verifier)
	assert.ErrorIs(t, err, ErrMissingRole)

	changed, err = r.Revoke(admin, RoleVerifier, verifier)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Error(t, r.Require(RoleVerifier, verifier))
}

func TestRegistry_CustomAdminRole(t *testing.T) {
	r := NewRegistry()
	r.Bootstrap(RoleAdmin, admin)
	r.Bootstrap(RolePauser, stranger)
	r.SetAdmin(RoleMinter, RolePauser)

	_, err := r.Grant(admin, RoleMinter, verifier)
	assert.ErrorIs(t, err, ErrMissingRole)

	_, err = r.Grant(stranger, RoleMinter, verifier)
	require.NoError(t, err)
	assert.Equal(t, RolePauser, r.AdminOf(RoleMinter))
	assert.Equal(t, RoleAdmin, r.AdminOf(RoleVerifier))
}

func TestRegistry_GrantsRestore(t *testing.T) {
	r := NewRegistry()
	r.Bootstrap(RoleAdmin, admin)
	r.Bootstrap(RoleVerifier, verifier)
	r.Bootstrap(RoleVerifier, stranger)

	grants := r.Grants()
	require.Len(t, grants, 3)

	other := NewRegistry()
	other.Restore(grants)
	assert.Equal(t, r.Members(RoleVerifier), other.Members(RoleVerifier))
	assert.True(t, other.Has(RoleAdmin, admin))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("PAKT_VERIFIER_ROLE")
	require.NoError(t, err)
	assert.Equal(t, RoleVerifier, r)
	_, err = ParseRole("ROOT")
	assert.Error(t, err)
}
