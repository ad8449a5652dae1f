// Package token implements the fungible stake token: a pausable, role-gated
// ERC-20 style balance book with allowances.
package token

import (
	"context"
	"log/slog"
	"math/big"
	"sync"

	"github.com/alexbensimon/pakt/pkg/authz"
	"github.com/alexbensimon/pakt/pkg/events"
	"github.com/alexbensimon/pakt/pkg/finance"
	"github.com/alexbensimon/pakt/pkg/identity"
)

const source = "token"

const (
	DefaultName     = "Pakt Token"
	DefaultSymbol   = "PAKT"
	DefaultDecimals = 18
	// DefaultSupply is the whole-token amount minted to the deployer.
	DefaultSupply = 5_000_000
)

// Config describes a token deployment.
type Config struct {
	Name     string
	Symbol   string
	Decimals uint8
	// Deployer receives the admin, minter and pauser roles and InitialSupply.
	Deployer      identity.Address
	InitialSupply *big.Int
}

// DefaultConfig returns the standard Pakt token deployment for deployer.
func DefaultConfig(deployer identity.Address) Config {
	return Config{
		Name:          DefaultName,
		Symbol:        DefaultSymbol,
		Decimals:      DefaultDecimals,
		Deployer:      deployer,
		InitialSupply: finance.Whole(DefaultSupply, DefaultDecimals),
	}
}

// Token is safe for concurrent use. All mutations are serialized.
type Token struct {
	mu          sync.RWMutex
	name        string
	symbol      string
	decimals    uint8
	totalSupply *big.Int
	balances    map[identity.Address]*big.Int
	allowances  map[allowanceKey]*big.Int
	paused      bool

	roles   *authz.Registry
	emitter *events.Emitter
	logger  *slog.Logger
}

// New deploys a token. A nil emitter discards events.
func New(cfg Config, emitter *events.Emitter) (*Token, error) {
	if emitter == nil {
		emitter = events.NewEmitter(nil)
	}
	t := &Token{
		name:        cfg.Name,
		symbol:      cfg.Symbol,
		decimals:    cfg.Decimals,
		totalSupply: new(big.Int),
		balances:    make(map[identity.Address]*big.Int),
		allowances:  make(map[allowanceKey]*big.Int),
		roles:       authz.NewRegistry(),
		emitter:     emitter,
		logger:      slog.Default().With("component", "token"),
	}
	if cfg.Deployer.IsZero() {
		return nil, ErrZeroAddress
	}
	t.roles.Bootstrap(authz.RoleAdmin, cfg.Deployer)
	t.roles.Bootstrap(authz.RoleMinter, cfg.Deployer)
	t.roles.Bootstrap(authz.RolePauser, cfg.Deployer)

	if cfg.InitialSupply != nil && cfg.InitialSupply.Sign() > 0 {
		err := t.Update(context.Background(), func(tx *Tx) error {
			return tx.Mint(cfg.Deployer, cfg.Deployer, cfg.InitialSupply)
		})
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Update runs fn against a staged view of the token. If fn returns nil the
// staged changes are applied and their events emitted; otherwise nothing
// changes.
func (t *Token) Update(ctx context.Context, fn func(tx *Tx) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx := &Tx{
		t:          t,
		balances:   make(map[identity.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
	if err := fn(tx); err != nil {
		return err
	}
	for a, v := range tx.balances {
		if v.Sign() == 0 {
			delete(t.balances, a)
			continue
		}
		t.balances[a] = v
	}
	for k, v := range tx.allowances {
		if v.Sign() == 0 {
			delete(t.allowances, k)
			continue
		}
		t.allowances[k] = v
	}
	if tx.supply != nil {
		t.totalSupply = tx.supply
	}
	for _, e := range tx.pending {
		t.emitter.Emit(ctx, e)
	}
	return nil
}

func (t *Token) Name() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.name
}

func (t *Token) Symbol() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.symbol
}

func (t *Token) Decimals() uint8 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.decimals
}

func (t *Token) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return finance.Copy(t.totalSupply)
}

func (t *Token) BalanceOf(account identity.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return finance.Copy(t.balances[account])
}

func (t *Token) Allowance(owner, spender identity.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return finance.Copy(t.allowances[allowanceKey{owner, spender}])
}

func (t *Token) Paused() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.paused
}

func (t *Token) Transfer(ctx context.Context, caller, to identity.Address, amount *big.Int) error {
	return t.Update(ctx, func(tx *Tx) error { return tx.Transfer(caller, to, amount) })
}

func (t *Token) TransferFrom(ctx context.Context, caller, from, to identity.Address, amount *big.Int) error {
	return t.Update(ctx, func(tx *Tx) error { return tx.TransferFrom(caller, from, to, amount) })
}

func (t *Token) Approve(ctx context.Context, caller, spender identity.Address, amount *big.Int) error {
	return t.Update(ctx, func(tx *Tx) error { return tx.Approve(caller, spender, amount) })
}

func (t *Token) Mint(ctx context.Context, caller, to identity.Address, amount *big.Int) error {
	return t.Update(ctx, func(tx *Tx) error { return tx.Mint(caller, to, amount) })
}

func (t *Token) Burn(ctx context.Context, caller identity.Address, amount *big.Int) error {
	return t.Update(ctx, func(tx *Tx) error { return tx.Burn(caller, amount) })
}

func (t *Token) BurnFrom(ctx context.Context, caller, owner identity.Address, amount *big.Int) error {
	return t.Update(ctx, func(tx *Tx) error { return tx.BurnFrom(caller, owner, amount) })
}

// Pause halts transfers, mints and burns. The caller must hold the pauser role.
func (t *Token) Pause(ctx context.Context, caller identity.Address) error {
	return t.setPaused(ctx, caller, true)
}

// Unpause resumes token movement. The caller must hold the pauser role.
func (t *Token) Unpause(ctx context.Context, caller identity.Address) error {
	return t.setPaused(ctx, caller, false)
}

func (t *Token) setPaused(ctx context.Context, caller identity.Address, paused bool) error {
	if err := t.roles.Require(authz.RolePauser, caller); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.paused == paused {
		if paused {
			return ErrPaused
		}
		return ErrNotPaused
	}
	t.paused = paused
	name := events.Unpaused
	if paused {
		name = events.Paused
	}
	t.logger.Info("pause state changed", "paused", paused, "by", caller.Hex())
	t.emitter.Emit(ctx, events.New(source, name, caller, events.NoIndex, nil))
	return nil
}

func (t *Token) HasRole(role authz.Role, account identity.Address) bool {
	return t.roles.Has(role, account)
}

func (t *Token) GrantRole(ctx context.Context, caller identity.Address, role authz.Role, account identity.Address) error {
	changed, err := t.roles.Grant(caller, role, account)
	if err != nil {
		return err
	}
	if changed {
		t.emitRole(ctx, events.RoleGranted, caller, role, account)
	}
	return nil
}

func (t *Token) RevokeRole(ctx context.Context, caller identity.Address, role authz.Role, account identity.Address) error {
	changed, err := t.roles.Revoke(caller, role, account)
	if err != nil {
		return err
	}
	if changed {
		t.emitRole(ctx, events.RoleRevoked, caller, role, account)
	}
	return nil
}

func (t *Token) RenounceRole(ctx context.Context, caller identity.Address, role authz.Role) error {
	changed, err := t.roles.Renounce(caller, role, caller)
	if err != nil {
		return err
	}
	if changed {
		t.emitRole(ctx, events.RoleRevoked, caller, role, caller)
	}
	return nil
}

func (t *Token) emitRole(ctx context.Context, name events.Name, caller identity.Address, role authz.Role, account identity.Address) {
	t.emitter.Emit(ctx, events.New(source, name, account, events.NoIndex, map[string]string{
		"role": string(role), "account": account.Hex(), "sender": caller.Hex(),
	}))
}
