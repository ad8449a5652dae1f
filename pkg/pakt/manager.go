// Package pakt implements the commitment ledger. Wallets link an external
// identity, stake tokens on time-boxed goals, and settle them once the
// window has elapsed: automatic goals through a verifier attestation followed
// by a fee-paying unlock, custom goals through self-attestation.
//
// Every operation validates all preconditions before moving tokens or
// mutating state, so a rejected call has no observable effect.
package pakt

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/alexbensimon/pakt/pkg/authz"
	"github.com/alexbensimon/pakt/pkg/events"
	"github.com/alexbensimon/pakt/pkg/finance"
	"github.com/alexbensimon/pakt/pkg/identity"
	"github.com/alexbensimon/pakt/pkg/token"
)

const source = "ledger"

// DefaultAddress is the custody account used when none is configured.
var DefaultAddress = identity.LabelAddress("pakt.manager")

// Observer tracks each ledger operation. observability.Provider satisfies it.
type Observer interface {
	TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error))
}

type nopObserver struct{}

func (nopObserver) TrackOperation(ctx context.Context, _ string, _ ...attribute.KeyValue) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// Option configures a Manager.
type Option func(*Manager)

func WithClock(c Clock) Option              { return func(m *Manager) { m.clock = c } }
func WithPolicy(p Policy) Option            { return func(m *Manager) { m.policy = p.clone() } }
func WithAddress(a identity.Address) Option { return func(m *Manager) { m.address = a } }
func WithNativeBook(b NativeBook) Option    { return func(m *Manager) { m.native = b } }
func WithObserver(o Observer) Option        { return func(m *Manager) { m.observer = o } }
func WithEmitter(e *events.Emitter) Option  { return func(m *Manager) { m.emitter = e } }
func WithLogger(l *slog.Logger) Option      { return func(m *Manager) { m.logger = l } }

// Manager is the commitment ledger. All operations are serialized.
type Manager struct {
	mu      sync.RWMutex
	token   *token.Token
	address identity.Address
	roles   *authz.Registry
	policy  Policy

	walletToSource map[identity.Address]*big.Int
	sourceToWallet map[string]identity.Address
	pakts          map[identity.Address][]Pakt
	activeTypes    map[identity.Address]map[GoalType]bool
	fees           *big.Int
	locked         *big.Int

	clock    Clock
	native   NativeBook
	observer Observer
	emitter  *events.Emitter
	logger   *slog.Logger
}

// New creates a ledger holding custody in tok. admin receives the admin role.
func New(tok *token.Token, admin identity.Address, opts ...Option) (*Manager, error) {
	if tok == nil {
		return nil, fmt.Errorf("pakt: token is required")
	}
	if admin.IsZero() {
		return nil, token.ErrZeroAddress
	}
	m := &Manager{
		token:          tok,
		address:        DefaultAddress,
		roles:          authz.NewRegistry(),
		policy:         DefaultPolicy(),
		walletToSource: make(map[identity.Address]*big.Int),
		sourceToWallet: make(map[string]identity.Address),
		pakts:          make(map[identity.Address][]Pakt),
		activeTypes:    make(map[identity.Address]map[GoalType]bool),
		fees:           new(big.Int),
		locked:         new(big.Int),
		clock:          SystemClock{},
		observer:       nopObserver{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.policy.Validate(); err != nil {
		return nil, err
	}
	if m.native == nil {
		m.native = NewVault()
	}
	if m.emitter == nil {
		m.emitter = events.NewEmitter(nil)
	}
	if m.logger == nil {
		m.logger = slog.Default().With("component", "pakt")
	}
	m.roles.Bootstrap(authz.RoleAdmin, admin)
	return m, nil
}

// Address is the ledger's custody account on the token.
func (m *Manager) Address() identity.Address { return m.address }

// Token returns the stake token the ledger holds custody in.
func (m *Manager) Token() *token.Token { return m.token }

// run executes fn under the ledger lock with tracking and outcome logging.
func (m *Manager) run(ctx context.Context, op string, caller identity.Address, fn func(ctx context.Context) error) error {
	ctx, done := m.observer.TrackOperation(ctx, "pakt."+op,
		attribute.String("pakt.operation", op),
	)

	m.mu.Lock()
	err := fn(ctx)
	m.mu.Unlock()

	done(err)
	if err != nil {
		m.logger.Warn("operation rejected", "op", op, "caller", caller.Hex(), "error", err)
	} else {
		m.logger.Info("operation applied", "op", op, "caller", caller.Hex())
	}
	return err
}

func (m *Manager) emit(ctx context.Context, name events.Name, wallet identity.Address, index int, attrs map[string]string) {
	e := events.New(source, name, wallet, index, attrs)
	e.Timestamp = m.clock.Now().UTC()
	m.emitter.Emit(ctx, e)
}

// lookupLocked returns a pointer into the wallet's list. Callers hold m.mu.
func (m *Manager) lookupLocked(wallet identity.Address, index int) (*Pakt, error) {
	list := m.pakts[wallet]
	if index < 0 || index >= len(list) {
		return nil, errNotFound(wallet, index)
	}
	return &list[index], nil
}

// pullLocked moves amount from a wallet into custody, checking allowance
// first so the caller sees NotEnoughAllowance rather than a token error.
func (m *Manager) pullLocked(ctx context.Context, from identity.Address, amount *big.Int) error {
	return m.token.Update(ctx, func(tx *token.Tx) error {
		if tx.Allowance(from, m.address).Cmp(amount) < 0 {
			return errAmount(KindNotEnoughAllowance, amount)
		}
		return tx.TransferFrom(m.address, from, m.address, amount)
	})
}

func (m *Manager) reserveLocked() *big.Int {
	bal := m.token.BalanceOf(m.address)
	return bal.Sub(bal, m.locked)
}

// checkAmountLocked applies the level-based stake bound. reported is the
// amount named in an IncorrectAmount rejection.
func (m *Manager) checkAmountLocked(goalType GoalType, level Level, total, reported *big.Int) error {
	if goalType.IsCustom() {
		if total.Sign() <= 0 {
			return errIncorrectAmount(level, reported)
		}
		return nil
	}
	if level == 0 || level > MaxLevel {
		return &Error{Kind: KindLevelNotAllowed, GoalType: goalType, Level: level}
	}
	if total.Sign() <= 0 || total.Cmp(m.policy.maxStake(level, m.token.Decimals())) > 0 {
		return errIncorrectAmount(level, reported)
	}
	return nil
}

func (m *Manager) clearActiveLocked(wallet identity.Address, p *Pakt) {
	p.Active = false
	delete(m.activeTypes[wallet], p.GoalType)
	m.locked.Sub(m.locked, p.Amount)
}

// Pakts returns copies of every pakt of wallet, in index order.
func (m *Manager) Pakts(wallet identity.Address) []Pakt {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.pakts[wallet]
	out := make([]Pakt, len(list))
	for i, p := range list {
		out[i] = p.clone()
	}
	return out
}

// Pakt returns a copy of one pakt.
func (m *Manager) Pakt(wallet identity.Address, index int) (Pakt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, err := m.lookupLocked(wallet, index)
	if err != nil {
		return Pakt{}, err
	}
	return p.clone(), nil
}

// SourceIDOf returns the external identity linked to wallet.
func (m *Manager) SourceIDOf(wallet identity.Address) (*big.Int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.walletToSource[wallet]
	if !ok {
		return nil, false
	}
	return finance.Copy(id), true
}

// WalletOf returns the wallet linked to an external identity.
func (m *Manager) WalletOf(sourceID *big.Int) (identity.Address, bool) {
	if sourceID == nil {
		return identity.ZeroAddress, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.sourceToWallet[sourceID.String()]
	return w, ok
}

// IsGoalTypeActive reports whether wallet has an active pakt of goalType.
func (m *Manager) IsGoalTypeActive(wallet identity.Address, goalType GoalType) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeTypes[wallet][goalType]
}

// Policy returns a copy of the current policy.
func (m *Manager) Policy() Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy.clone()
}

// ComputeInterest returns amount * rate[level] / RateDenominator under the
// current policy.
func (m *Manager) ComputeInterest(amount *big.Int, level Level) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy.interest(amount, level)
}

// Streak returns how many duration windows pakt covers.
func (m *Manager) Streak(p Pakt) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return p.Streak(m.policy.Duration)
}

// FeeBalance is the native currency collected from unlock fees.
func (m *Manager) FeeBalance() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return finance.Copy(m.fees)
}

// LockedPrincipal is the sum of amounts staked in active pakts.
func (m *Manager) LockedPrincipal() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return finance.Copy(m.locked)
}

// Reserve is the custody balance not backing active stakes. Interest is
// paid out of it.
func (m *Manager) Reserve() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reserveLocked()
}

// NativeBalance is the native currency an account holds in the ledger's book.
func (m *Manager) NativeBalance(account identity.Address) *big.Int {
	return m.native.BalanceOf(account)
}

func (m *Manager) HasRole(role authz.Role, account identity.Address) bool {
	return m.roles.Has(role, account)
}

// RoleMembers lists the accounts holding role on the ledger.
func (m *Manager) RoleMembers(role authz.Role) []identity.Address {
	return m.roles.Members(role)
}
