package pakt

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexbensimon/pakt/pkg/authz"
	"github.com/alexbensimon/pakt/pkg/events"
	"github.com/alexbensimon/pakt/pkg/finance"
	"github.com/alexbensimon/pakt/pkg/identity"
	"github.com/alexbensimon/pakt/pkg/token"
)

var (
	adminAddr    = identity.LabelAddress("admin")
	verifierAddr = identity.LabelAddress("verifier")
	userAddr     = identity.LabelAddress("user")
	otherAddr    = identity.LabelAddress("other")

	epoch = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
)

func tokens(n int64) *big.Int { return finance.Whole(n, token.DefaultDecimals) }

// native is n whole units of the native currency.
func native(n int64) *big.Int { return finance.Whole(n, 18) }

type fixture struct {
	t     *testing.T
	ctx   context.Context
	clock *ManualClock
	tok   *token.Token
	m     *Manager
	vault *Vault
	bus   *events.Bus
	feed  <-chan events.Event
}

type fixtureOpt func(*fixtureConfig)

type fixtureConfig struct {
	reserve     int64
	skipMinter  bool
	managerOpts []Option
}

func withReserve(n int64) fixtureOpt { return func(c *fixtureConfig) { c.reserve = n } }
func withoutMinter() fixtureOpt      { return func(c *fixtureConfig) { c.skipMinter = true } }
func withOptions(opts ...Option) fixtureOpt {
	return func(c *fixtureConfig) { c.managerOpts = append(c.managerOpts, opts...) }
}

// newFixture deploys a token and ledger the way the service boots: the
// deployer is admin of both, the ledger may burn, a verifier is granted, and
// the user and other wallets hold 1000 tokens and 1 native unit each.
func newFixture(t *testing.T, opts ...fixtureOpt) *fixture {
	t.Helper()
	cfg := fixtureConfig{reserve: 10_000}
	for _, o := range opts {
		o(&cfg)
	}

	ctx := context.Background()
	bus := events.NewBus()
	emitter := events.NewEmitter(bus)
	tok, err := token.New(token.DefaultConfig(adminAddr), emitter)
	require.NoError(t, err)

	clock := NewManualClock(epoch)
	vault := NewVault()
	m, err := New(tok, adminAddr, append([]Option{
		WithClock(clock), WithEmitter(emitter), WithNativeBook(vault),
	}, cfg.managerOpts...)...)
	require.NoError(t, err)

	if !cfg.skipMinter {
		require.NoError(t, tok.GrantRole(ctx, adminAddr, authz.RoleMinter, m.Address()))
	}
	require.NoError(t, m.GrantRole(ctx, adminAddr, authz.RoleVerifier, verifierAddr))
	require.NoError(t, tok.Transfer(ctx, adminAddr, userAddr, tokens(1000)))
	require.NoError(t, tok.Transfer(ctx, adminAddr, otherAddr, tokens(1000)))
	require.NoError(t, m.DepositNative(ctx, adminAddr, userAddr, native(1)))
	require.NoError(t, m.DepositNative(ctx, adminAddr, otherAddr, native(1)))
	if cfg.reserve > 0 {
		require.NoError(t, tok.Approve(ctx, adminAddr, m.Address(), tokens(cfg.reserve)))
		require.NoError(t, m.FundReserve(ctx, adminAddr, tokens(cfg.reserve)))
	}

	feed, cancel := bus.Subscribe(256, func(e events.Event) bool { return e.Source == source })
	t.Cleanup(cancel)

	return &fixture{t: t, ctx: ctx, clock: clock, tok: tok, m: m, vault: vault, bus: bus, feed: feed}
}

func (f *fixture) link(wallet identity.Address, id int64) {
	f.t.Helper()
	require.NoError(f.t, f.m.LinkWallet(f.ctx, verifierAddr, wallet, big.NewInt(id)))
}

func (f *fixture) approve(wallet identity.Address, amount *big.Int) {
	f.t.Helper()
	require.NoError(f.t, f.tok.Approve(f.ctx, wallet, f.m.Address(), amount))
}

// create links (if needed), approves and creates a pakt, returning its index.
func (f *fixture) create(wallet identity.Address, goal GoalType, level Level, amount *big.Int) int {
	f.t.Helper()
	if _, ok := f.m.SourceIDOf(wallet); !ok {
		f.link(wallet, int64(len(f.m.walletToSource)+1000))
	}
	f.approve(wallet, amount)
	idx, err := f.m.CreatePakt(f.ctx, wallet, goal, level, amount, "")
	require.NoError(f.t, err)
	return idx
}

func (f *fixture) expire() {
	f.clock.Advance(f.m.Policy().Duration)
}

// next returns the next ledger event, failing if none is pending.
func (f *fixture) next() events.Event {
	f.t.Helper()
	select {
	case e := <-f.feed:
		return e
	default:
		f.t.Fatal("expected a ledger event")
		return events.Event{}
	}
}

// drain discards pending ledger events.
func (f *fixture) drain() {
	for {
		select {
		case <-f.feed:
		default:
			return
		}
	}
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, kind)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	return perr
}
