package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexbensimon/pakt/pkg/events"
	"github.com/alexbensimon/pakt/pkg/finance"
	"github.com/alexbensimon/pakt/pkg/identity"
	"github.com/alexbensimon/pakt/pkg/pakt"
	"github.com/alexbensimon/pakt/pkg/token"
)

var (
	walletA = identity.LabelAddress("store.wallet.a")
	walletB = identity.LabelAddress("store.wallet.b")
)

func openLite(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), "", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRebind(t *testing.T) {
	q := `SELECT body FROM t WHERE a = $1 AND b = $12 AND c = '$'`
	assert.Equal(t, `SELECT body FROM t WHERE a = ? AND b = ? AND c = '$'`, SQLite.rebind(q))
	assert.Equal(t, q, Postgres.rebind(q))
}

func TestJournal_SQLiteRoundTripKeepsChain(t *testing.T) {
	s := openLite(t)
	ctx := context.Background()
	assert.Equal(t, SQLite, s.Dialect())

	_, err := s.Last(ctx)
	require.ErrorIs(t, err, ErrJournalEmpty)

	em := events.NewEmitter(events.Journal(s))
	em.Emit(ctx, events.New("ledger", events.PaktCreated, walletA, 0, map[string]string{"amount": "100"}))
	em.Emit(ctx, events.New("token", events.Transfer, identity.ZeroAddress, events.NoIndex,
		map[string]string{"from": walletA.Hex(), "to": walletB.Hex(), "amount": "5"}))
	em.Emit(ctx, events.New("ledger", events.PaktEnded, walletA, 0, nil))

	all, err := s.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.NoError(t, events.Verify(events.GenesisHash, all))

	tail, err := s.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, uint64(2), tail[0].Sequence)

	mine, err := s.ListConcerning(ctx, walletA, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 3, "the transfer names walletA as sender")

	theirs, err := s.ListConcerning(ctx, walletB, 0)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, events.Transfer, theirs[0].Name)

	theirs, err = s.ListConcerning(ctx, walletB, 2)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	last, err := s.Last(ctx)
	require.NoError(t, err)
	seq, head := em.Head()
	assert.Equal(t, seq, last.Sequence)
	assert.Equal(t, head, last.Hash)
}

func TestJournal_DuplicateSequenceRejected(t *testing.T) {
	s := openLite(t)
	ctx := context.Background()
	e := events.Event{Sequence: 1, ID: "a", Name: events.Paused, Index: events.NoIndex, Hash: "h"}
	require.NoError(t, s.Append(ctx, e))
	assert.Error(t, s.Append(ctx, e))
}

func newState(t *testing.T) (pakt.State, token.State) {
	t.Helper()
	admin := identity.LabelAddress("store.admin")
	tok, err := token.New(token.DefaultConfig(admin), nil)
	require.NoError(t, err)
	m, err := pakt.New(tok, admin)
	require.NoError(t, err)
	require.NoError(t, tok.Transfer(context.Background(), admin, walletA, finance.Whole(50, 18)))
	return m.Checkpoint()
}

func TestSnapshot_SQLiteSaveAndLoad(t *testing.T) {
	s := openLite(t)
	ctx := context.Background()

	_, err := s.LoadSnapshot(ctx)
	require.ErrorIs(t, err, ErrNoSnapshot)

	ledger, tok := newState(t)
	taken := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveSnapshot(ctx, Snapshot{Sequence: 3, Hash: "h3", TakenAt: taken, Ledger: ledger, Token: tok}))
	require.NoError(t, s.SaveSnapshot(ctx, Snapshot{Sequence: 7, Hash: "h7", TakenAt: taken, Ledger: ledger, Token: tok}))
	// Same position replaces.
	require.NoError(t, s.SaveSnapshot(ctx, Snapshot{Sequence: 7, Hash: "h7b", TakenAt: taken, Ledger: ledger, Token: tok}))

	got, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, got.FormatVersion)
	assert.Equal(t, uint64(7), got.Sequence)
	assert.Equal(t, "h7b", got.Hash)
	assert.True(t, taken.Equal(got.TakenAt))
	assert.Equal(t, ledger.Address, got.Ledger.Address)
	assert.Equal(t, "50000000000000000000", got.Token.Balances[walletA].String())
	assert.Equal(t, tok.TotalSupply.String(), got.Token.TotalSupply.String())
}

func TestCheckFormat(t *testing.T) {
	assert.NoError(t, CheckFormat(FormatVersion))
	assert.NoError(t, CheckFormat("1.0.0"))
	assert.NoError(t, CheckFormat("1.9.3"))
	assert.ErrorIs(t, CheckFormat("2.0.0"), ErrIncompatibleSnapshot)
	assert.ErrorIs(t, CheckFormat("0.9.0"), ErrIncompatibleSnapshot)
	assert.ErrorIs(t, CheckFormat("banana"), ErrIncompatibleSnapshot)
}

func TestDecode_RejectsOtherMajor(t *testing.T) {
	_, err := Decode([]byte(`{"format_version":"2.0.0","sequence":1}`))
	assert.ErrorIs(t, err, ErrIncompatibleSnapshot)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestAppend_PostgresSQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	s := New(db, Postgres)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_events (sequence, id, name, wallet, event_index, hash, body)")).
		WithArgs(int64(4), "evt", "PaktVerified", walletA.Hex(), sqlmock.AnyArg(), "hash4", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = s.Append(context.Background(), events.Event{
		ID: "evt", Sequence: 4, Name: events.PaktVerified, Wallet: walletA, Index: 2, Hash: "hash4",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_PropagatesDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	s := New(db, Postgres)

	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO ledger_events").WillReturnError(boom)

	err = s.Append(context.Background(), events.Event{Sequence: 1})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSnapshot_PostgresRejectsIncompatibleRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	s := New(db, Postgres)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT format_version, body FROM ledger_snapshots")).
		WillReturnRows(sqlmock.NewRows([]string{"format_version", "body"}).AddRow("3.0.0", "{}"))

	_, err = s.LoadSnapshot(context.Background())
	assert.ErrorIs(t, err, ErrIncompatibleSnapshot)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_PostgresDecodes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	s := New(db, Postgres)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT body FROM ledger_events WHERE sequence > $1 ORDER BY sequence LIMIT $2")).
		WithArgs(int64(10), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"body"}).
			AddRow(`{"id":"x","sequence":11,"name":"Paused","index":-1}`))

	got, err := s.List(context.Background(), 10, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, events.Paused, got[0].Name)
	assert.Equal(t, uint64(11), got[0].Sequence)
	require.NoError(t, mock.ExpectationsWereMet())
}
