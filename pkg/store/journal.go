package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alexbensimon/pakt/pkg/events"
	"github.com/alexbensimon/pakt/pkg/identity"
)

// ErrJournalEmpty is returned by Last when nothing has been appended.
var ErrJournalEmpty = errors.New("store: journal is empty")

// Append persists a sealed event. Sequences are unique, so a replayed
// event fails instead of forking the chain.
func (s *SQLStore) Append(ctx context.Context, e events.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("store: marshal event: %w", err)
	}
	query := s.dialect.rebind(`
		INSERT INTO ledger_events (sequence, id, name, wallet, event_index, hash, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	_, err = s.db.ExecContext(ctx, query,
		int64(e.Sequence), e.ID, string(e.Name), e.Wallet.Hex(), e.Index, e.Hash, string(body),
	)
	if err != nil {
		return fmt.Errorf("store: append sequence %d: %w", e.Sequence, err)
	}
	return nil
}

// List returns up to limit events with sequence greater than after, in
// order. A non-positive limit returns all of them.
func (s *SQLStore) List(ctx context.Context, after uint64, limit int) ([]events.Event, error) {
	query := `SELECT body FROM ledger_events WHERE sequence > $1 ORDER BY sequence`
	args := []any{int64(after)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.query(ctx, query, args...)
}

// historyPage bounds how many rows ListConcerning decodes per query.
const historyPage = 500

// ListConcerning returns the events after the given sequence that concern
// wallet, in order. Counterparties recorded in the attributes match as well
// as the subject.
func (s *SQLStore) ListConcerning(ctx context.Context, wallet identity.Address, after uint64) ([]events.Event, error) {
	result := make([]events.Event, 0)
	for {
		page, err := s.List(ctx, after, historyPage)
		if err != nil {
			return nil, err
		}
		for _, e := range page {
			if e.Concerns(wallet) {
				result = append(result, e)
			}
		}
		if len(page) < historyPage {
			return result, nil
		}
		after = page[len(page)-1].Sequence
	}
}

// Last returns the most recent event.
func (s *SQLStore) Last(ctx context.Context) (events.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body FROM ledger_events ORDER BY sequence DESC LIMIT 1`)
	var body string
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return events.Event{}, ErrJournalEmpty
		}
		return events.Event{}, fmt.Errorf("store: last event: %w", err)
	}
	var e events.Event
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		return events.Event{}, fmt.Errorf("store: decode event: %w", err)
	}
	return e, nil
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]events.Event, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var e events.Event
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, fmt.Errorf("store: decode event: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
