package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/alexbensimon/pakt/pkg/pakt"
	"github.com/alexbensimon/pakt/pkg/token"
)

// FormatVersion is written into every snapshot. Loading accepts any
// snapshot with the same major version.
const FormatVersion = "1.1.0"

var (
	ErrNoSnapshot           = errors.New("store: no snapshot")
	ErrIncompatibleSnapshot = errors.New("store: incompatible snapshot format")
)

// Snapshot is the full ledger and token state at a journal position.
type Snapshot struct {
	FormatVersion string      `json:"format_version"`
	Sequence      uint64      `json:"sequence"`
	Hash          string      `json:"hash"`
	TakenAt       time.Time   `json:"taken_at"`
	Ledger        pakt.State  `json:"ledger"`
	Token         token.State `json:"token"`
}

// Encode renders snap as JSON, stamping the current format version when
// none is set.
func Encode(snap Snapshot) ([]byte, error) {
	if snap.FormatVersion == "" {
		snap.FormatVersion = FormatVersion
	}
	return json.Marshal(snap)
}

// Decode parses a snapshot and checks its format version.
func Decode(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("store: decode snapshot: %w", err)
	}
	if err := CheckFormat(snap.FormatVersion); err != nil {
		return nil, err
	}
	return &snap, nil
}

// CheckFormat rejects versions that are malformed or from another major.
func CheckFormat(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrIncompatibleSnapshot, version, err)
	}
	current := semver.MustParse(FormatVersion)
	c, err := semver.NewConstraint(fmt.Sprintf("^%d.0.0", current.Major()))
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: %s, want %d.x", ErrIncompatibleSnapshot, v, current.Major())
	}
	return nil
}

// SaveSnapshot stores snap keyed by its sequence, replacing an earlier
// snapshot at the same position.
func (s *SQLStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	if snap.FormatVersion == "" {
		snap.FormatVersion = FormatVersion
	}
	body, err := Encode(snap)
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}
	query := s.dialect.rebind(`
		INSERT INTO ledger_snapshots (sequence, format_version, hash, taken_at, body)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sequence) DO UPDATE SET
			format_version = excluded.format_version,
			hash = excluded.hash,
			taken_at = excluded.taken_at,
			body = excluded.body
	`)
	_, err = s.db.ExecContext(ctx, query,
		int64(snap.Sequence), snap.FormatVersion, snap.Hash, snap.TakenAt.UTC().Format(time.RFC3339Nano), string(body),
	)
	if err != nil {
		return fmt.Errorf("store: save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the snapshot with the highest sequence.
func (s *SQLStore) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT format_version, body FROM ledger_snapshots ORDER BY sequence DESC LIMIT 1`)
	var version, body string
	if err := row.Scan(&version, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("store: load snapshot: %w", err)
	}
	if err := CheckFormat(version); err != nil {
		return nil, err
	}
	return Decode([]byte(body))
}
