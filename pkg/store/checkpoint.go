package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/alexbensimon/pakt/pkg/events"
	"github.com/alexbensimon/pakt/pkg/pakt"
	"github.com/alexbensimon/pakt/pkg/token"
)

// DefaultCheckpointDelay bounds how long a change waits before it is
// covered by a snapshot.
const DefaultCheckpointDelay = time.Second

// Source exports ledger and token state together.
type Source interface {
	Checkpoint() (pakt.State, token.State)
}

// Head reports the last emitted journal position.
type Head interface {
	Head() (uint64, string)
}

// Checkpointer saves a snapshot shortly after events are emitted. Its
// Sink must be part of the emitter's sink: it only signals, so it is safe
// to call while the ledger holds its lock.
type Checkpointer struct {
	store  *SQLStore
	delay  time.Duration
	dirty  chan struct{}
	now    func() time.Time
	logger *slog.Logger
}

func NewCheckpointer(st *SQLStore, delay time.Duration) *Checkpointer {
	if delay <= 0 {
		delay = DefaultCheckpointDelay
	}
	return &Checkpointer{
		store:  st,
		delay:  delay,
		dirty:  make(chan struct{}, 1),
		now:    time.Now,
		logger: slog.Default().With("component", "store.checkpoint"),
	}
}

// Sink marks state dirty on every event.
func (c *Checkpointer) Sink() events.Sink {
	return events.SinkFunc(func(context.Context, events.Event) error {
		select {
		case c.dirty <- struct{}{}:
		default:
		}
		return nil
	})
}

// Save writes a snapshot now. The recorded sequence is read before the
// state, so the state covers at least that position.
func (c *Checkpointer) Save(ctx context.Context, source Source, head Head) (Snapshot, error) {
	seq, hash := head.Head()
	ledger, tok := source.Checkpoint()
	snap := Snapshot{
		FormatVersion: FormatVersion,
		Sequence:      seq,
		Hash:          hash,
		TakenAt:       c.now().UTC(),
		Ledger:        ledger,
		Token:         tok,
	}
	if err := c.store.SaveSnapshot(ctx, snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Run saves a snapshot delay after the first event of each burst until ctx
// is done, then saves once more if anything is pending.
func (c *Checkpointer) Run(ctx context.Context, source Source, head Head) {
	flush := func(ctx context.Context) {
		snap, err := c.Save(ctx, source, head)
		if err != nil {
			c.logger.Error("checkpoint failed", "error", err)
			return
		}
		c.logger.Debug("checkpoint saved", "sequence", snap.Sequence)
	}
	for {
		select {
		case <-ctx.Done():
			select {
			case <-c.dirty:
				flush(context.WithoutCancel(ctx))
			default:
			}
			return
		case <-c.dirty:
		}

		timer := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			flush(context.WithoutCancel(ctx))
			return
		case <-timer.C:
		}
		flush(ctx)
	}
}

