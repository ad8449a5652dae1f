package events

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

// GenesisHash is the PrevHash of the first event in a chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Hash returns the SHA-256 of the RFC 8785 canonical JSON of e with its Hash
// field cleared.
func Hash(e Event) (string, error) {
	e.Hash = ""
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("events: marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("events: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Verify checks that evs form an unbroken chain starting after prev.
func Verify(prev string, evs []Event) error {
	for i, e := range evs {
		if e.PrevHash != prev {
			return fmt.Errorf("events: sequence %d breaks chain: prev_hash %s, want %s", e.Sequence, e.PrevHash, prev)
		}
		h, err := Hash(e)
		if err != nil {
			return err
		}
		if h != e.Hash {
			return fmt.Errorf("events: sequence %d hash mismatch", e.Sequence)
		}
		if i > 0 && e.Sequence != evs[i-1].Sequence+1 {
			return fmt.Errorf("events: gap between sequence %d and %d", evs[i-1].Sequence, e.Sequence)
		}
		prev = e.Hash
	}
	return nil
}

// Emitter seals events into the chain and hands them to a sink. Sink
// failures are logged and never fail the emitting operation.
type Emitter struct {
	mu     sync.Mutex
	seq    uint64
	head   string
	sink   Sink
	now    func() time.Time
	logger *slog.Logger
}

// NewEmitter creates an emitter whose chain starts at genesis.
func NewEmitter(sink Sink) *Emitter {
	if sink == nil {
		sink = Discard
	}
	return &Emitter{
		head:   GenesisHash,
		sink:   sink,
		now:    time.Now,
		logger: slog.Default().With("component", "events"),
	}
}

// Resume continues the chain after the given sequence and hash, typically
// the last journaled event.
func (em *Emitter) Resume(seq uint64, hash string) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.seq = seq
	em.head = hash
}

// Head returns the last sequence number and hash.
func (em *Emitter) Head() (uint64, string) {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.seq, em.head
}

// Emit seals e and publishes it.
func (em *Emitter) Emit(ctx context.Context, e Event) Event {
	em.mu.Lock()
	defer em.mu.Unlock()

	e.ID = uuid.NewString()
	e.Sequence = em.seq + 1
	e.PrevHash = em.head
	if e.Timestamp.IsZero() {
		e.Timestamp = em.now().UTC()
	}
	h, err := Hash(e)
	if err != nil {
		em.logger.Error("event not sealed", "name", e.Name, "error", err)
		return e
	}
	e.Hash = h
	em.seq = e.Sequence
	em.head = h

	if err := em.sink.Publish(ctx, e); err != nil {
		em.logger.Warn("event sink failed", "name", e.Name, "sequence", e.Sequence, "error", err)
	}
	return e
}
