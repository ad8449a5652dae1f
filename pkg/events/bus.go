package events

import (
	"context"
	"log/slog"
	"sync"
)

// Filter selects events for a subscriber. A nil filter accepts everything.
type Filter func(Event) bool

type subscriber struct {
	ch     chan Event
	filter Filter
}

// Bus fans events out to in-process subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscriber
	logger *slog.Logger
}

func NewBus() *Bus {
	return &Bus{
		subs:   make(map[int]*subscriber),
		logger: slog.Default().With("component", "events.bus"),
	}
}

// Subscribe returns a channel of matching events and a cancel function that
// closes it.
func (b *Bus) Subscribe(buffer int, filter Filter) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Event, buffer), filter: filter}
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}

func (b *Bus) Publish(_ context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subs {
		if sub.filter != nil && !sub.filter(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.logger.Warn("subscriber lagging, event dropped", "subscriber", id, "sequence", e.Sequence)
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
