package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexbensimon/pakt/pkg/identity"
)

type recorder struct {
	got []Event
	err error
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.got = append(r.got, e)
	return r.err
}

var alice = identity.LabelAddress("alice")

func TestEmitter_ChainsAndVerifies(t *testing.T) {
	rec := &recorder{}
	em := NewEmitter(rec)
	ctx := context.Background()

	em.Emit(ctx, New("ledger", PaktCreated, alice, 0, nil))
	em.Emit(ctx, New("ledger", PaktExtended, alice, 0, map[string]string{"amount": "10"}))
	em.Emit(ctx, New("ledger", PaktEnded, alice, 0, nil))

	require.Len(t, rec.got, 3)
	assert.Equal(t, uint64(1), rec.got[0].Sequence)
	assert.Equal(t, GenesisHash, rec.got[0].PrevHash)
	assert.Equal(t, rec.got[0].Hash, rec.got[1].PrevHash)
	require.NoError(t, Verify(GenesisHash, rec.got))

	seq, head := em.Head()
	assert.Equal(t, uint64(3), seq)
	assert.Equal(t, rec.got[2].Hash, head)
}

func TestVerify_DetectsTampering(t *testing.T) {
	rec := &recorder{}
	em := NewEmitter(rec)
	ctx := context.Background()
	em.Emit(ctx, New("ledger", PaktCreated, alice, 0, map[string]string{"amount": "100"}))
	em.Emit(ctx, New("ledger", PaktEnded, alice, 0, nil))

	tampered := append([]Event(nil), rec.got...)
	tampered[0].Attrs = map[string]string{"amount": "999"}
	assert.Error(t, Verify(GenesisHash, tampered))

	assert.Error(t, Verify(GenesisHash, rec.got[1:]), "missing first event breaks the chain")
}

func TestEmitter_ResumeContinuesChain(t *testing.T) {
	first := &recorder{}
	em := NewEmitter(first)
	em.Emit(context.Background(), New("ledger", PaktCreated, alice, 0, nil))
	last := first.got[0]

	second := &recorder{}
	resumed := NewEmitter(second)
	resumed.Resume(last.Sequence, last.Hash)
	resumed.Emit(context.Background(), New("ledger", PaktVerified, alice, 0, nil))

	require.NoError(t, Verify(GenesisHash, append(first.got, second.got...)))
}

func TestEmitter_SinkErrorDoesNotStopChain(t *testing.T) {
	rec := &recorder{err: errors.New("down")}
	em := NewEmitter(rec)
	e := em.Emit(context.Background(), New("ledger", PaktCreated, alice, 0, nil))
	assert.NotEmpty(t, e.Hash)
	seq, _ := em.Head()
	assert.Equal(t, uint64(1), seq)
}

func TestBus_FilterAndCancel(t *testing.T) {
	bus := NewBus()
	bob := identity.LabelAddress("bob")

	ch, cancel := bus.Subscribe(4, func(e Event) bool { return e.Concerns(alice) })
	require.NoError(t, bus.Publish(context.Background(), New("ledger", PaktCreated, bob, 0, nil)))
	require.NoError(t, bus.Publish(context.Background(), New("token", Transfer, bob, NoIndex, map[string]string{"to": alice.Hex()})))

	select {
	case e := <-ch:
		assert.Equal(t, Transfer, e.Name)
	case <-time.After(time.Second):
		t.Fatal("expected event")
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, bus.Subscribers())
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1, nil)
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(context.Background(), New("ledger", PaktCreated, alice, i, nil)))
	}
	assert.Len(t, ch, 1)
	assert.Equal(t, 0, (<-ch).Index)
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("boom")}
	err := Multi{ok, bad}.Publish(context.Background(), New("ledger", PaktCreated, alice, 0, nil))
	assert.ErrorContains(t, err, "boom")
	assert.Len(t, ok.got, 1)
}

// TestRedisPublisher_Integration requires a running Redis and is skipped otherwise.
func TestRedisPublisher_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := DialRedis(ctx, "redis://localhost:6379/0")
	if err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	defer func() { _ = client.Close() }()

	sub := client.Subscribe(ctx, "pakt:test")
	defer func() { _ = sub.Close() }()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewRedisPublisher(client, "pakt:test")
	require.NoError(t, pub.Publish(ctx, New("ledger", PaktCreated, alice, 0, nil)))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"PaktCreated"`)
}
