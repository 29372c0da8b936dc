package broadcast_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-hubmon/internal/broadcast"
	"github.com/technosupport/ts-hubmon/internal/hub"
)

func event(rid string) hub.RawEvent {
	return hub.RawEvent{ResourceID: rid, Type: "zigbee_connectivity", Timestamp: time.Now()}
}

func TestPublishAssignsMonotonicSequence(t *testing.T) {
	q := broadcast.NewQueue(8)

	require.Equal(t, uint64(1), q.Publish(event("a")))
	require.Equal(t, uint64(2), q.Publish(event("b")))
	require.Equal(t, uint64(3), q.Publish(event("c")))
	require.Equal(t, 3, q.Len())
}

func TestSubscriberSeesOnlyEventsAfterSubscribe(t *testing.T) {
	q := broadcast.NewQueue(8)
	q.Publish(event("before"))

	sub := q.Subscribe()
	defer sub.Close()

	batch, gap := sub.Poll(0)
	require.Empty(t, batch)
	require.False(t, gap)

	q.Publish(event("after"))
	batch, gap = sub.Poll(0)
	require.False(t, gap)
	require.Len(t, batch, 1)
	require.Equal(t, "after", batch[0].Event.ResourceID)
	require.Equal(t, uint64(2), batch[0].Seq)
}

func TestDropOldestWhenFull(t *testing.T) {
	const capacity = 10
	q := broadcast.NewQueue(capacity)
	sub := q.Subscribe()
	defer sub.Close()

	for i := 0; i < capacity+1; i++ {
		q.Publish(event(fmt.Sprintf("ev-%d", i)))
	}
	require.Equal(t, capacity, q.Len())

	// The first event was evicted; the subscriber is told about the gap
	// and resumes from the oldest retained entry.
	batch, gap := sub.Poll(0)
	require.True(t, gap)
	require.Len(t, batch, capacity)
	require.Equal(t, uint64(2), batch[0].Seq)
	require.Equal(t, "ev-1", batch[0].Event.ResourceID)
	require.Equal(t, "ev-10", batch[capacity-1].Event.ResourceID)

	// Gap is reported once; the cursor is consistent afterwards.
	batch, gap = sub.Poll(0)
	require.Empty(t, batch)
	require.False(t, gap)
}

func TestOrderHoldsAcrossRepeatedWraps(t *testing.T) {
	const capacity = 4
	q := broadcast.NewQueue(capacity)
	sub := q.Subscribe()
	defer sub.Close()

	// Push the ring around itself several times.
	for i := 0; i < capacity*3; i++ {
		q.Publish(event(fmt.Sprintf("ev-%d", i)))
	}

	batch, gap := sub.Poll(0)
	require.True(t, gap)
	require.Len(t, batch, capacity)
	for i, env := range batch {
		require.Equal(t, uint64(capacity*2+i+1), env.Seq)
		require.Equal(t, fmt.Sprintf("ev-%d", capacity*2+i), env.Event.ResourceID)
	}

	// A partial drain followed by more evictions keeps the cursor math
	// consistent at the wrap boundary.
	q.Publish(event("tail-0"))
	q.Publish(event("tail-1"))
	batch, gap = sub.Poll(0)
	require.False(t, gap)
	require.Len(t, batch, 2)
	require.Equal(t, "tail-0", batch[0].Event.ResourceID)
	require.Equal(t, "tail-1", batch[1].Event.ResourceID)
	require.Equal(t, batch[0].Seq+1, batch[1].Seq)
}

func TestPollBatchLimit(t *testing.T) {
	q := broadcast.NewQueue(16)
	sub := q.Subscribe()
	defer sub.Close()

	for i := 0; i < 6; i++ {
		q.Publish(event(fmt.Sprintf("ev-%d", i)))
	}

	batch, gap := sub.Poll(4)
	require.False(t, gap)
	require.Len(t, batch, 4)

	batch, gap = sub.Poll(4)
	require.False(t, gap)
	require.Len(t, batch, 2)
}

func TestIndependentCursors(t *testing.T) {
	q := broadcast.NewQueue(16)
	fast := q.Subscribe()
	defer fast.Close()
	slow := q.Subscribe()
	defer slow.Close()

	q.Publish(event("a"))
	q.Publish(event("b"))

	batch, _ := fast.Poll(0)
	require.Len(t, batch, 2)

	// The slow subscriber still gets everything; cursors don't share.
	batch, _ = slow.Poll(0)
	require.Len(t, batch, 2)
}

func TestNotifyWakesOnPublish(t *testing.T) {
	q := broadcast.NewQueue(8)
	sub := q.Subscribe()
	defer sub.Close()

	notify := q.Notify()
	go q.Publish(event("a"))

	select {
	case <-notify:
	case <-time.After(time.Second):
		t.Fatal("notify channel never closed")
	}
	batch, _ := sub.Poll(0)
	require.Len(t, batch, 1)
}

func TestPublishNeverBlocks(t *testing.T) {
	q := broadcast.NewQueue(4)
	// A subscriber that never polls must not slow publishers down.
	sub := q.Subscribe()
	defer sub.Close()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				q.Publish(event("x"))
			}
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publishers blocked")
	}

	_, gap := sub.Poll(0)
	require.True(t, gap)
}
