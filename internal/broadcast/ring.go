package broadcast

import (
	"sync"

	"github.com/technosupport/ts-hubmon/internal/hub"
	"github.com/technosupport/ts-hubmon/internal/metrics"
)

// Envelope wraps a routed event with a monotonically increasing
// sequence number. Sequence numbers start at 1 and never repeat for the
// lifetime of the queue; a hole in the sequence a subscriber observes is
// a gap, never a reorder.
type Envelope struct {
	Seq   uint64       `json:"seq"`
	Event hub.RawEvent `json:"event"`
}

// Queue is a fixed-capacity ring of the most recent envelopes. Publish
// never blocks and never fails: when the ring is full the oldest entry
// is evicted. Subscribers hold their own cursors; a subscriber that
// falls behind by more than the capacity observes a gap on its next
// poll.
type Queue struct {
	mu     sync.Mutex
	buf    []Envelope
	cap    int
	head   int    // index of the oldest retained envelope
	size   int    // envelopes currently held
	next   uint64 // sequence number the next Publish will use
	oldest uint64 // lowest sequence still held; 0 when empty
	signal chan struct{}

	subscribers int
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Queue{
		buf:    make([]Envelope, capacity),
		cap:    capacity,
		next:   1,
		signal: make(chan struct{}),
	}
}

// Publish appends the event and returns its sequence number. Constant
// time regardless of how full the ring is.
func (q *Queue) Publish(ev hub.RawEvent) uint64 {
	q.mu.Lock()
	env := Envelope{Seq: q.next, Event: ev}
	q.next++

	if q.size == q.cap {
		// Drop-oldest: recency beats completeness for a live tail.
		q.head = (q.head + 1) % q.cap
		q.size--
		q.oldest++
		metrics.BroadcastDroppedTotal.Inc()
	}
	q.buf[(q.head+q.size)%q.cap] = env
	q.size++
	if q.oldest == 0 {
		q.oldest = env.Seq
	}

	// Wake any waiting subscribers.
	close(q.signal)
	q.signal = make(chan struct{})
	q.mu.Unlock()

	return env.Seq
}

// Notify returns a channel closed on the next Publish. Callers re-fetch
// after each wakeup.
func (q *Queue) Notify() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.signal
}

// Len reports how many envelopes are currently buffered.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Subscriber reads the queue from its own cursor. Not safe for
// concurrent use by multiple goroutines.
type Subscriber struct {
	q      *Queue
	cursor uint64 // next sequence this subscriber wants
}

// Subscribe attaches a new subscriber that observes events published
// after this call.
func (q *Queue) Subscribe() *Subscriber {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subscribers++
	metrics.BroadcastSubscribers.Inc()
	return &Subscriber{q: q, cursor: q.next}
}

// Close detaches the subscriber. Poll must not be called afterwards.
func (s *Subscriber) Close() {
	if s.q == nil {
		return
	}
	s.q.mu.Lock()
	s.q.subscribers--
	metrics.BroadcastSubscribers.Dec()
	s.q.mu.Unlock()
	s.q = nil
}

// Poll returns up to max envelopes from the cursor onward. gap is true
// when entries between the cursor and the oldest retained envelope were
// evicted before this subscriber read them; the cursor then jumps
// forward so the caller can surface the discontinuity and continue.
func (s *Subscriber) Poll(max int) (batch []Envelope, gap bool) {
	q := s.q
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 || s.cursor >= q.next {
		return nil, false
	}
	if s.cursor < q.oldest {
		gap = true
		s.cursor = q.oldest
	}

	start := int(s.cursor - q.oldest)
	n := q.size - start
	if max > 0 && n > max {
		n = max
	}
	batch = make([]Envelope, n)
	for i := range batch {
		batch[i] = q.buf[(q.head+start+i)%q.cap]
	}
	s.cursor += uint64(n)
	return batch, gap
}
