package query

import (
	"log/slog"
	"sync"
)

// Queue is a fixed-capacity ring of queries between connections and
// workers. Enqueue blocks while the ring is full; Dequeue blocks while it
// is empty. Producers are only signaled when the ring transitions out of
// the full state, and consumers only when it leaves the empty state, so a
// steady stream wakes nobody needlessly.
type Queue struct {
	mu   sync.Mutex
	work *sync.Cond // signaled when work arrives in an empty ring
	room *sync.Cond // signaled when a slot opens in a full ring

	items []*Query
	head  int
	count int

	onDepth func(int)
	onFull  func()
}

// NewQueue creates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{items: make([]*Query, capacity)}
	q.work = sync.NewCond(&q.mu)
	q.room = sync.NewCond(&q.mu)
	return q
}

// OnStats installs depth and queue-full callbacks. Either may be nil.
func (q *Queue) OnStats(depth func(int), full func()) {
	q.mu.Lock()
	q.onDepth = depth
	q.onFull = full
	q.mu.Unlock()
}

// Len returns the number of queued queries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Enqueue adds a query, blocking while the ring is full.
func (q *Queue) Enqueue(item *Query) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == len(q.items) {
		slog.Warn("query queue full, waiting for a slot",
			"capacity", len(q.items), "query", item.Type.String())
		if q.onFull != nil {
			q.onFull()
		}
		q.room.Wait()
	}

	wasEmpty := q.count == 0
	q.items[(q.head+q.count)%len(q.items)] = item
	q.count++
	if q.onDepth != nil {
		q.onDepth(q.count)
	}
	if wasEmpty {
		q.work.Signal()
	}
}

// Dequeue removes the oldest query, blocking while the ring is empty.
// Once stop reports true nil is returned even when work is queued;
// shutdown fails the leftovers through Drain.
func (q *Queue) Dequeue(stop func() bool) *Query {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if stop() {
			return nil
		}
		if q.count > 0 {
			break
		}
		q.work.Wait()
	}

	wasFull := q.count == len(q.items)
	item := q.items[q.head]
	q.items[q.head] = nil
	q.head = (q.head + 1) % len(q.items)
	q.count--
	if q.onDepth != nil {
		q.onDepth(q.count)
	}
	if q.count > 0 {
		q.work.Signal()
	}
	if wasFull {
		q.room.Signal()
	}
	return item
}

// WakeAll wakes every goroutine blocked in Dequeue so stop flags are
// re-checked.
func (q *Queue) WakeAll() {
	q.mu.Lock()
	q.work.Broadcast()
	q.mu.Unlock()
}

// Drain removes and returns everything still queued. Used during shutdown
// after the workers have exited.
func (q *Queue) Drain() []*Query {
	q.mu.Lock()
	defer q.mu.Unlock()

	remaining := make([]*Query, 0, q.count)
	for q.count > 0 {
		remaining = append(remaining, q.items[q.head])
		q.items[q.head] = nil
		q.head = (q.head + 1) % len(q.items)
		q.count--
	}
	if q.onDepth != nil {
		q.onDepth(0)
	}
	q.room.Broadcast()
	return remaining
}
