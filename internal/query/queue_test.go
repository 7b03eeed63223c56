package query

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func never() bool { return false }

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(4)

	a := New([]byte{1}, 8)
	b := New([]byte{2}, 8)
	q.Enqueue(a)
	q.Enqueue(b)

	if got := q.Dequeue(never); got != a {
		t.Error("first dequeue is not the first enqueued query")
	}
	if got := q.Dequeue(never); got != b {
		t.Error("second dequeue is not the second enqueued query")
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0", q.Len())
	}
}

func TestDequeueBlocksUntilWork(t *testing.T) {
	q := NewQueue(2)
	got := make(chan *Query)

	go func() { got <- q.Dequeue(never) }()

	select {
	case <-got:
		t.Fatal("Dequeue returned from an empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	want := New([]byte{1}, 8)
	q.Enqueue(want)

	select {
	case item := <-got:
		if item != want {
			t.Error("dequeued wrong query")
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue still blocked after Enqueue")
	}
}

func TestEnqueueBlocksWhileFull(t *testing.T) {
	q := NewQueue(1)
	q.Enqueue(New([]byte{1}, 8))

	released := make(chan struct{})
	go func() {
		q.Enqueue(New([]byte{2}, 8))
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("Enqueue returned while the queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	q.Dequeue(never)

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("Enqueue still blocked after a slot opened")
	}
}

func TestStopUnblocksDequeue(t *testing.T) {
	q := NewQueue(2)
	var stop atomic.Bool

	got := make(chan *Query, 1)
	go func() { got <- q.Dequeue(stop.Load) }()

	time.Sleep(20 * time.Millisecond)
	stop.Store(true)
	q.WakeAll()

	select {
	case item := <-got:
		if item != nil {
			t.Error("Dequeue returned a query after stop, want nil")
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not honor stop")
	}
}

func TestDequeueRefusesWorkOnStop(t *testing.T) {
	q := NewQueue(2)
	want := New([]byte{1}, 8)
	q.Enqueue(want)

	stopped := func() bool { return true }
	if got := q.Dequeue(stopped); got != nil {
		t.Error("stopped Dequeue handed out queued work")
	}

	// The leftover query is still there for the shutdown drain.
	remaining := q.Drain()
	if len(remaining) != 1 || remaining[0] != want {
		t.Errorf("Drain returned %v, want the queued query", remaining)
	}
}

func TestDrain(t *testing.T) {
	q := NewQueue(4)
	for i := 0; i < 3; i++ {
		q.Enqueue(New([]byte{byte(i)}, 8))
	}

	remaining := q.Drain()
	if len(remaining) != 3 {
		t.Fatalf("Drain returned %d queries, want 3", len(remaining))
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d after Drain, want 0", q.Len())
	}
}

func TestConcurrentProducersConsumers(t *testing.T) {
	q := NewQueue(8)
	const total = 200

	var consumed atomic.Int32
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item := q.Dequeue(never)
				if item.Type == Type(255) { // poison
					return
				}
				consumed.Add(1)
			}
		}()
	}

	for i := 0; i < total; i++ {
		q.Enqueue(New([]byte{0}, 8))
	}
	for w := 0; w < 4; w++ {
		q.Enqueue(New([]byte{255}, 8))
	}
	wg.Wait()

	if consumed.Load() != total {
		t.Errorf("consumed %d queries, want %d", consumed.Load(), total)
	}
}
