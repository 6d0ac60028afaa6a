package queue

import (
	"container/heap"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// TaskID identifies one delayed task for later cancellation. The zero
// value is the sentinel meaning "no delayed task" (scheduled immediately,
// or never scheduled).
type TaskID uint64

// Clock is the runtime's external monotonic time source, injected so
// tests can control the passage of time without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the Clock backed by time.Now, which already returns a
// monotonic-reading time.Time on every supported platform.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

type delayedTask struct {
	id        TaskID
	fireAt    time.Time
	target    Mark
	closure   Closure
	cancelled atomic.Bool
	index     int
}

type delayedHeap []*delayedTask

func (h delayedHeap) Len() int            { return len(h) }
func (h delayedHeap) Less(i, j int) bool  { return h[i].fireAt.Before(h[j].fireAt) }
func (h delayedHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *delayedHeap) Push(x any) {
	dt := x.(*delayedTask)
	dt.index = len(*h)
	*h = append(*h, dt)
}
func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	dt := old[n-1]
	old[n-1] = nil
	dt.index = -1
	*h = old[:n-1]
	return dt
}

// Promoter delivers a delayed task's closure to its target queue and
// wakes a worker once it fires. The execution system supplies this.
type Promoter func(target Mark, c Closure)

// Timer is the dedicated delayed-task thread: a min-heap of pending
// closures keyed by fire time, protected by a mutex and driven by a
// condition variable, exactly as the reference timer_loop specifies.
type Timer struct {
	clock   Clock
	promote Promoter

	mu   sync.Mutex
	cond *sync.Cond
	heap delayedHeap
	byID map[TaskID]*delayedTask

	nextID       atomic.Uint64
	shuttingDown bool
}

// NewTimer constructs a Timer. Call Run in a dedicated goroutine.
func NewTimer(clock Clock, promote Promoter) *Timer {
	if clock == nil {
		clock = SystemClock{}
	}
	t := &Timer{
		clock:   clock,
		promote: promote,
		byID:    make(map[TaskID]*delayedTask),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Schedule inserts c to fire no earlier than fireAt on target, returning
// its cancellation id. A nil closure is a no-op returning the sentinel. A
// fireAt that is not after the clock's current time is promoted at once
// and also returns the sentinel. After Shutdown, c is dropped and the
// sentinel is returned.
func (t *Timer) Schedule(c Closure, target Mark, fireAt time.Time) TaskID {
	if c == nil {
		return 0
	}
	if !fireAt.After(t.clock.Now()) {
		t.promote(target, c)
		return 0
	}

	t.mu.Lock()
	if t.shuttingDown {
		t.mu.Unlock()
		return 0
	}
	id := TaskID(t.nextID.Inc())
	dt := &delayedTask{id: id, fireAt: fireAt, target: target, closure: c}
	heap.Push(&t.heap, dt)
	t.byID[id] = dt
	becameRoot := t.heap[0] == dt
	if becameRoot {
		t.cond.Signal()
	}
	t.mu.Unlock()

	return id
}

// Cancel marks the delayed task pending removal. It reports true iff the
// task was still pending in the heap (not yet promoted, not unknown).
func (t *Timer) Cancel(id TaskID) bool {
	if id == 0 {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	dt, ok := t.byID[id]
	if !ok {
		return false
	}
	dt.cancelled.Store(true)
	delete(t.byID, id)
	if len(t.heap) > 0 && t.heap[0] == dt {
		t.cond.Signal()
	}
	return true
}

// Run drives the timer loop until Shutdown is called. It is meant to run
// on its own goroutine for the lifetime of the execution system.
func (t *Timer) Run() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		if t.shuttingDown {
			return
		}

		if len(t.heap) == 0 {
			t.cond.Wait()
			continue
		}

		root := t.heap[0]
		now := t.clock.Now()
		if root.fireAt.After(now) {
			wait := root.fireAt.Sub(now)
			wake := time.AfterFunc(wait, func() {
				t.mu.Lock()
				t.cond.Signal()
				t.mu.Unlock()
			})
			t.cond.Wait()
			wake.Stop()
			continue
		}

		heap.Pop(&t.heap)
		delete(t.byID, root.id)

		if root.cancelled.Load() {
			// dropped: no destructor semantics in Go, the closure
			// reference is simply released for collection.
			continue
		}

		closure, target := root.closure, root.target
		t.mu.Unlock()
		t.promote(target, closure)
		t.mu.Lock()
	}
}

// Shutdown clears the heap and wakes the timer loop so it can exit. Any
// tasks still pending are dropped without invocation.
func (t *Timer) Shutdown() {
	t.mu.Lock()
	t.shuttingDown = true
	t.heap = nil
	t.byID = nil
	t.cond.Broadcast()
	t.mu.Unlock()
}

// Len reports the number of tasks currently pending in the heap. Used
// only for metrics/observability, never for control flow.
func (t *Timer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.heap)
}
