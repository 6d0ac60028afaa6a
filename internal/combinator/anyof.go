package combinator

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/coro-rt/corort/internal/metrics"
	"github.com/coro-rt/corort/internal/task"
)

// AnyOf awaits a homogeneous slice of children and completes with the
// first one to reach a terminal state, cancelling every other child as
// soon as a winner is decided. It still only fires its own continuation
// once every child — winner included — has reported terminal, so a loser
// that is slow to observe its own cancellation does not leak a dangling
// continuation. With exactly one child, AnyOf behaves exactly like
// awaiting that child directly.
type AnyOf[T any] struct {
	children []task.Awaitable[T]

	winner atomic.Int32 // -1 = undecided; otherwise the winning child's index

	mu         sync.Mutex
	remaining  int
	value      T
	cancelled  bool
	ready      bool
	onComplete func()
}

var _ task.Awaitable[int] = (*AnyOf[int])(nil)

// NewAnyOf builds an AnyOf combinator over children, which must be
// non-empty.
func NewAnyOf[T any](children ...task.Awaitable[T]) *AnyOf[T] {
	if len(children) == 0 {
		panic("combinator: AnyOf requires at least one child")
	}
	a := &AnyOf[T]{children: children, remaining: len(children)}
	a.winner.Store(-1)

	for i, ch := range children {
		i, ch := i, ch
		ch.OnComplete(func() { a.onChildDone(i, ch) })
	}
	return a
}

func (a *AnyOf[T]) onChildDone(i int, ch task.Awaitable[T]) {
	won := a.winner.CompareAndSwap(-1, int32(i))
	if won {
		val, cancelled := ch.Outcome()
		a.mu.Lock()
		a.value, a.cancelled = val, cancelled
		a.mu.Unlock()

		for j, sibling := range a.children {
			if j != i {
				sibling.RequestCancel()
			}
		}
	}

	a.mu.Lock()
	a.remaining--
	done := a.remaining == 0
	var cb func()
	cancelledNow := a.cancelled
	if done {
		a.ready = true
		cb = a.onComplete
		a.onComplete = nil
	}
	a.mu.Unlock()

	if done {
		metrics.RecordCombinatorCompletion("any_of", outcomeLabel(cancelledNow))
		if cb != nil {
			cb()
		}
	}
}

// Ready implements task.Awaitable.
func (a *AnyOf[T]) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

// Outcome implements task.Awaitable, returning the winning child's value.
func (a *AnyOf[T]) Outcome() (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value, a.cancelled
}

// OnComplete implements task.Awaitable.
func (a *AnyOf[T]) OnComplete(fn func()) {
	a.mu.Lock()
	if a.ready {
		a.mu.Unlock()
		fn()
		return
	}
	a.onComplete = fn
	a.mu.Unlock()
}

// RequestCancel implements task.Awaitable, cancelling every child.
func (a *AnyOf[T]) RequestCancel() {
	for _, ch := range a.children {
		ch.RequestCancel()
	}
}
