package combinator

import (
	"sync"

	"github.com/coro-rt/corort/internal/metrics"
	"github.com/coro-rt/corort/internal/task"
)

// AllOf awaits a homogeneous slice of children, completing once every one
// of them has reached a terminal state. As soon as any child is observed
// cancelled, AllOf sets its own cancelled flag and requests cancellation
// of every other still-running child; it only fires its own continuation
// once every child (winner or not) has reported terminal.
type AllOf[T any] struct {
	children []task.Awaitable[T]

	mu            sync.Mutex
	remaining     int
	cancelledOnce bool
	results       []T
	ready         bool
	onComplete    func()
}

var _ task.Awaitable[[]int] = (*AllOf[int])(nil)

// NewAllOf builds an AllOf combinator over children. An empty slice is
// immediately ready with an empty result, matching spec.md's all_of()
// zero-children boundary case.
func NewAllOf[T any](children ...task.Awaitable[T]) *AllOf[T] {
	a := &AllOf[T]{
		children:  children,
		remaining: len(children),
		results:   make([]T, len(children)),
	}
	if len(children) == 0 {
		a.ready = true
		return a
	}
	for i, ch := range children {
		i, ch := i, ch
		ch.OnComplete(func() { a.onChildDone(i, ch) })
	}
	return a
}

func (a *AllOf[T]) onChildDone(i int, ch task.Awaitable[T]) {
	val, cancelled := ch.Outcome()

	a.mu.Lock()
	firstCancel := false
	if cancelled {
		if !a.cancelledOnce {
			a.cancelledOnce = true
			firstCancel = true
		}
	} else {
		a.results[i] = val
	}
	a.remaining--
	done := a.remaining == 0
	var cb func()
	if done {
		a.ready = true
		cb = a.onComplete
		a.onComplete = nil
	}
	cancelledNow := a.cancelledOnce
	a.mu.Unlock()

	if firstCancel {
		for j, sibling := range a.children {
			if j != i {
				sibling.RequestCancel()
			}
		}
	}

	if done {
		metrics.RecordCombinatorCompletion("all_of", outcomeLabel(cancelledNow))
		if cb != nil {
			cb()
		}
	}
}

// Ready implements task.Awaitable.
func (a *AllOf[T]) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

// Outcome implements task.Awaitable. The slice is only complete and valid
// once Ready reports true.
func (a *AllOf[T]) Outcome() ([]T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.results, a.cancelledOnce
}

// OnComplete implements task.Awaitable.
func (a *AllOf[T]) OnComplete(fn func()) {
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
func (a *AllOf[T]) RequestCancel() {
	for _, ch := range a.children {
		ch.RequestCancel()
	}
}
