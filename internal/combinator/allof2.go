package combinator

import (
	"sync"

	"github.com/coro-rt/corort/internal/metrics"
	"github.com/coro-rt/corort/internal/task"
)

// AllOf2 awaits two heterogeneously typed children and completes once both
// have reached a terminal state, with the same first-cancel-propagates
// semantics as AllOf.
type AllOf2[A, B any] struct {
	first  task.Awaitable[A]
	second task.Awaitable[B]

	mu            sync.Mutex
	remaining     int
	cancelledOnce bool
	result        Pair[A, B]
	ready         bool
	onComplete    func()
}

var _ task.Awaitable[Pair[int, string]] = (*AllOf2[int, string])(nil)

// NewAllOf2 builds an AllOf2 combinator over first and second.
func NewAllOf2[A, B any](first task.Awaitable[A], second task.Awaitable[B]) *AllOf2[A, B] {
	a := &AllOf2[A, B]{first: first, second: second, remaining: 2}
	first.OnComplete(func() { a.onFirstDone() })
	second.OnComplete(func() { a.onSecondDone() })
	return a
}

func (a *AllOf2[A, B]) onFirstDone() {
	val, cancelled := a.first.Outcome()
	a.mu.Lock()
	if !cancelled {
		a.result.First = val
	}
	a.onChildDone(cancelled, a.second)
}

func (a *AllOf2[A, B]) onSecondDone() {
	val, cancelled := a.second.Outcome()
	a.mu.Lock()
	if !cancelled {
		a.result.Second = val
	}
	a.onChildDone(cancelled, a.first)
}

// onChildDone is entered with a.mu held by the caller and always releases
// it before returning.
func (a *AllOf2[A, B]) onChildDone(cancelled bool, sibling interface{ RequestCancel() }) {
	firstCancel := cancelled && !a.cancelledOnce
	if firstCancel {
		a.cancelledOnce = true
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
		sibling.RequestCancel()
	}
	if done {
		metrics.RecordCombinatorCompletion("all_of2", outcomeLabel(cancelledNow))
		if cb != nil {
			cb()
		}
	}
}

// Ready implements task.Awaitable.
func (a *AllOf2[A, B]) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

// Outcome implements task.Awaitable.
func (a *AllOf2[A, B]) Outcome() (Pair[A, B], bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result, a.cancelledOnce
}

// OnComplete implements task.Awaitable.
func (a *AllOf2[A, B]) OnComplete(fn func()) {
	a.mu.Lock()
	if a.ready {
		a.mu.Unlock()
		fn()
		return
	}
	a.onComplete = fn
	a.mu.Unlock()
}

// RequestCancel implements task.Awaitable, cancelling both children.
func (a *AllOf2[A, B]) RequestCancel() {
	a.first.RequestCancel()
	a.second.RequestCancel()
}
