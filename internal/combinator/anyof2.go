package combinator

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/coro-rt/corort/internal/metrics"
	"github.com/coro-rt/corort/internal/task"
)

// AnyOf2 awaits two heterogeneously typed children and completes with
// whichever reaches a terminal state first, cancelling the other. As with
// AnyOf, the winner is decided by a CAS the instant a child reports, but
// the parent's own continuation only fires once both children — winner and
// loser alike — have reported terminal.
type AnyOf2[A, B any] struct {
	first  task.Awaitable[A]
	second task.Awaitable[B]

	winner atomic.Int32 // -1 undecided, 0 first won, 1 second won

	mu         sync.Mutex
	remaining  int
	result     Either2[A, B]
	cancelled  bool
	ready      bool
	onComplete func()
}

var _ task.Awaitable[Either2[int, string]] = (*AnyOf2[int, string])(nil)

// NewAnyOf2 builds an AnyOf2 combinator over first and second.
func NewAnyOf2[A, B any](first task.Awaitable[A], second task.Awaitable[B]) *AnyOf2[A, B] {
	a := &AnyOf2[A, B]{first: first, second: second, remaining: 2}
	a.winner.Store(-1)
	first.OnComplete(func() { a.onFirstDone() })
	second.OnComplete(func() { a.onSecondDone() })
	return a
}

func (a *AnyOf2[A, B]) onFirstDone() {
	if a.winner.CompareAndSwap(-1, 0) {
		val, cancelled := a.first.Outcome()
		a.mu.Lock()
		a.result = Either2[A, B]{Index: 0, First: val}
		a.cancelled = cancelled
		a.mu.Unlock()
		a.second.RequestCancel()
	}
	a.finish()
}

func (a *AnyOf2[A, B]) onSecondDone() {
	if a.winner.CompareAndSwap(-1, 1) {
		val, cancelled := a.second.Outcome()
		a.mu.Lock()
		a.result = Either2[A, B]{Index: 1, Second: val}
		a.cancelled = cancelled
		a.mu.Unlock()
		a.first.RequestCancel()
	}
	a.finish()
}

func (a *AnyOf2[A, B]) finish() {
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
		metrics.RecordCombinatorCompletion("any_of2", outcomeLabel(cancelledNow))
		if cb != nil {
			cb()
		}
	}
}

// Ready implements task.Awaitable.
func (a *AnyOf2[A, B]) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

// Outcome implements task.Awaitable.
func (a *AnyOf2[A, B]) Outcome() (Either2[A, B], bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result, a.cancelled
}

// OnComplete implements task.Awaitable.
func (a *AnyOf2[A, B]) OnComplete(fn func()) {
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
func (a *AnyOf2[A, B]) RequestCancel() {
	a.first.RequestCancel()
	a.second.RequestCancel()
}
