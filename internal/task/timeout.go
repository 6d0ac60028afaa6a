package task

import (
	"context"
	"time"

	"go.uber.org/atomic"

	"github.com/coro-rt/corort/internal/queue"
)

// WithTimeout awaits a, racing it against a deadline d on the task's
// current queue. If a completes first, its value and cancelled marker are
// returned with expired=false. If the deadline elapses first, a is
// requested to cancel and WithTimeout returns the zero value with
// expired=true; a's eventual cancellation is not awaited further, mirroring
// fire-and-forget cleanup rather than a second suspension.
//
// This is the same winner-take-one race AnyOf2 uses, specialized to a
// single child plus a synthetic timer "child": the combinator package
// cannot be reused directly here without an import cycle (it depends on
// this package for Awaitable and Context), so the race is reimplemented
// against core directly.
func WithTimeout[T any](ctx *Context, a Awaitable[T], d time.Duration) (value T, cancelled bool, expired bool) {
	if a.Ready() {
		value, cancelled = a.Outcome()
		return value, cancelled, false
	}

	c := ctx.core
	mark := c.currentQueue()

	var won atomic.Bool
	var timerID queue.TaskID

	c.suspend(func() {
		a.OnComplete(func() {
			if !won.CompareAndSwap(false, true) {
				return
			}
			c.sys.CancelExecution(timerID)
			value, cancelled = a.Outcome()
			c.sys.PlanExecution(func(gctx context.Context) {
				c.resume(gctx)
			}, mark)
		})

		timerID = c.sys.PlanExecutionAfter(func(gctx context.Context) {
			if !won.CompareAndSwap(false, true) {
				return
			}
			expired = true
			a.RequestCancel()
			c.resume(gctx)
		}, mark, time.Now().Add(d))
	})

	return value, cancelled, expired
}
