// Package task implements the suspendable task: a generic Task[T] whose
// body runs on its own goroutine but only ever executes while some worker
// (or the timer, or the embedder's main loop) is actively driving it
// through resume, exactly one suspension point at a time.
package task

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/coro-rt/corort/internal/exec"
	"github.com/coro-rt/corort/internal/metrics"
	"github.com/coro-rt/corort/internal/queue"
)

// Body is a task's logic. It runs on a dedicated goroutine and may call
// any Context method to suspend; it must never be called directly.
type Body[T any] func(ctx *Context) T

// Awaitable is anything a task can suspend on with Await: a plain
// Handle[T], or a combinator's result. Ready/Outcome/OnComplete mirror the
// reference implementation's await_ready/await_resume/
// continue_after_complete trio.
type Awaitable[T any] interface {
	// Ready reports whether the outcome is already terminal, letting Await
	// skip suspension entirely (the fast path for a child that completed
	// before its parent ever awaited it).
	Ready() bool
	// Outcome returns the terminal value and whether it was delivered via
	// cancellation. Only meaningful once Ready is true or a continuation
	// registered with OnComplete has fired.
	Outcome() (T, bool)
	// OnComplete registers a single-shot continuation that fires exactly
	// once, when the awaitable becomes terminal. If it is already
	// terminal, it may fire synchronously, inline, on the calling
	// goroutine.
	OnComplete(fn func())
	// RequestCancel propagates a cancellation request, idempotently.
	RequestCancel()
}

// Task is one suspendable unit of work producing a T. Use Start to launch
// a root task and StartChild to launch one from inside a running body.
type Task[T any] struct {
	*core
}

// Handle is the caller-visible, strongly-owned reference to a Task[T]: the
// only way external code observes or cancels a task it doesn't itself
// run. Handle implements Awaitable[T] so tasks can await other tasks
// uniformly with combinator results.
type Handle[T any] struct {
	c *core
}

var _ Awaitable[struct{}] = (*Handle[struct{}])(nil)

// Ready implements Awaitable.
func (h *Handle[T]) Ready() bool { return h.c.ready() }

// Outcome implements Awaitable.
func (h *Handle[T]) Outcome() (T, bool) {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	var zero T
	if h.c.state == Cancelled || !h.c.hasResult {
		return zero, true
	}
	return h.c.resultVal.(T), false
}

// OnComplete implements Awaitable.
func (h *Handle[T]) OnComplete(fn func()) { h.c.onComplete(fn) }

// RequestCancel implements Awaitable.
func (h *Handle[T]) RequestCancel() { h.c.requestCancel() }

// Cancelled reports whether cancellation has been requested, regardless of
// whether the task has observed it yet.
func (h *Handle[T]) Cancelled() bool { return h.c.cancelled() }

// Context is what a running body uses to suspend itself: await an
// external callback, switch queues, sleep, start a child, await a child
// (via the package-level Await function, since it needs T), or cancel
// itself.
type Context struct {
	core *core
}

// Cancelled cooperatively reports whether cancellation has been requested
// of this task. Bodies that want to unwind promptly should check this at
// loop boundaries and call CancelSelf if it is true.
func (ctx *Context) Cancelled() bool { return ctx.core.cancelled() }

// CancelSelf unwinds the body immediately into the Cancelled state. It
// never returns.
func (ctx *Context) CancelSelf() {
	panic(cancelSignal{})
}

// SwitchTo changes the task's queue affinity to q. If the goroutine
// currently driving the body does not already service q, the body
// suspends and is re-enqueued on q; otherwise execution continues without
// suspending.
func (ctx *Context) SwitchTo(q queue.Mark) {
	c := ctx.core
	c.setQueue(q)

	if c.sys.IsCurrentThreadFits(c.goCtx, q) {
		return
	}

	c.suspend(func() {
		c.sys.PlanExecution(func(gctx context.Context) {
			c.resume(gctx)
		}, q)
	})
}

// Sleep suspends the body for at least d, resuming on its current queue.
func (ctx *Context) Sleep(d time.Duration) {
	c := ctx.core
	fireAt := time.Now().Add(d)
	mark := c.currentQueue()

	c.suspend(func() {
		c.sys.PlanExecutionAfter(func(gctx context.Context) {
			c.resume(gctx)
		}, mark, fireAt)
	})
}

// AwaitCallback suspends the body until register's resume argument is
// invoked (from any goroutine, at any time). The handle register receives
// only ever enqueues the task's resumption; it never runs it inline, so it
// is always safe to call synchronously from within register itself.
func (ctx *Context) AwaitCallback(register func(resume func())) {
	c := ctx.core
	mark := c.currentQueue()

	c.suspend(func() {
		register(func() {
			c.sys.PlanExecution(func(gctx context.Context) {
				c.resume(gctx)
			}, mark)
		})
	})
}

// StartChild launches body as a child of the task owning ctx. The child
// inherits the parent's current queue and begins running immediately,
// inline on the calling goroutine — it does not suspend the parent. The
// parent's cancellation cascades to every child it has started.
func StartChild[T any](ctx *Context, body Body[T]) *Handle[T] {
	parent := ctx.core
	mark := parent.currentQueue()

	c := newCore(parent.sys, mark)
	c.parent = parent

	parent.mu.Lock()
	parent.children = append(parent.children, c)
	parent.mu.Unlock()

	t := &Task[T]{core: c}
	go t.run(body)

	metrics.RecordTaskStart()
	t.resume(parent.goCtx)

	return &Handle[T]{c: c}
}

// Await suspends the body until a becomes terminal, then returns its
// value and whether it arrived via cancellation. If a is already terminal,
// Await returns immediately without suspending.
func Await[T any](ctx *Context, a Awaitable[T]) (T, bool) {
	if a.Ready() {
		return a.Outcome()
	}

	c := ctx.core
	mark := c.currentQueue()

	c.suspend(func() {
		a.OnComplete(func() {
			c.sys.PlanExecution(func(gctx context.Context) {
				c.resume(gctx)
			}, mark)
		})
	})

	return a.Outcome()
}

// Start launches body as a root task on the given execution system,
// beginning on initialQueue. The initial resumption is always enqueued,
// never run inline, so Start may be called from any goroutine.
func Start[T any](sys *exec.System, initialQueue queue.Mark, body Body[T]) *Handle[T] {
	c := newCore(sys, initialQueue)
	t := &Task[T]{core: c}
	go t.run(body)

	metrics.RecordTaskStart()
	sys.PlanExecution(func(gctx context.Context) {
		t.resume(gctx)
	}, initialQueue)

	return &Handle[T]{c: c}
}

// run is the body's dedicated goroutine: it blocks for the first resume,
// executes body to completion (or cancellation, or panic), and reports
// the outcome across ackCh exactly once.
func (t *Task[T]) run(body Body[T]) {
	start := time.Now()
	sig := <-t.resumeCh
	if sig.cancelled {
		t.ackCh <- report{state: Cancelled}
		metrics.RecordTaskFinish(outcomeLabel(true), time.Since(start).Seconds())
		return
	}

	ctx := &Context{core: t.core}

	var result T
	terminal := Finished

	func() {
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(cancelSignal); ok {
					terminal = Cancelled
					return
				}
				// A body panic is recovered here rather than left to
				// propagate through the worker that is driving it, the
				// same way executor.Execute recovers a handler panic: log
				// it with its stack and turn it into a terminal state
				// instead of crashing the worker goroutine.
				t.log().Error().
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("task body panicked")
				terminal = Cancelled
			}
		}()
		result = body(ctx)
	}()

	if terminal == Finished {
		t.mu.Lock()
		t.resultVal = result
		t.hasResult = true
		t.mu.Unlock()
	}

	t.ackCh <- report{state: terminal}
	metrics.RecordTaskFinish(outcomeLabel(terminal == Cancelled), time.Since(start).Seconds())
}
