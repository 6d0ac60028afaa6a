package task

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/coro-rt/corort/internal/exec"
	"github.com/coro-rt/corort/internal/logger"
	"github.com/coro-rt/corort/internal/queue"
)

var nextID atomic.Uint64

func newID() uint64 {
	return nextID.Inc()
}

// cancelSignal is the sentinel panic value a body's call stack unwinds
// with, both when it calls Context.CancelSelf and when a suspended body is
// resumed with the cancelled marker. Either way the body never resumes: it
// goes straight to Cancelled.
type cancelSignal struct{}

// report is what the dedicated body goroutine hands back across ackCh
// after running until its next suspension point or terminal state. A
// body panic is recovered and turned into a Cancelled report before it
// ever reaches here (see Task[T].run); report never carries a panic
// value of its own.
type report struct {
	state State
}

// resumeSignal is what a resume call hands to the body goroutine across
// resumeCh: either "continue running" or "you are cancelled, unwind".
type resumeSignal struct {
	cancelled bool
}

// core holds every piece of a Task's suspend/resume/cancellation
// machinery that does not depend on its result type T. Task[T] embeds a
// *core; Context wraps one so suspension primitives work uniformly
// regardless of what the enclosing task eventually produces.
type core struct {
	id  uint64
	sys *exec.System

	mu        sync.Mutex
	state     State
	queueMark queue.Mark
	goCtx     context.Context

	parent   *core
	children []*core

	resultVal    any
	hasResult    bool
	onCompleteFn func()

	cancelFlag atomic.Bool

	resumeCh chan resumeSignal
	ackCh    chan report
}

func newCore(sys *exec.System, initialQueue queue.Mark) *core {
	return &core{
		id:        newID(),
		sys:       sys,
		state:     Created,
		queueMark: initialQueue,
		resumeCh:  make(chan resumeSignal),
		ackCh:     make(chan report),
	}
}

func (c *core) log() zerolog.Logger {
	return logger.WithTaskID(c.id)
}

func (c *core) currentQueue() queue.Mark {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queueMark
}

func (c *core) setQueue(mark queue.Mark) {
	c.mu.Lock()
	c.queueMark = mark
	c.mu.Unlock()
}

// resume drives the task from Suspended (or Created, for the first call)
// back to Running, blocking until the body reaches its next suspension
// point or terminal state. It must only be invoked by a goroutine whose
// affinity, carried on gctx, services the task's current queue.
//
// resume is idempotent against a task that is not currently waiting to be
// resumed: a suspension primitive's arranged continuation and a pending
// cancellation can both end up scheduling a resume for the same task
// (cancellation races an already-pending sleep or callback), and whichever
// arrives second must be a no-op rather than corrupt a later suspension
// or deadlock on a body goroutine that has already exited. The
// check-and-set below is atomic under c.mu, so only one of two racing
// resume calls ever proceeds.
//
// If cancellation was requested since the task last ran, this delivers
// the cancelled marker instead of continuing normally, regardless of what
// arranged the resumption — once the flag is set, the next resumption
// always unwinds the body.
func (c *core) resume(gctx context.Context) {
	c.mu.Lock()
	if !c.state.CanTransitionTo(Running) {
		c.mu.Unlock()
		return
	}
	c.state = Running
	c.goCtx = gctx
	c.mu.Unlock()

	c.resumeCh <- resumeSignal{cancelled: c.cancelFlag.Load()}
	rep := <-c.ackCh
	c.afterReport(rep)
}

// afterReport applies the body goroutine's reported state, guarded by
// ValidTransitions: the Created -> (Suspended <-> Running)* ->
// (Finished | Cancelled) invariant is enforced here, not just documented,
// so a reported transition the state machine does not allow is rejected
// and logged instead of silently corrupting c.state.
func (c *core) afterReport(rep report) {
	c.mu.Lock()
	if !c.state.CanTransitionTo(rep.state) {
		from := c.state
		c.mu.Unlock()
		c.log().Error().
			Str("from", from.String()).
			Str("to", rep.state.String()).
			Msg("rejected invalid task state transition")
		return
	}

	c.state = rep.state
	fn := c.onCompleteFn
	if rep.state.IsFinal() {
		c.onCompleteFn = nil
	}
	c.mu.Unlock()

	if rep.state.IsFinal() && fn != nil {
		fn()
	}
}

// suspend is the common body of every suspension primitive: arrange
// schedules whatever will eventually call resume again,
// reports Suspended to whichever resume call is waiting, and blocks until
// that happens. If the resumption delivers the cancelled marker, suspend
// panics with cancelSignal, which Task[T].run recovers into a Cancelled
// terminal state.
func (c *core) suspend(arrange func()) {
	arrange()
	c.ackCh <- report{state: Suspended}
	sig := <-c.resumeCh
	if sig.cancelled {
		panic(cancelSignal{})
	}
}

// requestCancel sets the cancellation flag, idempotently, cascades to
// every child, and — if the task is currently suspended — arranges for
// its next resumption to deliver the cancelled marker instead of
// continuing normally.
func (c *core) requestCancel() {
	if !c.cancelFlag.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	children := append([]*core(nil), c.children...)
	state := c.state
	mark := c.queueMark
	c.mu.Unlock()

	for _, child := range children {
		child.requestCancel()
	}

	if state == Suspended {
		c.sys.PlanExecution(func(gctx context.Context) {
			c.resume(gctx)
		}, mark)
	}
}

func (c *core) cancelled() bool {
	return c.cancelFlag.Load()
}

func (c *core) ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.IsFinal()
}

func (c *core) onComplete(fn func()) {
	c.mu.Lock()
	if c.state.IsFinal() {
		c.mu.Unlock()
		fn()
		return
	}
	c.onCompleteFn = fn
	c.mu.Unlock()
}

func outcomeLabel(cancelled bool) string {
	if cancelled {
		return "cancelled"
	}
	return "finished"
}
