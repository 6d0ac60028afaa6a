package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coro-rt/corort/internal/exec"
	"github.com/coro-rt/corort/internal/queue"
)

func newTestSystem() *exec.System {
	sys := exec.NewSystem(exec.Config{
		MaxQueue: queue.FirstUserMark,
		Workers: []exec.WorkerConfig{
			{Name: "w0", AllowedQueues: queue.MaskOf(queue.Worker, queue.FirstUserMark), IdleSpinBudget: 8},
			{Name: "w1", AllowedQueues: queue.MaskOf(queue.Worker, queue.FirstUserMark), IdleSpinBudget: 8},
		},
		MainQueueMask: queue.MaskOf(queue.Main),
	})
	sys.Start()
	return sys
}

func waitReady(t *testing.T, ready func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ready() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for readiness")
}

func TestStartRunsBodyToFinished(t *testing.T) {
	sys := newTestSystem()
	defer sys.Shutdown(time.Second)

	h := Start(sys, queue.Worker, func(ctx *Context) int {
		return 42
	})

	waitReady(t, h.Ready)
	val, cancelled := h.Outcome()
	assert.False(t, cancelled)
	assert.Equal(t, 42, val)
}

func TestSleepSuspendsAndResumes(t *testing.T) {
	sys := newTestSystem()
	defer sys.Shutdown(time.Second)

	start := time.Now()
	h := Start(sys, queue.Worker, func(ctx *Context) time.Time {
		ctx.Sleep(50 * time.Millisecond)
		return time.Now()
	})

	waitReady(t, h.Ready)
	val, cancelled := h.Outcome()
	require.False(t, cancelled)
	assert.GreaterOrEqual(t, val.Sub(start), 40*time.Millisecond)
}

func TestSwitchToMovesAcrossQueues(t *testing.T) {
	sys := newTestSystem()
	defer sys.Shutdown(time.Second)

	var seenFirst, seenSecond bool
	h := Start(sys, queue.Worker, func(ctx *Context) string {
		seenFirst = true
		ctx.SwitchTo(queue.FirstUserMark)
		seenSecond = true
		return "done"
	})

	waitReady(t, h.Ready)
	val, cancelled := h.Outcome()
	assert.False(t, cancelled)
	assert.Equal(t, "done", val)
	assert.True(t, seenFirst)
	assert.True(t, seenSecond)
}

func TestAwaitCallbackResumesWhenInvoked(t *testing.T) {
	sys := newTestSystem()
	defer sys.Shutdown(time.Second)

	var handle func()
	registered := make(chan struct{})

	h := Start(sys, queue.Worker, func(ctx *Context) int {
		ctx.AwaitCallback(func(resume func()) {
			handle = resume
			close(registered)
		})
		return 7
	})

	<-registered
	require.NotNil(t, handle)
	handle()

	waitReady(t, h.Ready)
	val, cancelled := h.Outcome()
	assert.False(t, cancelled)
	assert.Equal(t, 7, val)
}

func TestStartChildRunsInlineWithoutSuspendingParent(t *testing.T) {
	sys := newTestSystem()
	defer sys.Shutdown(time.Second)

	var childRanBeforeParentContinued bool

	parent := Start(sys, queue.Worker, func(ctx *Context) int {
		child := StartChild(ctx, func(cctx *Context) int { return 1 })
		childRanBeforeParentContinued = child.Ready()
		val, _ := Await(ctx, child)
		return val + 1
	})

	waitReady(t, parent.Ready)
	val, cancelled := parent.Outcome()
	assert.False(t, cancelled)
	assert.Equal(t, 2, val)
	assert.True(t, childRanBeforeParentContinued)
}

func TestAwaitAlreadyCompletedTakesFastPath(t *testing.T) {
	sys := newTestSystem()
	defer sys.Shutdown(time.Second)

	parent := Start(sys, queue.Worker, func(ctx *Context) int {
		child := StartChild(ctx, func(cctx *Context) int { return 9 })
		// child is synchronous/inline, so it is already Ready here.
		val, cancelled := Await(ctx, child)
		if cancelled {
			return -1
		}
		return val
	})

	waitReady(t, parent.Ready)
	val, cancelled := parent.Outcome()
	assert.False(t, cancelled)
	assert.Equal(t, 9, val)
}

func TestCancelSelfTransitionsToCancelledWithoutResuming(t *testing.T) {
	sys := newTestSystem()
	defer sys.Shutdown(time.Second)

	var reachedAfterCancel bool
	h := Start(sys, queue.Worker, func(ctx *Context) int {
		ctx.CancelSelf()
		reachedAfterCancel = true
		return 1
	})

	waitReady(t, h.Ready)
	_, cancelled := h.Outcome()
	assert.True(t, cancelled)
	assert.False(t, reachedAfterCancel)
}

func TestRequestCancelOnSuspendedTaskCancelsIt(t *testing.T) {
	sys := newTestSystem()
	defer sys.Shutdown(time.Second)

	h := Start(sys, queue.Worker, func(ctx *Context) int {
		ctx.AwaitCallback(func(resume func()) {
			// never invoked: this task suspends forever unless cancelled
		})
		return 1
	})

	waitReady(t, func() bool { return h.c.state == Suspended })
	h.RequestCancel()

	waitReady(t, h.Ready)
	_, cancelled := h.Outcome()
	assert.True(t, cancelled)
}

func TestCancelPropagatesToChildren(t *testing.T) {
	sys := newTestSystem()
	defer sys.Shutdown(time.Second)

	var child1, child2 *Handle[int]

	parent := Start(sys, queue.Worker, func(ctx *Context) int {
		child1 = StartChild(ctx, func(cctx *Context) int {
			cctx.AwaitCallback(func(resume func()) {})
			return 1
		})
		child2 = StartChild(ctx, func(cctx *Context) int {
			cctx.AwaitCallback(func(resume func()) {})
			return 2
		})
		ctx.AwaitCallback(func(resume func()) {})
		return 0
	})

	waitReady(t, func() bool { return parent.c.state == Suspended && child1 != nil && child2 != nil })
	parent.RequestCancel()

	waitReady(t, parent.Ready)
	_, parentCancelled := parent.Outcome()
	assert.True(t, parentCancelled)

	waitReady(t, child1.Ready)
	_, c1Cancelled := child1.Outcome()
	assert.True(t, c1Cancelled)

	waitReady(t, child2.Ready)
	_, c2Cancelled := child2.Outcome()
	assert.True(t, c2Cancelled)
}

func TestBodyPanicIsRecoveredIntoCancelledWithoutCrashingTheWorker(t *testing.T) {
	sys := newTestSystem()
	defer sys.Shutdown(time.Second)

	h := Start(sys, queue.Worker, func(ctx *Context) int {
		panic("boom")
	})

	waitReady(t, h.Ready)
	val, cancelled := h.Outcome()
	assert.True(t, cancelled)
	assert.Equal(t, 0, val)

	// The worker that ran the panicking body must still be alive and able
	// to run further tasks.
	h2 := Start(sys, queue.Worker, func(ctx *Context) int {
		return 42
	})
	waitReady(t, h2.Ready)
	val2, cancelled2 := h2.Outcome()
	assert.False(t, cancelled2)
	assert.Equal(t, 42, val2)
}
