// Package scheduler is the runtime's public facade: the thing an embedder
// constructs once, pumps from its own main loop, and uses to launch root
// tasks. It wraps an internal/exec.System the way the reference
// implementation's async_coro::scheduler wraps its own working_queue and
// managed-coroutine registry (see scheduler.cpp's add_coroutine/update),
// but delegates the actual suspend/resume machinery to internal/task.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coro-rt/corort/internal/exec"
	"github.com/coro-rt/corort/internal/logger"
	"github.com/coro-rt/corort/internal/queue"
	"github.com/coro-rt/corort/internal/task"
)

// Option configures a Scheduler at construction time.
type Option func(*options)

type options struct {
	maxQueue       queue.Mark
	workerCount    int
	idleSpinBudget uint32
	pinOSThreads   bool
	extraQueues    []queue.Mark
	clock          queue.Clock
}

func defaultOptions() *options {
	return &options{
		maxQueue:       queue.Worker,
		workerCount:    4,
		idleSpinBudget: 32,
		clock:          queue.SystemClock{},
	}
}

// WithWorkerCount sets how many worker goroutines service the Worker queue
// and any extra queues registered with WithExtraQueue. Default 4.
func WithWorkerCount(n int) Option {
	return func(o *options) { o.workerCount = n }
}

// WithIdleSpinBudget sets how many empty polls a worker makes before
// sleeping on its doorbell. Default 32.
func WithIdleSpinBudget(budget uint32) Option {
	return func(o *options) { o.idleSpinBudget = budget }
}

// WithPinOSThreads locks each worker goroutine to its own OS thread via
// runtime.LockOSThread, matching the reference implementation's one
// native thread per worker.
func WithPinOSThreads() Option {
	return func(o *options) { o.pinOSThreads = true }
}

// WithExtraQueue registers an additional queue beyond Main/Worker,
// serviced by the same worker pool. Each call raises maxQueue as needed.
func WithExtraQueue(mark queue.Mark) Option {
	return func(o *options) {
		o.extraQueues = append(o.extraQueues, mark)
		if mark > o.maxQueue {
			o.maxQueue = mark
		}
	}
}

// WithClock overrides the timer's clock, for tests that need to control
// delayed-task firing deterministically.
func WithClock(c queue.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Scheduler is the embedder-facing runtime: a running execution system
// plus the launch points (StartTask) and pump point (PumpMain) an
// embedder needs. It owns no state of its own beyond the System — task
// lifetime and parent/child structure live entirely in internal/task.
type Scheduler struct {
	sys  *exec.System
	opts *options
}

// New builds and starts a Scheduler. Call Close when the embedder is done
// with it.
func New(opts ...Option) *Scheduler {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	allowed := queue.MaskOf(queue.Worker)
	for _, q := range o.extraQueues {
		allowed = allowed.Union(queue.MaskOf(q))
	}

	workers := make([]exec.WorkerConfig, 0, o.workerCount)
	for i := 0; i < o.workerCount; i++ {
		workers = append(workers, exec.WorkerConfig{
			Name:           workerName(i),
			AllowedQueues:  allowed,
			IdleSpinBudget: o.idleSpinBudget,
			PinOSThread:    o.pinOSThreads,
		})
	}

	sys := exec.NewSystem(exec.Config{
		MaxQueue:      o.maxQueue,
		Workers:       workers,
		MainQueueMask: queue.MaskOf(queue.Main),
		Clock:         o.clock,
	})
	sys.Start()

	logger.Info().Int("workers", o.workerCount).Msg("scheduler started")

	return &Scheduler{sys: sys, opts: o}
}

// workerName generates a human-facing correlation id for a worker that
// wasn't given an explicit name, matching the reference codebase's
// worker.NewPool fallback of a short uuid suffix.
func workerName(i int) string {
	return fmt.Sprintf("worker-%d-%s", i, uuid.New().String()[:8])
}

// System returns the underlying execution system, for callers that need
// to hand it to internal/task.Start directly rather than going through
// StartTask.
func (s *Scheduler) System() *exec.System {
	return s.sys
}

// StartTask launches body as a root task beginning on initialQueue,
// mirroring scheduler.cpp's add_coroutine: a task handed to the scheduler
// runs to completion (or cancellation) independently of the caller's own
// lifetime, tracked only through the returned handle.
func StartTask[T any](s *Scheduler, initialQueue queue.Mark, body task.Body[T]) *task.Handle[T] {
	return task.Start(s.sys, initialQueue, body)
}

// PumpMain drains up to budget closures scheduled on the Main queue,
// running them on the calling goroutine. It must always be called from
// the same goroutine — the embedder's own update loop — matching
// scheduler.cpp's update(), which asserts it never runs on any thread but
// the one that first called it. budget <= 0 drains everything currently
// pending without blocking.
func (s *Scheduler) PumpMain(budget int) int {
	return s.sys.UpdateFromMain(budget)
}

// MainContext returns the context.Context an embedder's own main-loop
// goroutine should use when calling functions that check affinity (for
// example IsCurrentThreadFits) outside of a running task body.
func (s *Scheduler) MainContext() context.Context {
	return s.sys.MainContext()
}

// Close shuts the scheduler down: stops accepting new timer entries,
// wakes every worker so it observes shutdown, and waits up to timeout for
// all goroutines to exit.
func (s *Scheduler) Close(timeout time.Duration) {
	s.sys.Shutdown(timeout)
}
