// Package exec is the execution system: the fixed set of typed queues, the
// worker pool that drains them, and the delayed-task timer that promotes
// scheduled closures onto them once their fire time arrives.
package exec

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/coro-rt/corort/internal/logger"
	"github.com/coro-rt/corort/internal/metrics"
	"github.com/coro-rt/corort/internal/queue"
)

// idlePollInterval bounds how long a sleeping worker waits for its
// doorbell before re-checking its queues on its own; wakeOne is a
// best-effort unicast, not a linearizable signal, so this is the backstop
// against a missed wakeup.
const idlePollInterval = 20 * time.Millisecond

type workerState struct {
	cfg      WorkerConfig
	marks    []queue.Mark
	idle     atomic.Bool
	doorbell chan struct{}
}

// System is the runtime's execution system: a fixed family of queues
// (Main, Worker, and any caller-defined marks up to MaxQueue), a pool of
// worker goroutines draining them, and the dedicated timer goroutine that
// promotes delayed closures once they come due.
type System struct {
	maxQueue queue.Mark
	queues   map[queue.Mark]*queue.TaskQueue
	depths   map[queue.Mark]*atomic.Int64
	timer    *queue.Timer
	mainMask queue.Mask

	workersMu sync.RWMutex
	workers   []*workerState

	wg           sync.WaitGroup
	shuttingDown atomic.Bool
}

// NewSystem builds a System from cfg. It does not start any goroutines;
// call Start for that.
func NewSystem(cfg Config) *System {
	s := &System{
		maxQueue: cfg.MaxQueue,
		queues:   make(map[queue.Mark]*queue.TaskQueue),
		depths:   make(map[queue.Mark]*atomic.Int64),
		mainMask: cfg.MainQueueMask,
	}
	for tag := queue.Mark(0); tag <= cfg.MaxQueue; tag++ {
		s.queues[tag] = queue.NewTaskQueue()
		s.depths[tag] = atomic.NewInt64(0)
	}
	s.timer = queue.NewTimer(cfg.Clock, s.promote)

	for _, wc := range cfg.Workers {
		s.workers = append(s.workers, &workerState{
			cfg:      wc,
			marks:    wc.AllowedQueues.Marks(cfg.MaxQueue),
			doorbell: make(chan struct{}, 1),
		})
	}
	return s
}

// Start spawns the timer goroutine and one goroutine per configured
// worker.
func (s *System) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.timer.Run()
	}()

	s.workersMu.RLock()
	workers := append([]*workerState(nil), s.workers...)
	s.workersMu.RUnlock()

	for _, w := range workers {
		s.wg.Add(1)
		go s.runWorker(w)
	}

	logger.Info().Int("workers", len(workers)).Msg("execution system started")
}

// Shutdown flags the system as stopping, drops any pending delayed tasks,
// wakes every worker so it observes the flag, and waits up to timeout for
// all goroutines to exit.
func (s *System) Shutdown(timeout time.Duration) {
	s.shuttingDown.Store(true)
	s.timer.Shutdown()

	s.workersMu.RLock()
	for _, w := range s.workers {
		select {
		case w.doorbell <- struct{}{}:
		default:
		}
	}
	s.workersMu.RUnlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("execution system stopped")
	case <-time.After(timeout):
		logger.Warn().Msg("execution system shutdown timed out")
	}
}

// PlanExecution pushes c onto the queue identified by mark and wakes one
// sleeping worker able to service it, if any are sleeping. A nil closure
// is a no-op.
func (s *System) PlanExecution(c queue.Closure, mark queue.Mark) {
	if c == nil {
		return
	}
	q, ok := s.queues[mark]
	if !ok {
		logger.Error().Stringer("queue", mark).Msg("plan_execution on unknown queue mark")
		return
	}
	q.Push(c)
	if d, ok := s.depths[mark]; ok {
		metrics.SetQueueDepth(mark.String(), float64(d.Inc()))
	}
	s.wakeOne(mark)
}

// PlanExecutionAfter schedules c to run on mark no earlier than fireAt,
// returning an id that CancelExecution can use to withdraw it before it
// fires.
func (s *System) PlanExecutionAfter(c queue.Closure, mark queue.Mark, fireAt time.Time) queue.TaskID {
	id := s.timer.Schedule(c, mark, fireAt)
	metrics.SetDelayedTasksPending(float64(s.timer.Len()))
	return id
}

// CancelExecution withdraws a delayed task scheduled with
// PlanExecutionAfter. It reports true iff the task was still pending.
func (s *System) CancelExecution(id queue.TaskID) bool {
	ok := s.timer.Cancel(id)
	if ok {
		metrics.RecordDelayedTaskCancelled()
		metrics.SetDelayedTasksPending(float64(s.timer.Len()))
	}
	return ok
}

// ExecuteOrPlanExecution runs c inline if the calling goroutine's affinity
// (carried on ctx) already services mark; otherwise it behaves exactly
// like PlanExecution.
func (s *System) ExecuteOrPlanExecution(ctx context.Context, c queue.Closure, mark queue.Mark) {
	if c == nil {
		return
	}
	if s.IsCurrentThreadFits(ctx, mark) {
		c(ctx)
		return
	}
	s.PlanExecution(c, mark)
}

// IsCurrentThreadFits reports whether the goroutine that produced ctx (a
// worker, the timer, or the embedder's main loop) services mark.
func (s *System) IsCurrentThreadFits(ctx context.Context, mark queue.Mark) bool {
	mask, ok := affinityFrom(ctx)
	if !ok {
		return false
	}
	return mask.Allows(mark)
}

// MainContext returns a context.Context carrying the Main queue's
// affinity, for the one goroutine an embedder designates as its own main
// loop. Handing it out once and trusting the caller to only ever call
// UpdateFromMain from that goroutine is the one trusted boundary in the
// affinity model — the same trust the teacher's heartbeat registration
// places in a caller-supplied worker id rather than deriving identity from
// the runtime.
func (s *System) MainContext() context.Context {
	return withAffinity(context.Background(), s.mainMask)
}

// UpdateFromMain drains up to budget closures on the calling goroutine,
// which must be the embedder's own update loop. A queue the main mask
// permits is also drained by any worker whose AllowedQueues include it;
// NewSystem does not keep the two sets apart. budget <= 0 drains
// everything currently pending without blocking.
//
// Each pass over the permitted queues pops at most one closure from each,
// mirroring the reference execution_system::update_from_main, which loops
// every queue in _main_thread_queues and pops one task from each rather
// than draining a single queue to exhaustion before moving to the next —
// that keeps one busy queue from starving the others within a call.
// Passes repeat until budget is exhausted or a full pass makes no
// progress.
func (s *System) UpdateFromMain(budget int) int {
	ctx := withAffinity(context.Background(), s.mainMask)
	marks := s.mainMask.Marks(s.maxQueue)

	ran := 0
	for budget <= 0 || ran < budget {
		progressed := false
		for _, mark := range marks {
			q, ok := s.queues[mark]
			if !ok {
				continue
			}
			c := q.TryPop()
			if c == nil {
				continue
			}
			if d, ok := s.depths[mark]; ok {
				metrics.SetQueueDepth(mark.String(), float64(d.Dec()))
			}
			c(ctx)
			ran++
			progressed = true
			if budget > 0 && ran >= budget {
				return ran
			}
		}
		if !progressed {
			break
		}
	}
	return ran
}

func (s *System) promote(target queue.Mark, c queue.Closure) {
	q, ok := s.queues[target]
	if !ok {
		return
	}
	q.Push(c)
	if d, ok := s.depths[target]; ok {
		metrics.SetQueueDepth(target.String(), float64(d.Inc()))
	}
	s.wakeOne(target)
}

// WorkerCountFor returns how many configured workers are allowed to
// service mark.
func (s *System) WorkerCountFor(mark queue.Mark) int {
	s.workersMu.RLock()
	defer s.workersMu.RUnlock()

	n := 0
	for _, w := range s.workers {
		if w.cfg.AllowedQueues.Allows(mark) {
			n++
		}
	}
	return n
}

// wakeOne signals at most one idle worker whose mask permits mark. It is a
// best-effort unicast: if none are currently idle, it is a no-op, and a
// worker may independently observe the new work on its next poll.
func (s *System) wakeOne(mark queue.Mark) {
	s.workersMu.RLock()
	defer s.workersMu.RUnlock()

	for _, w := range s.workers {
		if !w.cfg.AllowedQueues.Allows(mark) || !w.idle.Load() {
			continue
		}
		select {
		case w.doorbell <- struct{}{}:
			return
		default:
		}
	}
}
