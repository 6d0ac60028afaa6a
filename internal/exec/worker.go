package exec

import (
	"context"
	"runtime"
	"time"

	"github.com/coro-rt/corort/internal/logger"
	"github.com/coro-rt/corort/internal/metrics"
)

func (s *System) runWorker(w *workerState) {
	defer s.wg.Done()

	if w.cfg.PinOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	log := logger.WithWorkerName(w.cfg.Name)
	log.Info().Msg("worker started")
	defer log.Info().Msg("worker stopped")

	ctx := withAffinity(context.Background(), w.cfg.AllowedQueues)

	var idleSpins uint32
	for {
		if s.shuttingDown.Load() {
			return
		}

		if s.tryRunOne(ctx, w) {
			idleSpins = 0
			continue
		}

		idleSpins++
		if idleSpins <= w.cfg.IdleSpinBudget {
			runtime.Gosched()
			continue
		}

		metrics.RecordWorkerIdleSleep(w.cfg.Name)
		w.idle.Store(true)
		select {
		case <-w.doorbell:
		case <-time.After(idlePollInterval):
		}
		w.idle.Store(false)
		idleSpins = 0
	}
}

func (s *System) tryRunOne(ctx context.Context, w *workerState) bool {
	for _, mark := range w.marks {
		q := s.queues[mark]
		c := q.TryPop()
		if c == nil {
			continue
		}
		if d, ok := s.depths[mark]; ok {
			metrics.SetQueueDepth(mark.String(), float64(d.Dec()))
		}

		start := time.Now()
		c(ctx)
		metrics.RecordWorkerBusyTime(w.cfg.Name, time.Since(start).Seconds())
		return true
	}
	return false
}
