// Command corortdemo exercises the runtime end to end: ping-pong across
// queues, all_of/any_of aggregation, structured cancellation, and a
// delayed task, all driven from one process so the behavior can be read
// straight off the logs.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/coro-rt/corort/internal/combinator"
	"github.com/coro-rt/corort/internal/config"
	"github.com/coro-rt/corort/internal/logger"
	"github.com/coro-rt/corort/internal/queue"
	"github.com/coro-rt/corort/internal/task"
	"github.com/coro-rt/corort/pkg/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel, cfg.Pretty)
	log := logger.Get()

	sched := scheduler.New(
		scheduler.WithWorkerCount(4),
		scheduler.WithIdleSpinBudget(config.DefaultIdleSpinBudget),
	)
	defer sched.Close(config.DefaultShutdownTimeout)

	log.Info().Msg("demo: ping-pong across main and worker queues")
	pingPong := scheduler.StartTask(sched, queue.Worker, func(ctx *task.Context) int {
		bounces := 0
		for bounces < 4 {
			ctx.SwitchTo(queue.Main)
			bounces++
			ctx.SwitchTo(queue.Worker)
			bounces++
		}
		return bounces
	})

	log.Info().Msg("demo: all_of over three sleeping children")
	allOfDone := make(chan struct{})
	allOfResult := scheduler.StartTask(sched, queue.Worker, func(ctx *task.Context) []int {
		a := task.StartChild(ctx, func(cctx *task.Context) int { cctx.Sleep(20 * time.Millisecond); return 1 })
		b := task.StartChild(ctx, func(cctx *task.Context) int { cctx.Sleep(5 * time.Millisecond); return 2 })
		c := task.StartChild(ctx, func(cctx *task.Context) int { cctx.Sleep(10 * time.Millisecond); return 3 })
		vals, _ := task.Await[[]int](ctx, combinator.NewAllOf[int](a, b, c))
		return vals
	})
	allOfResult.OnComplete(func() { close(allOfDone) })

	log.Info().Msg("demo: any_of races two children, cancels the loser")
	anyOfDone := make(chan struct{})
	anyOfResult := scheduler.StartTask(sched, queue.Worker, func(ctx *task.Context) int {
		fast := task.StartChild(ctx, func(cctx *task.Context) int { cctx.Sleep(5 * time.Millisecond); return 100 })
		slow := task.StartChild(ctx, func(cctx *task.Context) int { cctx.Sleep(time.Second); return 200 })
		val, _ := task.Await[int](ctx, combinator.NewAnyOf[int](fast, slow))
		return val
	})
	anyOfResult.OnComplete(func() { close(anyOfDone) })

	log.Info().Msg("demo: structured cancellation of a parent and its children")
	cancelDone := make(chan struct{})
	childReady := make(chan *task.Handle[int], 1)
	parent := scheduler.StartTask(sched, queue.Worker, func(ctx *task.Context) int {
		child := task.StartChild(ctx, func(cctx *task.Context) int {
			cctx.AwaitCallback(func(resume func()) {})
			return 0
		})
		childReady <- child
		_, cancelled := task.Await[int](ctx, child)
		if cancelled {
			return -1
		}
		return 0
	})
	parent.OnComplete(func() { close(cancelDone) })

	log.Info().Msg("demo: delayed task scheduled then cancelled before firing")
	delayedID := sched.System().PlanExecutionAfter(func(gctx context.Context) {
		log.Warn().Msg("delayed task fired; it should have been withdrawn first")
	}, queue.Worker, time.Now().Add(time.Hour))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sched.PumpMain(0)
		if pingPong.Ready() {
			break
		}
		time.Sleep(time.Millisecond)
	}
	pingVal, _ := pingPong.Outcome()
	log.Info().Int("bounces", pingVal).Msg("ping-pong finished")

	<-allOfDone
	allOfVals, _ := allOfResult.Outcome()
	log.Info().Ints("values", allOfVals).Msg("all_of finished")

	<-anyOfDone
	anyOfVal, _ := anyOfResult.Outcome()
	log.Info().Int("winner", anyOfVal).Msg("any_of finished")

	child := <-childReady
	childDone := make(chan struct{})
	child.OnComplete(func() { close(childDone) })

	parent.RequestCancel()
	<-cancelDone
	<-childDone
	_, parentCancelled := parent.Outcome()
	_, childCancelled := child.Outcome()
	log.Info().Bool("parent_cancelled", parentCancelled).Bool("child_cancelled", childCancelled).
		Msg("structured cancellation finished")

	withdrawn := sched.System().CancelExecution(delayedID)
	log.Info().Bool("withdrawn", withdrawn).Msg("delayed task cancelled before firing")
}
