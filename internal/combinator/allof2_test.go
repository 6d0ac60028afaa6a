package combinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coro-rt/corort/internal/queue"
	"github.com/coro-rt/corort/internal/task"
)

func TestAllOf2CollectsBothValuesInOrder(t *testing.T) {
	sys := newTestSystem()
	defer sys.Shutdown(time.Second)

	first := task.Start(sys, queue.Worker, func(ctx *task.Context) int {
		ctx.Sleep(20 * time.Millisecond)
		return 7
	})
	second := task.Start(sys, queue.Worker, func(ctx *task.Context) string {
		ctx.Sleep(5 * time.Millisecond)
		return "done"
	})

	all := NewAllOf2[int, string](first, second)
	waitReady(t, all.Ready)

	pair, cancelled := all.Outcome()
	assert.False(t, cancelled)
	assert.Equal(t, 7, pair.First)
	assert.Equal(t, "done", pair.Second)
}

func TestAllOf2PropagatesCancellationBetweenHeterogeneousChildren(t *testing.T) {
	sys := newTestSystem()
	defer sys.Shutdown(time.Second)

	first := task.Start(sys, queue.Worker, func(ctx *task.Context) int {
		ctx.CancelSelf()
		return 0
	})
	var second *task.Handle[string]
	second = task.Start(sys, queue.Worker, func(ctx *task.Context) string {
		ctx.Sleep(time.Second)
		return "unreachable"
	})

	all := NewAllOf2[int, string](first, second)
	waitReady(t, all.Ready)

	_, cancelled := all.Outcome()
	assert.True(t, cancelled)

	waitReady(t, second.Ready)
	_, secondCancelled := second.Outcome()
	require.True(t, secondCancelled)
}
