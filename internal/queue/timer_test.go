package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTimer(t *testing.T) (*Timer, *promotionLog) {
	t.Helper()
	log := &promotionLog{}
	tm := NewTimer(SystemClock{}, log.promote)
	go tm.Run()
	t.Cleanup(tm.Shutdown)
	return tm, log
}

type promotionLog struct {
	mu    sync.Mutex
	fired []Mark
}

func (p *promotionLog) promote(target Mark, c Closure) {
	p.mu.Lock()
	p.fired = append(p.fired, target)
	p.mu.Unlock()
	c(context.Background())
}

func (p *promotionLog) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fired)
}

// TestTimerFiresAfterDelay is seed test #5's positive half: a scheduled
// closure fires at or after its requested delay.
func TestTimerFiresAfterDelay(t *testing.T) {
	tm, log := newTestTimer(t)

	fired := make(chan struct{}, 1)
	id := tm.Schedule(func(context.Context) { fired <- struct{}{} }, Worker, time.Now().Add(20*time.Millisecond))
	require.NotZero(t, id)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("delayed task never fired")
	}
	assert.Equal(t, 1, log.count())
}

// TestTimerCancelBeforeFire is seed test #5 in full: submit a delayed
// task, cancel it before it fires, advance past its fire time, and
// confirm it was never invoked.
func TestTimerCancelBeforeFire(t *testing.T) {
	tm, log := newTestTimer(t)

	invoked := false
	id := tm.Schedule(func(context.Context) { invoked = true }, Worker, time.Now().Add(100*time.Millisecond))
	require.NotZero(t, id)

	time.Sleep(10 * time.Millisecond)
	assert.True(t, tm.Cancel(id))

	time.Sleep(150 * time.Millisecond)
	assert.False(t, invoked)
	assert.Equal(t, 0, log.count())
}

func TestTimerCancelUnknownIDReturnsFalse(t *testing.T) {
	tm, _ := newTestTimer(t)
	assert.False(t, tm.Cancel(TaskID(999)))
	assert.False(t, tm.Cancel(0))
}

func TestTimerCancelIsIdempotent(t *testing.T) {
	tm, _ := newTestTimer(t)
	id := tm.Schedule(func(context.Context) {}, Worker, time.Now().Add(time.Hour))
	assert.True(t, tm.Cancel(id))
	assert.False(t, tm.Cancel(id))
}

func TestTimerOrdersByFireTime(t *testing.T) {
	tm, _ := newTestTimer(t)

	var mu sync.Mutex
	var order []int
	done := make(chan struct{}, 3)

	record := func(i int) Closure {
		return func(context.Context) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			done <- struct{}{}
		}
	}

	now := time.Now()
	tm.Schedule(record(3), Worker, now.Add(60*time.Millisecond))
	tm.Schedule(record(1), Worker, now.Add(20*time.Millisecond))
	tm.Schedule(record(2), Worker, now.Add(40*time.Millisecond))

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timer tasks did not all fire")
		}
	}

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestTimerShutdownDropsPendingWithoutInvocation(t *testing.T) {
	log := &promotionLog{}
	tm := NewTimer(SystemClock{}, log.promote)
	go tm.Run()

	invoked := false
	tm.Schedule(func(context.Context) { invoked = true }, Worker, time.Now().Add(time.Hour))

	tm.Shutdown()
	time.Sleep(20 * time.Millisecond)

	assert.False(t, invoked)
	assert.Equal(t, 0, log.count())
}
