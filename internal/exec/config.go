package exec

import (
	"github.com/coro-rt/corort/internal/queue"
)

// WorkerConfig describes one worker goroutine: the queues it services, how
// long it spins before sleeping, and whether it pins its own OS thread.
type WorkerConfig struct {
	Name           string
	AllowedQueues  queue.Mask
	IdleSpinBudget uint32
	PinOSThread    bool
}

// Config constructs a System: the highest queue mark in use, the worker
// pool, and which mask the embedder's own goroutine presents when it calls
// UpdateFromMain.
type Config struct {
	MaxQueue      queue.Mark
	Workers       []WorkerConfig
	MainQueueMask queue.Mask
	Clock         queue.Clock
}
