package exec

import (
	"context"

	"github.com/coro-rt/corort/internal/queue"
)

// affinityKey stashes the invoking goroutine's queue mask into the
// context.Context handed to every closure, the Go-native stand-in for the
// reference implementation's thread-identity checks: a worker or the
// timer or the embedder's main loop each carries its own fixed mask, and
// IsCurrentThreadFits reads it back out rather than comparing thread ids.
type affinityKey struct{}

func withAffinity(parent context.Context, mask queue.Mask) context.Context {
	return context.WithValue(parent, affinityKey{}, mask)
}

func affinityFrom(ctx context.Context) (queue.Mask, bool) {
	mask, ok := ctx.Value(affinityKey{}).(queue.Mask)
	return mask, ok
}
