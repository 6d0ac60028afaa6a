// Package parallelfor is a bulk-submission helper grounded on the
// reference implementation's working_queue2::parallel_for: split a range
// into roughly-equal buckets, submit every bucket but one to the worker
// queue, and run the last bucket on the calling goroutine so it
// contributes work instead of just waiting.
package parallelfor

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/coro-rt/corort/internal/exec"
	"github.com/coro-rt/corort/internal/queue"
)

// DefaultBucketSize, when passed as bucketSize, splits items into
// len(workers)+1 roughly-equal chunks, mirroring the reference
// implementation's bucket_size_default.
const DefaultBucketSize = 0

// Run applies fn to every element of items, in chunks of bucketSize (or an
// automatically chosen size if bucketSize is DefaultBucketSize), executing
// chunks on mark's queue and returning once every chunk — including the
// one run inline on the calling goroutine — has finished or fn has
// returned an error. The first error from any chunk is returned; fn may
// still be invoked for other chunks already in flight.
func Run[T any](ctx context.Context, sys *exec.System, mark queue.Mark, items []T, bucketSize int, fn func(item T) error) error {
	n := len(items)
	if n == 0 {
		return nil
	}

	if bucketSize <= 0 {
		workers := estimateWorkers(sys, mark)
		bucketSize = (n + workers) / (workers + 1)
		if bucketSize <= 0 {
			bucketSize = n
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	rest := n
	idx := 0
	var lastStart, lastEnd int
	for rest > 0 {
		step := bucketSize
		if step > rest {
			step = rest
		}
		start, end := idx, idx+step
		idx += step
		rest -= step

		if rest == 0 {
			// Run the final bucket inline on the calling goroutine instead
			// of submitting it, so the caller contributes work rather than
			// purely waiting on the worker pool.
			lastStart, lastEnd = start, end
			break
		}

		g.Go(func() error {
			done := make(chan error, 1)
			sys.PlanExecution(func(context.Context) {
				done <- runChunk(items[start:end], fn)
			}, mark)
			select {
			case err := <-done:
				return err
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	if lastEnd > lastStart {
		if err := runChunk(items[lastStart:lastEnd], fn); err != nil {
			g.Go(func() error { return err })
		}
	}

	return g.Wait()
}

func runChunk[T any](chunk []T, fn func(item T) error) error {
	for _, item := range chunk {
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}

func estimateWorkers(sys *exec.System, mark queue.Mark) int {
	if n := sys.WorkerCountFor(mark); n > 0 {
		return n
	}
	return 1
}
