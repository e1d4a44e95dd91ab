package cleanup

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Batches splits items into consecutive groups of at most size elements.
// A size below 1 is treated as 1.
func Batches[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end])
	}
	return batches
}

// RunBatched calls fn for every item. Items of one batch run concurrently;
// the next batch is not started until every call of the current one has
// returned, so at most size calls are in flight. Items are partitioned by
// the boolean fn returns. If ctx is done before a batch starts, that batch
// and all later ones are reported as failed without calling fn.
func RunBatched[T any](ctx context.Context, items []T, size int, fn func(ctx context.Context, item T) bool) (succeeded, failed []T) {
	for _, batch := range Batches(items, size) {
		if ctx.Err() != nil {
			failed = append(failed, batch...)
			continue
		}

		results := make([]bool, len(batch))
		var g errgroup.Group
		for i, item := range batch {
			g.Go(func() error {
				results[i] = fn(ctx, item)
				return nil
			})
		}
		_ = g.Wait()

		for i, ok := range results {
			if ok {
				succeeded = append(succeeded, batch[i])
			} else {
				failed = append(failed, batch[i])
			}
		}
	}
	return succeeded, failed
}
