// Package workers runs independent tasks on a bounded pool.
package workers

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Run calls task for every index in [0, n) with at most limit tasks in flight.
// A failing task does not stop its siblings: every task that started runs to
// completion and all failures are joined into the returned error. Tasks not yet
// started when ctx is cancelled report the context error instead of running.
func Run(ctx context.Context, n, limit int, task func(i int) error) error {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	var g errgroup.Group
	g.SetLimit(limit)

	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = task(i)
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}
