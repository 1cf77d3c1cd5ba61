package pipeline

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/pevans/feedsnap/adapter"
	"github.com/pevans/feedsnap/failure"
)

// fetchAll drains jobs through a fixed pool of workers. Each worker keeps its
// own results; they are merged and ordered by target id only after every
// worker has finished. A panic in any adapter aborts the whole pass.
func (r *runner) fetchAll(ctx context.Context, jobs []job, workers int) ([]adapter.Result, error) {
	if workers < 1 {
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	queue := make(chan job)
	buffers := make([][]adapter.Result, workers)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		for _, j := range jobs {
			select {
			case queue <- j:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := range workers {
		g.Go(func() error {
			for j := range queue {
				res, err := r.fetchOne(gctx, j)
				if err != nil {
					return err
				}
				buffers[w] = append(buffers[w], res)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var results []adapter.Result
	for _, buf := range buffers {
		results = append(results, buf...)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Target.ID < results[j].Target.ID
	})

	return results, nil
}

// fetchOne runs a single target, converting a panic into UNCAUGHT_EXCEPTION.
func (r *runner) fetchOne(ctx context.Context, j job) (res adapter.Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = failure.FromPanic(v)
		}
	}()

	return j.adapter.FetchAndExtract(ctx, r.rs, j.target), nil
}
