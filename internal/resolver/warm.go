package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// WarmResult is the outcome of resolving one repository during Warm.
type WarmResult struct {
	RepoID   string
	Chum     bool
	GUI      bool
	Duration time.Duration
	Err      error
}

// Warm resolves every repository in the catalog with at most concurrency
// lookups in flight. Per-repository failures are reported in the results;
// only a catalog failure or cancellation returns an error.
func (r *Resolver) Warm(ctx context.Context, concurrency int) ([]WarmResult, error) {
	if concurrency <= 0 {
		concurrency = 4
	}

	c, err := r.Repositories(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog: %w", err)
	}
	ids := c.RepoIDs()

	sem := semaphore.NewWeighted(int64(concurrency))
	g, gctx := errgroup.WithContext(ctx)
	results := make([]WarmResult, len(ids))

	for i, id := range ids {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			start := time.Now()
			links, err := r.Packages(gctx, id)
			results[i] = WarmResult{
				RepoID:   id,
				Chum:     links.Chum != "",
				GUI:      links.GUI != "",
				Duration: time.Since(start),
				Err:      err,
			}
			if err != nil {
				r.logger.Warn("warm lookup failed", slog.String("repo", id), slog.String("error", err.Error()))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("warming cache: %w", err)
	}
	return results, nil
}
