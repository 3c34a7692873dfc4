package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ppiankov/rgwstat/internal/models"
)

// fetchFunc fetches one bucket's stats. Implemented by Fetcher.FetchBucket.
type fetchFunc func(ctx context.Context, name string) (*models.BucketStats, error)

// WorkerPool fans per-bucket fetches out over bounded goroutines while
// keeping persistence batch-wise: buckets are split into fixed-size batches
// processed one after another, and each batch's successes are committed
// together before the next batch starts. A crash or cancellation mid-run
// loses at most the current batch.
type WorkerPool struct {
	store         Store
	batchSize     int
	fetchTimeout  time.Duration
	recordHistory bool
}

// NewWorkerPool wires a pool to its store.
func NewWorkerPool(store Store, batchSize int, fetchTimeout time.Duration, recordHistory bool) *WorkerPool {
	if batchSize < 1 {
		batchSize = 1
	}
	return &WorkerPool{
		store:         store,
		batchSize:     batchSize,
		fetchTimeout:  fetchTimeout,
		recordHistory: recordHistory,
	}
}

// Run fetches every named bucket with up to workers concurrent fetches and
// returns how many were persisted and how many failed. A failed fetch counts
// an error and never aborts the run. Cancellation is cooperative: the context
// is checked before each batch and before each fetch, in-flight fetches are
// allowed to finish, and batches already committed stay committed.
func (p *WorkerPool) Run(ctx context.Context, names []string, workers int, fetch fetchFunc) (collected, failed int) {
	if workers < 1 {
		workers = 1
	}

	for start := 0; start < len(names); start += p.batchSize {
		if ctx.Err() != nil {
			slog.Info("collection stopped, keeping committed batches",
				"remaining", len(names)-start)
			return collected, failed
		}

		end := min(start+p.batchSize, len(names))
		batch := names[start:end]

		done, errs := p.runBatch(ctx, batch, workers, fetch)
		collected += done
		failed += errs
	}

	return collected, failed
}

func (p *WorkerPool) runBatch(ctx context.Context, batch []string, workers int, fetch fetchFunc) (collected, failed int) {
	var (
		mu      sync.Mutex
		results []*models.BucketStats
		errs    int
	)

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, name := range batch {
		if ctx.Err() != nil {
			mu.Lock()
			errs++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(name string) {
			defer wg.Done()
			defer func() { <-sem }()

			fetchCtx := ctx
			var cancel context.CancelFunc
			if p.fetchTimeout > 0 {
				fetchCtx, cancel = context.WithTimeout(ctx, p.fetchTimeout)
				defer cancel()
			}

			stats, err := fetch(fetchCtx, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil || stats == nil {
				errs++
				if err != nil {
					slog.Warn("bucket fetch failed", "bucket", name, "error", err)
				}
				return
			}
			results = append(results, stats)
		}(name)
	}
	wg.Wait()

	for _, stats := range results {
		if err := p.store.Upsert(stats, p.recordHistory); err != nil {
			slog.Warn("bucket write failed", "bucket", stats.Name, "error", err)
			errs++
			continue
		}
		collected++
	}
	if err := p.store.Commit(); err != nil {
		slog.Error("batch commit failed", "buckets", collected, "error", err)
		errs += collected
		collected = 0
	}

	return collected, errs
}
