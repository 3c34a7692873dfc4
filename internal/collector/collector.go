package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/rgwstat/internal/models"
	"github.com/ppiankov/rgwstat/pkg/config"
)

// Fetcher is the read side of the collector: the slow, rate-limited source
// of bucket listings and stats. Implemented by rgw.AdminClient.
type Fetcher interface {
	ListBuckets(ctx context.Context) ([]string, error)
	FetchBucket(ctx context.Context, name string) (*models.BucketStats, error)
	// FetchAllBuckets is all-or-nothing: on error the cycle records zero
	// collected buckets and the next cycle retries.
	FetchAllBuckets(ctx context.Context) ([]*models.BucketStats, error)
}

// Store is the write-and-plan side the collector needs from storage.
type Store interface {
	Upsert(stats *models.BucketStats, recordHistory bool) error
	Commit() error
	KnownCollectionTimes() (map[string]time.Time, error)
	StaleCount(now time.Time, threshold time.Duration) (int64, error)
	Summary() (*models.Summary, error)
}

// Publisher republishes the stats cache after a cycle. Implemented by
// cache.Publisher; nil disables publishing.
type Publisher interface {
	Publish(now time.Time) error
}

// bulkCommitEvery bounds how much bulk ingest work a single transaction can
// lose.
const bulkCommitEvery = 500

// Collector drives collection cycles over a Fetcher, Store and optional
// cache Publisher.
type Collector struct {
	cfg       *config.Config
	fetcher   Fetcher
	store     Store
	publisher Publisher
	state     *CollectorState
}

// New builds a collector. publisher may be nil.
func New(cfg *config.Config, fetcher Fetcher, store Store, publisher Publisher) *Collector {
	return &Collector{
		cfg:       cfg,
		fetcher:   fetcher,
		store:     store,
		publisher: publisher,
		state:     &CollectorState{},
	}
}

// State exposes the live counters for status reporting.
func (c *Collector) State() *CollectorState { return c.state }

// CycleResult reports what one cycle did.
type CycleResult struct {
	Strategy   Strategy
	Candidates int
	Collected  int
	Errors     int
	Workers    int
	Duration   time.Duration
	// BulkFailed is set when the plan chose bulk but the bulk call failed;
	// nothing was marked fresh and the next cycle retries.
	BulkFailed bool
}

// RunOnce executes one collection cycle. limit caps how many candidates the
// plan may select; zero means no cap. Listing failures are fatal to the
// cycle; per-bucket failures are counted and never propagated.
func (c *Collector) RunOnce(ctx context.Context, limit int) (*CycleResult, error) {
	c.state.SetRunning(true)
	defer c.state.SetRunning(false)

	start := time.Now()

	buckets, err := c.fetcher.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}

	known, err := c.store.KnownCollectionTimes()
	if err != nil {
		return nil, fmt.Errorf("failed to load collection times: %w", err)
	}

	plan := Plan(buckets, known, time.Now().UTC(), c.cfg, limit)
	result := &CycleResult{
		Strategy:   plan.Strategy,
		Candidates: len(plan.Candidates),
		Workers:    plan.Workers,
	}

	switch plan.Strategy {
	case StrategyNone:
		slog.Info("all buckets up to date", "buckets", len(buckets))

	case StrategyBulk:
		slog.Info("bulk refresh", "stale", len(plan.Candidates), "total", len(buckets))
		collected, errs, bulkErr := c.runBulk(ctx)
		result.Collected = collected
		result.Errors = errs
		if bulkErr != nil {
			result.BulkFailed = true
			slog.Error("bulk refresh failed", "error", bulkErr)
		}

	case StrategyIncremental:
		slog.Info("incremental refresh",
			"candidates", len(plan.Candidates), "workers", plan.Workers)
		pool := NewWorkerPool(c.store, c.cfg.BatchSize, c.cfg.CommandTimeout, c.cfg.RecordHistory)
		result.Collected, result.Errors = pool.Run(ctx, plan.Candidates, plan.Workers, c.fetcher.FetchBucket)
	}

	result.Duration = time.Since(start)
	c.state.FinishCycle(result.Collected, result.Errors, result.Workers, result.Duration)
	c.publish()

	slog.Info("cycle finished",
		"strategy", result.Strategy.String(),
		"collected", result.Collected,
		"errors", result.Errors,
		"duration", result.Duration.Round(time.Millisecond))
	return result, nil
}

// runBulk fetches every bucket in one admin call and ingests the results
// with periodic commits. The single call either succeeds for the whole
// listing or fails without marking anything fresh.
func (c *Collector) runBulk(ctx context.Context) (collected, errs int, err error) {
	all, err := c.fetcher.FetchAllBuckets(ctx)
	if err != nil {
		return 0, 0, err
	}

	pending := 0
	for _, stats := range all {
		if c.cfg.IsBucketExcluded(stats.Name) || c.cfg.IsOwnerExcluded(stats.Owner) {
			continue
		}
		if upsertErr := c.store.Upsert(stats, c.cfg.RecordHistory); upsertErr != nil {
			slog.Warn("bucket write failed", "bucket", stats.Name, "error", upsertErr)
			errs++
			continue
		}
		collected++
		pending++
		if pending >= bulkCommitEvery {
			if commitErr := c.store.Commit(); commitErr != nil {
				return collected - pending, errs + pending, commitErr
			}
			pending = 0
		}
	}
	if commitErr := c.store.Commit(); commitErr != nil {
		return collected - pending, errs + pending, commitErr
	}
	return collected, errs, nil
}

// RunBootstrap performs the initial population of an empty database with one
// bulk pass, regardless of staleness.
func (c *Collector) RunBootstrap(ctx context.Context) (*CycleResult, error) {
	c.state.SetRunning(true)
	defer c.state.SetRunning(false)

	start := time.Now()
	slog.Info("bootstrap: bulk loading all buckets")

	collected, errs, err := c.runBulk(ctx)
	duration := time.Since(start)
	c.state.FinishCycle(collected, errs, 0, duration)

	if err != nil {
		return nil, fmt.Errorf("bootstrap bulk load failed: %w", err)
	}

	c.publish()

	rate := 0.0
	if duration > 0 {
		rate = float64(collected) / duration.Seconds()
	}
	slog.Info("bootstrap finished",
		"collected", collected,
		"errors", errs,
		"duration", duration.Round(time.Second),
		"buckets_per_sec", fmt.Sprintf("%.1f", rate))

	return &CycleResult{
		Strategy:  StrategyBulk,
		Collected: collected,
		Errors:    errs,
		Duration:  duration,
	}, nil
}

// RunContinuous runs cycles until the context is cancelled. Between cycles it
// sleeps the refresh interval in one-second increments so a stop signal is
// honored promptly. Cancellation is a clean stop: committed work is kept and
// lifetime totals are reported.
func (c *Collector) RunContinuous(ctx context.Context) error {
	slog.Info("continuous collection started",
		"interval", c.cfg.RefreshInterval,
		"stale_threshold", c.cfg.StaleThreshold)

	for {
		if _, err := c.RunOnce(ctx, 0); err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}

		if !c.sleepInterval(ctx) {
			break
		}
	}

	snap := c.state.Snapshot()
	slog.Info("continuous collection stopped",
		"cycles", snap.CyclesCompleted,
		"total_collected", snap.TotalCollected,
		"total_errors", snap.TotalErrors)
	return nil
}

// sleepInterval waits out the refresh interval, polling for cancellation
// every second. Returns false when the context ended.
func (c *Collector) sleepInterval(ctx context.Context) bool {
	deadline := time.Now().Add(c.cfg.RefreshInterval)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return false
		}
		remaining := time.Until(deadline)
		if remaining > time.Second {
			remaining = time.Second
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(remaining):
		}
	}
	return ctx.Err() == nil
}

func (c *Collector) publish() {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(time.Now().UTC()); err != nil {
		slog.Warn("cache publish failed", "error", err)
	}
}

// Status is the operator-facing view of collector and store health.
type Status struct {
	Summary    *models.Summary `json:"summary"`
	StaleCount int64           `json:"stale_count"`
	State      StateSnapshot   `json:"state"`

	StaleThreshold  time.Duration `json:"stale_threshold"`
	RefreshInterval time.Duration `json:"refresh_interval"`
}

// Status reads current store totals and collector counters.
func (c *Collector) Status() (*Status, error) {
	summary, err := c.store.Summary()
	if err != nil {
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}

	stale, err := c.store.StaleCount(time.Now().UTC(), c.cfg.StaleThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to count stale buckets: %w", err)
	}

	return &Status{
		Summary:         summary,
		StaleCount:      stale,
		State:           c.state.Snapshot(),
		StaleThreshold:  c.cfg.StaleThreshold,
		RefreshInterval: c.cfg.RefreshInterval,
	}, nil
}
