package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/rgwstat/internal/models"
	"github.com/ppiankov/rgwstat/pkg/config"
)

type fakeStore struct {
	mu      sync.Mutex
	known   map[string]time.Time
	upserts []*models.BucketStats
	pending []string
	commits [][]string

	upsertErr  map[string]error
	commitErr  error
	staleCount int64
	summary    *models.Summary
}

func (f *fakeStore) Upsert(stats *models.BucketStats, recordHistory bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.upsertErr[stats.Name]; err != nil {
		return err
	}
	f.upserts = append(f.upserts, stats)
	f.pending = append(f.pending, stats.Name)
	return nil
}

func (f *fakeStore) Commit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return f.commitErr
	}
	if len(f.pending) == 0 {
		return nil
	}
	batch := make([]string, len(f.pending))
	copy(batch, f.pending)
	f.commits = append(f.commits, batch)
	f.pending = nil
	return nil
}

func (f *fakeStore) KnownCollectionTimes() (map[string]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]time.Time, len(f.known)+len(f.upserts))
	for name, at := range f.known {
		out[name] = at
	}
	for _, stats := range f.upserts {
		out[stats.Name] = stats.CollectedAt
	}
	return out, nil
}

func (f *fakeStore) StaleCount(time.Time, time.Duration) (int64, error) {
	return f.staleCount, nil
}

func (f *fakeStore) Summary() (*models.Summary, error) {
	if f.summary != nil {
		return f.summary, nil
	}
	return &models.Summary{}, nil
}

func (f *fakeStore) committed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, batch := range f.commits {
		names = append(names, batch...)
	}
	return names
}

type fakeFetcher struct {
	buckets []string
	listErr error

	bulk    []*models.BucketStats
	bulkErr error

	fetchErr map[string]error

	mu      sync.Mutex
	fetched []string
}

func (f *fakeFetcher) ListBuckets(context.Context) ([]string, error) {
	return f.buckets, f.listErr
}

func (f *fakeFetcher) FetchBucket(_ context.Context, name string) (*models.BucketStats, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, name)
	f.mu.Unlock()
	if err := f.fetchErr[name]; err != nil {
		return nil, err
	}
	return &models.BucketStats{Name: name, Owner: "tester", CollectedAt: time.Now().UTC()}, nil
}

func (f *fakeFetcher) FetchAllBuckets(context.Context) ([]*models.BucketStats, error) {
	return f.bulk, f.bulkErr
}

type fakePublisher struct {
	calls int
	err   error
}

func (f *fakePublisher) Publish(time.Time) error {
	f.calls++
	return f.err
}

func cycleConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.StaleThreshold = 30 * time.Minute
	cfg.BulkThreshold = 500
	cfg.BatchSize = 100
	return cfg
}

func bucketNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("bucket-%04d", i)
	}
	return names
}

func TestRunOnceAllFreshDoesNothing(t *testing.T) {
	now := time.Now().UTC()
	known := map[string]time.Time{"a": now, "b": now}
	store := &fakeStore{known: known}
	fetcher := &fakeFetcher{buckets: []string{"a", "b"}}
	pub := &fakePublisher{}

	c := New(cycleConfig(), fetcher, store, pub)
	result, err := c.RunOnce(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if result.Strategy != StrategyNone || result.Collected != 0 {
		t.Fatalf("expected idle cycle, got %+v", result)
	}
	if len(fetcher.fetched) != 0 {
		t.Fatalf("expected no fetches, got %v", fetcher.fetched)
	}
	if pub.calls != 1 {
		t.Fatalf("expected cache republished even when idle, got %d", pub.calls)
	}
}

func TestRunOnceIncrementalFetchesOnlyStale(t *testing.T) {
	now := time.Now().UTC()
	all := bucketNames(600)
	known := make(map[string]time.Time, len(all))
	for i, name := range all {
		if i < 50 {
			known[name] = now.Add(-time.Hour) // stale
		} else {
			known[name] = now // fresh
		}
	}

	store := &fakeStore{known: known}
	fetcher := &fakeFetcher{buckets: all}
	c := New(cycleConfig(), fetcher, store, nil)

	result, err := c.RunOnce(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if result.Strategy != StrategyIncremental {
		t.Fatalf("expected incremental for 50 stale of 600, got %s", result.Strategy)
	}
	if result.Collected != 50 || result.Errors != 0 {
		t.Fatalf("expected 50 collected, got %+v", result)
	}
	if len(fetcher.fetched) != 50 {
		t.Fatalf("expected exactly the stale buckets fetched, got %d", len(fetcher.fetched))
	}
	if len(store.committed()) != 50 {
		t.Fatalf("expected 50 committed rows, got %d", len(store.committed()))
	}
}

func TestRunOnceBulkAboveThreshold(t *testing.T) {
	all := bucketNames(1000)
	epoch := time.Now().UTC()
	bulk := make([]*models.BucketStats, len(all))
	for i, name := range all {
		bulk[i] = &models.BucketStats{Name: name, Owner: "tester", CollectedAt: epoch}
	}

	store := &fakeStore{known: map[string]time.Time{}}
	fetcher := &fakeFetcher{buckets: all, bulk: bulk}
	c := New(cycleConfig(), fetcher, store, nil)

	result, err := c.RunOnce(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if result.Strategy != StrategyBulk {
		t.Fatalf("expected bulk for 1000 uncollected, got %s", result.Strategy)
	}
	if result.Collected != 1000 || result.Errors != 0 {
		t.Fatalf("expected full ingest, got %+v", result)
	}
	for _, stats := range store.upserts {
		if !stats.CollectedAt.Equal(epoch) {
			t.Fatal("expected one collection epoch across the bulk batch")
		}
	}
	// 1000 rows with commits every 500.
	if len(store.commits) != 2 {
		t.Fatalf("expected 2 commit batches, got %d", len(store.commits))
	}
}

func TestRunOnceBulkFailureMarksNothingFresh(t *testing.T) {
	all := bucketNames(1000)
	store := &fakeStore{known: map[string]time.Time{}}
	fetcher := &fakeFetcher{buckets: all, bulkErr: errors.New("connection refused")}
	c := New(cycleConfig(), fetcher, store, nil)

	result, err := c.RunOnce(context.Background(), 0)
	if err != nil {
		t.Fatalf("expected bulk failure to stay non-fatal, got %v", err)
	}
	if !result.BulkFailed || result.Collected != 0 {
		t.Fatalf("expected failed bulk with zero collected, got %+v", result)
	}
	if len(store.upserts) != 0 {
		t.Fatalf("expected no writes after bulk failure, got %d", len(store.upserts))
	}
}

func TestRunOnceSecondCycleIdle(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{known: map[string]time.Time{"a": now.Add(-time.Hour)}}
	fetcher := &fakeFetcher{buckets: []string{"a"}}
	c := New(cycleConfig(), fetcher, store, nil)

	first, err := c.RunOnce(context.Background(), 0)
	if err != nil {
		t.Fatalf("first RunOnce failed: %v", err)
	}
	if first.Collected != 1 {
		t.Fatalf("expected one bucket collected, got %+v", first)
	}

	second, err := c.RunOnce(context.Background(), 0)
	if err != nil {
		t.Fatalf("second RunOnce failed: %v", err)
	}
	if second.Strategy != StrategyNone || second.Collected != 0 {
		t.Fatalf("expected second cycle idle, got %+v", second)
	}
}

func TestRunOnceListFailureIsFatal(t *testing.T) {
	fetcher := &fakeFetcher{listErr: errors.New("access denied")}
	c := New(cycleConfig(), fetcher, &fakeStore{}, nil)

	if _, err := c.RunOnce(context.Background(), 0); err == nil {
		t.Fatal("expected list failure to surface")
	}
}

func TestRunOncePublishFailureNonFatal(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{known: map[string]time.Time{"a": now.Add(-time.Hour)}}
	fetcher := &fakeFetcher{buckets: []string{"a"}}
	pub := &fakePublisher{err: errors.New("disk full")}
	c := New(cycleConfig(), fetcher, store, pub)

	result, err := c.RunOnce(context.Background(), 0)
	if err != nil {
		t.Fatalf("expected publish failure to stay non-fatal, got %v", err)
	}
	if result.Collected != 1 {
		t.Fatalf("expected collection unaffected, got %+v", result)
	}
}

func TestRunBootstrapBulkLoadsEverything(t *testing.T) {
	now := time.Now().UTC()
	// Fresh timestamps would make a normal cycle idle; bootstrap ignores them.
	all := bucketNames(10)
	known := make(map[string]time.Time, len(all))
	bulk := make([]*models.BucketStats, len(all))
	for i, name := range all {
		known[name] = now
		bulk[i] = &models.BucketStats{Name: name, Owner: "tester", CollectedAt: now}
	}

	store := &fakeStore{known: known}
	fetcher := &fakeFetcher{buckets: all, bulk: bulk}
	c := New(cycleConfig(), fetcher, store, nil)

	result, err := c.RunBootstrap(context.Background())
	if err != nil {
		t.Fatalf("RunBootstrap failed: %v", err)
	}
	if result.Strategy != StrategyBulk || result.Collected != 10 {
		t.Fatalf("expected full bulk load, got %+v", result)
	}
}

func TestRunBulkSkipsExcludedOwners(t *testing.T) {
	cfg := cycleConfig()
	cfg.ExcludeOwners = []string{"svc-*"}

	bulk := []*models.BucketStats{
		{Name: "keep", Owner: "alice"},
		{Name: "skip", Owner: "svc-backup"},
	}
	store := &fakeStore{}
	fetcher := &fakeFetcher{bulk: bulk}
	c := New(cfg, fetcher, store, nil)

	collected, errs, err := c.runBulk(context.Background())
	if err != nil {
		t.Fatalf("runBulk failed: %v", err)
	}
	if collected != 1 || errs != 0 {
		t.Fatalf("expected 1 collected after exclusion, got %d/%d", collected, errs)
	}
	if len(store.upserts) != 1 || store.upserts[0].Name != "keep" {
		t.Fatalf("unexpected writes: %v", store.upserts)
	}
}

func TestStatusReportsCounters(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{
		known:      map[string]time.Time{"a": now.Add(-time.Hour)},
		staleCount: 7,
		summary:    &models.Summary{TotalBuckets: 42},
	}
	fetcher := &fakeFetcher{buckets: []string{"a"}}
	c := New(cycleConfig(), fetcher, store, nil)

	if _, err := c.RunOnce(context.Background(), 0); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	status, err := c.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Summary.TotalBuckets != 42 || status.StaleCount != 7 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.State.CyclesCompleted != 1 || status.State.TotalCollected != 1 {
		t.Fatalf("unexpected state counters: %+v", status.State)
	}
	if status.State.Running {
		t.Fatal("expected running flag cleared after the cycle")
	}
}

func TestStateFinishCycleAccumulates(t *testing.T) {
	var state CollectorState
	state.FinishCycle(10, 2, 4, 2*time.Second)
	state.FinishCycle(5, 0, 2, time.Second)

	snap := state.Snapshot()
	if snap.TotalCollected != 15 || snap.TotalErrors != 2 || snap.CyclesCompleted != 2 {
		t.Fatalf("unexpected totals: %+v", snap)
	}
	if snap.LastCycleBuckets != 5 || snap.LastCycleWorkers != 2 {
		t.Fatalf("unexpected last-cycle fields: %+v", snap)
	}
	if snap.LastCycleRate != 5 {
		t.Fatalf("expected 5 buckets/sec, got %v", snap.LastCycleRate)
	}
}

func TestRunContinuousStopsOnCancel(t *testing.T) {
	cfg := cycleConfig()
	cfg.RefreshInterval = time.Hour

	now := time.Now().UTC()
	store := &fakeStore{known: map[string]time.Time{"a": now}}
	fetcher := &fakeFetcher{buckets: []string{"a"}}
	c := New(cfg, fetcher, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.RunContinuous(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("continuous loop did not stop promptly after cancellation")
	}
}
