package collector

import (
	"reflect"
	"testing"
	"time"

	"github.com/ppiankov/rgwstat/pkg/config"
)

func planConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.StaleThreshold = 30 * time.Minute
	cfg.BulkThreshold = 5
	cfg.BucketsPerWorker = 2
	cfg.MaxWorkers = 10
	return cfg
}

func TestPlanAllFresh(t *testing.T) {
	now := time.Now().UTC()
	known := map[string]time.Time{
		"a": now.Add(-time.Minute),
		"b": now.Add(-2 * time.Minute),
	}

	plan := Plan([]string{"a", "b"}, known, now, planConfig(), 0)
	if plan.Strategy != StrategyNone {
		t.Fatalf("expected no work, got %s with %v", plan.Strategy, plan.Candidates)
	}
	if len(plan.Candidates) != 0 {
		t.Fatalf("expected empty candidates, got %v", plan.Candidates)
	}
}

func TestPlanStaleBoundaryInclusive(t *testing.T) {
	cfg := planConfig()
	now := time.Now().UTC()
	known := map[string]time.Time{
		"exact":  now.Add(-cfg.StaleThreshold),
		"almost": now.Add(-cfg.StaleThreshold + time.Second),
	}

	plan := Plan([]string{"exact", "almost"}, known, now, cfg, 0)
	if plan.Strategy != StrategyIncremental {
		t.Fatalf("expected incremental, got %s", plan.Strategy)
	}
	if len(plan.Candidates) != 1 || plan.Candidates[0] != "exact" {
		t.Fatalf("expected only the exactly-stale bucket, got %v", plan.Candidates)
	}
}

func TestPlanUncollectedFirstUnderLimit(t *testing.T) {
	cfg := planConfig()
	now := time.Now().UTC()
	known := map[string]time.Time{
		"old":   now.Add(-2 * time.Hour),
		"older": now.Add(-3 * time.Hour),
	}

	plan := Plan([]string{"old", "new1", "older", "new2"}, known, now, cfg, 3)
	if len(plan.Candidates) != 3 {
		t.Fatalf("expected limit applied, got %v", plan.Candidates)
	}
	// Never-collected buckets come first, then stale oldest first.
	want := []string{"new1", "new2", "older"}
	if !reflect.DeepEqual(plan.Candidates, want) {
		t.Fatalf("expected %v, got %v", want, plan.Candidates)
	}
}

func TestPlanNeverCollectedTimestampIsStale(t *testing.T) {
	cfg := planConfig()
	now := time.Now().UTC()
	known := map[string]time.Time{
		"null-ts": {},
		"old":     now.Add(-time.Hour),
	}

	plan := Plan([]string{"null-ts", "old"}, known, now, cfg, 0)
	if len(plan.Candidates) != 2 {
		t.Fatalf("expected both candidates, got %v", plan.Candidates)
	}
	// The zero timestamp sorts as maximally stale.
	if plan.Candidates[0] != "null-ts" {
		t.Fatalf("expected zero-timestamp bucket first, got %v", plan.Candidates)
	}
}

func TestPlanBulkBoundary(t *testing.T) {
	cfg := planConfig()
	now := time.Now().UTC()

	atThreshold := []string{"a", "b", "c", "d", "e"}
	plan := Plan(atThreshold, nil, now, cfg, 0)
	if plan.Strategy != StrategyIncremental {
		t.Fatalf("expected incremental at the threshold, got %s", plan.Strategy)
	}

	overThreshold := append(atThreshold, "f")
	plan = Plan(overThreshold, nil, now, cfg, 0)
	if plan.Strategy != StrategyBulk {
		t.Fatalf("expected bulk above the threshold, got %s", plan.Strategy)
	}
}

func TestPlanWorkerSizing(t *testing.T) {
	cfg := planConfig()
	now := time.Now().UTC()

	plan := Plan([]string{"a", "b", "c", "d"}, nil, now, cfg, 0)
	if plan.Strategy != StrategyIncremental {
		t.Fatalf("expected incremental, got %s", plan.Strategy)
	}
	// 4 candidates at 2 per worker.
	if plan.Workers != 2 {
		t.Fatalf("expected 2 workers, got %d", plan.Workers)
	}
}

func TestPlanExcludesBuckets(t *testing.T) {
	cfg := planConfig()
	cfg.ExcludeBuckets = []string{"scratch-*"}
	now := time.Now().UTC()

	plan := Plan([]string{"scratch-1", "data", "scratch-2"}, nil, now, cfg, 0)
	if len(plan.Candidates) != 1 || plan.Candidates[0] != "data" {
		t.Fatalf("expected excluded buckets dropped, got %v", plan.Candidates)
	}
}

func TestPlanDeterministic(t *testing.T) {
	cfg := planConfig()
	now := time.Now().UTC()
	known := map[string]time.Time{
		"m": now.Add(-time.Hour),
		"a": now.Add(-time.Hour),
		"z": now.Add(-2 * time.Hour),
	}
	all := []string{"m", "z", "a", "fresh1"}

	first := Plan(all, known, now, cfg, 0)
	second := Plan(all, known, now, cfg, 0)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected deterministic plans, got %v then %v", first, second)
	}
	// Equal timestamps tie-break by name.
	want := []string{"fresh1", "z", "a", "m"}
	if !reflect.DeepEqual(first.Candidates, want) {
		t.Fatalf("expected %v, got %v", want, first.Candidates)
	}
}
