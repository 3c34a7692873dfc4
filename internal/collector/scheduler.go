package collector

import (
	"sort"
	"time"

	"github.com/ppiankov/rgwstat/pkg/config"
)

// Strategy selects how a cycle refreshes its candidates.
type Strategy int

const (
	// StrategyNone means everything is fresh; the cycle does no work.
	StrategyNone Strategy = iota
	// StrategyIncremental fetches each candidate bucket individually.
	StrategyIncremental
	// StrategyBulk issues one bulk stats call covering every bucket the
	// source returns, not just the candidates. Cheaper than many per-bucket
	// calls once the stale set is large enough.
	StrategyBulk
)

func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "none"
	case StrategyIncremental:
		return "incremental"
	case StrategyBulk:
		return "bulk"
	default:
		return "unknown"
	}
}

// RefreshPlan is the scheduler's decision for one cycle.
type RefreshPlan struct {
	Strategy   Strategy
	Candidates []string
	Workers    int
}

// Plan decides what a cycle should collect. allBuckets is the live listing
// from the source; known maps stored bucket names to their last collection
// time, with the zero time standing in for never-collected rows.
//
// Never-collected buckets are prioritized ahead of stale ones so a cap never
// starves discovery. Stale buckets are ordered oldest first. The result is
// deterministic for identical inputs.
func Plan(allBuckets []string, known map[string]time.Time, now time.Time, cfg *config.Config, limit int) RefreshPlan {
	var uncollected []string
	type staleBucket struct {
		name        string
		collectedAt time.Time
	}
	var stale []staleBucket

	for _, name := range allBuckets {
		if cfg.IsBucketExcluded(name) {
			continue
		}
		collectedAt, ok := known[name]
		if !ok {
			uncollected = append(uncollected, name)
			continue
		}
		if collectedAt.IsZero() || now.Sub(collectedAt) >= cfg.StaleThreshold {
			stale = append(stale, staleBucket{name: name, collectedAt: collectedAt})
		}
	}

	sort.Slice(stale, func(i, j int) bool {
		if !stale[i].collectedAt.Equal(stale[j].collectedAt) {
			return stale[i].collectedAt.Before(stale[j].collectedAt)
		}
		return stale[i].name < stale[j].name
	})

	candidates := make([]string, 0, len(uncollected)+len(stale))
	candidates = append(candidates, uncollected...)
	for _, b := range stale {
		candidates = append(candidates, b.name)
	}
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	if len(candidates) == 0 {
		return RefreshPlan{Strategy: StrategyNone}
	}

	if len(candidates) > cfg.BulkThreshold {
		return RefreshPlan{Strategy: StrategyBulk, Candidates: candidates}
	}

	return RefreshPlan{
		Strategy:   StrategyIncremental,
		Candidates: candidates,
		Workers:    cfg.CalculateWorkers(len(candidates)),
	}
}
