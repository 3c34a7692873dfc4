package collector

import (
	"sync"
	"time"
)

// CollectorState tracks lifetime and last-cycle counters for status
// reporting. All fields sit behind one mutex; cycles are infrequent enough
// that finer-grained locking buys nothing.
type CollectorState struct {
	mu sync.Mutex

	running         bool
	totalCollected  int64
	totalErrors     int64
	cyclesCompleted int64

	lastCycleBuckets  int
	lastCycleWorkers  int
	lastCycleDuration time.Duration
	lastCycleRate     float64
}

// StateSnapshot is a copy of the counters at one point in time.
type StateSnapshot struct {
	Running           bool          `json:"running"`
	TotalCollected    int64         `json:"total_collected"`
	TotalErrors       int64         `json:"total_errors"`
	CyclesCompleted   int64         `json:"cycles_completed"`
	LastCycleBuckets  int           `json:"last_cycle_buckets"`
	LastCycleWorkers  int           `json:"last_cycle_workers"`
	LastCycleDuration time.Duration `json:"last_cycle_duration"`
	LastCycleRate     float64       `json:"last_cycle_rate"`
}

// SetRunning flips the running flag at cycle boundaries.
func (s *CollectorState) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = running
}

// FinishCycle records the outcome of one completed cycle.
func (s *CollectorState) FinishCycle(collected, errors, workers int, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalCollected += int64(collected)
	s.totalErrors += int64(errors)
	s.cyclesCompleted++
	s.lastCycleBuckets = collected
	s.lastCycleWorkers = workers
	s.lastCycleDuration = duration
	if duration > 0 {
		s.lastCycleRate = float64(collected) / duration.Seconds()
	} else {
		s.lastCycleRate = 0
	}
}

// Snapshot returns a consistent copy of all counters.
func (s *CollectorState) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StateSnapshot{
		Running:           s.running,
		TotalCollected:    s.totalCollected,
		TotalErrors:       s.totalErrors,
		CyclesCompleted:   s.cyclesCompleted,
		LastCycleBuckets:  s.lastCycleBuckets,
		LastCycleWorkers:  s.lastCycleWorkers,
		LastCycleDuration: s.lastCycleDuration,
		LastCycleRate:     s.lastCycleRate,
	}
}
