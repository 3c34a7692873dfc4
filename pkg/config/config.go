package config

import (
	"fmt"
	"time"
)

// Config holds all runtime configuration
type Config struct {
	// Storage settings
	DBPath    string
	CachePath string

	// RGW access settings
	CephConf       string
	CommandTimeout time.Duration
	BulkTimeout    time.Duration
	RateLimit      int
	CollectSync    bool

	// Kubernetes exec settings (radosgw-admin via toolbox pod)
	UseKubeExec   bool
	KubeConfig    string
	KubeNamespace string
	KubeSelector  string
	KubeContainer string

	// Collection settings
	StaleThreshold  time.Duration
	RefreshInterval time.Duration
	BatchSize       int
	BulkThreshold   int

	// Worker settings
	ParallelWorkers  int
	MaxWorkers       int
	AutoScaleWorkers bool
	BucketsPerWorker int
	BootstrapMode    bool
	BootstrapWorkers int

	// Exclusion patterns
	ExcludeBuckets []string
	ExcludeOwners  []string

	// Operational flags
	RecordHistory bool
	Verbose       bool
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DBPath:           "rgw_stats.db",
		CachePath:        "",
		CephConf:         "/etc/ceph/ceph.conf",
		CommandTimeout:   60 * time.Second,
		BulkTimeout:      30 * time.Minute,
		RateLimit:        10,
		CollectSync:      false,
		UseKubeExec:      false,
		KubeNamespace:    "rook-ceph",
		KubeSelector:     "app=rook-ceph-tools",
		KubeContainer:    "",
		StaleThreshold:   30 * time.Minute,
		RefreshInterval:  5 * time.Minute,
		BatchSize:        100,
		BulkThreshold:    500,
		ParallelWorkers:  4,
		MaxWorkers:       100,
		AutoScaleWorkers: true,
		BucketsPerWorker: 50,
		BootstrapMode:    false,
		BootstrapWorkers: 50,
		ExcludeBuckets:   []string{},
		ExcludeOwners:    []string{},
		RecordHistory:    true,
		Verbose:          false,
	}
}

// Validate checks bounds once at startup so the collector never has to
// re-check them mid-cycle.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.StaleThreshold < 0 {
		return fmt.Errorf("stale threshold must be non-negative, got %s", c.StaleThreshold)
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("refresh interval must be non-negative, got %s", c.RefreshInterval)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.BulkThreshold < 0 {
		return fmt.Errorf("bulk threshold must be non-negative, got %d", c.BulkThreshold)
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max workers must be at least 1, got %d", c.MaxWorkers)
	}
	if c.ParallelWorkers < 1 {
		return fmt.Errorf("parallel workers must be at least 1, got %d", c.ParallelWorkers)
	}
	if c.BucketsPerWorker < 1 {
		return fmt.Errorf("buckets per worker must be at least 1, got %d", c.BucketsPerWorker)
	}
	if c.BootstrapWorkers < 1 {
		return fmt.Errorf("bootstrap workers must be at least 1, got %d", c.BootstrapWorkers)
	}
	if c.RateLimit < 1 {
		return fmt.Errorf("rate limit must be at least 1, got %d", c.RateLimit)
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive, got %s", c.CommandTimeout)
	}
	return nil
}

// CalculateWorkers returns the worker count for an incremental cycle over
// bucketCount candidates.
//
// Bootstrap mode always wins and ignores auto-scaling; a disabled auto-scaler
// falls back to the fixed ParallelWorkers override. Otherwise the pool is
// sized to aim for BucketsPerWorker buckets per worker, clamped to
// [1, MaxWorkers].
func (c *Config) CalculateWorkers(bucketCount int) int {
	if c.BootstrapMode {
		return min(c.BootstrapWorkers, c.MaxWorkers)
	}

	if !c.AutoScaleWorkers {
		return min(c.ParallelWorkers, c.MaxWorkers)
	}

	optimal := max(1, bucketCount/c.BucketsPerWorker)
	return min(optimal, c.MaxWorkers)
}
