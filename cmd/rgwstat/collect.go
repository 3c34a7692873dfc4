package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ppiankov/rgwstat/internal/cache"
	"github.com/ppiankov/rgwstat/internal/collector"
	"github.com/ppiankov/rgwstat/internal/rgw"
	"github.com/ppiankov/rgwstat/internal/storage"
	"github.com/ppiankov/rgwstat/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// timeRound trims durations in user-facing output.
const timeRound = 100 * time.Millisecond

// NewCollectCmd creates the collect command
func NewCollectCmd() *cobra.Command {
	cmd, _ := newCollectCmd()
	return cmd
}

func newCollectCmd() (*cobra.Command, *config.Config) {
	cfg := config.DefaultConfig()

	// String variables for custom duration parsing
	var staleThresholdStr string
	var intervalStr string
	var commandTimeoutStr string
	var bulkTimeoutStr string

	var continuous bool
	var bootstrap bool
	var limit int
	var configPath string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect bucket statistics",
		Long: `Run one collection cycle by default: list buckets, refresh the
stale ones, and republish the stats cache. With --continuous, repeat on
the refresh interval until interrupted. With --bootstrap, bulk-load
every bucket regardless of staleness to populate an empty database.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := applyFileConfig(cmd.Flags(), cfg, configPath); err != nil {
				return err
			}

			// Parse custom durations, flags winning over the file
			var err error
			if cmd.Flags().Changed("stale-threshold") {
				cfg.StaleThreshold, err = config.ParseDuration(staleThresholdStr)
				if err != nil {
					return fmt.Errorf("invalid --stale-threshold duration: %w", err)
				}
			}
			if cmd.Flags().Changed("interval") {
				cfg.RefreshInterval, err = config.ParseDuration(intervalStr)
				if err != nil {
					return fmt.Errorf("invalid --interval duration: %w", err)
				}
			}
			if cmd.Flags().Changed("command-timeout") {
				cfg.CommandTimeout, err = config.ParseDuration(commandTimeoutStr)
				if err != nil {
					return fmt.Errorf("invalid --command-timeout duration: %w", err)
				}
			}
			if cmd.Flags().Changed("bulk-timeout") {
				cfg.BulkTimeout, err = config.ParseDuration(bulkTimeoutStr)
				if err != nil {
					return fmt.Errorf("invalid --bulk-timeout duration: %w", err)
				}
			}

			if bootstrap {
				cfg.BootstrapMode = true
			}
			cfg.Verbose = verbose
			cfg.NormalizePatterns()
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, cfg, continuous, bootstrap, limit)
		},
	}

	// Storage flags
	cmd.Flags().StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	cmd.Flags().StringVar(&cfg.CachePath, "cache", "", "Stats cache JSON path (empty disables publishing)")

	// RGW access flags
	cmd.Flags().StringVar(&cfg.CephConf, "ceph-conf", cfg.CephConf, "Ceph configuration file")
	cmd.Flags().StringVar(&commandTimeoutStr, "command-timeout", "60s", "Per-command timeout (e.g., 60s, 5m)")
	cmd.Flags().StringVar(&bulkTimeoutStr, "bulk-timeout", "30m", "Bulk stats call timeout (e.g., 30m, 1h)")
	cmd.Flags().IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "radosgw-admin commands per second")
	cmd.Flags().BoolVar(&cfg.CollectSync, "collect-sync", false, "Also fetch multisite sync status per bucket")

	// Kubernetes exec flags
	cmd.Flags().BoolVar(&cfg.UseKubeExec, "kube-exec", false, "Run radosgw-admin inside the Rook toolbox pod")
	cmd.Flags().StringVar(&cfg.KubeConfig, "kubeconfig", "", "Path to kubeconfig (default: ~/.kube/config)")
	cmd.Flags().StringVar(&cfg.KubeNamespace, "kube-namespace", cfg.KubeNamespace, "Toolbox pod namespace")
	cmd.Flags().StringVar(&cfg.KubeSelector, "kube-selector", cfg.KubeSelector, "Toolbox pod label selector")
	cmd.Flags().StringVar(&cfg.KubeContainer, "kube-container", "", "Toolbox container name (default: first container)")

	// Collection flags
	cmd.Flags().StringVar(&staleThresholdStr, "stale-threshold", "30m", "Age after which a snapshot is stale (e.g., 30m, 1h, 1d)")
	cmd.Flags().StringVar(&intervalStr, "interval", "5m", "Refresh interval for --continuous (e.g., 5m, 1h)")
	cmd.Flags().IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Buckets per commit batch")
	cmd.Flags().IntVar(&cfg.BulkThreshold, "bulk-threshold", cfg.BulkThreshold, "Stale bucket count that switches to one bulk call")
	cmd.Flags().IntVar(&limit, "limit", 0, "Cap candidates per cycle (0 = no cap)")

	// Worker flags
	cmd.Flags().IntVar(&cfg.ParallelWorkers, "workers", cfg.ParallelWorkers, "Fixed worker count when auto-scaling is off")
	cmd.Flags().IntVar(&cfg.MaxWorkers, "max-workers", cfg.MaxWorkers, "Upper bound on concurrent fetches")
	cmd.Flags().IntVar(&cfg.BucketsPerWorker, "buckets-per-worker", cfg.BucketsPerWorker, "Target buckets per worker for auto-scaling")
	cmd.Flags().BoolVar(&cfg.AutoScaleWorkers, "auto-scale", true, "Scale workers with the candidate count")
	cmd.Flags().IntVar(&cfg.BootstrapWorkers, "bootstrap-workers", cfg.BootstrapWorkers, "Worker count in bootstrap mode")

	// Exclusion flags
	cmd.Flags().StringSliceVar(&cfg.ExcludeBuckets, "exclude-bucket", nil, "Bucket name or glob to skip (repeatable)")
	cmd.Flags().StringSliceVar(&cfg.ExcludeOwners, "exclude-owner", nil, "Owner name or glob to skip (repeatable)")

	// Mode flags
	cmd.Flags().BoolVar(&continuous, "continuous", false, "Keep collecting on the refresh interval")
	cmd.Flags().BoolVar(&bootstrap, "bootstrap", false, "Bulk-load all buckets once and exit")
	cmd.Flags().BoolVar(&cfg.RecordHistory, "history", true, "Append history rows on every refresh")
	cmd.Flags().StringVar(&configPath, "config", "", "Config file path (default: auto-discover .rgwstat.yaml)")

	return cmd, cfg
}

// applyFileConfig overlays a config file onto cfg without clobbering values
// the user set on the command line.
func applyFileConfig(flags *pflag.FlagSet, cfg *config.Config, configPath string) error {
	var fc *config.FileConfig
	var path string
	var err error

	if configPath != "" {
		fc, err = config.LoadFile(configPath)
		path = configPath
	} else {
		fc, path, err = config.AutoLoadFile()
	}
	if err != nil {
		return err
	}
	if fc == nil {
		return nil
	}
	slog.Debug("loaded config file", slog.String("path", path))

	overridden := []struct {
		flag  string
		clear func()
	}{
		{"db", func() { fc.DBPath = "" }},
		{"cache", func() { fc.CachePath = "" }},
		{"ceph-conf", func() { fc.CephConf = "" }},
		{"batch-size", func() { fc.BatchSize = nil }},
		{"bulk-threshold", func() { fc.BulkThreshold = nil }},
		{"workers", func() { fc.Workers = nil }},
		{"max-workers", func() { fc.MaxWorkers = nil }},
		{"buckets-per-worker", func() { fc.BucketsPerWorker = nil }},
		{"rate-limit", func() { fc.RateLimit = nil }},
		{"auto-scale", func() { fc.AutoScale = nil }},
		{"collect-sync", func() { fc.CollectSync = nil }},
		{"exclude-bucket", func() { fc.ExcludeBuckets = nil }},
		{"exclude-owner", func() { fc.ExcludeOwners = nil }},
		{"kube-namespace", func() { fc.KubeNamespace = "" }},
		{"kube-selector", func() { fc.KubeSelector = "" }},
	}
	for _, o := range overridden {
		if flags.Changed(o.flag) {
			o.clear()
		}
	}

	return fc.Apply(cfg)
}

// runCollect executes the collection workflow
func runCollect(cmd *cobra.Command, cfg *config.Config, continuous, bootstrap bool, limit int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	fetcher, err := rgw.NewAdminClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}

	var publisher collector.Publisher
	if cfg.CachePath != "" {
		publisher = cache.NewPublisher(store, cache.New(cfg.CachePath))
	}

	c := collector.New(cfg, fetcher, store, publisher)

	switch {
	case bootstrap:
		result, err := c.RunBootstrap(ctx)
		if err != nil {
			return err
		}
		cmd.Printf("Bootstrapped %d buckets in %s (%d errors)\n",
			result.Collected, result.Duration.Round(timeRound), result.Errors)
		if result.Errors > 0 {
			return &PartialError{Collected: result.Collected, Errors: result.Errors}
		}
		return nil

	case continuous:
		return c.RunContinuous(ctx)

	default:
		result, err := c.RunOnce(ctx, limit)
		if err != nil {
			return err
		}
		if result.BulkFailed {
			return fmt.Errorf("bulk refresh failed, no buckets were refreshed")
		}
		cmd.Printf("Strategy: %s\n", result.Strategy)
		cmd.Printf("Collected %d of %d candidates in %s\n",
			result.Collected, result.Candidates, result.Duration.Round(timeRound))
		if result.Errors > 0 {
			return &PartialError{Collected: result.Collected, Errors: result.Errors}
		}
		return nil
	}
}
