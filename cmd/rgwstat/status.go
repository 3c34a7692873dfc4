package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/rgwstat/internal/storage"
	"github.com/ppiankov/rgwstat/pkg/config"
	"github.com/spf13/cobra"
)

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	cfg := config.DefaultConfig()
	var staleThresholdStr string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database freshness and totals",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cmd.Flags().Changed("stale-threshold") {
				cfg.StaleThreshold, err = config.ParseDuration(staleThresholdStr)
				if err != nil {
					return fmt.Errorf("invalid --stale-threshold duration: %w", err)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, cfg, jsonOut)
		},
	}

	cmd.Flags().StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	cmd.Flags().StringVar(&staleThresholdStr, "stale-threshold", "30m", "Age after which a snapshot is stale")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")

	return cmd
}

type statusReport struct {
	TotalBuckets     int64     `json:"total_buckets"`
	TotalOwners      int64     `json:"total_owners"`
	TotalObjects     int64     `json:"total_objects"`
	TotalSizeBytes   int64     `json:"total_size_bytes"`
	StaleBuckets     int64     `json:"stale_buckets"`
	OldestCollection time.Time `json:"oldest_collection,omitempty"`
	NewestCollection time.Time `json:"newest_collection,omitempty"`
	StaleThreshold   string    `json:"stale_threshold"`
}

func runStatus(cmd *cobra.Command, cfg *config.Config, jsonOut bool) error {
	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	summary, err := store.Summary()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	stale, err := store.StaleCount(now, cfg.StaleThreshold)
	if err != nil {
		return err
	}

	report := statusReport{
		TotalBuckets:     summary.TotalBuckets,
		TotalOwners:      summary.TotalOwners,
		TotalObjects:     summary.TotalObjects,
		TotalSizeBytes:   summary.TotalSizeBytes,
		StaleBuckets:     stale,
		OldestCollection: summary.OldestCollection,
		NewestCollection: summary.NewestCollection,
		StaleThreshold:   cfg.StaleThreshold.String(),
	}

	if jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Buckets:    %d (%d owners)\n", report.TotalBuckets, report.TotalOwners)
	cmd.Printf("Objects:    %d\n", report.TotalObjects)
	cmd.Printf("Total size: %s\n", humanBytes(report.TotalSizeBytes))
	cmd.Printf("Stale:      %d (threshold %s)\n", report.StaleBuckets, report.StaleThreshold)
	if !report.NewestCollection.IsZero() {
		cmd.Printf("Freshest:   %s ago\n", now.Sub(report.NewestCollection).Round(time.Second))
	}
	if !report.OldestCollection.IsZero() {
		cmd.Printf("Oldest:     %s ago\n", now.Sub(report.OldestCollection).Round(time.Second))
	}
	return nil
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
