package main

import (
	"fmt"
	"time"

	"github.com/ppiankov/rgwstat/internal/cache"
	"github.com/ppiankov/rgwstat/internal/storage"
	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache command
func NewCacheCmd() *cobra.Command {
	var cachePath string
	var dbPath string
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or rebuild the published stats cache",
		Long: `Show the age and headline numbers of the published JSON snapshot.
With --rebuild, regenerate it from the database without running a
collection cycle.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCache(cmd, cachePath, dbPath, rebuild)
		},
	}

	cmd.Flags().StringVar(&cachePath, "cache", "rgw_stats_cache.json", "Stats cache JSON path")
	cmd.Flags().StringVar(&dbPath, "db", "rgw_stats.db", "SQLite database path (for --rebuild)")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Regenerate the cache from the database")

	return cmd
}

func runCache(cmd *cobra.Command, cachePath, dbPath string, rebuild bool) error {
	c := cache.New(cachePath)
	now := time.Now().UTC()

	if rebuild {
		store, err := storage.Open(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer store.Close()

		if err := cache.NewPublisher(store, c).Publish(now); err != nil {
			return err
		}
		cmd.Printf("Rebuilt %s\n", cachePath)
	}

	doc, err := c.Read()
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("cache file not found or unreadable: %s", cachePath)
	}

	cmd.Printf("Updated:    %s (%s ago)\n",
		doc.UpdatedAt.Format(time.RFC3339), now.Sub(doc.UpdatedAt).Round(time.Second))
	cmd.Printf("Buckets:    %d (%d owners)\n", doc.Summary.TotalBuckets, doc.Summary.TotalOwners)
	cmd.Printf("Total size: %s\n", humanBytes(doc.Summary.TotalSizeBytes))
	if len(doc.TopBySize) > 0 {
		top := doc.TopBySize[0]
		cmd.Printf("Largest:    %s (%s)\n", top.Name, humanBytes(top.SizeBytes))
	}
	if len(doc.SyncBehind) > 0 {
		cmd.Printf("Sync lag:   %d buckets behind\n", len(doc.SyncBehind))
	}
	return nil
}
