package rgw

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/rgwstat/internal/models"
	"github.com/ppiankov/rgwstat/pkg/config"
)

// listTimeoutFloor keeps bucket listing from tripping the per-command timeout
// on large clusters, where a bare "bucket list" can take minutes.
const listTimeoutFloor = 10 * time.Minute

// AdminClient talks to RGW through radosgw-admin. It implements the
// collector's Fetcher contract: enumerate buckets, fetch one bucket's stats,
// or fetch everything in one bulk call.
type AdminClient struct {
	runner      CommandRunner
	limiter     *RateLimiter
	cephConf    string
	timeout     time.Duration
	bulkTimeout time.Duration
	collectSync bool
	retry       retryConfig
}

// NewAdminClient creates a client using the transport selected by cfg:
// local subprocess by default, Kubernetes pod exec when UseKubeExec is set.
func NewAdminClient(cfg *config.Config) (*AdminClient, error) {
	var runner CommandRunner
	if cfg.UseKubeExec {
		kr, err := NewKubeRunner(cfg.KubeConfig, cfg.KubeNamespace, cfg.KubeSelector, cfg.KubeContainer)
		if err != nil {
			return nil, fmt.Errorf("failed to create kube runner: %w", err)
		}
		runner = kr
	} else {
		runner = NewLocalRunner()
	}

	return newAdminClient(cfg, runner), nil
}

func newAdminClient(cfg *config.Config, runner CommandRunner) *AdminClient {
	return &AdminClient{
		runner:      runner,
		limiter:     NewRateLimiter(cfg.RateLimit),
		cephConf:    cfg.CephConf,
		timeout:     cfg.CommandTimeout,
		bulkTimeout: cfg.BulkTimeout,
		collectSync: cfg.CollectSync,
		retry:       defaultRetryConfig(),
	}
}

// run executes one admin command with the shared rate limiter and a
// per-command timeout.
func (c *AdminClient) run(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	cmdCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	full := make([]string, 0, len(args)+3)
	full = append(full, "-c", c.cephConf)
	full = append(full, args...)
	full = append(full, "--format=json")

	return c.runner.Run(cmdCtx, full)
}

// ListBuckets returns the complete current universe of bucket names. A
// failure here surfaces as an error so the cycle plans against nothing rather
// than a silently partial list.
func (c *AdminClient) ListBuckets(ctx context.Context) ([]string, error) {
	timeout := c.timeout
	if timeout < listTimeoutFloor {
		timeout = listTimeoutFloor
	}

	var out []byte
	err := executeWithRetry(ctx, c.retry, func() error {
		var runErr error
		out, runErr = c.run(ctx, timeout, "bucket", "list")
		return runErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}

	return parseBucketList(out)
}

// parseBucketList accepts both output shapes radosgw-admin has used: a plain
// array of names, or an array of objects carrying a "bucket" key.
func parseBucketList(data []byte) ([]string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse bucket list: %w", err)
	}

	buckets := make([]string, 0, len(items))
	for _, item := range items {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			if name != "" {
				buckets = append(buckets, name)
			}
			continue
		}

		var obj struct {
			Bucket string `json:"bucket"`
			Name   string `json:"name"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		if obj.Bucket != "" {
			buckets = append(buckets, obj.Bucket)
		} else if obj.Name != "" {
			buckets = append(buckets, obj.Name)
		}
	}

	return buckets, nil
}

// FetchBucket returns current stats for one bucket, or an error counted by
// the caller as a per-bucket failure. When sync collection is enabled the
// multisite status sub-fetch is merged into the snapshot.
func (c *AdminClient) FetchBucket(ctx context.Context, name string) (*models.BucketStats, error) {
	start := time.Now()

	var out []byte
	err := executeWithRetry(ctx, c.retry, func() error {
		var runErr error
		out, runErr = c.run(ctx, c.timeout, "bucket", "stats", "--bucket", name)
		return runErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stats for bucket %q: %w", name, err)
	}

	var raw adminBucketStats
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse stats for bucket %q: %w", name, err)
	}
	if raw.Bucket == "" {
		return nil, fmt.Errorf("empty stats response for bucket %q", name)
	}

	stats := raw.toBucketStats(time.Now().UTC(), time.Since(start))

	if c.collectSync {
		sync := c.fetchSyncStatus(ctx, name)
		stats.SyncStatus = sync.status
		stats.SyncBehindShards = sync.behindShards
		stats.SyncBehindEntries = sync.behindEntries
		stats.SyncSourceZone = sync.sourceZone
	}

	return stats, nil
}

// FetchAllBuckets performs the all-or-nothing bulk fetch: one command, one
// metadata scan, every bucket. Much faster than per-bucket calls on large
// clusters, but it cannot fetch a subset. Attempted once; the caller treats
// failure as zero collected for the cycle.
func (c *AdminClient) FetchAllBuckets(ctx context.Context) ([]*models.BucketStats, error) {
	bulkCtx, cancel := withTotalTimeoutContext(ctx, c.bulkTimeout)
	defer cancel()

	start := time.Now()
	out, err := c.run(bulkCtx, 0, "bucket", "stats")
	if err != nil {
		return nil, fmt.Errorf("bulk bucket stats failed: %w", err)
	}

	slog.Debug("bulk fetch completed",
		slog.Duration("fetch_time", time.Since(start)),
		slog.Int("bytes", len(out)),
	)

	var rawList []json.RawMessage
	if err := json.Unmarshal(out, &rawList); err != nil {
		// A single-bucket cluster can emit a bare object.
		var single adminBucketStats
		if err2 := json.Unmarshal(out, &single); err2 != nil || single.Bucket == "" {
			return nil, fmt.Errorf("failed to parse bulk bucket stats: %w", err)
		}
		rawList = []json.RawMessage{out}
	}

	// One write epoch for the whole bulk batch.
	epoch := time.Now().UTC()
	perBucket := time.Since(start)
	if len(rawList) > 0 {
		perBucket /= time.Duration(len(rawList))
	}

	results := make([]*models.BucketStats, 0, len(rawList))
	skipped := 0
	for _, item := range rawList {
		var raw adminBucketStats
		if err := json.Unmarshal(item, &raw); err != nil || raw.Bucket == "" {
			skipped++
			if skipped == 1 {
				slog.Warn("skipping malformed bulk stats entry", slog.Any("error", err))
			}
			continue
		}
		results = append(results, raw.toBucketStats(epoch, perBucket))
	}

	if skipped > 0 {
		slog.Warn("skipped malformed bulk stats entries",
			slog.Int("skipped", skipped),
			slog.Int("total", len(rawList)),
		)
	}

	return results, nil
}

// adminBucketStats mirrors the radosgw-admin bucket stats JSON document.
type adminBucketStats struct {
	Bucket        string                       `json:"bucket"`
	ID            string                       `json:"id"`
	Marker        string                       `json:"marker"`
	Tenant        string                       `json:"tenant"`
	Owner         string                       `json:"owner"`
	Zonegroup     string                       `json:"zonegroup"`
	PlacementRule string                       `json:"placement_rule"`
	NumShards     int                          `json:"num_shards"`
	IndexType     string                       `json:"index_type"`
	Versioning    string                       `json:"versioning"`
	MTime         string                       `json:"mtime"`
	CreationTime  string                       `json:"creation_time"`
	Usage         map[string]models.ClassUsage `json:"usage"`
}

func (raw *adminBucketStats) toBucketStats(collectedAt time.Time, fetchDuration time.Duration) *models.BucketStats {
	stats := &models.BucketStats{
		Name:           raw.Bucket,
		ID:             raw.ID,
		Marker:         raw.Marker,
		Tenant:         raw.Tenant,
		Owner:          raw.Owner,
		Zonegroup:      raw.Zonegroup,
		PlacementRule:  raw.PlacementRule,
		NumShards:      raw.NumShards,
		IndexType:      raw.IndexType,
		Versioning:     raw.Versioning,
		MTime:          raw.MTime,
		CreationTime:   raw.CreationTime,
		StorageClasses: raw.Usage,
		CollectedAt:    collectedAt,
		FetchDuration:  fetchDuration,
	}
	stats.Aggregate()
	return stats
}
