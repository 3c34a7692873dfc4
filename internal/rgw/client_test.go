package rgw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ppiankov/rgwstat/pkg/config"
)

type runnerFunc func(ctx context.Context, args []string) ([]byte, error)

func (f runnerFunc) Run(ctx context.Context, args []string) ([]byte, error) {
	return f(ctx, args)
}

func testClient(t *testing.T, runner CommandRunner) *AdminClient {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RateLimit = 1000
	return newAdminClient(cfg, runner)
}

func subcommand(args []string) string {
	cleaned := make([]string, 0, len(args))
	skip := false
	for _, a := range args {
		if skip {
			skip = false
			continue
		}
		if a == "-c" {
			skip = true
			continue
		}
		if strings.HasPrefix(a, "--") {
			continue
		}
		cleaned = append(cleaned, a)
	}
	return strings.Join(cleaned, " ")
}

func TestListBucketsStringArray(t *testing.T) {
	client := testClient(t, runnerFunc(func(_ context.Context, args []string) ([]byte, error) {
		if got := subcommand(args); got != "bucket list" {
			t.Fatalf("unexpected command: %q", got)
		}
		return []byte(`["alpha","beta","gamma"]`), nil
	}))

	buckets, err := client.ListBuckets(context.Background())
	if err != nil {
		t.Fatalf("ListBuckets failed: %v", err)
	}
	if len(buckets) != 3 || buckets[0] != "alpha" || buckets[2] != "gamma" {
		t.Fatalf("unexpected buckets: %v", buckets)
	}
}

func TestListBucketsObjectArray(t *testing.T) {
	client := testClient(t, runnerFunc(func(context.Context, []string) ([]byte, error) {
		return []byte(`[{"bucket":"alpha"},{"name":"beta"},{"other":1}]`), nil
	}))

	buckets, err := client.ListBuckets(context.Background())
	if err != nil {
		t.Fatalf("ListBuckets failed: %v", err)
	}
	if len(buckets) != 2 || buckets[0] != "alpha" || buckets[1] != "beta" {
		t.Fatalf("unexpected buckets: %v", buckets)
	}
}

func TestListBucketsFailureSurfaces(t *testing.T) {
	client := testClient(t, runnerFunc(func(context.Context, []string) ([]byte, error) {
		return nil, errors.New("radosgw-admin bucket failed: access denied")
	}))

	if _, err := client.ListBuckets(context.Background()); err == nil {
		t.Fatal("expected list failure to surface as an error")
	}
}

const sampleStatsJSON = `{
	"bucket": "photos",
	"id": "abc123.42",
	"marker": "abc123.42",
	"tenant": "",
	"owner": "alice",
	"zonegroup": "default",
	"placement_rule": "default-placement",
	"num_shards": 11,
	"index_type": "Normal",
	"versioning": "off",
	"mtime": "2026-08-20T10:00:00.000000Z",
	"creation_time": "2025-01-01T00:00:00.000000Z",
	"usage": {
		"rgw.main": {"size": 1000, "size_actual": 1100, "size_utilized": 900, "num_objects": 10},
		"rgw.glacier": {"size": 5000, "size_actual": 5200, "size_utilized": 4800, "num_objects": 3}
	}
}`

func TestFetchBucketParsesStats(t *testing.T) {
	client := testClient(t, runnerFunc(func(_ context.Context, args []string) ([]byte, error) {
		if got := subcommand(args); got != "bucket stats" {
			t.Fatalf("unexpected command: %q", got)
		}
		return []byte(sampleStatsJSON), nil
	}))

	stats, err := client.FetchBucket(context.Background(), "photos")
	if err != nil {
		t.Fatalf("FetchBucket failed: %v", err)
	}

	if stats.Name != "photos" || stats.Owner != "alice" {
		t.Fatalf("unexpected identity: %+v", stats)
	}
	if stats.SizeBytes != 6000 || stats.NumObjects != 13 {
		t.Fatalf("expected aggregated totals 6000/13, got %d/%d", stats.SizeBytes, stats.NumObjects)
	}
	if len(stats.StorageClasses) != 2 {
		t.Fatalf("expected 2 storage classes, got %d", len(stats.StorageClasses))
	}
	if stats.CollectedAt.IsZero() {
		t.Fatal("expected collected_at to be set")
	}
	if stats.NumShards != 11 {
		t.Fatalf("expected 11 shards, got %d", stats.NumShards)
	}
}

func TestFetchBucketWithSyncStatus(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimit = 1000
	cfg.CollectSync = true

	client := newAdminClient(cfg, runnerFunc(func(_ context.Context, args []string) ([]byte, error) {
		switch subcommand(args) {
		case "bucket stats":
			return []byte(sampleStatsJSON), nil
		case "bucket sync status":
			return []byte("source zone: us-west\n3 shards behind\n120 entries behind\n"), nil
		default:
			return nil, fmt.Errorf("unexpected command: %v", args)
		}
	}))

	stats, err := client.FetchBucket(context.Background(), "photos")
	if err != nil {
		t.Fatalf("FetchBucket failed: %v", err)
	}
	if stats.SyncStatus != "behind" {
		t.Fatalf("expected sync status behind, got %q", stats.SyncStatus)
	}
	if stats.SyncBehindShards != 3 || stats.SyncBehindEntries != 120 {
		t.Fatalf("unexpected backlog: shards=%d entries=%d", stats.SyncBehindShards, stats.SyncBehindEntries)
	}
	if stats.SyncSourceZone != "us-west" {
		t.Fatalf("unexpected source zone: %q", stats.SyncSourceZone)
	}
}

func TestFetchBucketNotFound(t *testing.T) {
	client := testClient(t, runnerFunc(func(context.Context, []string) ([]byte, error) {
		return nil, errors.New("radosgw-admin bucket failed: could not get bucket info for bucket=gone")
	}))

	if _, err := client.FetchBucket(context.Background(), "gone"); err == nil {
		t.Fatal("expected fetch failure for missing bucket")
	}
}

func TestFetchAllBucketsSingleEpoch(t *testing.T) {
	bulk := `[
		{"bucket":"a","owner":"o1","usage":{"rgw.main":{"size":1,"num_objects":1}}},
		{"bucket":"b","owner":"o2","usage":{"rgw.main":{"size":2,"num_objects":2}}},
		{"garbage":true},
		{"bucket":"c","owner":"o3","usage":{}}
	]`
	client := testClient(t, runnerFunc(func(context.Context, []string) ([]byte, error) {
		return []byte(bulk), nil
	}))

	results, err := client.FetchAllBuckets(context.Background())
	if err != nil {
		t.Fatalf("FetchAllBuckets failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 parsed buckets (malformed skipped), got %d", len(results))
	}
	for _, stats := range results[1:] {
		if !stats.CollectedAt.Equal(results[0].CollectedAt) {
			t.Fatal("expected one collection epoch for the whole bulk batch")
		}
	}
}

func TestFetchAllBucketsFailure(t *testing.T) {
	client := testClient(t, runnerFunc(func(context.Context, []string) ([]byte, error) {
		return nil, errors.New("radosgw-admin bucket failed: connection refused")
	}))

	if _, err := client.FetchAllBuckets(context.Background()); err == nil {
		t.Fatal("expected bulk failure to surface as an error")
	}
}

func TestParseSyncText(t *testing.T) {
	cases := []struct {
		name       string
		text       string
		wantStatus string
		wantShards int
	}{
		{name: "caught_up", text: "data is caught up with source", wantStatus: "synced"},
		{name: "behind", text: "5 shards behind on sync", wantStatus: "behind", wantShards: 5},
		{name: "error", text: "ERROR: failed to read sync status", wantStatus: "error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := parseSyncText(tc.text)
			if info.status != tc.wantStatus {
				t.Fatalf("expected status %q, got %q", tc.wantStatus, info.status)
			}
			if info.behindShards != tc.wantShards {
				t.Fatalf("expected %d shards behind, got %d", tc.wantShards, info.behindShards)
			}
		})
	}
}

func TestParseSyncJSONAggregatesZones(t *testing.T) {
	info := parseSyncJSON([]byte(`[
		{"source_zone":"us-east","shards_behind":2,"entries_behind":10},
		{"source_zone":"eu-west","shards_behind":1,"entries_behind":5}
	]`))
	if info.status != "behind" {
		t.Fatalf("expected behind, got %q", info.status)
	}
	if info.behindShards != 3 || info.behindEntries != 15 {
		t.Fatalf("unexpected totals: %d/%d", info.behindShards, info.behindEntries)
	}
}
