package models

import "time"

// ClassUsage is the per-storage-class usage breakdown reported by
// radosgw-admin under the "usage" key (e.g. "rgw.main", "rgw.multimeta").
type ClassUsage struct {
	SizeBytes         int64 `json:"size"`
	SizeActualBytes   int64 `json:"size_actual"`
	SizeUtilizedBytes int64 `json:"size_utilized"`
	NumObjects        int64 `json:"num_objects"`
}

// BucketStats is the latest known state of one bucket. One live row per
// bucket name; replaced wholesale on every successful fetch.
type BucketStats struct {
	// Core identifiers
	Name   string `json:"bucket_name"`
	ID     string `json:"bucket_id"`
	Marker string `json:"marker,omitempty"`
	Tenant string `json:"tenant,omitempty"`
	Owner  string `json:"owner"`

	// Placement
	Zonegroup     string `json:"zonegroup,omitempty"`
	PlacementRule string `json:"placement_rule,omitempty"`

	// Sharding & features
	NumShards  int    `json:"num_shards"`
	IndexType  string `json:"index_type,omitempty"`
	Versioning string `json:"versioning,omitempty"`

	// RGW timestamps, kept as the raw strings the admin API emits
	MTime        string `json:"mtime,omitempty"`
	CreationTime string `json:"creation_time,omitempty"`

	// Aggregated usage
	SizeBytes         int64 `json:"size_bytes"`
	SizeActualBytes   int64 `json:"size_actual_bytes"`
	SizeUtilizedBytes int64 `json:"size_utilized_bytes"`
	NumObjects        int64 `json:"num_objects"`

	// Per-storage-class breakdown
	StorageClasses map[string]ClassUsage `json:"storage_classes,omitempty"`

	// Multisite sync status
	SyncStatus        string `json:"sync_status,omitempty"`
	SyncBehindShards  int    `json:"sync_behind_shards,omitempty"`
	SyncBehindEntries int    `json:"sync_behind_entries,omitempty"`
	SyncSourceZone    string `json:"sync_source_zone,omitempty"`

	// Collection metadata, set by the collector rather than RGW
	CollectedAt   time.Time     `json:"collected_at"`
	FetchDuration time.Duration `json:"fetch_duration"`
}

// Aggregate recomputes the usage totals from the per-class breakdown.
func (b *BucketStats) Aggregate() {
	var size, actual, utilized, objects int64
	for _, usage := range b.StorageClasses {
		size += usage.SizeBytes
		actual += usage.SizeActualBytes
		utilized += usage.SizeUtilizedBytes
		objects += usage.NumObjects
	}
	b.SizeBytes = size
	b.SizeActualBytes = actual
	b.SizeUtilizedBytes = utilized
	b.NumObjects = objects
}

// HistoryEntry is one append-only history row for trend queries.
type HistoryEntry struct {
	Seq               int64     `json:"seq"`
	Bucket            string    `json:"bucket_name"`
	SizeBytes         int64     `json:"size_bytes"`
	NumObjects        int64     `json:"num_objects"`
	SyncBehindShards  int       `json:"sync_behind_shards"`
	SyncBehindEntries int       `json:"sync_behind_entries"`
	CollectedAt       time.Time `json:"collected_at"`
}

// Summary aggregates the whole latest-snapshot table.
type Summary struct {
	TotalBuckets     int64     `json:"total_buckets"`
	TotalOwners      int64     `json:"total_owners"`
	TotalObjects     int64     `json:"total_objects"`
	TotalSizeBytes   int64     `json:"total_size_bytes"`
	OldestCollection time.Time `json:"oldest_collection"`
	NewestCollection time.Time `json:"newest_collection"`
}

// OwnerSummary is a per-owner rollup.
type OwnerSummary struct {
	Owner        string `json:"owner"`
	BucketCount  int64  `json:"bucket_count"`
	TotalObjects int64  `json:"total_objects"`
	TotalSize    int64  `json:"total_size"`
}

// ClassSummary is a per-storage-class rollup across all buckets.
type ClassSummary struct {
	StorageClass string `json:"storage_class"`
	BucketCount  int64  `json:"bucket_count"`
	TotalObjects int64  `json:"total_objects"`
	TotalSize    int64  `json:"total_size"`
}

// BucketBrief is the compact listing entry used by the cache document.
type BucketBrief struct {
	Name        string    `json:"bucket_name"`
	Owner       string    `json:"owner"`
	SizeBytes   int64     `json:"size_bytes"`
	NumObjects  int64     `json:"num_objects"`
	NumShards   int       `json:"num_shards"`
	CollectedAt time.Time `json:"collected_at"`
}

// SyncBehindBucket is a bucket with outstanding multisite replication.
type SyncBehindBucket struct {
	Name              string `json:"bucket_name"`
	Owner             string `json:"owner"`
	SyncStatus        string `json:"sync_status"`
	SyncBehindShards  int    `json:"shards_behind"`
	SyncBehindEntries int    `json:"entries_behind"`
}

// CacheDocument is the atomically published dashboard view. Readers parse it
// as a unit or treat the artifact as absent.
type CacheDocument struct {
	UpdatedAt    time.Time          `json:"updated_at"`
	Summary      Summary            `json:"summary"`
	TopBySize    []BucketBrief      `json:"top_by_size"`
	TopByObjects []BucketBrief      `json:"top_by_objects"`
	Freshness    map[string]int64   `json:"freshness"`
	ByOwner      []OwnerSummary     `json:"by_owner"`
	ByClass      []ClassSummary     `json:"by_storage_class"`
	AllBuckets   []BucketBrief      `json:"all_buckets"`
	SyncSummary  map[string]int64   `json:"sync_summary"`
	SyncBehind   []SyncBehindBucket `json:"sync_behind"`
}
