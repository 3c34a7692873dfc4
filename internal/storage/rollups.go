package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ppiankov/rgwstat/internal/models"
)

// Read-only rollup queries feeding the cache document and status reporting.
// They run against the pool, never the batch transaction, so a concurrent
// cycle can keep writing while a dashboard refresh reads.

// TopBucketsBySize returns the largest buckets, biggest first.
func (s *Store) TopBucketsBySize(limit int) ([]models.BucketBrief, error) {
	return s.briefQuery(`SELECT bucket_name, owner, size_bytes, num_objects,
			num_shards, collected_at
		FROM bucket_stats
		ORDER BY size_bytes DESC
		LIMIT ?`, limit)
}

// TopBucketsByObjects returns the buckets with the most objects.
func (s *Store) TopBucketsByObjects(limit int) ([]models.BucketBrief, error) {
	return s.briefQuery(`SELECT bucket_name, owner, size_bytes, num_objects,
			num_shards, collected_at
		FROM bucket_stats
		ORDER BY num_objects DESC
		LIMIT ?`, limit)
}

// AllBucketsBrief lists every bucket alphabetically for the cache document's
// full listing.
func (s *Store) AllBucketsBrief() ([]models.BucketBrief, error) {
	return s.briefQuery(`SELECT bucket_name, owner, size_bytes, num_objects,
			num_shards, collected_at
		FROM bucket_stats
		ORDER BY bucket_name ASC
		LIMIT ?`, 0)
}

func (s *Store) briefQuery(query string, limit int) ([]models.BucketBrief, error) {
	rows, err := s.db.Query(query, queryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query bucket listing: %w", err)
	}
	defer rows.Close()

	var briefs []models.BucketBrief
	for rows.Next() {
		var brief models.BucketBrief
		var collected sql.NullInt64
		if err := rows.Scan(&brief.Name, &brief.Owner, &brief.SizeBytes,
			&brief.NumObjects, &brief.NumShards, &collected); err != nil {
			return nil, err
		}
		brief.CollectedAt = millisToTime(collected)
		briefs = append(briefs, brief)
	}
	return briefs, rows.Err()
}

// SummaryByOwner rolls up bucket counts and usage per owner, largest first.
func (s *Store) SummaryByOwner(limit int) ([]models.OwnerSummary, error) {
	rows, err := s.db.Query(`SELECT owner, COUNT(*),
			COALESCE(SUM(num_objects), 0), COALESCE(SUM(size_bytes), 0)
		FROM bucket_stats
		GROUP BY owner
		ORDER BY SUM(size_bytes) DESC
		LIMIT ?`, queryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query owner summary: %w", err)
	}
	defer rows.Close()

	var owners []models.OwnerSummary
	for rows.Next() {
		var o models.OwnerSummary
		if err := rows.Scan(&o.Owner, &o.BucketCount, &o.TotalObjects, &o.TotalSize); err != nil {
			return nil, err
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

// StorageClassSummary rolls up usage per storage class across all buckets.
func (s *Store) StorageClassSummary() ([]models.ClassSummary, error) {
	rows, err := s.db.Query(`SELECT storage_class,
			COUNT(DISTINCT bucket_name),
			COALESCE(SUM(num_objects), 0), COALESCE(SUM(size_bytes), 0)
		FROM storage_class_usage
		GROUP BY storage_class
		ORDER BY SUM(size_bytes) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage class summary: %w", err)
	}
	defer rows.Close()

	var classes []models.ClassSummary
	for rows.Next() {
		var c models.ClassSummary
		if err := rows.Scan(&c.StorageClass, &c.BucketCount, &c.TotalObjects, &c.TotalSize); err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

// FreshnessHistogram buckets snapshots by age at now: fresh_10m, fresh_1h,
// fresh_24h, stale.
func (s *Store) FreshnessHistogram(now time.Time) (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT
			CASE
				WHEN collected_at >= ? THEN 'fresh_10m'
				WHEN collected_at >= ? THEN 'fresh_1h'
				WHEN collected_at >= ? THEN 'fresh_24h'
				ELSE 'stale'
			END AS freshness,
			COUNT(*)
		FROM bucket_stats
		GROUP BY freshness`,
		now.Add(-10*time.Minute).UnixMilli(),
		now.Add(-time.Hour).UnixMilli(),
		now.Add(-24*time.Hour).UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query freshness histogram: %w", err)
	}
	defer rows.Close()

	histogram := make(map[string]int64)
	for rows.Next() {
		var label string
		var count int64
		if err := rows.Scan(&label, &count); err != nil {
			return nil, err
		}
		histogram[label] = count
	}
	return histogram, rows.Err()
}

// SyncSummary counts buckets per sync status, skipping rows with no status.
func (s *Store) SyncSummary() (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT sync_status, COUNT(*)
		FROM bucket_stats
		WHERE sync_status IS NOT NULL AND sync_status != ''
		GROUP BY sync_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync summary: %w", err)
	}
	defer rows.Close()

	summary := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		summary[status] = count
	}
	return summary, rows.Err()
}

// SyncBehindBuckets lists buckets with outstanding multisite replication,
// worst backlog first.
func (s *Store) SyncBehindBuckets(limit int) ([]models.SyncBehindBucket, error) {
	rows, err := s.db.Query(`SELECT bucket_name, owner, sync_status,
			sync_behind_shards, sync_behind_entries
		FROM bucket_stats
		WHERE sync_behind_shards > 0 OR sync_behind_entries > 0
		ORDER BY sync_behind_entries DESC
		LIMIT ?`, queryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query sync backlog: %w", err)
	}
	defer rows.Close()

	var behind []models.SyncBehindBucket
	for rows.Next() {
		var b models.SyncBehindBucket
		if err := rows.Scan(&b.Name, &b.Owner, &b.SyncStatus,
			&b.SyncBehindShards, &b.SyncBehindEntries); err != nil {
			return nil, err
		}
		behind = append(behind, b)
	}
	return behind, rows.Err()
}
