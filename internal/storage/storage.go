package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/rgwstat/internal/models"
)

// Store is the durable side of the collector: a keyed latest-snapshot table,
// an append-only history log, and a per-storage-class breakdown table, all in
// one SQLite database.
//
// The write path is single-writer by design: Upsert buffers rows into one
// open transaction and Commit makes the whole batch visible together. Readers
// (status, cache builder, history queries) go through the connection pool and
// may observe state slightly behind the in-flight batch; WAL mode keeps them
// from blocking the writer.
type Store struct {
	db   *sql.DB
	path string

	mu sync.Mutex // guards tx
	tx *sql.Tx
}

// Open opens (creating if necessary) the database at path and initializes the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", path, err)
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

var schemaStatements = []string{
	// Latest-snapshot table: one row per bucket, replaced wholesale.
	`CREATE TABLE IF NOT EXISTS bucket_stats (
		bucket_name TEXT PRIMARY KEY,
		bucket_id TEXT,
		tenant TEXT,
		owner TEXT,
		zonegroup TEXT,
		placement_rule TEXT,
		num_shards INTEGER,
		size_bytes INTEGER,
		size_actual_bytes INTEGER,
		size_utilized_bytes INTEGER,
		num_objects INTEGER,
		sync_status TEXT,
		sync_behind_shards INTEGER,
		sync_behind_entries INTEGER,
		sync_source_zone TEXT,
		collected_at INTEGER,
		fetch_duration_ms INTEGER
	)`,
	// Append-only history for trending; never updated or deleted here.
	`CREATE TABLE IF NOT EXISTS bucket_stats_history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		bucket_name TEXT NOT NULL,
		size_bytes INTEGER,
		num_objects INTEGER,
		sync_behind_shards INTEGER,
		sync_behind_entries INTEGER,
		collected_at INTEGER
	)`,
	// Per-storage-class breakdown mirroring the latest snapshot.
	`CREATE TABLE IF NOT EXISTS storage_class_usage (
		bucket_name TEXT NOT NULL,
		storage_class TEXT NOT NULL,
		size_bytes INTEGER,
		size_actual_bytes INTEGER,
		size_utilized_bytes INTEGER,
		num_objects INTEGER,
		collected_at INTEGER,
		PRIMARY KEY (bucket_name, storage_class)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stats_owner ON bucket_stats(owner)`,
	`CREATE INDEX IF NOT EXISTS idx_stats_collected ON bucket_stats(collected_at)`,
	`CREATE INDEX IF NOT EXISTS idx_history_bucket ON bucket_stats_history(bucket_name)`,
	`CREATE INDEX IF NOT EXISTS idx_history_time ON bucket_stats_history(collected_at)`,
}

// Columns added after the original schema shipped. Applied additively so
// existing databases keep their data; rows written before a column existed
// read back as the declared default.
var additiveColumns = []struct {
	table string
	name  string
	decl  string
}{
	{"bucket_stats", "index_type", "TEXT DEFAULT ''"},
	{"bucket_stats", "versioning", "TEXT DEFAULT ''"},
	{"bucket_stats", "creation_time", "TEXT DEFAULT ''"},
}

func (s *Store) initSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	for _, col := range additiveColumns {
		exists, err := s.columnExists(col.table, col.name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", col.table, col.name, col.decl)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", col.table, col.name, err)
		}
	}

	return nil
}

func (s *Store) columnExists(table, column string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// begin lazily opens the batch transaction. Callers hold s.mu.
func (s *Store) begin() (*sql.Tx, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	return tx, nil
}

// Upsert replaces the latest-snapshot row for stats.Name, rewrites its
// storage-class breakdown, and, when recordHistory is set, appends a history
// row. The write stays buffered until Commit.
func (s *Store) Upsert(stats *models.BucketStats, recordHistory bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin()
	if err != nil {
		return err
	}

	_, err = tx.Exec(`INSERT OR REPLACE INTO bucket_stats (
			bucket_name, bucket_id, tenant, owner, zonegroup, placement_rule,
			num_shards, size_bytes, size_actual_bytes, size_utilized_bytes,
			num_objects, sync_status, sync_behind_shards, sync_behind_entries,
			sync_source_zone, collected_at, fetch_duration_ms,
			index_type, versioning, creation_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stats.Name, stats.ID, stats.Tenant, stats.Owner, stats.Zonegroup,
		stats.PlacementRule, stats.NumShards, stats.SizeBytes,
		stats.SizeActualBytes, stats.SizeUtilizedBytes, stats.NumObjects,
		stats.SyncStatus, stats.SyncBehindShards, stats.SyncBehindEntries,
		stats.SyncSourceZone, timeToMillis(stats.CollectedAt),
		stats.FetchDuration.Milliseconds(),
		stats.IndexType, stats.Versioning, stats.CreationTime,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert bucket %q: %w", stats.Name, err)
	}

	if recordHistory {
		_, err = tx.Exec(`INSERT INTO bucket_stats_history (
				bucket_name, size_bytes, num_objects,
				sync_behind_shards, sync_behind_entries, collected_at
			) VALUES (?, ?, ?, ?, ?, ?)`,
			stats.Name, stats.SizeBytes, stats.NumObjects,
			stats.SyncBehindShards, stats.SyncBehindEntries,
			timeToMillis(stats.CollectedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to append history for bucket %q: %w", stats.Name, err)
		}
	}

	// Rewrite the breakdown so classes that disappeared don't linger.
	if _, err := tx.Exec(`DELETE FROM storage_class_usage WHERE bucket_name = ?`, stats.Name); err != nil {
		return fmt.Errorf("failed to clear class usage for bucket %q: %w", stats.Name, err)
	}
	for class, usage := range stats.StorageClasses {
		_, err := tx.Exec(`INSERT INTO storage_class_usage (
				bucket_name, storage_class, size_bytes, size_actual_bytes,
				size_utilized_bytes, num_objects, collected_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			stats.Name, class, usage.SizeBytes, usage.SizeActualBytes,
			usage.SizeUtilizedBytes, usage.NumObjects,
			timeToMillis(stats.CollectedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert class usage for bucket %q: %w", stats.Name, err)
		}
	}

	return nil
}

// Commit flushes the buffered batch. All upserts since the previous Commit
// become visible together; there is nothing to flush after a clean cycle with
// no writes.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Close rolls back any uncommitted batch and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	s.mu.Unlock()
	return s.db.Close()
}

// StaleBuckets returns names whose snapshot is at least threshold old at now,
// oldest first. A missing collected_at counts as maximally stale.
func (s *Store) StaleBuckets(now time.Time, threshold time.Duration, limit int) ([]string, error) {
	cutoff := timeToMillis(now.Add(-threshold))

	rows, err := s.db.Query(`SELECT bucket_name FROM bucket_stats
		WHERE collected_at IS NULL OR collected_at <= ?
		ORDER BY collected_at ASC
		LIMIT ?`, cutoff, queryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query stale buckets: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// StaleCount counts buckets at least threshold old at now.
func (s *Store) StaleCount(now time.Time, threshold time.Duration) (int64, error) {
	cutoff := timeToMillis(now.Add(-threshold))

	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM bucket_stats
		WHERE collected_at IS NULL OR collected_at <= ?`, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count stale buckets: %w", err)
	}
	return count, nil
}

// UncollectedBuckets returns the members of allBuckets with no snapshot row,
// preserving input order.
func (s *Store) UncollectedBuckets(allBuckets []string, limit int) ([]string, error) {
	if len(allBuckets) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(`SELECT bucket_name FROM bucket_stats`)
	if err != nil {
		return nil, fmt.Errorf("failed to query known buckets: %w", err)
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		known[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	max := queryLimit(limit)
	var uncollected []string
	for _, name := range allBuckets {
		if _, ok := known[name]; ok {
			continue
		}
		uncollected = append(uncollected, name)
		if int64(len(uncollected)) >= max {
			break
		}
	}
	return uncollected, nil
}

// KnownCollectionTimes returns collected_at for every stored bucket. The
// zero time stands in for a NULL timestamp.
func (s *Store) KnownCollectionTimes() (map[string]time.Time, error) {
	rows, err := s.db.Query(`SELECT bucket_name, collected_at FROM bucket_stats`)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection times: %w", err)
	}
	defer rows.Close()

	times := make(map[string]time.Time)
	for rows.Next() {
		var name string
		var millis sql.NullInt64
		if err := rows.Scan(&name, &millis); err != nil {
			return nil, err
		}
		times[name] = millisToTime(millis)
	}
	return times, rows.Err()
}

// Summary aggregates the whole latest-snapshot table.
func (s *Store) Summary() (*models.Summary, error) {
	var summary models.Summary
	var oldest, newest sql.NullInt64

	err := s.db.QueryRow(`SELECT
			COUNT(*),
			COUNT(DISTINCT owner),
			COALESCE(SUM(num_objects), 0),
			COALESCE(SUM(size_bytes), 0),
			MIN(collected_at),
			MAX(collected_at)
		FROM bucket_stats`).Scan(
		&summary.TotalBuckets, &summary.TotalOwners,
		&summary.TotalObjects, &summary.TotalSizeBytes,
		&oldest, &newest,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}

	summary.OldestCollection = millisToTime(oldest)
	summary.NewestCollection = millisToTime(newest)
	return &summary, nil
}

// BucketStats reads back one bucket's full snapshot, including its
// storage-class breakdown, or nil if unknown.
func (s *Store) BucketStats(name string) (*models.BucketStats, error) {
	var stats models.BucketStats
	var collected sql.NullInt64
	var fetchMillis sql.NullInt64

	err := s.db.QueryRow(`SELECT
			bucket_name, bucket_id, tenant, owner, zonegroup, placement_rule,
			num_shards, size_bytes, size_actual_bytes, size_utilized_bytes,
			num_objects, sync_status, sync_behind_shards, sync_behind_entries,
			sync_source_zone, collected_at, fetch_duration_ms,
			index_type, versioning, creation_time
		FROM bucket_stats WHERE bucket_name = ?`, name).Scan(
		&stats.Name, &stats.ID, &stats.Tenant, &stats.Owner, &stats.Zonegroup,
		&stats.PlacementRule, &stats.NumShards, &stats.SizeBytes,
		&stats.SizeActualBytes, &stats.SizeUtilizedBytes, &stats.NumObjects,
		&stats.SyncStatus, &stats.SyncBehindShards, &stats.SyncBehindEntries,
		&stats.SyncSourceZone, &collected, &fetchMillis,
		&stats.IndexType, &stats.Versioning, &stats.CreationTime,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query bucket %q: %w", name, err)
	}

	stats.CollectedAt = millisToTime(collected)
	if fetchMillis.Valid {
		stats.FetchDuration = time.Duration(fetchMillis.Int64) * time.Millisecond
	}

	rows, err := s.db.Query(`SELECT storage_class, size_bytes, size_actual_bytes,
			size_utilized_bytes, num_objects
		FROM storage_class_usage WHERE bucket_name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query class usage for %q: %w", name, err)
	}
	defer rows.Close()

	classes := make(map[string]models.ClassUsage)
	for rows.Next() {
		var class string
		var usage models.ClassUsage
		if err := rows.Scan(&class, &usage.SizeBytes, &usage.SizeActualBytes,
			&usage.SizeUtilizedBytes, &usage.NumObjects); err != nil {
			return nil, err
		}
		classes[class] = usage
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(classes) > 0 {
		stats.StorageClasses = classes
	}

	return &stats, nil
}

// History returns the most recent history entries for a bucket, newest first.
func (s *Store) History(name string, limit int) ([]models.HistoryEntry, error) {
	rows, err := s.db.Query(`SELECT seq, bucket_name, size_bytes, num_objects,
			sync_behind_shards, sync_behind_entries, collected_at
		FROM bucket_stats_history
		WHERE bucket_name = ?
		ORDER BY seq DESC
		LIMIT ?`, name, queryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %q: %w", name, err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var entry models.HistoryEntry
		var collected sql.NullInt64
		if err := rows.Scan(&entry.Seq, &entry.Bucket, &entry.SizeBytes,
			&entry.NumObjects, &entry.SyncBehindShards,
			&entry.SyncBehindEntries, &collected); err != nil {
			return nil, err
		}
		entry.CollectedAt = millisToTime(collected)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func timeToMillis(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func millisToTime(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64).UTC()
}

func queryLimit(limit int) int64 {
	if limit <= 0 {
		return int64(^uint64(0) >> 1) // no cap
	}
	return int64(limit)
}
