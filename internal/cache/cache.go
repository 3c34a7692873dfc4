package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ppiankov/rgwstat/internal/models"
)

// StatsCache publishes the dashboard snapshot as a single JSON file.
// Writes go to a temp file in the same directory followed by a rename, so
// readers always see either the previous complete document or the new one,
// never a torn write.
type StatsCache struct {
	path string
}

// New returns a cache bound to path.
func New(path string) *StatsCache {
	return &StatsCache{path: path}
}

// Path returns the artifact location.
func (c *StatsCache) Path() string { return c.path }

// Write atomically replaces the cache artifact with doc.
func (c *StatsCache) Write(doc *models.CacheDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache document: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache temp file: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to publish cache file: %w", err)
	}
	return nil
}

// Read returns the current document, or nil when the artifact is missing or
// unreadable. A corrupt file is treated as absent rather than an error;
// the next publish replaces it.
func (c *StatsCache) Read() (*models.CacheDocument, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var doc models.CacheDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Warn("cache file is corrupt, treating as absent", "path", c.path, "error", err)
		return nil, nil
	}
	return &doc, nil
}

// Age returns how old the published document is at now. ok is false when no
// readable document exists.
func (c *StatsCache) Age(now time.Time) (time.Duration, bool) {
	doc, err := c.Read()
	if err != nil || doc == nil || doc.UpdatedAt.IsZero() {
		return 0, false
	}
	return now.Sub(doc.UpdatedAt), true
}

// Exists reports whether the cache artifact is present on disk.
func (c *StatsCache) Exists() bool {
	_, err := os.Stat(c.path)
	return err == nil
}
