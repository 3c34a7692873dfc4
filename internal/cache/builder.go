package cache

import (
	"fmt"
	"time"

	"github.com/ppiankov/rgwstat/internal/models"
)

// topN bounds the top-by-size and top-by-objects listings.
const topN = 20

// DocumentStore is the read side the builder needs from storage.
type DocumentStore interface {
	Summary() (*models.Summary, error)
	TopBucketsBySize(limit int) ([]models.BucketBrief, error)
	TopBucketsByObjects(limit int) ([]models.BucketBrief, error)
	AllBucketsBrief() ([]models.BucketBrief, error)
	SummaryByOwner(limit int) ([]models.OwnerSummary, error)
	StorageClassSummary() ([]models.ClassSummary, error)
	FreshnessHistogram(now time.Time) (map[string]int64, error)
	SyncSummary() (map[string]int64, error)
	SyncBehindBuckets(limit int) ([]models.SyncBehindBucket, error)
}

// BuildDocument assembles the full cache document from storage rollups.
func BuildDocument(store DocumentStore, now time.Time) (*models.CacheDocument, error) {
	summary, err := store.Summary()
	if err != nil {
		return nil, fmt.Errorf("failed to build summary: %w", err)
	}

	topBySize, err := store.TopBucketsBySize(topN)
	if err != nil {
		return nil, fmt.Errorf("failed to build top-by-size listing: %w", err)
	}
	topByObjects, err := store.TopBucketsByObjects(topN)
	if err != nil {
		return nil, fmt.Errorf("failed to build top-by-objects listing: %w", err)
	}
	allBuckets, err := store.AllBucketsBrief()
	if err != nil {
		return nil, fmt.Errorf("failed to build bucket listing: %w", err)
	}
	byOwner, err := store.SummaryByOwner(0)
	if err != nil {
		return nil, fmt.Errorf("failed to build owner rollup: %w", err)
	}
	byClass, err := store.StorageClassSummary()
	if err != nil {
		return nil, fmt.Errorf("failed to build storage class rollup: %w", err)
	}
	freshness, err := store.FreshnessHistogram(now)
	if err != nil {
		return nil, fmt.Errorf("failed to build freshness histogram: %w", err)
	}
	syncSummary, err := store.SyncSummary()
	if err != nil {
		return nil, fmt.Errorf("failed to build sync rollup: %w", err)
	}
	syncBehind, err := store.SyncBehindBuckets(topN)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync backlog listing: %w", err)
	}

	return &models.CacheDocument{
		UpdatedAt:    now,
		Summary:      *summary,
		TopBySize:    topBySize,
		TopByObjects: topByObjects,
		Freshness:    freshness,
		ByOwner:      byOwner,
		ByClass:      byClass,
		AllBuckets:   allBuckets,
		SyncSummary:  syncSummary,
		SyncBehind:   syncBehind,
	}, nil
}

// Publisher republishes the cache after each collection cycle.
type Publisher struct {
	store DocumentStore
	cache *StatsCache
}

// NewPublisher wires a builder to its cache file.
func NewPublisher(store DocumentStore, cache *StatsCache) *Publisher {
	return &Publisher{store: store, cache: cache}
}

// Publish rebuilds the document and atomically replaces the artifact.
func (p *Publisher) Publish(now time.Time) error {
	doc, err := BuildDocument(p.store, now)
	if err != nil {
		return err
	}
	return p.cache.Write(doc)
}
