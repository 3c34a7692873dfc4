package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFileYAML is the canonical config filename.
	DefaultConfigFileYAML = ".rgwstat.yaml"
	// DefaultConfigFileYML is a compatible alternate config filename.
	DefaultConfigFileYML = ".rgwstat.yml"
)

// FileConfig represents values loaded from a .rgwstat.yaml file.
type FileConfig struct {
	DBPath           string   `yaml:"db_path"`
	CachePath        string   `yaml:"cache_path"`
	CephConf         string   `yaml:"ceph_conf"`
	StaleThreshold   string   `yaml:"stale_threshold"`
	RefreshInterval  string   `yaml:"refresh_interval"`
	CommandTimeout   string   `yaml:"command_timeout"`
	BulkTimeout      string   `yaml:"bulk_timeout"`
	BatchSize        *int     `yaml:"batch_size"`
	BulkThreshold    *int     `yaml:"bulk_threshold"`
	Workers          *int     `yaml:"workers"`
	MaxWorkers       *int     `yaml:"max_workers"`
	BucketsPerWorker *int     `yaml:"buckets_per_worker"`
	RateLimit        *int     `yaml:"rate_limit"`
	AutoScale        *bool    `yaml:"auto_scale"`
	CollectSync      *bool    `yaml:"collect_sync"`
	ExcludeBuckets   []string `yaml:"exclude_buckets"`
	ExcludeOwners    []string `yaml:"exclude_owners"`
	KubeNamespace    string   `yaml:"kube_namespace"`
	KubeSelector     string   `yaml:"kube_selector"`
}

// Normalize trims and removes empty items from list fields.
func (fc *FileConfig) Normalize() {
	if fc == nil {
		return
	}
	fc.ExcludeBuckets = normalizeList(fc.ExcludeBuckets)
	fc.ExcludeOwners = normalizeList(fc.ExcludeOwners)
	fc.DBPath = strings.TrimSpace(fc.DBPath)
	fc.CachePath = strings.TrimSpace(fc.CachePath)
	fc.CephConf = strings.TrimSpace(fc.CephConf)
	fc.StaleThreshold = strings.TrimSpace(fc.StaleThreshold)
	fc.RefreshInterval = strings.TrimSpace(fc.RefreshInterval)
	fc.CommandTimeout = strings.TrimSpace(fc.CommandTimeout)
	fc.BulkTimeout = strings.TrimSpace(fc.BulkTimeout)
	fc.KubeNamespace = strings.TrimSpace(fc.KubeNamespace)
	fc.KubeSelector = strings.TrimSpace(fc.KubeSelector)
}

// Apply overlays file values onto cfg. Durations are parsed with ParseDuration
// so day suffixes work in the file too.
func (fc *FileConfig) Apply(cfg *Config) error {
	if fc == nil || cfg == nil {
		return nil
	}

	if fc.DBPath != "" {
		cfg.DBPath = fc.DBPath
	}
	if fc.CachePath != "" {
		cfg.CachePath = fc.CachePath
	}
	if fc.CephConf != "" {
		cfg.CephConf = fc.CephConf
	}
	if fc.KubeNamespace != "" {
		cfg.KubeNamespace = fc.KubeNamespace
	}
	if fc.KubeSelector != "" {
		cfg.KubeSelector = fc.KubeSelector
	}

	for _, d := range []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{"stale_threshold", fc.StaleThreshold, &cfg.StaleThreshold},
		{"refresh_interval", fc.RefreshInterval, &cfg.RefreshInterval},
		{"command_timeout", fc.CommandTimeout, &cfg.CommandTimeout},
		{"bulk_timeout", fc.BulkTimeout, &cfg.BulkTimeout},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s in config file: %w", d.field, err)
		}
		*d.dst = parsed
	}

	if fc.BatchSize != nil {
		cfg.BatchSize = *fc.BatchSize
	}
	if fc.BulkThreshold != nil {
		cfg.BulkThreshold = *fc.BulkThreshold
	}
	if fc.Workers != nil {
		cfg.ParallelWorkers = *fc.Workers
	}
	if fc.MaxWorkers != nil {
		cfg.MaxWorkers = *fc.MaxWorkers
	}
	if fc.BucketsPerWorker != nil {
		cfg.BucketsPerWorker = *fc.BucketsPerWorker
	}
	if fc.RateLimit != nil {
		cfg.RateLimit = *fc.RateLimit
	}
	if fc.AutoScale != nil {
		cfg.AutoScaleWorkers = *fc.AutoScale
	}
	if fc.CollectSync != nil {
		cfg.CollectSync = *fc.CollectSync
	}
	if len(fc.ExcludeBuckets) > 0 {
		cfg.ExcludeBuckets = fc.ExcludeBuckets
	}
	if len(fc.ExcludeOwners) > 0 {
		cfg.ExcludeOwners = fc.ExcludeOwners
	}

	return nil
}

// AutoLoadFile discovers and loads the first available config file.
func AutoLoadFile() (*FileConfig, string, error) {
	candidates := []string{
		DefaultConfigFileYAML,
		DefaultConfigFileYML,
	}

	if homeDir, err := os.UserHomeDir(); err == nil && strings.TrimSpace(homeDir) != "" {
		candidates = append(candidates,
			filepath.Join(homeDir, DefaultConfigFileYAML),
			filepath.Join(homeDir, DefaultConfigFileYML),
		)
	}

	return LoadFirstExistingFile(candidates)
}

// LoadFirstExistingFile loads the first config file that exists in paths.
func LoadFirstExistingFile(paths []string) (*FileConfig, string, error) {
	for _, path := range paths {
		candidate := strings.TrimSpace(path)
		if candidate == "" {
			continue
		}

		info, err := os.Stat(candidate)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, "", fmt.Errorf("failed to access config file %q: %w", candidate, err)
		}
		if info.IsDir() {
			return nil, "", fmt.Errorf("config path %q is a directory, expected a file", candidate)
		}

		cfg, err := LoadFile(candidate)
		if err != nil {
			return nil, "", err
		}
		return cfg, candidate, nil
	}

	return nil, "", nil
}

// LoadFile loads config values from a specific YAML file path.
func LoadFile(path string) (*FileConfig, error) {
	filename := strings.TrimSpace(path)
	if filename == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", filename, err)
	}

	cfg := &FileConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", filename, err)
	}

	cfg.Normalize()
	return cfg, nil
}

func normalizeList(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}

	normalized := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
