package config

import (
	"path"
	"strings"
)

// NormalizePatterns trims exclusion patterns and removes empty values.
func (c *Config) NormalizePatterns() {
	if c == nil {
		return
	}
	c.ExcludeBuckets = normalizePatterns(c.ExcludeBuckets)
	c.ExcludeOwners = normalizePatterns(c.ExcludeOwners)
}

// IsBucketExcluded reports whether bucket matches the exclude patterns.
// Used by the scheduler to drop test/scratch buckets from the work set.
func (c *Config) IsBucketExcluded(bucket string) bool {
	if c == nil || len(c.ExcludeBuckets) == 0 {
		return false
	}

	value := normalizePattern(bucket)
	if value == "" {
		return false
	}

	for _, pattern := range c.ExcludeBuckets {
		if patternMatches(pattern, value) {
			return true
		}
	}

	return false
}

// IsOwnerExcluded reports whether owner matches the exclude patterns.
func (c *Config) IsOwnerExcluded(owner string) bool {
	if c == nil || len(c.ExcludeOwners) == 0 {
		return false
	}

	value := normalizePattern(owner)
	if value == "" {
		return false
	}

	for _, pattern := range c.ExcludeOwners {
		if patternMatches(pattern, value) {
			return true
		}
	}

	return false
}

func normalizePatterns(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}

	normalized := make([]string, 0, len(values))
	for _, pattern := range values {
		p := normalizePattern(pattern)
		if p == "" {
			continue
		}
		normalized = append(normalized, p)
	}
	return normalized
}

func normalizePattern(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func patternMatches(pattern, value string) bool {
	normalizedPattern := normalizePattern(pattern)
	normalizedValue := normalizePattern(value)
	if normalizedPattern == "" || normalizedValue == "" {
		return false
	}

	// Invalid glob patterns are treated as exact matches.
	matched, err := path.Match(normalizedPattern, normalizedValue)
	if err == nil {
		return matched
	}
	return normalizedPattern == normalizedValue
}
