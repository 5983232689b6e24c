// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package registry

import "time"

// Config holds cache-aside tuning for the registry service.
type Config struct {
	ProjectTTL     time.Duration `json:"projectTTL"`
	ProjectListTTL time.Duration `json:"projectListTTL"`
	ReleaseTTL     time.Duration `json:"releaseTTL"`
	FileTTL        time.Duration `json:"fileTTL"`
	ContentTTL     time.Duration `json:"contentTTL"`

	// MaxCachedContent bounds the size of file bodies placed in the cache.
	MaxCachedContent int64 `json:"maxCachedContent"`
}

// DefaultConfig returns the production cache-aside defaults.
func DefaultConfig() Config {
	return Config{
		ProjectTTL:       15 * time.Minute,
		ProjectListTTL:   5 * time.Minute,
		ReleaseTTL:       10 * time.Minute,
		FileTTL:          10 * time.Minute,
		ContentTTL:       10 * time.Minute,
		MaxCachedContent: 5 << 20,
	}
}
