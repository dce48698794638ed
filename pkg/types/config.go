// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network
// requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "knowledge-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// StoreConfig holds settings for the knowledge store.
type StoreConfig struct {
	// DataDir is the base directory for store files. The SQLite database
	// lives at DataDir/index/knowledge.db.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// MaxResults caps search result counts when a query supplies no limit
	// (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// ExtractorConfig holds settings for the intelligent extractor.
type ExtractorConfig struct {
	// MinPatternConfidence is the default floor for a pattern's prior
	// confidence to be attempted (default 0.3).
	MinPatternConfidence float64 `json:"min_pattern_confidence" yaml:"min_pattern_confidence"`

	// CacheSize bounds the parsed-document cache (default 64 entries).
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	// PatternLibrary is the path of the YAML pattern library loaded at
	// startup. Empty means no library is loaded.
	PatternLibrary string `json:"pattern_library,omitempty" yaml:"pattern_library,omitempty"`
}

// ResearchConfig holds settings for the online research agent.
type ResearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// SearxngURL is the base URL of the SearXNG instance used for search.
	SearxngURL string `json:"searxng_url,omitempty" yaml:"searxng_url,omitempty"`

	// MaxSources caps how many search results are fetched and extracted
	// (default 5).
	MaxSources int `json:"max_sources" yaml:"max_sources"`

	// MinSourceConfidence drops search results below the floor.
	MinSourceConfidence float64 `json:"min_source_confidence" yaml:"min_source_confidence"`

	// StoreResults persists successful extractions as knowledge items.
	StoreResults bool `json:"store_results" yaml:"store_results"`
}
