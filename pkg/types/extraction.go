// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// PatternKind distinguishes how a pattern matches content.
type PatternKind string

const (
	// KindStructural patterns apply a CSS-style selector against parsed HTML.
	KindStructural PatternKind = "structural"

	// KindRegex patterns apply a regular expression with named capture
	// groups against plain text.
	KindRegex PatternKind = "regex"
)

// PatternField declares one field a pattern extracts.
type PatternField struct {
	// Name keys the field in ExtractionResult.Data.
	Name string `json:"name" yaml:"name"`

	// Type hints at the value shape, e.g. "text", "url", "number".
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Required fields must bind for the pattern to match.
	Required bool `json:"required" yaml:"required"`

	// Locator finds the field's value relative to the selector match. For
	// structural patterns it is a relative selector, optionally with an
	// "@attr" suffix to read an attribute instead of text; empty means the
	// text of the matched element. For regex patterns it names the capture
	// group, defaulting to the field name.
	Locator string `json:"locator,omitempty" yaml:"locator,omitempty"`
}

// PatternEvolution accumulates usage statistics for a pattern. Counters
// only increase and are updated on every extraction attempt, including
// failed ones, so poorly performing patterns can be deprecated over time.
type PatternEvolution struct {
	SuccessCount int64     `json:"success_count" yaml:"success_count"`
	FailureCount int64     `json:"failure_count" yaml:"failure_count"`
	LastUsed     time.Time `json:"last_used,omitempty" yaml:"last_used,omitempty"`
}

// ExtractionPattern is a registered extraction rule.
type ExtractionPattern struct {
	ID   string      `json:"id" yaml:"id"`
	Name string      `json:"name,omitempty" yaml:"name,omitempty"`
	Kind PatternKind `json:"kind" yaml:"kind"`

	// Selector locates candidate matches: a CSS-style selector for
	// structural patterns, a regular expression for regex patterns.
	Selector string `json:"selector" yaml:"selector"`

	// Fields lists the values to extract, in declaration order.
	Fields []PatternField `json:"fields" yaml:"fields"`

	// Confidence is the prior belief that the pattern is reliable, in [0,1].
	Confidence float64 `json:"confidence" yaml:"confidence"`

	Evolution PatternEvolution `json:"evolution" yaml:"evolution"`
}

// ExtractionOptions tunes one extraction request.
type ExtractionOptions struct {
	// ConfidenceThreshold is the floor for a pattern's prior confidence to
	// be attempted. Zero uses the extractor default.
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty" yaml:"confidence_threshold,omitempty"`

	// LearningEnabled adds learning insights to the result.
	LearningEnabled bool `json:"learning_enabled,omitempty" yaml:"learning_enabled,omitempty"`

	// CoordinationEnabled marks the request as part of a coordinated
	// multi-agent session.
	CoordinationEnabled bool `json:"coordination_enabled,omitempty" yaml:"coordination_enabled,omitempty"`
}

// ExtractionContext is an immutable description of one extraction request.
type ExtractionContext struct {
	SessionID    string            `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	AgentID      string            `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
	TaskID       string            `json:"task_id,omitempty" yaml:"task_id,omitempty"`
	SourceDomain string            `json:"source_domain,omitempty" yaml:"source_domain,omitempty"`
	ContentType  string            `json:"content_type" yaml:"content_type"`
	Intent       string            `json:"intent,omitempty" yaml:"intent,omitempty"`
	Options      ExtractionOptions `json:"options" yaml:"options"`
}

// PatternMatch records that a pattern fired during extraction.
type PatternMatch struct {
	PatternID string `json:"pattern_id" yaml:"pattern_id"`

	// Confidence is the result confidence contributed by this pattern.
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// RequiredBound and OptionalBound count the fields the pattern bound.
	RequiredBound int `json:"required_bound" yaml:"required_bound"`
	OptionalBound int `json:"optional_bound" yaml:"optional_bound"`
}

// ExtractionResult is the outcome of one Extract call. Extraction never
// fails with an error for content problems: empty, malformed, or
// unmatchable content resolves to Success=false with a descriptive Error.
// Results are transient; callers decide whether to store them.
type ExtractionResult struct {
	Success    bool    `json:"success" yaml:"success"`
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Data maps extracted field names to values.
	Data map[string]string `json:"extracted_data,omitempty" yaml:"extracted_data,omitempty"`

	// Matches lists the patterns that fired, winner first.
	Matches []PatternMatch `json:"pattern_matches,omitempty" yaml:"pattern_matches,omitempty"`

	// LearningInsights holds free-form notes for driving pattern evolution.
	LearningInsights []string `json:"learning_insights,omitempty" yaml:"learning_insights,omitempty"`

	// Error is set iff Success is false.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// PatternSummary aggregates registry statistics for observability.
type PatternSummary struct {
	Total        int   `json:"total" yaml:"total"`
	TotalSuccess int64 `json:"total_success" yaml:"total_success"`
	TotalFailure int64 `json:"total_failure" yaml:"total_failure"`
}

// CacheMetrics reports on the extractor's parsed-document cache.
type CacheMetrics struct {
	Size    int     `json:"size" yaml:"size"`
	HitRate float64 `json:"hit_rate" yaml:"hit_rate"`
}

// ExtractorMetrics is the aggregate observability view of an extractor.
type ExtractorMetrics struct {
	Patterns PatternSummary `json:"patterns" yaml:"patterns"`
	Cache    CacheMetrics   `json:"cache" yaml:"cache"`
}
