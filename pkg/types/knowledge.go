// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ItemType categorizes a knowledge item.
type ItemType string

const (
	ItemSolution ItemType = "solution"
	ItemPattern  ItemType = "pattern"
	ItemError    ItemType = "error"
)

// ValidItemTypes is the closed set of accepted ItemType values.
var ValidItemTypes = map[ItemType]bool{
	ItemSolution: true,
	ItemPattern:  true,
	ItemError:    true,
}

// Complexity rates how involved a knowledge item is to apply.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// SolutionPayload carries the type-specific fields of a solution item.
type SolutionPayload struct {
	// ProposedFix describes the fix in prose.
	ProposedFix string `json:"proposed_fix" yaml:"proposed_fix"`

	// CodeExamples holds code snippets demonstrating the fix.
	CodeExamples []string `json:"code_examples,omitempty" yaml:"code_examples,omitempty"`
}

// PatternPayload carries the type-specific fields of a pattern item.
type PatternPayload struct {
	// Regularity describes the recognized regularity.
	Regularity string `json:"regularity" yaml:"regularity"`

	// DiagnosticSteps lists steps to confirm the pattern applies.
	DiagnosticSteps []string `json:"diagnostic_steps,omitempty" yaml:"diagnostic_steps,omitempty"`
}

// ErrorPayload carries the type-specific fields of an error item.
type ErrorPayload struct {
	// Symptom describes how the error manifests.
	Symptom string `json:"symptom" yaml:"symptom"`

	// Reproduction describes how to reproduce the error.
	Reproduction string `json:"reproduction,omitempty" yaml:"reproduction,omitempty"`
}

// ItemContext tags an item with the setting it was observed in.
type ItemContext struct {
	Domain       string   `json:"domain,omitempty" yaml:"domain,omitempty"`
	Technologies []string `json:"technologies,omitempty" yaml:"technologies,omitempty"`
	Environment  string   `json:"environment,omitempty" yaml:"environment,omitempty"`
}

// ItemMetadata holds classification and scoring fields. QualityScore and
// ImpactScore stay within [0,1] after every mutation.
type ItemMetadata struct {
	Domain       string     `json:"domain,omitempty" yaml:"domain,omitempty"`
	Technologies []string   `json:"technologies,omitempty" yaml:"technologies,omitempty"`
	Complexity   Complexity `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	QualityScore float64    `json:"quality_score" yaml:"quality_score"`
	ImpactScore  float64    `json:"impact_score" yaml:"impact_score"`
}

// KnowledgeItem is a versioned, confidence-scored unit of extracted
// knowledge. Exactly one of the payload pointers is set, matching Type.
type KnowledgeItem struct {
	// ID is assigned at creation and never changes.
	ID string `json:"id" yaml:"id"`

	// Type is solution, pattern, or error.
	Type ItemType `json:"type" yaml:"type"`

	Title   string `json:"title" yaml:"title"`
	Content string `json:"content" yaml:"content"`

	// SourceURLs records where the content came from.
	SourceURLs []string `json:"source_urls,omitempty" yaml:"source_urls,omitempty"`

	Context  ItemContext  `json:"context" yaml:"context"`
	Metadata ItemMetadata `json:"metadata" yaml:"metadata"`

	Solution *SolutionPayload `json:"solution,omitempty" yaml:"solution,omitempty"`
	Pattern  *PatternPayload  `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Error    *ErrorPayload    `json:"error,omitempty" yaml:"error,omitempty"`

	// Confidence is in [0,1]. It starts from the creation-time estimate and
	// moves only through evolution.
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Version starts at 1 and increments on every evolution.
	Version int `json:"version" yaml:"version"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`

	// History holds the item's evolution records, oldest first.
	History []EvolutionRecord `json:"history,omitempty" yaml:"history,omitempty"`

	// Validations holds validation events recorded against the item.
	Validations []ValidationEvent `json:"validations,omitempty" yaml:"validations,omitempty"`
}

// KnowledgeDraft is the caller-supplied input to StoreKnowledge. Type and
// Content are required; everything else is optional.
type KnowledgeDraft struct {
	Type       ItemType         `json:"type" yaml:"type"`
	Title      string           `json:"title" yaml:"title"`
	Content    string           `json:"content" yaml:"content"`
	SourceURLs []string         `json:"source_urls,omitempty" yaml:"source_urls,omitempty"`
	Context    ItemContext      `json:"context" yaml:"context"`
	Metadata   ItemMetadata     `json:"metadata" yaml:"metadata"`
	Solution   *SolutionPayload `json:"solution,omitempty" yaml:"solution,omitempty"`
	Pattern    *PatternPayload  `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Error      *ErrorPayload    `json:"error,omitempty" yaml:"error,omitempty"`
}

// FieldChange is one field-level delta within an evolution. OldValue and
// NewValue are recorded so every prior state can be reconstructed from the
// evolution history.
type FieldChange struct {
	// Field is the dotted path of the field to change, e.g. "confidence"
	// or "metadata.quality_score".
	Field string `json:"field" yaml:"field"`

	OldValue any `json:"old_value" yaml:"old_value"`
	NewValue any `json:"new_value" yaml:"new_value"`

	// ChangeType labels the delta, e.g. "update", "refine", "correction".
	ChangeType string `json:"change_type,omitempty" yaml:"change_type,omitempty"`

	// Confidence expresses how certain the submitter is about this change.
	Confidence float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`

	Reasoning string `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
}

// EvolutionTrigger records what prompted an evolution.
type EvolutionTrigger struct {
	Source    string `json:"source,omitempty" yaml:"source,omitempty"`
	AgentID   string `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
	SessionID string `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Detail    string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Evolution is the caller-supplied input to EvolveKnowledge. Applying the
// same evolution twice is not idempotent: each call re-applies the deltas
// and bumps the version.
type Evolution struct {
	// Type labels the evolution, e.g. "refinement", "correction", "merge".
	Type string `json:"evolution_type" yaml:"evolution_type"`

	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Changes     []FieldChange `json:"changes" yaml:"changes"`

	Trigger          EvolutionTrigger `json:"trigger" yaml:"trigger"`
	ImpactAssessment string           `json:"impact_assessment,omitempty" yaml:"impact_assessment,omitempty"`

	// ExpectedVersion enables the optimistic concurrency check. When
	// non-zero and the item's current version differs, the evolution is
	// rejected and the caller should re-read and retry.
	ExpectedVersion int `json:"expected_version,omitempty" yaml:"expected_version,omitempty"`
}

// EvolutionRecord is the immutable history entry appended by a successful
// evolution.
type EvolutionRecord struct {
	ID     string `json:"id" yaml:"id"`
	ItemID string `json:"item_id" yaml:"item_id"`

	Type             string           `json:"evolution_type" yaml:"evolution_type"`
	Description      string           `json:"description,omitempty" yaml:"description,omitempty"`
	Changes          []FieldChange    `json:"changes" yaml:"changes"`
	Trigger          EvolutionTrigger `json:"trigger" yaml:"trigger"`
	ImpactAssessment string           `json:"impact_assessment,omitempty" yaml:"impact_assessment,omitempty"`

	PreviousVersion int       `json:"previous_version" yaml:"previous_version"`
	NewVersion      int       `json:"new_version" yaml:"new_version"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
}

// ValidationEvent records one validation pass over an item. Validation is
// an observation: it never mutates confidence directly. Folding a
// validation into confidence happens through a later evolution.
type ValidationEvent struct {
	ID          string    `json:"id" yaml:"id"`
	ItemID      string    `json:"item_id" yaml:"item_id"`
	Kind        string    `json:"kind" yaml:"kind"`
	ValidatorID string    `json:"validator_id" yaml:"validator_id"`
	Score       float64   `json:"score" yaml:"score"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// KnowledgeQuery holds the filters for SearchKnowledge.
type KnowledgeQuery struct {
	// ContentSearch is a free-text query matched against title and content,
	// case-insensitively.
	ContentSearch string `json:"content_search,omitempty" yaml:"content_search,omitempty"`

	// Types restricts results to items whose type is in the set.
	Types []ItemType `json:"types,omitempty" yaml:"types,omitempty"`

	// Technologies matches items whose technology tags intersect the set.
	Technologies []string `json:"technologies,omitempty" yaml:"technologies,omitempty"`

	// MinConfidence is an inclusive lower bound.
	MinConfidence float64 `json:"min_confidence,omitempty" yaml:"min_confidence,omitempty"`

	// Limit caps the number of returned items. Zero uses the store default.
	Limit int `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// IsEmpty reports whether the query has no search terms or filters.
func (q KnowledgeQuery) IsEmpty() bool {
	return q.ContentSearch == "" && len(q.Types) == 0 &&
		len(q.Technologies) == 0 && q.MinConfidence == 0
}

// SearchOutput holds search results and the total match count before the
// limit was applied.
type SearchOutput struct {
	Items []KnowledgeItem `json:"items" yaml:"items"`
	Total int             `json:"total" yaml:"total"`
}

// RecommendationCriteria selects and ranks items for a caller's situation.
type RecommendationCriteria struct {
	Domain      string   `json:"domain,omitempty" yaml:"domain,omitempty"`
	Technology  string   `json:"technology,omitempty" yaml:"technology,omitempty"`
	ProblemType ItemType `json:"problem_type,omitempty" yaml:"problem_type,omitempty"`
	AgentID     string   `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
	SessionID   string   `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Limit       int      `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// KnowledgeMetrics is an aggregate view over the store, recomputed from
// live state on each call.
type KnowledgeMetrics struct {
	TotalItems        int              `json:"total_items" yaml:"total_items"`
	AverageConfidence float64          `json:"average_confidence" yaml:"average_confidence"`
	AverageQuality    float64          `json:"average_quality" yaml:"average_quality"`
	AverageImpact     float64          `json:"average_impact" yaml:"average_impact"`
	ItemsByType       map[ItemType]int `json:"items_by_type" yaml:"items_by_type"`
	TotalEvolutions   int              `json:"total_evolutions" yaml:"total_evolutions"`
	TotalValidations  int              `json:"total_validations" yaml:"total_validations"`
}
