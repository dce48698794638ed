// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/knowledge-engine/pkg/types"
)

// EvolveKnowledge applies an evolution's field changes to an item,
// increments its version, and appends an immutable record to the item's
// history. The whole evolution runs in one transaction: concurrent
// evolutions of the same item are serialized by the version check, and a
// stale ExpectedVersion fails with ErrConflict.
//
// This is a delta application, deliberately not idempotent: submitting
// the same evolution twice bumps the version twice and re-applies each
// old→new change regardless of the field's current value. Old values that
// no longer match are not rejected; stale submissions are caught by
// ExpectedVersion, not by comparing per-field old values.
func (s *Store) EvolveKnowledge(ctx context.Context, id string, evolution types.Evolution) (types.EvolutionRecord, error) {
	if len(evolution.Changes) == 0 {
		return types.EvolutionRecord{}, fmt.Errorf("%w: evolution has no changes", ErrInvalidKnowledge)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.EvolutionRecord{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	item, err := s.loadItem(ctx, tx, id)
	if err != nil {
		return types.EvolutionRecord{}, err
	}

	if evolution.ExpectedVersion != 0 && evolution.ExpectedVersion != item.Version {
		return types.EvolutionRecord{}, fmt.Errorf("%w: item %s is at version %d, expected %d",
			ErrConflict, id, item.Version, evolution.ExpectedVersion)
	}

	for _, change := range evolution.Changes {
		if err := applyChange(&item, change); err != nil {
			return types.EvolutionRecord{}, err
		}
	}

	// Score fields always land back inside [0,1].
	item.Confidence = clamp01(item.Confidence)
	item.Metadata.QualityScore = clamp01(item.Metadata.QualityScore)
	item.Metadata.ImpactScore = clamp01(item.Metadata.ImpactScore)

	record := types.EvolutionRecord{
		ID:               uuid.NewString(),
		ItemID:           id,
		Type:             evolution.Type,
		Description:      evolution.Description,
		Changes:          evolution.Changes,
		Trigger:          evolution.Trigger,
		ImpactAssessment: evolution.ImpactAssessment,
		PreviousVersion:  item.Version,
		NewVersion:       item.Version + 1,
		CreatedAt:        time.Now().UTC(),
	}

	item.Version = record.NewVersion
	item.UpdatedAt = record.CreatedAt

	if err := s.updateItem(ctx, tx, item); err != nil {
		return types.EvolutionRecord{}, err
	}

	changes, _ := json.Marshal(record.Changes)
	trigger, _ := json.Marshal(record.Trigger)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO evolutions (id, item_id, evolution_type, description, changes,
			trigger_info, impact_assessment, previous_version, new_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.ItemID, record.Type, record.Description,
		string(changes), string(trigger), record.ImpactAssessment,
		record.PreviousVersion, record.NewVersion,
		record.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return types.EvolutionRecord{}, fmt.Errorf("inserting evolution record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return types.EvolutionRecord{}, fmt.Errorf("committing evolution: %w", err)
	}
	return record, nil
}

// applyChange sets one field on the item. Field paths are dotted; the
// bare score names quality_score and impact_score resolve as metadata
// aliases. Unresolvable paths fail with ErrUnknownField.
func applyChange(item *types.KnowledgeItem, change types.FieldChange) error {
	field := strings.ToLower(strings.TrimSpace(change.Field))
	value := change.NewValue

	switch field {
	case "title":
		return setString(&item.Title, field, value)
	case "content":
		return setString(&item.Content, field, value)
	case "confidence":
		return setFloat(&item.Confidence, field, value)
	case "quality_score", "metadata.quality_score":
		return setFloat(&item.Metadata.QualityScore, field, value)
	case "impact_score", "metadata.impact_score":
		return setFloat(&item.Metadata.ImpactScore, field, value)
	case "source_urls":
		return setStrings(&item.SourceURLs, field, value)
	case "metadata.domain":
		return setString(&item.Metadata.Domain, field, value)
	case "metadata.technologies":
		return setStrings(&item.Metadata.Technologies, field, value)
	case "metadata.complexity":
		var c string
		if err := setString(&c, field, value); err != nil {
			return err
		}
		item.Metadata.Complexity = types.Complexity(c)
		return nil
	case "context.domain":
		return setString(&item.Context.Domain, field, value)
	case "context.environment":
		return setString(&item.Context.Environment, field, value)
	case "context.technologies":
		return setStrings(&item.Context.Technologies, field, value)
	case "solution.proposed_fix":
		if item.Solution == nil {
			item.Solution = &types.SolutionPayload{}
		}
		return setString(&item.Solution.ProposedFix, field, value)
	case "solution.code_examples":
		if item.Solution == nil {
			item.Solution = &types.SolutionPayload{}
		}
		return setStrings(&item.Solution.CodeExamples, field, value)
	case "pattern.regularity":
		if item.Pattern == nil {
			item.Pattern = &types.PatternPayload{}
		}
		return setString(&item.Pattern.Regularity, field, value)
	case "pattern.diagnostic_steps":
		if item.Pattern == nil {
			item.Pattern = &types.PatternPayload{}
		}
		return setStrings(&item.Pattern.DiagnosticSteps, field, value)
	case "error.symptom":
		if item.Error == nil {
			item.Error = &types.ErrorPayload{}
		}
		return setString(&item.Error.Symptom, field, value)
	case "error.reproduction":
		if item.Error == nil {
			item.Error = &types.ErrorPayload{}
		}
		return setString(&item.Error.Reproduction, field, value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, change.Field)
	}
}

func setString(dst *string, field string, value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("%w: %s requires a string value, got %T", ErrInvalidKnowledge, field, value)
	}
	*dst = s
	return nil
}

func setFloat(dst *float64, field string, value any) error {
	switch v := value.(type) {
	case float64:
		*dst = v
	case float32:
		*dst = float64(v)
	case int:
		*dst = float64(v)
	case int64:
		*dst = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return fmt.Errorf("%w: %s requires a number, got %q", ErrInvalidKnowledge, field, v.String())
		}
		*dst = f
	default:
		return fmt.Errorf("%w: %s requires a number, got %T", ErrInvalidKnowledge, field, value)
	}
	return nil
}

func setStrings(dst *[]string, field string, value any) error {
	switch v := value.(type) {
	case []string:
		*dst = v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return fmt.Errorf("%w: %s requires string list elements, got %T", ErrInvalidKnowledge, field, e)
			}
			out = append(out, s)
		}
		*dst = out
	default:
		return fmt.Errorf("%w: %s requires a string list, got %T", ErrInvalidKnowledge, field, value)
	}
	return nil
}

// Weights for the automated validation score.
const (
	validationQualityWeight    = 0.4
	validationImpactWeight     = 0.3
	validationConfidenceWeight = 0.3
)

// ValidateKnowledge records a validation pass over the item and returns
// the event. The score reflects the item's current quality, impact, and
// confidence; the item's own confidence is not mutated. Folding the
// observation into confidence is a caller decision made through
// EvolveKnowledge.
func (s *Store) ValidateKnowledge(ctx context.Context, id, kind, validatorID string) (types.ValidationEvent, error) {
	item, err := s.loadItem(ctx, s.db, id)
	if err != nil {
		return types.ValidationEvent{}, err
	}

	event := types.ValidationEvent{
		ID:          uuid.NewString(),
		ItemID:      id,
		Kind:        kind,
		ValidatorID: validatorID,
		Score: clamp01(validationQualityWeight*item.Metadata.QualityScore +
			validationImpactWeight*item.Metadata.ImpactScore +
			validationConfidenceWeight*item.Confidence),
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO validations (id, item_id, kind, validator_id, score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.ItemID, event.Kind, event.ValidatorID, event.Score,
		event.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return types.ValidationEvent{}, fmt.Errorf("inserting validation event: %w", err)
	}
	return event, nil
}
