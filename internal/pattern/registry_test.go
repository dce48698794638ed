// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pattern

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/knowledge-engine/pkg/types"
)

func validPattern(id string, confidence float64) types.ExtractionPattern {
	return types.ExtractionPattern{
		ID:         id,
		Kind:       types.KindStructural,
		Selector:   ".item",
		Confidence: confidence,
		Fields: []types.PatternField{
			{Name: "title", Required: true},
		},
	}
}

func TestAddRejectsInvalidPatterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern types.ExtractionPattern
	}{
		{
			name:    "missing id",
			pattern: types.ExtractionPattern{Selector: ".x", Fields: []types.PatternField{{Name: "f"}}},
		},
		{
			name:    "empty selector",
			pattern: types.ExtractionPattern{ID: "p", Fields: []types.PatternField{{Name: "f"}}},
		},
		{
			name:    "no fields",
			pattern: types.ExtractionPattern{ID: "p", Selector: ".x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Add(tt.pattern)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPattern)
			assert.Empty(t, r.Patterns())
		})
	}
}

func TestPatternsPreserveInsertionOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(validPattern("first", 0.5)))
	require.NoError(t, r.Add(validPattern("second", 0.9)))
	require.NoError(t, r.Add(validPattern("third", 0.7)))

	got := r.Patterns()
	require.Len(t, got, 3)
	assert.Equal(t, "first", got[0].ID)
	assert.Equal(t, "second", got[1].ID)
	assert.Equal(t, "third", got[2].ID)
}

func TestAddReplaceKeepsPositionAndCounters(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(validPattern("a", 0.5)))
	require.NoError(t, r.Add(validPattern("b", 0.5)))

	r.RecordOutcome("a", true)
	r.RecordOutcome("a", false)

	replacement := validPattern("a", 0.8)
	replacement.Name = "updated"
	require.NoError(t, r.Add(replacement))

	got := r.Patterns()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "updated", got[0].Name)
	assert.Equal(t, 0.8, got[0].Confidence)
	assert.Equal(t, int64(1), got[0].Evolution.SuccessCount)
	assert.Equal(t, int64(1), got[0].Evolution.FailureCount)
}

func TestRecordOutcomeUnknownIDIsNoOp(t *testing.T) {
	r := NewRegistry()
	r.RecordOutcome("ghost", true)
	assert.Equal(t, types.PatternSummary{}, r.Summary())
}

func TestRecordOutcomeStampsLastUsed(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(validPattern("a", 0.5)))

	p, ok := r.Get("a")
	require.True(t, ok)
	assert.True(t, p.Evolution.LastUsed.IsZero())

	r.RecordOutcome("a", true)

	p, ok = r.Get("a")
	require.True(t, ok)
	assert.False(t, p.Evolution.LastUsed.IsZero())
	assert.Equal(t, int64(1), p.Evolution.SuccessCount)
}

func TestRecordOutcomeConcurrent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(validPattern("a", 0.5)))

	const (
		workers = 8
		each    = 250
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(success bool) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				r.RecordOutcome("a", success)
			}
		}(w%2 == 0)
	}
	wg.Wait()

	p, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(workers/2*each), p.Evolution.SuccessCount)
	assert.Equal(t, int64(workers/2*each), p.Evolution.FailureCount)

	s := r.Summary()
	assert.Equal(t, 1, s.Total)
	assert.Equal(t, int64(workers*each), s.TotalSuccess+s.TotalFailure)
}

func TestLoadLibraryMissingFile(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.LoadLibrary(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Empty(t, r.Patterns())
}

func TestSaveAndLoadLibraryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")

	src := NewRegistry()
	p := validPattern("docs-article", 0.85)
	p.Fields = append(p.Fields, types.PatternField{Name: "url", Type: "url", Locator: "a@href"})
	require.NoError(t, src.Add(p))
	src.RecordOutcome("docs-article", true)
	src.RecordOutcome("docs-article", true)
	require.NoError(t, src.SaveLibrary(path))

	dst := NewRegistry()
	require.NoError(t, dst.LoadLibrary(path))

	got, ok := dst.Get("docs-article")
	require.True(t, ok)
	assert.Equal(t, 0.85, got.Confidence)
	assert.Len(t, got.Fields, 2)
	assert.Equal(t, int64(2), got.Evolution.SuccessCount)
	assert.False(t, got.Evolution.LastUsed.IsZero())
}
