// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/knowledge-engine/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(types.StoreConfig{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func solutionDraft(title string, quality float64) types.KnowledgeDraft {
	return types.KnowledgeDraft{
		Type:    types.ItemSolution,
		Title:   title,
		Content: "Increase the connection pool size and retry with backoff.",
		Metadata: types.ItemMetadata{
			Domain:       "databases",
			Technologies: []string{"postgres", "go"},
			QualityScore: quality,
			ImpactScore:  0.6,
		},
		Solution: &types.SolutionPayload{ProposedFix: "raise max_connections"},
	}
}

func TestStoreKnowledgeRejectsInvalidDrafts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		draft types.KnowledgeDraft
	}{
		{"missing type", types.KnowledgeDraft{Content: "x"}},
		{"unknown type", types.KnowledgeDraft{Type: "opinion", Content: "x"}},
		{"missing content", types.KnowledgeDraft{Type: types.ItemSolution}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.StoreKnowledge(ctx, tt.draft)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidKnowledge)
		})
	}

	m, err := s.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, m.TotalItems)
}

func TestStoreAndGetKnowledgeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	draft := solutionDraft("Pool exhaustion fix", 0.8)
	draft.SourceURLs = []string{"https://example.com/post"}
	draft.Context = types.ItemContext{Domain: "backend", Technologies: []string{"go"}, Environment: "prod"}

	id, err := s.StoreKnowledge(ctx, draft)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	item, err := s.GetKnowledge(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.ItemSolution, item.Type)
	assert.Equal(t, "Pool exhaustion fix", item.Title)
	assert.Equal(t, draft.Content, item.Content)
	assert.Equal(t, draft.SourceURLs, item.SourceURLs)
	assert.Equal(t, draft.Context, item.Context)
	assert.Equal(t, "databases", item.Metadata.Domain)
	assert.Equal(t, []string{"postgres", "go"}, item.Metadata.Technologies)
	require.NotNil(t, item.Solution)
	assert.Equal(t, "raise max_connections", item.Solution.ProposedFix)
	assert.Equal(t, 1, item.Version)
	assert.Equal(t, 0.8, item.Confidence)
	assert.False(t, item.CreatedAt.IsZero())
	assert.Empty(t, item.History)
	assert.Empty(t, item.Validations)
}

func TestStoreKnowledgeDefaultConfidence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.StoreKnowledge(ctx, types.KnowledgeDraft{
		Type:    types.ItemError,
		Content: "connection refused on startup",
		Error:   &types.ErrorPayload{Symptom: "dial tcp: connection refused"},
	})
	require.NoError(t, err)

	item, err := s.GetKnowledge(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0.5, item.Confidence)
}

func TestStoreKnowledgeClampsScores(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	draft := solutionDraft("clamped", 1.7)
	draft.Metadata.ImpactScore = -0.2
	id, err := s.StoreKnowledge(ctx, draft)
	require.NoError(t, err)

	item, err := s.GetKnowledge(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1.0, item.Metadata.QualityScore)
	assert.Equal(t, 0.0, item.Metadata.ImpactScore)
	assert.Equal(t, 1.0, item.Confidence)
}

func TestGetKnowledgeNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetKnowledge(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchKnowledgeFreeText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.StoreKnowledge(ctx, types.KnowledgeDraft{
		Type: types.ItemSolution, Title: "Goroutine leak fix",
		Content: "Close the channel when the worker exits.",
	})
	require.NoError(t, err)
	_, err = s.StoreKnowledge(ctx, types.KnowledgeDraft{
		Type: types.ItemPattern, Title: "Retry pattern",
		Content: "Exponential backoff with jitter.",
	})
	require.NoError(t, err)

	out, err := s.SearchKnowledge(ctx, types.KnowledgeQuery{ContentSearch: "GOROUTINE leak"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Total)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "Goroutine leak fix", out.Items[0].Title)

	// FTS syntax in user input is neutralized, not interpreted.
	out, err = s.SearchKnowledge(ctx, types.KnowledgeQuery{ContentSearch: `backoff OR "unbalanced`})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Total)
}

func TestSearchKnowledgeFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	store := func(itemType types.ItemType, techs []string, quality float64) {
		t.Helper()
		_, err := s.StoreKnowledge(ctx, types.KnowledgeDraft{
			Type:     itemType,
			Content:  "filter fixture",
			Metadata: types.ItemMetadata{Technologies: techs, QualityScore: quality},
		})
		require.NoError(t, err)
	}
	store(types.ItemSolution, []string{"go", "sqlite"}, 0.9)
	store(types.ItemSolution, []string{"python"}, 0.4)
	store(types.ItemError, []string{"go"}, 0.8)

	out, err := s.SearchKnowledge(ctx, types.KnowledgeQuery{Types: []types.ItemType{types.ItemSolution}})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Total)

	out, err = s.SearchKnowledge(ctx, types.KnowledgeQuery{Technologies: []string{"go"}})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Total)

	out, err = s.SearchKnowledge(ctx, types.KnowledgeQuery{MinConfidence: 0.8})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Total)

	out, err = s.SearchKnowledge(ctx, types.KnowledgeQuery{
		Types:         []types.ItemType{types.ItemSolution},
		Technologies:  []string{"go"},
		MinConfidence: 0.8,
	})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, 0.9, out.Items[0].Confidence)
}

func TestSearchKnowledgeOrderingAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, q := range []float64{0.3, 0.9, 0.6} {
		_, err := s.StoreKnowledge(ctx, solutionDraft("item", q))
		require.NoError(t, err)
	}

	out, err := s.SearchKnowledge(ctx, types.KnowledgeQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Total)
	require.Len(t, out.Items, 2)
	assert.Equal(t, 0.9, out.Items[0].Confidence)
	assert.Equal(t, 0.6, out.Items[1].Confidence)
}

func TestSearchKnowledgeNoMatchesIsEmptyNotError(t *testing.T) {
	s := newTestStore(t)
	out, err := s.SearchKnowledge(context.Background(), types.KnowledgeQuery{ContentSearch: "nothing here"})
	require.NoError(t, err)
	assert.Empty(t, out.Items)
	assert.Equal(t, 0, out.Total)
}

func TestSearchKnowledgeWhitespaceQueryIsNoContentFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.StoreKnowledge(ctx, solutionDraft("only item", 0.7))
	require.NoError(t, err)

	// Whitespace tokenizes to nothing; the search must not fail and must
	// behave as if no content filter were given.
	out, err := s.SearchKnowledge(ctx, types.KnowledgeQuery{ContentSearch: "   \t "})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Total)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "only item", out.Items[0].Title)
}

func TestRecommendationsBlendAndFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	store := func(domain string, quality, impact float64) string {
		t.Helper()
		id, err := s.StoreKnowledge(ctx, types.KnowledgeDraft{
			Type:    types.ItemSolution,
			Content: "recommendation fixture",
			Metadata: types.ItemMetadata{
				Domain:       domain,
				QualityScore: quality,
				ImpactScore:  impact,
			},
		})
		require.NoError(t, err)
		return id
	}

	// Lower confidence but much higher impact outranks under the blend:
	// 0.7*0.6+0.3*1.0 = 0.72 vs 0.7*0.7+0.3*0.1 = 0.52.
	highImpact := store("web", 0.6, 1.0)
	store("web", 0.7, 0.1)
	store("embedded", 0.95, 0.9)

	items, err := s.Recommendations(ctx, types.RecommendationCriteria{Domain: "web"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, highImpact, items[0].ID)
}

func TestMetricsAggregates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.StoreKnowledge(ctx, solutionDraft("a", 0.8))
	require.NoError(t, err)
	_, err = s.StoreKnowledge(ctx, types.KnowledgeDraft{Type: types.ItemError, Content: "boom"})
	require.NoError(t, err)

	_, err = s.ValidateKnowledge(ctx, id, "automated", "validator-1")
	require.NoError(t, err)
	_, err = s.EvolveKnowledge(ctx, id, types.Evolution{
		Type:    "refinement",
		Changes: []types.FieldChange{{Field: "confidence", NewValue: 0.85}},
	})
	require.NoError(t, err)

	m, err := s.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalItems)
	assert.Equal(t, 1, m.ItemsByType[types.ItemSolution])
	assert.Equal(t, 1, m.ItemsByType[types.ItemError])
	assert.Equal(t, 1, m.TotalEvolutions)
	assert.Equal(t, 1, m.TotalValidations)
	assert.InDelta(t, (0.85+0.5)/2, m.AverageConfidence, 1e-9)
}

func TestExportJSONAndYAML(t *testing.T) {
	dataDir := t.TempDir()
	s, err := New(types.StoreConfig{DataDir: dataDir})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, err = s.StoreKnowledge(ctx, solutionDraft("exported", 0.7))
	require.NoError(t, err)

	require.NoError(t, s.ExportJSON(ctx, types.KnowledgeQuery{}))
	require.NoError(t, s.ExportYAML(ctx, types.KnowledgeQuery{}))

	data, err := os.ReadFile(filepath.Join(dataDir, "index", "export.json"))
	require.NoError(t, err)
	var items []types.KnowledgeItem
	require.NoError(t, json.Unmarshal(data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "exported", items[0].Title)

	yamlData, err := os.ReadFile(filepath.Join(dataDir, "index", "export.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(yamlData), "exported")
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dataDir := t.TempDir()
	ctx := context.Background()

	s, err := New(types.StoreConfig{DataDir: dataDir})
	require.NoError(t, err)
	id, err := s.StoreKnowledge(ctx, solutionDraft("durable", 0.7))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(types.StoreConfig{DataDir: dataDir})
	require.NoError(t, err)
	defer s.Close()

	item, err := s.GetKnowledge(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "durable", item.Title)
}
