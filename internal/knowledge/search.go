// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pdiddy/knowledge-engine/pkg/types"
)

// Blended recommendation score weights.
const (
	recConfidenceWeight = 0.7
	recImpactWeight     = 0.3
)

// SearchKnowledge queries the store. Free text matches title+content
// tokens case-insensitively through FTS5; type and technology filters are
// set intersections; MinConfidence is an inclusive lower bound. Results
// are ordered by descending confidence, ties broken by most-recent
// version. Total counts all matches before the limit. A query matching
// nothing returns an empty result, not an error.
func (s *Store) SearchKnowledge(ctx context.Context, query types.KnowledgeQuery) (types.SearchOutput, error) {
	where, args := buildFilters(query)

	// A whitespace-only search has no tokens; it acts as no content
	// filter rather than producing an empty MATCH expression SQLite
	// would reject.
	tokens := strings.Fields(query.ContentSearch)

	var (
		from    string
		ftsArgs []any
	)
	if len(tokens) > 0 {
		from = `FROM items_fts JOIN items i ON i.rowid = items_fts.rowid WHERE items_fts MATCH ?`
		ftsArgs = []any{ftsQuery(tokens)}
	} else {
		from = `FROM items i WHERE 1=1`
	}

	countSQL := `SELECT count(*) ` + from + where
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, append(ftsArgs, args...)...).Scan(&total); err != nil {
		return types.SearchOutput{}, fmt.Errorf("counting matches: %w", err)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = s.maxResults
	}

	selectSQL := `SELECT ` + qualifyColumns("i") + ` ` + from + where +
		` ORDER BY i.confidence DESC, i.version DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, selectSQL, append(append(ftsArgs, args...), limit)...)
	if err != nil {
		return types.SearchOutput{}, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var items []types.KnowledgeItem
	for rows.Next() {
		item, err := scanItem(rows.Scan)
		if err != nil {
			return types.SearchOutput{}, fmt.Errorf("scanning item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return types.SearchOutput{}, err
	}

	return types.SearchOutput{Items: items, Total: total}, nil
}

// buildFilters renders the structured filters as SQL, assuming the item
// table is aliased i.
func buildFilters(query types.KnowledgeQuery) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)

	if len(query.Types) > 0 {
		b.WriteString(` AND i.type IN (` + placeholders(len(query.Types)) + `)`)
		for _, t := range query.Types {
			args = append(args, string(t))
		}
	}

	if len(query.Technologies) > 0 {
		b.WriteString(` AND EXISTS (SELECT 1 FROM json_each(i.technologies) WHERE value IN (` +
			placeholders(len(query.Technologies)) + `))`)
		for _, t := range query.Technologies {
			args = append(args, t)
		}
	}

	if query.MinConfidence > 0 {
		b.WriteString(` AND i.confidence >= ?`)
		args = append(args, query.MinConfidence)
	}

	return b.String(), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// qualifyColumns prefixes the shared item column list with a table alias.
func qualifyColumns(alias string) string {
	cols := strings.Split(itemColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// ftsQuery turns free-text tokens into a safe FTS5 match expression: each
// token is quoted and tokens are implicitly ANDed, so user input cannot
// inject FTS syntax. Callers must pass a non-empty token list.
func ftsQuery(tokens []string) string {
	quoted := make([]string, len(tokens))
	for i, f := range tokens {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

// Recommendations runs an internal search restricted by the criteria's
// domain, technology, and problem type, then re-ranks by a blend of
// confidence and impact score. The view is derived and never persisted.
func (s *Store) Recommendations(ctx context.Context, criteria types.RecommendationCriteria) ([]types.KnowledgeItem, error) {
	query := types.KnowledgeQuery{
		// Rank over the full candidate set, then cut.
		Limit: 1000,
	}
	if criteria.ProblemType != "" {
		query.Types = []types.ItemType{criteria.ProblemType}
	}
	if criteria.Technology != "" {
		query.Technologies = []string{criteria.Technology}
	}

	out, err := s.SearchKnowledge(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("searching for recommendations: %w", err)
	}

	items := out.Items
	if criteria.Domain != "" {
		filtered := items[:0]
		for _, item := range items {
			if item.Metadata.Domain == criteria.Domain || item.Context.Domain == criteria.Domain {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	sort.SliceStable(items, func(i, j int) bool {
		return blendedScore(items[i]) > blendedScore(items[j])
	})

	limit := criteria.Limit
	if limit <= 0 {
		limit = s.maxResults
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func blendedScore(item types.KnowledgeItem) float64 {
	return recConfidenceWeight*item.Confidence + recImpactWeight*item.Metadata.ImpactScore
}

// Metrics recomputes aggregate store statistics from live state.
func (s *Store) Metrics(ctx context.Context) (types.KnowledgeMetrics, error) {
	m := types.KnowledgeMetrics{ItemsByType: make(map[types.ItemType]int)}

	row := s.db.QueryRowContext(ctx,
		`SELECT count(*),
			coalesce(avg(confidence), 0),
			coalesce(avg(quality_score), 0),
			coalesce(avg(impact_score), 0)
		 FROM items`)
	if err := row.Scan(&m.TotalItems, &m.AverageConfidence, &m.AverageQuality, &m.AverageImpact); err != nil {
		return m, fmt.Errorf("computing item metrics: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT type, count(*) FROM items GROUP BY type`)
	if err != nil {
		return m, fmt.Errorf("counting items by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			t string
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			return m, fmt.Errorf("scanning type count: %w", err)
		}
		m.ItemsByType[types.ItemType(t)] = n
	}
	if err := rows.Err(); err != nil {
		return m, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM evolutions`).Scan(&m.TotalEvolutions); err != nil {
		return m, fmt.Errorf("counting evolutions: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM validations`).Scan(&m.TotalValidations); err != nil {
		return m, fmt.Errorf("counting validations: %w", err)
	}

	return m, nil
}
