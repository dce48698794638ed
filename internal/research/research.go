// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package research orchestrates online research: it fans a query out to
// search clients, ranks and filters the returned sources, fetches each
// page, and hands the raw content to the extractor. Successful
// extractions can be persisted as knowledge items.
package research

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/knowledge-engine/internal/extract"
	"github.com/pdiddy/knowledge-engine/internal/httputil"
	"github.com/pdiddy/knowledge-engine/internal/knowledge"
	"github.com/pdiddy/knowledge-engine/pkg/types"
)

const (
	defaultMaxSources = 5
	maxBodyBytes      = 2 << 20
)

// Source is one search result candidate.
type Source struct {
	URL        string  `json:"url" yaml:"url"`
	Title      string  `json:"title,omitempty" yaml:"title,omitempty"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// SearchResponse is a search client's answer for one query.
type SearchResponse struct {
	Sources    []Source `json:"sources" yaml:"sources"`
	Confidence float64  `json:"confidence" yaml:"confidence"`
}

// Client searches a single engine. Implementations follow the Strategy
// pattern so tests can supply mocks.
type Client interface {
	Name() string
	Search(ctx context.Context, query string) (SearchResponse, error)
}

// Agent coordinates search clients, the extractor, and optionally the
// knowledge store.
type Agent struct {
	clients   []Client
	extractor *extract.Extractor
	store     *knowledge.Store
	http      *http.Client
	cfg       types.ResearchConfig
}

// NewAgent wires an agent. The store may be nil when results should not
// be persisted.
func NewAgent(cfg types.ResearchConfig, clients []Client, extractor *extract.Extractor, store *knowledge.Store) *Agent {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Agent{
		clients:   clients,
		extractor: extractor,
		store:     store,
		http:      &http.Client{Timeout: timeout},
		cfg:       cfg,
	}
}

// SourceReport is the outcome for one fetched source.
type SourceReport struct {
	URL    string                 `json:"url" yaml:"url"`
	Result types.ExtractionResult `json:"result" yaml:"result"`

	// ItemID is set when the extraction was stored as a knowledge item.
	ItemID string `json:"item_id,omitempty" yaml:"item_id,omitempty"`
}

// Report summarizes a research run.
type Report struct {
	Query     string         `json:"query" yaml:"query"`
	Sources   int            `json:"sources" yaml:"sources"`
	Extracted int            `json:"extracted" yaml:"extracted"`
	Stored    int            `json:"stored" yaml:"stored"`
	Reports   []SourceReport `json:"reports" yaml:"reports"`
	Warnings  []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Research runs the full pipeline for one query, writing progress to w.
// Individual client or fetch failures degrade to warnings; the run only
// fails when the query is empty or no clients are configured.
func (a *Agent) Research(ctx context.Context, query string, ec types.ExtractionContext, w io.Writer) (Report, error) {
	if strings.TrimSpace(query) == "" {
		return Report{}, fmt.Errorf("query is empty")
	}
	if len(a.clients) == 0 {
		return Report{}, fmt.Errorf("no search clients configured")
	}

	report := Report{Query: query}

	sources, warnings := a.search(ctx, query)
	report.Warnings = warnings
	for _, warning := range warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}

	sources = a.rank(sources)
	report.Sources = len(sources)
	fmt.Fprintf(w, "researching %q: %d source(s)\n", query, len(sources))

	for _, src := range sources {
		content, contentType, err := a.fetch(ctx, src.URL)
		if err != nil {
			msg := fmt.Sprintf("fetching %s: %v", src.URL, err)
			report.Warnings = append(report.Warnings, msg)
			fmt.Fprintf(w, "warning: %s\n", msg)
			continue
		}

		sec := ec
		sec.ContentType = contentType
		if u, err := url.Parse(src.URL); err == nil {
			sec.SourceDomain = u.Host
		}

		result := a.extractor.Extract(ctx, content, sec, nil)
		sr := SourceReport{URL: src.URL, Result: result}

		if result.Success {
			report.Extracted++
			fmt.Fprintf(w, "extracted %s (confidence %.2f)\n", src.URL, result.Confidence)

			if a.store != nil && a.cfg.StoreResults {
				id, err := a.storeResult(ctx, query, src, sec, result)
				if err != nil {
					msg := fmt.Sprintf("storing extraction from %s: %v", src.URL, err)
					report.Warnings = append(report.Warnings, msg)
					fmt.Fprintf(w, "warning: %s\n", msg)
				} else {
					sr.ItemID = id
					report.Stored++
				}
			}
		} else {
			fmt.Fprintf(w, "no match %s: %s\n", src.URL, result.Error)
		}

		report.Reports = append(report.Reports, sr)
	}

	fmt.Fprintf(w, "\nsources: %d, extracted: %d, stored: %d\n",
		report.Sources, report.Extracted, report.Stored)
	return report, nil
}

// search fans the query out to all clients concurrently and collects
// sources and per-client warnings.
func (a *Agent) search(ctx context.Context, query string) ([]Source, []string) {
	var (
		mu       sync.Mutex
		sources  []Source
		warnings []string
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range a.clients {
		c := c
		g.Go(func() error {
			resp, err := c.Search(gctx, query)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("client %s failed: %v", c.Name(), err))
				return nil
			}
			sources = append(sources, resp.Sources...)
			return nil
		})
	}
	g.Wait()

	return sources, warnings
}

// rank deduplicates by URL keeping the higher confidence, drops sources
// below the configured floor, sorts by descending confidence, and caps
// the list at MaxSources.
func (a *Agent) rank(sources []Source) []Source {
	best := make(map[string]Source)
	var order []string
	for _, src := range sources {
		if src.URL == "" || src.Confidence < a.cfg.MinSourceConfidence {
			continue
		}
		if seen, ok := best[src.URL]; !ok || src.Confidence > seen.Confidence {
			if !ok {
				order = append(order, src.URL)
			}
			best[src.URL] = src
		}
	}

	ranked := make([]Source, 0, len(order))
	for _, u := range order {
		ranked = append(ranked, best[u])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	max := a.cfg.MaxSources
	if max <= 0 {
		max = defaultMaxSources
	}
	if len(ranked) > max {
		ranked = ranked[:max]
	}
	return ranked
}

// fetch downloads a source page and reports its normalized content type.
func (a *Agent) fetch(ctx context.Context, rawURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", err
	}
	if a.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", a.cfg.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, a.http, req, 0)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", err
	}

	contentType := "text"
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		contentType = "text/html"
	}
	return string(body), contentType, nil
}

// storeResult converts a successful extraction into a knowledge draft and
// persists it. The draft type follows the request intent; extraction
// confidence seeds the quality score.
func (a *Agent) storeResult(ctx context.Context, query string, src Source, ec types.ExtractionContext, result types.ExtractionResult) (string, error) {
	title := src.Title
	if title == "" {
		title = query
	}

	var content strings.Builder
	for _, k := range sortedKeys(result.Data) {
		fmt.Fprintf(&content, "%s: %s\n", k, result.Data[k])
	}

	draft := types.KnowledgeDraft{
		Type:       draftTypeForIntent(ec.Intent),
		Title:      title,
		Content:    content.String(),
		SourceURLs: []string{src.URL},
		Context: types.ItemContext{
			Domain: ec.SourceDomain,
		},
		Metadata: types.ItemMetadata{
			QualityScore: result.Confidence,
			ImpactScore:  src.Confidence,
		},
	}
	return a.store.StoreKnowledge(ctx, draft)
}

// draftTypeForIntent picks a knowledge item type from the request intent.
func draftTypeForIntent(intent string) types.ItemType {
	lower := strings.ToLower(intent)
	switch {
	case strings.Contains(lower, "fix") || strings.Contains(lower, "solution"):
		return types.ItemSolution
	case strings.Contains(lower, "error") || strings.Contains(lower, "bug"):
		return types.ItemError
	default:
		return types.ItemPattern
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
