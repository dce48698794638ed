// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pdiddy/knowledge-engine/internal/httputil"
	"github.com/pdiddy/knowledge-engine/pkg/types"
)

// searxng scores are unbounded relevance weights; scoreScale maps them
// into [0,1] source confidence.
const searxngScoreScale = 10.0

// SearxngClient queries a SearXNG metasearch instance's JSON API.
type SearxngClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewSearxngClient returns a client for cfg.SearxngURL.
func NewSearxngClient(cfg types.ResearchConfig) *SearxngClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SearxngClient{
		baseURL:   cfg.SearxngURL,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: timeout},
	}
}

// Name identifies the client in warnings and logs.
func (c *SearxngClient) Name() string { return "searxng" }

// searxngResult is one entry of the JSON API response.
type searxngResult struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type searxngResponse struct {
	Results []searxngResult `json:"results"`
}

// Search runs one query against the instance.
func (c *SearxngClient) Search(ctx context.Context, query string) (SearchResponse, error) {
	if c.baseURL == "" {
		return SearchResponse{}, fmt.Errorf("searxng URL not configured")
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&format=json", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return SearchResponse{}, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, req, 0)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("querying searxng: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SearchResponse{}, fmt.Errorf("searxng returned %s", resp.Status)
	}

	var decoded searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return SearchResponse{}, fmt.Errorf("decoding searxng response: %w", err)
	}

	out := SearchResponse{}
	for _, r := range decoded.Results {
		conf := r.Score / searxngScoreScale
		if conf > 1 {
			conf = 1
		}
		if conf < 0 {
			conf = 0
		}
		out.Sources = append(out.Sources, Source{URL: r.URL, Title: r.Title, Confidence: conf})
		if conf > out.Confidence {
			out.Confidence = conf
		}
	}
	return out, nil
}
