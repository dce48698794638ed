// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/knowledge-engine/internal/pattern"
	"github.com/pdiddy/knowledge-engine/pkg/types"
)

func newTestExtractor(t *testing.T, patterns ...types.ExtractionPattern) *Extractor {
	t.Helper()
	reg := pattern.NewRegistry()
	x := New(reg, types.ExtractorConfig{})
	for _, p := range patterns {
		require.NoError(t, x.AddPattern(p))
	}
	return x
}

func htmlContext() types.ExtractionContext {
	return types.ExtractionContext{ContentType: "text/html"}
}

func TestExtractEmptyContent(t *testing.T) {
	x := newTestExtractor(t)
	res := x.Extract(context.Background(), "   \n", htmlContext(), nil)
	assert.False(t, res.Success)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, "empty content", res.Error)
}

func TestExtractNoApplicablePatterns(t *testing.T) {
	x := newTestExtractor(t, types.ExtractionPattern{
		ID:         "structural-only",
		Kind:       types.KindStructural,
		Selector:   ".x",
		Confidence: 0.9,
		Fields:     []types.PatternField{{Name: "f", Required: true}},
	})

	res := x.Extract(context.Background(), "plain text", types.ExtractionContext{ContentType: "text/plain"}, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no applicable patterns")
}

func TestExtractStructural(t *testing.T) {
	content := `
		<div class="test-element">
			<span class="test-text">Test content</span>
			<a class="test-link" href="/docs">more</a>
		</div>`

	x := newTestExtractor(t, types.ExtractionPattern{
		ID:         "test-pattern",
		Kind:       types.KindStructural,
		Selector:   ".test-element",
		Confidence: 0.9,
		Fields: []types.PatternField{
			{Name: "text", Required: true, Locator: "> .test-text"},
			{Name: "link", Locator: ".test-link@href"},
		},
	})

	res := x.Extract(context.Background(), content, htmlContext(), nil)
	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, "Test content", res.Data["text"])
	assert.Equal(t, "/docs", res.Data["link"])
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, "test-pattern", res.Matches[0].PatternID)

	p := x.Patterns()
	require.Len(t, p, 1)
	assert.Equal(t, int64(1), p[0].Evolution.SuccessCount)
	assert.Equal(t, int64(0), p[0].Evolution.FailureCount)
}

func TestExtractEmptyLocatorUsesMatchedElementText(t *testing.T) {
	x := newTestExtractor(t, types.ExtractionPattern{
		ID:         "whole-element",
		Kind:       types.KindStructural,
		Selector:   ".test-element > .test-text",
		Confidence: 0.8,
		Fields:     []types.PatternField{{Name: "text", Required: true}},
	})

	content := `<div class="test-element"><p class="test-text">Test content</p></div>`
	res := x.Extract(context.Background(), content, htmlContext(), nil)
	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, "Test content", res.Data["text"])
}

func TestExtractRegexNamedGroups(t *testing.T) {
	x := newTestExtractor(t, types.ExtractionPattern{
		ID:         "error-line",
		Kind:       types.KindRegex,
		Selector:   `(?m)^(?P<level>ERROR|WARN): (?P<message>.+)$`,
		Confidence: 0.85,
		Fields: []types.PatternField{
			{Name: "level", Required: true},
			{Name: "text", Required: true, Locator: "message"},
		},
	})

	res := x.Extract(context.Background(), "INFO: boot\nERROR: disk full\n", types.ExtractionContext{ContentType: "text/plain"}, nil)
	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, "ERROR", res.Data["level"])
	assert.Equal(t, "disk full", res.Data["text"])
}

func TestExtractFirstMatchPrefersHigherConfidence(t *testing.T) {
	field := []types.PatternField{{Name: "msg", Required: true, Locator: "msg"}}
	x := newTestExtractor(t,
		types.ExtractionPattern{ID: "low", Kind: types.KindRegex, Selector: `(?P<msg>low\w+)`, Confidence: 0.5, Fields: field},
		types.ExtractionPattern{ID: "high", Kind: types.KindRegex, Selector: `(?P<msg>\w+)`, Confidence: 0.9, Fields: field},
	)

	// Both patterns would match; the higher-confidence one is tried first
	// and wins, and the loser is never attempted.
	res := x.Extract(context.Background(), "lowball", types.ExtractionContext{ContentType: "text/plain"}, nil)
	require.True(t, res.Success)
	assert.Equal(t, "high", res.Matches[0].PatternID)

	for _, p := range x.Patterns() {
		switch p.ID {
		case "high":
			assert.Equal(t, int64(1), p.Evolution.SuccessCount)
		case "low":
			assert.Equal(t, int64(0), p.Evolution.SuccessCount+p.Evolution.FailureCount)
		}
	}
}

func TestExtractFailureRecordsAttempts(t *testing.T) {
	x := newTestExtractor(t,
		types.ExtractionPattern{
			ID:         "partial",
			Kind:       types.KindRegex,
			Selector:   `(?P<title>title-\w+)`,
			Confidence: 0.8,
			Fields: []types.PatternField{
				{Name: "title", Required: true},
				{Name: "body", Required: true},
			},
		},
	)

	ec := types.ExtractionContext{ContentType: "text/plain"}
	ec.Options.LearningEnabled = true

	res := x.Extract(context.Background(), "title-abc only", ec, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "partial")
	assert.Contains(t, res.Error, "body")
	assert.Greater(t, res.Confidence, 0.0)
	assert.NotEmpty(t, res.LearningInsights)

	p := x.Patterns()
	require.Len(t, p, 1)
	assert.Equal(t, int64(1), p[0].Evolution.FailureCount)
}

func TestExtractConfidenceThresholdFiltersPatterns(t *testing.T) {
	x := newTestExtractor(t, types.ExtractionPattern{
		ID:         "weak",
		Kind:       types.KindRegex,
		Selector:   `(?P<msg>\w+)`,
		Confidence: 0.4,
		Fields:     []types.PatternField{{Name: "msg", Required: true}},
	})

	ec := types.ExtractionContext{ContentType: "text/plain"}
	ec.Options.ConfidenceThreshold = 0.6
	res := x.Extract(context.Background(), "hello", ec, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no applicable patterns")

	// Default floor admits it.
	res = x.Extract(context.Background(), "hello", types.ExtractionContext{ContentType: "text/plain"}, nil)
	assert.True(t, res.Success)
}

func TestExtractOptionalFieldsScaleConfidence(t *testing.T) {
	x := newTestExtractor(t, types.ExtractionPattern{
		ID:         "opt",
		Kind:       types.KindRegex,
		Selector:   `(?P<req>req-\w+)`,
		Confidence: 1.0,
		Fields: []types.PatternField{
			{Name: "req", Required: true},
			{Name: "extra", Locator: "never"},
		},
	})

	res := x.Extract(context.Background(), "req-42", types.ExtractionContext{ContentType: "text/plain"}, nil)
	require.True(t, res.Success)
	// No optional field bound, so confidence drops to the base share.
	assert.InDelta(t, 0.7, res.Confidence, 1e-9)
}

type fakePage struct {
	texts map[string]string
	attrs map[string]string
}

func (f *fakePage) Has(selector string) (bool, error) {
	_, ok := f.texts[selector]
	return ok, nil
}

func (f *fakePage) Text(selector string) (string, error) {
	v, ok := f.texts[selector]
	if !ok {
		return "", fmt.Errorf("no element matches %q", selector)
	}
	return v, nil
}

func (f *fakePage) Attribute(selector, name string) (string, bool, error) {
	v, ok := f.attrs[selector+"@"+name]
	return v, ok, nil
}

func TestExtractLivePage(t *testing.T) {
	page := &fakePage{
		texts: map[string]string{
			".card":        "whole card",
			".card .title": "Live Title",
		},
		attrs: map[string]string{
			".card a@href": "/live",
		},
	}

	x := newTestExtractor(t, types.ExtractionPattern{
		ID:         "live-card",
		Kind:       types.KindStructural,
		Selector:   ".card",
		Confidence: 0.9,
		Fields: []types.PatternField{
			{Name: "title", Required: true, Locator: ".title"},
			{Name: "url", Locator: "a@href"},
		},
	})

	res := x.Extract(context.Background(), "<html>live</html>", htmlContext(), page)
	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, "Live Title", res.Data["title"])
	assert.Equal(t, "/live", res.Data["url"])
}

func TestPerformanceMetricsTracksCacheHits(t *testing.T) {
	x := newTestExtractor(t, types.ExtractionPattern{
		ID:         "p",
		Kind:       types.KindStructural,
		Selector:   ".a",
		Confidence: 0.9,
		Fields:     []types.PatternField{{Name: "f", Required: true}},
	})

	content := `<div class="a">one</div>`
	x.Extract(context.Background(), content, htmlContext(), nil)
	x.Extract(context.Background(), content, htmlContext(), nil)
	x.Extract(context.Background(), content, htmlContext(), nil)

	m := x.PerformanceMetrics()
	assert.Equal(t, 1, m.Cache.Size)
	assert.InDelta(t, 2.0/3.0, m.Cache.HitRate, 1e-9)
	assert.Equal(t, int64(3), m.Patterns.TotalSuccess)
}

func TestParseCacheEvictsOldest(t *testing.T) {
	c := newParseCache(2)
	for i := 0; i < 3; i++ {
		_, err := c.parse(fmt.Sprintf("<p>%d</p>", i))
		require.NoError(t, err)
	}
	m := c.metrics()
	assert.Equal(t, 2, m.Size)
	assert.Equal(t, 0.0, m.HitRate)
}
