// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract applies registered extraction patterns to raw content
// and returns structured, confidence-scored results. The extractor is
// stateless per call: its only side effects are the pattern registry's
// outcome counters and the parsed-document cache, both safe under
// concurrent extractions.
package extract

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pdiddy/knowledge-engine/internal/pattern"
	"github.com/pdiddy/knowledge-engine/pkg/types"
)

const (
	defaultConfidenceFloor = 0.3

	// Result confidence is prior * (confidenceBase + confidenceBonus *
	// fraction of optional fields bound).
	confidenceBase  = 0.7
	confidenceBonus = 0.3
)

// PageQuerier binds structural fields against a live DOM instead of the
// content string. Implementations must fail fast on missing elements
// rather than waiting for them to appear.
type PageQuerier interface {
	// Has reports whether any element matches the selector.
	Has(selector string) (bool, error)

	// Text returns the visible text of the first element matching selector.
	Text(selector string) (string, error)

	// Attribute returns the named attribute of the first element matching
	// selector. The bool reports whether the attribute is present.
	Attribute(selector, name string) (string, bool, error)
}

// Extractor selects and applies patterns from a registry.
type Extractor struct {
	registry *pattern.Registry
	cache    *parseCache
	floor    float64
}

// New returns an extractor over the given registry.
func New(registry *pattern.Registry, cfg types.ExtractorConfig) *Extractor {
	floor := cfg.MinPatternConfidence
	if floor <= 0 {
		floor = defaultConfidenceFloor
	}
	return &Extractor{
		registry: registry,
		cache:    newParseCache(cfg.CacheSize),
		floor:    floor,
	}
}

// AddPattern registers a pattern. Delegates to the registry.
func (x *Extractor) AddPattern(p types.ExtractionPattern) error {
	return x.registry.Add(p)
}

// Patterns returns a read-only snapshot of the registry.
func (x *Extractor) Patterns() []types.ExtractionPattern {
	return x.registry.Patterns()
}

// PerformanceMetrics reports registry and cache statistics. Registry
// numbers are read live so the view reflects registry contents exactly.
func (x *Extractor) PerformanceMetrics() types.ExtractorMetrics {
	return types.ExtractorMetrics{
		Patterns: x.registry.Summary(),
		Cache:    x.cache.metrics(),
	}
}

// attempt is the outcome of applying one pattern.
type attempt struct {
	pattern       types.ExtractionPattern
	data          map[string]string
	missing       []string
	requiredBound int
	requiredTotal int
	optionalBound int
	optionalTotal int
}

func (a attempt) full() bool { return len(a.missing) == 0 }

// partialConfidence scores an incomplete attempt by the fraction of all
// declared fields it bound, scaled by the pattern's prior.
func (a attempt) partialConfidence() float64 {
	total := a.requiredTotal + a.optionalTotal
	if total == 0 {
		return 0
	}
	bound := a.requiredBound + a.optionalBound
	return clamp01(a.pattern.Confidence * float64(bound) / float64(total))
}

// resultConfidence scores a full match from the prior and the fraction of
// optional fields bound.
func (a attempt) resultConfidence() float64 {
	optFrac := 1.0
	if a.optionalTotal > 0 {
		optFrac = float64(a.optionalBound) / float64(a.optionalTotal)
	}
	return clamp01(a.pattern.Confidence * (confidenceBase + confidenceBonus*optFrac))
}

// Extract applies candidate patterns to content and returns the first full
// match. Content problems never produce an error return: empty content, a
// parse failure, or no matching pattern all resolve to Success=false with
// a descriptive Error. Every attempted pattern's outcome is recorded in
// the registry, win or lose, so evolution data accumulates even from
// failed attempts.
//
// When page is non-nil, structural patterns bind against the live DOM it
// wraps instead of parsing content.
func (x *Extractor) Extract(ctx context.Context, content string, ec types.ExtractionContext, page PageQuerier) types.ExtractionResult {
	if strings.TrimSpace(content) == "" {
		return types.ExtractionResult{Success: false, Confidence: 0, Error: "empty content"}
	}

	candidates := x.candidates(ec)
	if len(candidates) == 0 {
		return types.ExtractionResult{
			Success: false,
			Error:   fmt.Sprintf("no applicable patterns for content type %q", ec.ContentType),
		}
	}

	var (
		attempts []attempt
		winner   *attempt
	)

	for i := range candidates {
		a := x.apply(candidates[i], content, page)
		x.registry.RecordOutcome(a.pattern.ID, a.full())
		attempts = append(attempts, a)

		if a.full() {
			winner = &attempts[len(attempts)-1]
			break
		}
	}

	if winner != nil {
		return x.successResult(ec, *winner, attempts)
	}
	return x.failureResult(ec, attempts)
}

// candidates selects patterns whose kind fits the content type and whose
// prior confidence clears the floor, ordered by descending prior with
// registration order breaking ties (first-match contract).
func (x *Extractor) candidates(ec types.ExtractionContext) []types.ExtractionPattern {
	floor := ec.Options.ConfidenceThreshold
	if floor <= 0 {
		floor = x.floor
	}

	var out []types.ExtractionPattern
	for _, p := range x.registry.Patterns() {
		if !kindMatches(p.Kind, ec.ContentType) {
			continue
		}
		if p.Confidence < floor {
			continue
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// kindMatches reports whether a pattern kind applies to a content type.
// Structural patterns need markup; regex patterns apply to any text,
// markup included.
func kindMatches(kind types.PatternKind, contentType string) bool {
	switch kind {
	case types.KindStructural:
		return contentType == "" || strings.Contains(contentType, "html")
	case types.KindRegex:
		return true
	default:
		return false
	}
}

// apply runs one pattern against the content and reports what it bound.
func (x *Extractor) apply(p types.ExtractionPattern, content string, page PageQuerier) attempt {
	a := attempt{pattern: p, data: make(map[string]string)}
	for _, f := range p.Fields {
		if f.Required {
			a.requiredTotal++
		} else {
			a.optionalTotal++
		}
	}

	switch p.Kind {
	case types.KindRegex:
		x.applyRegex(&a, content)
	default:
		if page != nil {
			x.applyLivePage(&a, page)
		} else {
			x.applyStructural(&a, content)
		}
	}
	return a
}

func (a *attempt) bind(f types.PatternField, value string, ok bool) {
	if ok && value != "" {
		a.data[f.Name] = value
		if f.Required {
			a.requiredBound++
		} else {
			a.optionalBound++
		}
		return
	}
	if f.Required {
		a.missing = append(a.missing, f.Name)
	}
}

func (x *Extractor) applyStructural(a *attempt, content string) {
	sel, err := parseSelector(a.pattern.Selector)
	if err != nil {
		a.markAllRequiredMissing()
		return
	}

	doc, err := x.cache.parse(content)
	if err != nil {
		a.markAllRequiredMissing()
		return
	}

	root := sel.selectFirst(doc)
	if root == nil {
		a.markAllRequiredMissing()
		return
	}

	for _, f := range a.pattern.Fields {
		sub, attr := splitLocator(f.Locator)

		target := root
		if sub != "" {
			rel, err := parseSelector(sub)
			if err != nil {
				a.bind(f, "", false)
				continue
			}
			target = rel.selectFirst(root)
		}
		if target == nil {
			a.bind(f, "", false)
			continue
		}

		if attr != "" {
			v, ok := lookupAttr(target, attr)
			a.bind(f, v, ok)
		} else {
			a.bind(f, nodeText(target), true)
		}
	}
}

func (x *Extractor) applyLivePage(a *attempt, page PageQuerier) {
	ok, err := page.Has(a.pattern.Selector)
	if err != nil || !ok {
		a.markAllRequiredMissing()
		return
	}

	for _, f := range a.pattern.Fields {
		sub, attr := splitLocator(f.Locator)
		sel := a.pattern.Selector
		if sub != "" {
			sel = sel + " " + sub
		}

		if attr != "" {
			v, present, err := page.Attribute(sel, attr)
			a.bind(f, v, err == nil && present)
			continue
		}
		v, err := page.Text(sel)
		a.bind(f, v, err == nil)
	}
}

func (x *Extractor) applyRegex(a *attempt, content string) {
	re, err := regexp.Compile(a.pattern.Selector)
	if err != nil {
		a.markAllRequiredMissing()
		return
	}

	match := re.FindStringSubmatch(content)
	groups := make(map[string]string)
	if match != nil {
		for i, name := range re.SubexpNames() {
			if i > 0 && name != "" && i < len(match) {
				groups[name] = match[i]
			}
		}
	}

	for _, f := range a.pattern.Fields {
		group := f.Locator
		if group == "" {
			group = f.Name
		}
		v, ok := groups[group]
		a.bind(f, v, ok)
	}
}

func (a *attempt) markAllRequiredMissing() {
	for _, f := range a.pattern.Fields {
		if f.Required {
			a.missing = append(a.missing, f.Name)
		}
	}
}

// splitLocator separates the relative selector from an optional @attr
// suffix, e.g. "a.link@href" or "@data-id".
func splitLocator(locator string) (sub, attr string) {
	if i := strings.LastIndexByte(locator, '@'); i >= 0 {
		return strings.TrimSpace(locator[:i]), locator[i+1:]
	}
	return strings.TrimSpace(locator), ""
}

func (x *Extractor) successResult(ec types.ExtractionContext, winner attempt, attempts []attempt) types.ExtractionResult {
	res := types.ExtractionResult{
		Success:    true,
		Confidence: winner.resultConfidence(),
		Data:       winner.data,
	}

	res.Matches = append(res.Matches, types.PatternMatch{
		PatternID:     winner.pattern.ID,
		Confidence:    res.Confidence,
		RequiredBound: winner.requiredBound,
		OptionalBound: winner.optionalBound,
	})
	for _, a := range attempts {
		if a.pattern.ID == winner.pattern.ID {
			continue
		}
		res.Matches = append(res.Matches, types.PatternMatch{
			PatternID:     a.pattern.ID,
			Confidence:    a.partialConfidence(),
			RequiredBound: a.requiredBound,
			OptionalBound: a.optionalBound,
		})
	}

	if ec.Options.LearningEnabled {
		res.LearningInsights = append(res.LearningInsights,
			fmt.Sprintf("pattern %s matched after %d attempt(s)", winner.pattern.ID, len(attempts)))
		if winner.optionalTotal > 0 && winner.optionalBound < winner.optionalTotal {
			res.LearningInsights = append(res.LearningInsights,
				fmt.Sprintf("pattern %s bound %d/%d optional fields", winner.pattern.ID, winner.optionalBound, winner.optionalTotal))
		}
	}
	return res
}

func (x *Extractor) failureResult(ec types.ExtractionContext, attempts []attempt) types.ExtractionResult {
	res := types.ExtractionResult{Success: false}

	best := -1
	for i, a := range attempts {
		if best < 0 || a.partialConfidence() > attempts[best].partialConfidence() {
			best = i
		}
		res.Matches = append(res.Matches, types.PatternMatch{
			PatternID:     a.pattern.ID,
			Confidence:    a.partialConfidence(),
			RequiredBound: a.requiredBound,
			OptionalBound: a.optionalBound,
		})
	}

	if best >= 0 {
		b := attempts[best]
		res.Confidence = b.partialConfidence()
		res.Error = fmt.Sprintf("no pattern fully matched; best candidate %s missing required fields: %s",
			b.pattern.ID, strings.Join(b.missing, ", "))
		if ec.Options.LearningEnabled {
			for _, a := range attempts {
				if len(a.missing) > 0 {
					res.LearningInsights = append(res.LearningInsights,
						fmt.Sprintf("pattern %s missing: %s", a.pattern.ID, strings.Join(a.missing, ", ")))
				}
			}
		}
	} else {
		res.Error = "no pattern fully matched"
	}
	return res
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
