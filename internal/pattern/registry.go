// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pattern holds extraction pattern definitions and their evolution
// statistics. The registry is the only shared mutable state between
// concurrent extractions: definitions are guarded by a mutex, outcome
// counters are atomic so parallel extractions never lose increments.
package pattern

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pdiddy/knowledge-engine/pkg/types"
)

// ErrInvalidPattern rejects structurally malformed patterns.
var ErrInvalidPattern = errors.New("invalid pattern")

// entry is the registry's internal record for one pattern. The immutable
// definition is stored by value; counters live separately so RecordOutcome
// does not need the definition lock.
type entry struct {
	def      types.ExtractionPattern
	success  atomic.Int64
	failure  atomic.Int64
	lastUsed atomic.Int64 // unix nanos
}

// Registry stores patterns keyed by id, preserving insertion order.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*entry
	ordered []*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*entry)}
}

// Add inserts or replaces a pattern by id. It fails with ErrInvalidPattern
// when the selector is empty or no fields are declared. Replacing an
// existing id keeps its position in iteration order and carries the
// accumulated outcome counters forward.
func (r *Registry) Add(p types.ExtractionPattern) error {
	if p.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidPattern)
	}
	if p.Selector == "" {
		return fmt.Errorf("%w: pattern %s has empty selector", ErrInvalidPattern, p.ID)
	}
	if len(p.Fields) == 0 {
		return fmt.Errorf("%w: pattern %s declares no fields", ErrInvalidPattern, p.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byID[p.ID]; ok {
		existing.def = p
		return nil
	}

	e := &entry{def: p}
	e.success.Store(p.Evolution.SuccessCount)
	e.failure.Store(p.Evolution.FailureCount)
	if !p.Evolution.LastUsed.IsZero() {
		e.lastUsed.Store(p.Evolution.LastUsed.UnixNano())
	}
	r.byID[p.ID] = e
	r.ordered = append(r.ordered, e)
	return nil
}

// Patterns returns a snapshot of all patterns in insertion order, with
// evolution counters folded in.
func (r *Registry) Patterns() []types.ExtractionPattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.ExtractionPattern, len(r.ordered))
	for i, e := range r.ordered {
		out[i] = e.snapshot()
	}
	return out
}

// Get returns the pattern with the given id, if registered.
func (r *Registry) Get(id string) (types.ExtractionPattern, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byID[id]
	if !ok {
		return types.ExtractionPattern{}, false
	}
	return e.snapshot(), true
}

// RecordOutcome increments the pattern's success or failure counter and
// stamps the last-used time. An unknown id is a no-op, not an error:
// extraction may attempt ad hoc patterns that were never registered.
func (r *Registry) RecordOutcome(patternID string, success bool) {
	r.mu.RLock()
	e, ok := r.byID[patternID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	if success {
		e.success.Add(1)
	} else {
		e.failure.Add(1)
	}
	e.lastUsed.Store(time.Now().UnixNano())
}

// Summary aggregates registry statistics for observability. It reads the
// live counters, never a cached copy.
func (r *Registry) Summary() types.PatternSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := types.PatternSummary{Total: len(r.ordered)}
	for _, e := range r.ordered {
		s.TotalSuccess += e.success.Load()
		s.TotalFailure += e.failure.Load()
	}
	return s
}

func (e *entry) snapshot() types.ExtractionPattern {
	p := e.def
	p.Evolution.SuccessCount = e.success.Load()
	p.Evolution.FailureCount = e.failure.Load()
	if ns := e.lastUsed.Load(); ns > 0 {
		p.Evolution.LastUsed = time.Unix(0, ns).UTC()
	}
	return p
}
