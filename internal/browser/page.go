// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package browser adapts a headless-browser page to the extractor's
// PageQuerier interface, so structural patterns can bind fields against a
// live DOM instead of a static content string.
package browser

import (
	"fmt"

	"github.com/go-rod/rod"
)

// Page wraps a rod page. Lookups use the not-found sleeper so a missing
// element fails immediately instead of waiting for it to appear; the
// extractor treats absence as an unbound field, not a condition to poll.
type Page struct {
	page *rod.Page
}

// NewPage wraps an existing rod page. The caller keeps ownership of the
// page and its browser session.
func NewPage(p *rod.Page) *Page {
	return &Page{page: p}
}

// Has reports whether any element matches the selector.
func (p *Page) Has(selector string) (bool, error) {
	has, _, err := p.page.Sleeper(rod.NotFoundSleeper).Has(selector)
	if err != nil {
		return false, fmt.Errorf("querying %q: %w", selector, err)
	}
	return has, nil
}

// Text returns the visible text of the first element matching selector.
func (p *Page) Text(selector string) (string, error) {
	el, err := p.element(selector)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("reading text of %q: %w", selector, err)
	}
	return text, nil
}

// Attribute returns the named attribute of the first element matching
// selector. The bool reports whether the attribute is present.
func (p *Page) Attribute(selector, name string) (string, bool, error) {
	el, err := p.element(selector)
	if err != nil {
		return "", false, err
	}
	val, err := el.Attribute(name)
	if err != nil {
		return "", false, fmt.Errorf("reading attribute %s of %q: %w", name, selector, err)
	}
	if val == nil {
		return "", false, nil
	}
	return *val, true, nil
}

func (p *Page) element(selector string) (*rod.Element, error) {
	el, err := p.page.Sleeper(rod.NotFoundSleeper).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("querying %q: %w", selector, err)
	}
	return el, nil
}
