// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// selector is a parsed CSS-style selector supporting the subset used by
// extraction patterns: tag, #id, .class, [attr], [attr=value] simple
// selectors combined into compounds, joined by descendant (whitespace) and
// child (>) combinators. Comma groups are not supported; patterns declare
// one chain each.
type selector struct {
	parts []selectorPart
}

type selectorPart struct {
	// child is true when this part is joined to the previous one with >.
	child   bool
	tag     string
	id      string
	classes []string
	attrs   []attrMatch
}

type attrMatch struct {
	name  string
	value string
	exact bool // false means presence check only
}

// parseSelector parses a selector chain. It fails on empty input or empty
// compounds, so malformed patterns surface at registration or first use
// rather than silently matching nothing.
func parseSelector(s string) (*selector, error) {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty selector")
	}

	// A leading > anchors the first part to direct children of the
	// search root, which relative field locators rely on.
	sel := &selector{}
	child := false
	for _, tok := range tokens {
		if tok == ">" {
			if child {
				return nil, fmt.Errorf("selector %q: misplaced combinator", s)
			}
			child = true
			continue
		}

		part, err := parseCompound(tok)
		if err != nil {
			return nil, fmt.Errorf("selector %q: %w", s, err)
		}
		part.child = child
		child = false
		sel.parts = append(sel.parts, part)
	}

	if child {
		return nil, fmt.Errorf("selector %q: trailing combinator", s)
	}
	return sel, nil
}

// parseCompound parses one compound like div.item#main[href].
func parseCompound(tok string) (selectorPart, error) {
	var part selectorPart
	i := 0
	for i < len(tok) {
		switch tok[i] {
		case '.':
			j := simpleEnd(tok, i+1)
			if j == i+1 {
				return part, fmt.Errorf("empty class in %q", tok)
			}
			part.classes = append(part.classes, tok[i+1:j])
			i = j
		case '#':
			j := simpleEnd(tok, i+1)
			if j == i+1 {
				return part, fmt.Errorf("empty id in %q", tok)
			}
			part.id = tok[i+1 : j]
			i = j
		case '[':
			j := strings.IndexByte(tok[i:], ']')
			if j < 0 {
				return part, fmt.Errorf("unterminated attribute in %q", tok)
			}
			inner := tok[i+1 : i+j]
			if name, value, ok := strings.Cut(inner, "="); ok {
				value = strings.Trim(value, `"'`)
				part.attrs = append(part.attrs, attrMatch{name: name, value: value, exact: true})
			} else if inner != "" {
				part.attrs = append(part.attrs, attrMatch{name: inner})
			} else {
				return part, fmt.Errorf("empty attribute in %q", tok)
			}
			i += j + 1
		default:
			j := simpleEnd(tok, i)
			if j == i {
				return part, fmt.Errorf("unexpected %q in %q", tok[i], tok)
			}
			if part.tag != "" {
				return part, fmt.Errorf("duplicate tag in %q", tok)
			}
			part.tag = strings.ToLower(tok[i:j])
			i = j
		}
	}

	if part.tag == "" && part.id == "" && len(part.classes) == 0 && len(part.attrs) == 0 {
		return part, fmt.Errorf("empty compound %q", tok)
	}
	return part, nil
}

// simpleEnd returns the index after the identifier starting at i.
func simpleEnd(tok string, i int) int {
	for i < len(tok) {
		c := tok[i]
		if c == '.' || c == '#' || c == '[' {
			return i
		}
		i++
	}
	return i
}

// selectAll returns all elements under root matching the selector chain,
// in document order. Root itself is never a match candidate for the first
// part; matching starts at its descendants, so a relative locator applied
// to a matched element searches within that element.
func (s *selector) selectAll(root *html.Node) []*html.Node {
	current := []*html.Node{}
	if s.parts[0].child {
		for c := root.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && matchPart(c, s.parts[0]) {
				current = append(current, c)
			}
		}
	} else {
		walkElements(root, func(n *html.Node) {
			if matchPart(n, s.parts[0]) {
				current = append(current, n)
			}
		})
	}

	for _, part := range s.parts[1:] {
		var next []*html.Node
		seen := make(map[*html.Node]bool)
		for _, base := range current {
			if part.child {
				for c := base.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.ElementNode && matchPart(c, part) && !seen[c] {
						seen[c] = true
						next = append(next, c)
					}
				}
			} else {
				walkElements(base, func(n *html.Node) {
					if matchPart(n, part) && !seen[n] {
						seen[n] = true
						next = append(next, n)
					}
				})
			}
		}
		current = next
		if len(current) == 0 {
			break
		}
	}
	return current
}

// selectFirst returns the first match or nil.
func (s *selector) selectFirst(root *html.Node) *html.Node {
	matches := s.selectAll(root)
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

// walkElements visits every element strictly below root in document order.
func walkElements(root *html.Node, visit func(*html.Node)) {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			visit(c)
		}
		walkElements(c, visit)
	}
}

func matchPart(n *html.Node, part selectorPart) bool {
	if part.tag != "" && n.Data != part.tag {
		return false
	}
	if part.id != "" && attrValue(n, "id") != part.id {
		return false
	}
	for _, class := range part.classes {
		if !hasClass(n, class) {
			return false
		}
	}
	for _, am := range part.attrs {
		val, ok := lookupAttr(n, am.name)
		if !ok {
			return false
		}
		if am.exact && val != am.value {
			return false
		}
	}
	return true
}

func lookupAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func attrValue(n *html.Node, name string) string {
	v, _ := lookupAttr(n, name)
	return v
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// nodeText returns the concatenated text content of a node with
// whitespace collapsed, the way a browser's innerText reads.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
