// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/net/html"

	"github.com/pdiddy/knowledge-engine/pkg/types"
)

const defaultCacheSize = 64

// parseCache memoizes parsed HTML documents keyed by content hash, so a
// batch extracting from the same page with many patterns parses it once.
// Eviction is oldest-first insertion order; parsed trees are read-only
// after insertion.
type parseCache struct {
	mu    sync.Mutex
	max   int
	docs  map[string]*html.Node
	order []string

	hits   atomic.Int64
	misses atomic.Int64
}

func newParseCache(max int) *parseCache {
	if max <= 0 {
		max = defaultCacheSize
	}
	return &parseCache{max: max, docs: make(map[string]*html.Node)}
}

// parse returns the document tree for content, from cache when possible.
func (c *parseCache) parse(content string) (*html.Node, error) {
	key := fmt.Sprintf("%x", sha256.Sum256([]byte(content)))

	c.mu.Lock()
	if doc, ok := c.docs[key]; ok {
		c.mu.Unlock()
		c.hits.Add(1)
		return doc, nil
	}
	c.mu.Unlock()
	c.misses.Add(1)

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[key]; !ok {
		if len(c.order) >= c.max {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.docs, oldest)
		}
		c.docs[key] = doc
		c.order = append(c.order, key)
	}
	return doc, nil
}

// metrics reports current size and lifetime hit rate.
func (c *parseCache) metrics() types.CacheMetrics {
	c.mu.Lock()
	size := len(c.docs)
	c.mu.Unlock()

	hits := c.hits.Load()
	total := hits + c.misses.Load()
	rate := 0.0
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	return types.CacheMetrics{Size: size, HitRate: rate}
}
