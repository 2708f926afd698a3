// Package embedcache wraps a domain.Embedder with a bounded in-process
// cache keyed by text hash. Caching embeddings is safe for accuracy:
// the same text always maps to the same vector.
package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/fairyhunter13/cv-rag/internal/domain"
)

// Cache is a size-bounded embedding cache. Eviction is coarse: when the
// map exceeds the limit it is reset, which is adequate for a cache whose
// hit rate matters only within one ingestion or query burst.
type Cache struct {
	inner domain.Embedder
	max   int

	mu sync.RWMutex
	m  map[string][]float32
}

// New wraps an embedder with a cache of at most max entries.
func New(inner domain.Embedder, max int) *Cache {
	if max <= 0 {
		max = 1024
	}
	return &Cache{inner: inner, max: max, m: make(map[string][]float32)}
}

func key(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// EmbedTexts serves cached vectors and embeds only the misses.
func (c *Cache) EmbedTexts(ctx domain.Context, texts []string) (domain.EmbedResult, error) {
	out := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	c.mu.RLock()
	for i, t := range texts {
		if v, ok := c.m[key(t)]; ok {
			out[i] = v
		} else {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, t)
		}
	}
	c.mu.RUnlock()

	var res domain.EmbedResult
	if len(missTexts) > 0 {
		var err error
		res, err = c.inner.EmbedTexts(ctx, missTexts)
		if err != nil {
			return domain.EmbedResult{}, err
		}
		c.mu.Lock()
		if len(c.m)+len(missTexts) > c.max {
			c.m = make(map[string][]float32, c.max)
		}
		for j, i := range missIdx {
			out[i] = res.Embeddings[j]
			c.m[key(missTexts[j])] = res.Embeddings[j]
		}
		c.mu.Unlock()
	}
	return domain.EmbedResult{Embeddings: out, TokensUsed: res.TokensUsed, LatencyMS: res.LatencyMS}, nil
}

// EmbedQuery embeds one query through the cache.
func (c *Cache) EmbedQuery(ctx domain.Context, text string) ([]float32, error) {
	res, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return res.Embeddings[0], nil
}
