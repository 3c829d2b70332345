package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of embeddings to keep in memory.
const DefaultCacheSize = 1000

// CachedProvider wraps a Provider with LRU caching so repeated texts
// (typically queries) skip the inner provider entirely.
type CachedProvider struct {
	inner Provider
	cache *lru.Cache[string, *Embedding]
}

// NewCachedProvider creates a cached provider wrapping inner.
func NewCachedProvider(inner Provider, cacheSize int) *CachedProvider {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, *Embedding](cacheSize)
	return &CachedProvider{
		inner: inner,
		cache: cache,
	}
}

// cacheKey hashes text together with the model name so switching models
// never serves stale vectors.
func (c *CachedProvider) cacheKey(text string) string {
	combined := text + "\x00" + c.inner.ModelName()
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// Embed returns the cached embedding if present, otherwise computes and
// caches it.
func (c *CachedProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	key := c.cacheKey(text)

	if emb, ok := c.cache.Get(key); ok {
		return emb, nil
	}

	emb, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, emb)
	return emb, nil
}

// EmbedBatch checks the cache per text and forwards only misses.
func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	uncachedIndices := make([]int, 0, len(texts))
	uncachedTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if emb, ok := c.cache.Get(c.cacheKey(text)); ok {
			results[i] = emb.Vector
		} else {
			uncachedIndices = append(uncachedIndices, i)
			uncachedTexts = append(uncachedTexts, text)
		}
	}

	if len(uncachedTexts) == 0 {
		return results, nil
	}

	vectors, err := c.inner.EmbedBatch(ctx, uncachedTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range uncachedIndices {
		results[idx] = vectors[j]
		c.cache.Add(c.cacheKey(texts[idx]), &Embedding{
			Vector:     vectors[j],
			TokenCount: estimateTokens(texts[idx]),
		})
	}

	return results, nil
}

// ValidateKey passes through to the inner provider.
func (c *CachedProvider) ValidateKey(ctx context.Context) (bool, error) {
	return c.inner.ValidateKey(ctx)
}

// Dimensions passes through to the inner provider.
func (c *CachedProvider) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName passes through to the inner provider.
func (c *CachedProvider) ModelName() string {
	return c.inner.ModelName()
}

// Inner returns the wrapped provider, for access to variant-specific
// features like the local provider's progress side-channel.
func (c *CachedProvider) Inner() Provider {
	return c.inner
}

// Close closes the inner provider.
func (c *CachedProvider) Close() error {
	return c.inner.Close()
}
