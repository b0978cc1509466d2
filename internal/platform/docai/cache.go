package docai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedExtractor decorates an Extractor with in-memory caching keyed by the
// request content, so re-submitting the same document does not trigger
// another billed model call.
type CachedExtractor struct {
	inner Extractor
	cache *gocache.Cache
	ttl   time.Duration

	hits    atomic.Uint64
	lookups atomic.Uint64
}

// NewCached wraps inner with a response cache.
func NewCached(inner Extractor, ttl time.Duration, cleanupInterval time.Duration) *CachedExtractor {
	return &CachedExtractor{
		inner: inner,
		cache: gocache.New(ttl, cleanupInterval),
		ttl:   ttl,
	}
}

// Name returns the underlying provider name.
func (c *CachedExtractor) Name() string {
	return c.inner.Name()
}

// Available delegates to the underlying provider.
func (c *CachedExtractor) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// ExtractFields returns a cached result when the same content was already
// extracted, otherwise calls through. Errors are not cached.
func (c *CachedExtractor) ExtractFields(ctx context.Context, req Request) (*Result, error) {
	key := requestKey(req)

	c.lookups.Add(1)
	if val, found := c.cache.Get(key); found {
		c.hits.Add(1)
		cached := val.(Result)
		return &cached, nil
	}

	res, err := c.inner.ExtractFields(ctx, req)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, *res, c.ttl)
	return res, nil
}

// Hits reports how many lookups were served from the cache.
func (c *CachedExtractor) Hits() uint64 {
	return c.hits.Load()
}

// Lookups reports the total number of cache lookups.
func (c *CachedExtractor) Lookups() uint64 {
	return c.lookups.Load()
}

func requestKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.Text))
	h.Write([]byte{0})
	h.Write(req.ImageData)
	h.Write([]byte{0})
	h.Write([]byte(req.ImageMIME))
	return hex.EncodeToString(h.Sum(nil))
}
