package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"go.uber.org/zap"

	"inkwright/internal/catalog"
)

// Persistence is the durable tier behind the in-memory cache: the store's
// token_cache table, keyed (resource, model, content hash).
type Persistence interface {
	CachedTokenCount(ctx context.Context, resourceID, modelID, contentHash string) (int, bool, error)
	PutTokenCount(ctx context.Context, resourceID, modelID, contentHash string, count int) error
}

// Cache memoizes token counts keyed by a content hash of the text combined
// with the model ID. Hashing the text (rather than trusting an entity ID)
// guarantees that an edit invalidates the cached count.
type Cache struct {
	counter Counter
	persist Persistence
	logger  *zap.Logger

	mu     sync.RWMutex
	counts map[cacheKey]int
	hits   uint64
	misses uint64
}

type cacheKey struct {
	contentHash string
	modelID     string
}

// NewCache wraps counter with a content-hash cache.
func NewCache(counter Counter, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		counter: counter,
		logger:  logger.Named("token"),
		counts:  make(map[cacheKey]int),
	}
}

// WithPersistence attaches a durable tier. Resource counts read through it
// and write back, so counts survive process restarts and surface in
// resource listings.
func (c *Cache) WithPersistence(p Persistence) *Cache {
	c.persist = p
	return c
}

// HashText returns the cache key hash for a text fragment.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Count returns the token count of text for modelID. An unknown model is a
// ConfigError and is never retried.
func (c *Cache) Count(ctx context.Context, text, modelID string) (int, error) {
	return c.count(ctx, "", text, modelID)
}

// CountResource counts a resource's text, consulting the durable tier keyed
// by the resource ID. A persisted count whose content hash no longer matches
// the text is a miss (the store evicts the stale row) and the text is
// recounted and written back.
func (c *Cache) CountResource(ctx context.Context, resourceID, text, modelID string) (int, error) {
	return c.count(ctx, resourceID, text, modelID)
}

func (c *Cache) count(ctx context.Context, resourceID, text, modelID string) (int, error) {
	if _, err := catalog.Lookup(modelID); err != nil {
		return 0, err
	}
	if text == "" {
		return 0, nil
	}

	key := cacheKey{contentHash: HashText(text), modelID: modelID}

	c.mu.RLock()
	n, ok := c.counts[key]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return n, nil
	}

	if c.persist != nil && resourceID != "" {
		n, ok, err := c.persist.CachedTokenCount(ctx, resourceID, modelID, key.contentHash)
		if err != nil {
			return 0, err
		}
		if ok {
			c.mu.Lock()
			c.counts[key] = n
			c.hits++
			c.mu.Unlock()
			return n, nil
		}
	}

	n, err := c.counter.Count(ctx, text, modelID)
	if err != nil {
		return 0, err
	}

	if c.persist != nil && resourceID != "" {
		if err := c.persist.PutTokenCount(ctx, resourceID, modelID, key.contentHash, n); err != nil {
			c.logger.Warn("failed to persist token count",
				zap.String("resource", resourceID),
				zap.String("model", modelID),
				zap.Error(err))
		}
	}

	c.mu.Lock()
	c.counts[key] = n
	c.misses++
	c.mu.Unlock()

	c.logger.Debug("token count cached",
		zap.String("model", modelID),
		zap.Int("tokens", n))
	return n, nil
}

// MaxInputTokens returns the model's input window from the registry.
func (c *Cache) MaxInputTokens(modelID string) (int, error) {
	p, err := catalog.Lookup(modelID)
	if err != nil {
		return 0, err
	}
	return p.MaxInputTokens, nil
}

// MaxOutputTokens returns the model's output reservation from the registry.
func (c *Cache) MaxOutputTokens(modelID string) (int, error) {
	p, err := catalog.Lookup(modelID)
	if err != nil {
		return 0, err
	}
	return p.MaxOutputTokens, nil
}

// Stats returns cache hit/miss counters.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Reset clears all cached counts.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = make(map[cacheKey]int)
	c.hits, c.misses = 0, 0
}
