package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"

	"github.com/hubenschmidt/go-resurface/core"
)

// CacheConfig configures a Cache.
type CacheConfig struct {
	// MaxEntries bounds the cache. Zero keeps every vector for the life of
	// the cache.
	MaxEntries int
	Logger     *slog.Logger
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	ProviderCalls uint64 `json:"provider_calls"`
	Entries       int    `json:"entries"`
}

// Cache memoizes provider output keyed by a SHA-256 digest of the exact
// text. Callers always receive a copy of the cached vector.
//
// Two concurrent misses for the same text may both call the provider; the
// vectors are equivalent so the last write wins.
type Cache struct {
	provider Provider
	entries  backend
	logger   *slog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
	calls  atomic.Uint64
}

// NewCache wraps provider with a cache.
func NewCache(provider Provider, cfg CacheConfig) (*Cache, error) {
	if provider == nil {
		return nil, fmt.Errorf("embedding cache: nil provider")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var entries backend = newMapBackend()
	if cfg.MaxEntries > 0 {
		b, err := newRistrettoBackend(cfg.MaxEntries)
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		entries = b
	}

	return &Cache{
		provider: provider,
		entries:  entries,
		logger:   logger.With("component", "embedding"),
	}, nil
}

// Key returns the cache key for text.
func Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get returns the embedding for text, calling the provider on a miss.
func (c *Cache) Get(ctx context.Context, text string) ([]float64, error) {
	key := Key(text)
	if v, ok := c.entries.get(key); ok {
		c.hits.Add(1)
		return slices.Clone(v), nil
	}
	c.misses.Add(1)

	out, err := c.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	c.entries.set(key, out[0])
	return slices.Clone(out[0]), nil
}

// GetBatch returns embeddings for texts in input order. Texts not cached are
// sent to the provider in a single call, first occurrence order.
func (c *Cache) GetBatch(ctx context.Context, texts []string) ([][]float64, error) {
	results := make([][]float64, len(texts))
	keys := make([]string, len(texts))

	pending := make(map[string][]int)
	var missing []string
	for i, text := range texts {
		keys[i] = Key(text)
		if v, ok := c.entries.get(keys[i]); ok {
			c.hits.Add(1)
			results[i] = slices.Clone(v)
			continue
		}
		c.misses.Add(1)
		if _, seen := pending[keys[i]]; !seen {
			missing = append(missing, text)
		}
		pending[keys[i]] = append(pending[keys[i]], i)
	}

	if len(missing) == 0 {
		return results, nil
	}

	out, err := c.embed(ctx, missing)
	if err != nil {
		return nil, err
	}

	for j, text := range missing {
		key := Key(text)
		c.entries.set(key, out[j])
		for _, i := range pending[key] {
			results[i] = slices.Clone(out[j])
		}
	}

	c.logger.Debug("batch embedded", "requested", len(texts), "computed", len(missing))
	return results, nil
}

func (c *Cache) embed(ctx context.Context, texts []string) ([][]float64, error) {
	c.calls.Add(1)

	out, err := c.provider.Embed(ctx, texts)
	if err != nil {
		c.logger.Warn("provider failed", "texts", len(texts), "error", err)
		return nil, core.ProviderError("embed", err)
	}
	if err := validate(texts, out, c.provider.Dimensions()); err != nil {
		c.logger.Warn("provider returned malformed output", "error", err)
		return nil, core.ProviderError("embed", err)
	}
	return out, nil
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		ProviderCalls: c.calls.Load(),
		Entries:       c.entries.len(),
	}
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	return c.entries.len()
}

// Dimensions returns the underlying provider's vector size.
func (c *Cache) Dimensions() int {
	return c.provider.Dimensions()
}

// Close releases the bounded backend, if any.
func (c *Cache) Close() {
	c.entries.close()
}

type backend interface {
	get(key string) ([]float64, bool)
	set(key string, v []float64)
	len() int
	close()
}

type mapBackend struct {
	mu sync.RWMutex
	m  map[string][]float64
}

func newMapBackend() *mapBackend {
	return &mapBackend{m: make(map[string][]float64)}
}

func (b *mapBackend) get(key string) ([]float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.m[key]
	return v, ok
}

func (b *mapBackend) set(key string, v []float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[key] = slices.Clone(v)
}

func (b *mapBackend) len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.m)
}

func (b *mapBackend) close() {}

// ristrettoBackend bounds the cache by entry count; every vector costs 1.
type ristrettoBackend struct {
	c *ristretto.Cache
}

func newRistrettoBackend(maxEntries int) (*ristrettoBackend, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(maxEntries) * 10,
		MaxCost:     int64(maxEntries),
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &ristrettoBackend{c: c}, nil
}

func (b *ristrettoBackend) get(key string) ([]float64, bool) {
	v, ok := b.c.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]float64), true
}

// set waits for the write to be applied so an immediate get observes it.
// Admission may still reject the entry, which only costs a later miss.
func (b *ristrettoBackend) set(key string, v []float64) {
	b.c.Set(key, slices.Clone(v), 1)
	b.c.Wait()
}

func (b *ristrettoBackend) len() int {
	m := b.c.Metrics
	if m == nil {
		return 0
	}
	return int(m.KeysAdded() - m.KeysEvicted())
}

func (b *ristrettoBackend) close() {
	b.c.Close()
}
