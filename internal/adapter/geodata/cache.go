package geodata

import (
	"context"
	"errors"
	"log/slog"

	"github.com/epimap/epi-signal-etl/internal/store"
)

// cacheKey names the boundary document in the side cache table.
const cacheKey = "geojson_counties"

// Cache is the opaque key→text blob store used as a side cache.
type Cache interface {
	CacheGet(ctx context.Context, key string) (string, error)
	CacheSet(ctx context.Context, key, value string) error
}

// CachedProvider wraps a Provider with the store's cache table. Cache
// failures degrade to a direct fetch; a successful fetch repopulates the
// cache best-effort.
type CachedProvider struct {
	inner  Provider
	cache  Cache
	logger *slog.Logger
}

// NewCachedProvider creates a cache decorator around a boundary provider.
func NewCachedProvider(inner Provider, cache Cache, logger *slog.Logger) *CachedProvider {
	return &CachedProvider{
		inner:  inner,
		cache:  cache,
		logger: logger,
	}
}

func (p *CachedProvider) CountiesGeoJSON(ctx context.Context) (string, error) {
	cached, err := p.cache.CacheGet(ctx, cacheKey)
	if err == nil && cached != "" {
		return cached, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		p.logger.Warn("boundary cache read failed", "error", err)
	}

	text, err := p.inner.CountiesGeoJSON(ctx)
	if err != nil {
		return "", err
	}

	if err := p.cache.CacheSet(ctx, cacheKey, text); err != nil {
		p.logger.Warn("boundary cache write failed", "error", err)
	}
	return text, nil
}

// Warm pre-populates the cache so the first frontend request does not pay
// the upstream fetch. Failures are logged, never fatal: the cache is a side
// concern.
func (p *CachedProvider) Warm(ctx context.Context) {
	if _, err := p.CountiesGeoJSON(ctx); err != nil {
		p.logger.Warn("boundary cache warm failed", "error", err)
	}
}
