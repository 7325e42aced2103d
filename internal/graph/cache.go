package graph

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/yungbote/metagraph-backend/internal/domain"
)

// LineageCache holds complete, unpaginated traversal results keyed by
// (urn, direction, maxHops). Pagination is applied after the cache, so one
// traversal serves every page.
type LineageCache interface {
	Get(ctx context.Context, key string) (*domain.EntityLineageResult, bool)
	Set(ctx context.Context, key string, result *domain.EntityLineageResult)
}

func lineageCacheKey(urn domain.Urn, direction domain.LineageDirection, maxHops int) string {
	return fmt.Sprintf("lineage|%s|%s|%d", urn.String(), direction, maxHops)
}

// LocalLineageCache is the in-process default backed by go-cache.
type LocalLineageCache struct {
	cache *gocache.Cache
}

func NewLocalLineageCache(ttl time.Duration) *LocalLineageCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &LocalLineageCache{cache: gocache.New(ttl, 2*ttl)}
}

var _ LineageCache = (*LocalLineageCache)(nil)

func (c *LocalLineageCache) Get(ctx context.Context, key string) (*domain.EntityLineageResult, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*domain.EntityLineageResult), true
}

func (c *LocalLineageCache) Set(ctx context.Context, key string, result *domain.EntityLineageResult) {
	c.cache.Set(key, result, gocache.DefaultExpiration)
}

// NopLineageCache disables caching; every query traverses.
type NopLineageCache struct{}

func (NopLineageCache) Get(ctx context.Context, key string) (*domain.EntityLineageResult, bool) {
	return nil, false
}

func (NopLineageCache) Set(ctx context.Context, key string, result *domain.EntityLineageResult) {}
