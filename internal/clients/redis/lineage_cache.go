package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/metagraph-backend/internal/domain"
	"github.com/yungbote/metagraph-backend/internal/graph"
	"github.com/yungbote/metagraph-backend/internal/platform/logger"
)

// LineageCache is the shared-process variant of graph.LineageCache: JSON
// blobs in redis with a TTL, so several query nodes reuse one traversal.
type LineageCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewLineageCache builds a cache from REDIS_ADDR. A missing address returns
// (nil, nil) so callers can fall back to the in-process cache.
func NewLineageCache(log *logger.Logger, ttl time.Duration) (*LineageCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &LineageCache{
		log: log.With("client", "RedisLineageCache"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

var _ graph.LineageCache = (*LineageCache)(nil)

func (c *LineageCache) Get(ctx context.Context, key string) (*domain.EntityLineageResult, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.log.Warn("Lineage cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var result domain.EntityLineageResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.log.Warn("Lineage cache entry corrupt, dropping", "key", key, "error", err)
		_ = c.rdb.Del(ctx, key).Err()
		return nil, false
	}
	return &result, true
}

func (c *LineageCache) Set(ctx context.Context, key string, result *domain.EntityLineageResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		c.log.Warn("Lineage cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("Lineage cache write failed", "key", key, "error", err)
	}
}

func (c *LineageCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
