package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tz1211/datadetox/internal/domain/lineage"
	"github.com/tz1211/datadetox/internal/platform/logger"
	"github.com/tz1211/datadetox/internal/utils"
)

const lineageKeyPrefix = "lineage:"

// LineageCache is a read-through cache for lineage query results. A nil
// LineageCache means caching is disabled; callers nil-check before use.
type LineageCache interface {
	Get(ctx context.Context, entityID string) (*lineage.LineageResult, bool)
	Set(ctx context.Context, entityID string, result lineage.LineageResult)
	Invalidate(ctx context.Context) error
	Close() error
}

type lineageCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewLineageCache connects using REDIS_ADDR. An empty address disables
// caching and returns (nil, nil); a configured address that fails the ping
// is an error, so a misconfigured cache surfaces at startup rather than as
// silent misses.
func NewLineageCache(baseLog *logger.Logger) (LineageCache, error) {
	if baseLog == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}

	ttlSeconds := utils.GetEnvAsInt("LINEAGE_CACHE_TTL_SECONDS", 300, baseLog)
	if ttlSeconds <= 0 {
		ttlSeconds = 300
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

	return &lineageCache{
		log: baseLog.With("service", "LineageCache"),
		rdb: rdb,
		ttl: time.Duration(ttlSeconds) * time.Second,
	}, nil
}

func lineageKey(entityID string) string { return lineageKeyPrefix + entityID }

// Get returns a cached result. Any redis failure degrades to a miss.
func (c *lineageCache) Get(ctx context.Context, entityID string) (*lineage.LineageResult, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, lineageKey(entityID)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.log.Warn("lineage cache read failed", "entity_id", entityID, "error", err)
		}
		return nil, false
	}
	var out lineage.LineageResult
	if err := json.Unmarshal(raw, &out); err != nil {
		c.log.Warn("dropping undecodable lineage cache entry", "entity_id", entityID, "error", err)
		_ = c.rdb.Del(ctx, lineageKey(entityID)).Err()
		return nil, false
	}
	return &out, true
}

// Set stores a result under the configured TTL. Failures are logged only;
// the caller already holds the result.
func (c *lineageCache) Set(ctx context.Context, entityID string, result lineage.LineageResult) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		c.log.Warn("lineage cache encode failed", "entity_id", entityID, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, lineageKey(entityID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("lineage cache write failed", "entity_id", entityID, "error", err)
	}
}

// Invalidate removes every cached lineage entry. The load stage calls it
// after rewriting the graph so stale neighborhoods never outlive a reload.
func (c *lineageCache) Invalidate(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	iter := c.rdb.Scan(ctx, 0, lineageKeyPrefix+"*", 100).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			c.log.Warn("lineage cache delete failed", "key", iter.Val(), "error", err)
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("lineage cache scan: %w", err)
	}
	if deleted > 0 {
		c.log.Info("lineage cache invalidated", "entries", deleted)
	}
	return nil
}

func (c *lineageCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
