package biz

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// QueryCacheConfig 查询缓存配置。
type QueryCacheConfig struct {
	// Enabled 是否启用缓存。
	Enabled bool
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀。
	KeyPrefix string
}

// CacheStats 缓存统计。
type CacheStats struct {
	Enabled   bool   `json:"enabled"`
	Keys      int    `json:"keys"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	TTL       string `json:"ttl,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
}

// QueryCache 查询结果缓存。nil 或未启用时所有操作为空操作。
type QueryCache struct {
	redis  *goredis.Client
	config *QueryCacheConfig

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewQueryCache 创建查询缓存实例。
func NewQueryCache(redis *goredis.Client, config *QueryCacheConfig) *QueryCache {
	if config == nil {
		config = &QueryCacheConfig{
			Enabled:   false,
			TTL:       time.Hour,
			KeyPrefix: "docqa:answer:",
		}
	}
	return &QueryCache{redis: redis, config: config}
}

func (c *QueryCache) enabled() bool {
	return c != nil && c.config.Enabled && c.redis != nil
}

// generationKey 保存当前缓存代数，不在答案键的扫描范围内参与统计与清理。
func (c *QueryCache) generationKey() string {
	return c.config.KeyPrefix + "generation"
}

func (c *QueryCache) entryPrefix(generation int64) string {
	return fmt.Sprintf("%s%d:", c.config.KeyPrefix, generation)
}

// key 基于缓存代数与归一化后的问题生成缓存键。
func (c *QueryCache) key(generation int64, query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return c.entryPrefix(generation) + textutil.HashString(normalized)
}

// Generation 返回当前缓存代数。
// 查询开始时读取代数，写入时使用同一代数；期间发生的失效会让这次写入永远不再被读到。
func (c *QueryCache) Generation(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	gen, err := c.redis.Get(ctx, c.generationKey()).Int64()
	if err != nil {
		if stderrors.Is(err, goredis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return gen, nil
}

// Get 从指定代数的缓存获取查询结果。未命中时返回 nil, nil。
func (c *QueryCache) Get(ctx context.Context, generation int64, query string) (*model.QueryResult, error) {
	if !c.enabled() {
		return nil, nil
	}

	key := c.key(generation, query)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if stderrors.Is(err, goredis.Nil) {
			c.misses.Add(1)
			logger.Debugw("cache miss", "key", key)
			return nil, nil
		}
		logger.Warnw("failed to get from cache", "error", err.Error(), "key", key)
		return nil, err
	}

	var result model.QueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warnw("failed to unmarshal cached result", "error", err.Error(), "key", key)
		// 删除损坏的缓存
		_ = c.redis.Del(ctx, key).Err()
		return nil, err
	}

	c.hits.Add(1)
	result.Cached = true
	logger.Debugw("cache hit", "key", key)
	return &result, nil
}

// Set 将查询结果写入指定代数的缓存。
func (c *QueryCache) Set(ctx context.Context, generation int64, query string, result *model.QueryResult) error {
	if !c.enabled() {
		return nil
	}

	key := c.key(generation, query)
	data, err := json.Marshal(result)
	if err != nil {
		logger.Warnw("failed to marshal result for caching", "error", err.Error())
		return err
	}

	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to set cache", "error", err.Error(), "key", key)
		return err
	}
	return nil
}

// Invalidate 递增缓存代数，之前所有代数的答案立即失效。
func (c *QueryCache) Invalidate(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	gen, err := c.redis.Incr(ctx, c.generationKey()).Result()
	if err != nil {
		logger.Warnw("failed to bump cache generation", "error", err.Error())
		return err
	}
	logger.Debugw("answer cache invalidated", "generation", gen)
	return nil
}

// Purge 删除非当前代数的答案缓存。
func (c *QueryCache) Purge(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	gen, err := c.Generation(ctx)
	if err != nil {
		return err
	}
	current := c.entryPrefix(gen)
	genKey := c.generationKey()

	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 0).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		key := iter.Val()
		if key == genKey || strings.HasPrefix(key, current) {
			continue
		}
		if err := c.redis.Del(ctx, key).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "error", err.Error(), "key", key)
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		logger.Warnw("error during cache scan", "error", err.Error())
		return err
	}

	logger.Infow("purged stale answer cache", "deleted_count", deleted, "generation", gen)
	return nil
}

// Clear 清除所有答案缓存。文档变更后已缓存的答案不再可靠。
func (c *QueryCache) Clear(ctx context.Context) error {
	if err := c.Invalidate(ctx); err != nil {
		return err
	}
	return c.Purge(ctx)
}

// Stats 获取缓存统计信息。
func (c *QueryCache) Stats(ctx context.Context) (*CacheStats, error) {
	if !c.enabled() {
		return &CacheStats{Enabled: false}, nil
	}

	gen, err := c.Generation(ctx)
	if err != nil {
		return nil, err
	}
	iter := c.redis.Scan(ctx, 0, c.entryPrefix(gen)+"*", 0).Iterator()
	keys := 0
	for iter.Next(ctx) {
		keys++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return &CacheStats{
		Enabled:   true,
		Keys:      keys,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		TTL:       c.config.TTL.String(),
		KeyPrefix: c.config.KeyPrefix,
	}, nil
}
