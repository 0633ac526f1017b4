package biz

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/model"
)

func newTestRedis(t *testing.T) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379", DB: 15})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis 不可用，跳过测试: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestQueryCacheDisabled(t *testing.T) {
	var nilCache *QueryCache
	got, err := nilCache.Get(context.Background(), 0, "q")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, nilCache.Set(context.Background(), 0, "q", &model.QueryResult{}))
	assert.NoError(t, nilCache.Invalidate(context.Background()))

	c := NewQueryCache(nil, nil)
	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, stats.Enabled)
}

func TestQueryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)

	c := NewQueryCache(client, &QueryCacheConfig{Enabled: true, TTL: time.Minute, KeyPrefix: "docqa:test:answer:"})
	require.NoError(t, c.Clear(ctx))
	t.Cleanup(func() { _ = c.Clear(ctx) })

	gen, err := c.Generation(ctx)
	require.NoError(t, err)

	got, err := c.Get(ctx, gen, "What is X?")
	require.NoError(t, err)
	assert.Nil(t, got, "首次查询未命中")

	result := &model.QueryResult{
		Answer:  "X is a letter.",
		Sources: []model.ChunkSource{{DocumentID: "doc_1", VectorID: "k1", Content: "X", Distance: 0.1}},
	}
	require.NoError(t, c.Set(ctx, gen, "What is X?", result))

	// 大小写与空白归一化后命中同一个键
	got, err = c.Get(ctx, gen, "  what   is x? ")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, result.Answer, got.Answer)
	assert.True(t, got.Cached)
	assert.Len(t, got.Sources, 1)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Keys)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)

	require.NoError(t, c.Clear(ctx))
	gen, err = c.Generation(ctx)
	require.NoError(t, err)
	got, err = c.Get(ctx, gen, "What is X?")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueryCacheStaleWriteAfterInvalidate(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)

	c := NewQueryCache(client, &QueryCacheConfig{Enabled: true, TTL: time.Minute, KeyPrefix: "docqa:test:stale:"})
	require.NoError(t, c.Clear(ctx))
	t.Cleanup(func() {
		_ = c.Clear(ctx)
		_ = client.Del(ctx, c.generationKey()).Err()
	})

	// 查询在入库之前读取代数
	before, err := c.Generation(ctx)
	require.NoError(t, err)

	// 入库完成并使缓存失效
	require.NoError(t, c.Invalidate(ctx))

	// 旧查询的异步写入晚于失效到达
	require.NoError(t, c.Set(ctx, before, "q", &model.QueryResult{Answer: "stale"}))

	after, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.Greater(t, after, before)

	got, err := c.Get(ctx, after, "q")
	require.NoError(t, err)
	assert.Nil(t, got, "失效之后写入的旧答案不能被读到")

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Keys)

	require.NoError(t, c.Purge(ctx))
	n, err := client.Exists(ctx, c.key(before, "q")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "旧代数的键被清理")
}
