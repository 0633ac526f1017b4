package llm

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/errors"
)

// setupTestRedis 连接本地 Redis 的 15 号库，不可用时跳过测试。
func setupTestRedis(t *testing.T) *goredis.Client {
	client := goredis.NewClient(&goredis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis 不可用，跳过测试: %v", err)
	}

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func TestCachedEmbeddingProvider(t *testing.T) {
	client := setupTestRedis(t)
	stub := &stubEmbedder{dim: 3}
	cached := NewCachedEmbeddingProvider(stub, client, &EmbeddingCacheConfig{
		TTL:       time.Minute,
		KeyPrefix: "test:emb:",
	}, func(s string) string { return s })

	ctx := context.Background()
	first, err := cached.Embed(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 1, stub.calls)

	// 第二次全部命中缓存
	second, err := cached.Embed(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, stub.calls)

	// 部分命中时只请求缺失的文本
	third, err := cached.Embed(ctx, []string{"b", "c"})
	require.NoError(t, err)
	assert.Equal(t, first[1], third[0])
	assert.Equal(t, 2, stub.calls)
}

func TestCachedEmbeddingProviderCountMismatch(t *testing.T) {
	client := setupTestRedis(t)
	stub := &stubEmbedder{dim: 3}
	cached := NewCachedEmbeddingProvider(stub, client, &EmbeddingCacheConfig{
		TTL:       time.Minute,
		KeyPrefix: "test:emb:mismatch:",
	}, func(s string) string { return s })

	ctx := context.Background()
	_, err := cached.Embed(ctx, []string{"a"})
	require.NoError(t, err)

	// "a" 命中缓存，只请求 "b"，供应商多返回一个向量，总数恰好等于输入数
	stub.drop = -1
	vectors, err := cached.Embed(ctx, []string{"a", "b"})
	require.Error(t, err)
	assert.Nil(t, vectors)
	assert.ErrorIs(t, err, errors.ErrContractViolation)

	_, err = NewOrderedEmbedder(cached, 3).Embed(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, errors.ErrContractViolation, "上层不能拿到错位的向量")

	n, err := client.Exists(ctx, "test:emb:mismatch:b").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "数量不一致时不写缓存")
}

func TestCachedEmbeddingProviderWithoutRedis(t *testing.T) {
	stub := &stubEmbedder{dim: 2}
	cached := NewCachedEmbeddingProvider(stub, nil, nil, func(s string) string { return s })

	vectors, err := cached.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Equal(t, "stub", cached.Name())
}
