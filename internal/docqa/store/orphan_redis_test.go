package store

import (
	"context"
	"testing"

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

func TestRedisOrphanQueue(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)

	q := NewRedisOrphanQueue(client, "docqa:test:orphans", "coll")
	client.Del(ctx, q.key, q.membersKey())
	t.Cleanup(func() { client.Del(ctx, q.key, q.membersKey()) })

	require.NoError(t, q.Enqueue(ctx, NewOrphans("coll", "doc_1", model.OrphanReasonIngestRollback, []string{"k1", "k2"})))
	require.NoError(t, q.Enqueue(ctx, NewOrphans("coll", "doc_1", model.OrphanReasonIngestRollback, []string{"k2", "k3"})))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	peeked, err := q.Peek(ctx, 10)
	require.NoError(t, err)
	require.Len(t, peeked, 3)
	assert.Equal(t, "k1", peeked[0].VectorID)

	require.NoError(t, q.MarkFailed(ctx, peeked[:1]))
	require.NoError(t, q.Remove(ctx, peeked[1:2]))

	rest, err := q.Peek(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "k3", rest[0].VectorID)
	assert.Equal(t, "k1", rest[1].VectorID)
	assert.Equal(t, 1, rest[1].Attempts)
}
