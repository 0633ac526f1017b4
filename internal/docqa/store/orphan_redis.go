package store

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// RedisOrphanQueue 将待清理向量保存在 Redis 列表中。
// 列表保存条目的 JSON，集合 <key>:members 用于入队去重。
type RedisOrphanQueue struct {
	redis      *goredis.Client
	key        string
	collection string
}

var _ OrphanQueue = (*RedisOrphanQueue)(nil)

// NewRedisOrphanQueue 创建基于 Redis 的清理队列，每个集合使用独立的列表。
func NewRedisOrphanQueue(redis *goredis.Client, keyPrefix, collection string) *RedisOrphanQueue {
	return &RedisOrphanQueue{
		redis:      redis,
		key:        keyPrefix + ":" + collection,
		collection: collection,
	}
}

func (q *RedisOrphanQueue) membersKey() string {
	return q.key + ":members"
}

// Enqueue 入队。
func (q *RedisOrphanQueue) Enqueue(ctx context.Context, orphans []*model.OrphanVector) error {
	if len(orphans) == 0 {
		return nil
	}

	pipe := q.redis.Pipeline()
	added := make([]*goredis.IntCmd, len(orphans))
	for i, o := range orphans {
		added[i] = pipe.SAdd(ctx, q.membersKey(), o.VectorID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.ErrCache.WithCause(err)
	}

	now := time.Now().UTC()
	payloads := make([]interface{}, 0, len(orphans))
	for i, o := range orphans {
		if added[i].Val() == 0 {
			continue
		}
		o.Collection = q.collection
		o.CreatedAt = now
		o.UpdatedAt = now
		data, err := json.Marshal(o)
		if err != nil {
			return errors.ErrInternal.WithCause(err)
		}
		payloads = append(payloads, data)
	}
	if len(payloads) == 0 {
		return nil
	}
	if err := q.redis.RPush(ctx, q.key, payloads...).Err(); err != nil {
		return errors.ErrCache.WithCause(err)
	}
	return nil
}

// Peek 返回列表头部的条目。无法解析的条目被丢弃。
func (q *RedisOrphanQueue) Peek(ctx context.Context, limit int) ([]*model.OrphanVector, error) {
	if limit <= 0 {
		return []*model.OrphanVector{}, nil
	}
	raw, err := q.redis.LRange(ctx, q.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, errors.ErrCache.WithCause(err)
	}

	orphans := make([]*model.OrphanVector, 0, len(raw))
	for _, item := range raw {
		var o model.OrphanVector
		if err := json.Unmarshal([]byte(item), &o); err != nil {
			_ = q.redis.LRem(ctx, q.key, 1, item).Err()
			continue
		}
		orphans = append(orphans, &o)
	}
	return orphans, nil
}

// Remove 删除条目。
func (q *RedisOrphanQueue) Remove(ctx context.Context, orphans []*model.OrphanVector) error {
	if len(orphans) == 0 {
		return nil
	}
	_, err := q.redis.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, o := range orphans {
			data, err := json.Marshal(o)
			if err != nil {
				return err
			}
			pipe.LRem(ctx, q.key, 1, data)
			pipe.SRem(ctx, q.membersKey(), o.VectorID)
		}
		return nil
	})
	if err != nil {
		return errors.ErrCache.WithCause(err)
	}
	return nil
}

// MarkFailed 增加尝试次数并将条目移到队尾。
func (q *RedisOrphanQueue) MarkFailed(ctx context.Context, orphans []*model.OrphanVector) error {
	if len(orphans) == 0 {
		return nil
	}
	_, err := q.redis.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, o := range orphans {
			old, err := json.Marshal(o)
			if err != nil {
				return err
			}
			updated := *o
			updated.Attempts++
			data, err := json.Marshal(&updated)
			if err != nil {
				return err
			}
			pipe.LRem(ctx, q.key, 1, old)
			pipe.RPush(ctx, q.key, data)
		}
		return nil
	})
	if err != nil {
		return errors.ErrCache.WithCause(err)
	}
	for _, o := range orphans {
		o.Attempts++
	}
	return nil
}

// Len 返回队列长度。
func (q *RedisOrphanQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.redis.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, errors.ErrCache.WithCause(err)
	}
	return n, nil
}
