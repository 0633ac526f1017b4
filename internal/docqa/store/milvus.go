package store

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kart-io/docqa/pkg/component/milvus"
	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/infra/tracing"
)

const activateTimeout = 2 * time.Minute

// vectorClient is the subset of the Milvus client the store uses.
type vectorClient interface {
	EnsureCollection(ctx context.Context, spec milvus.CollectionSpec) (bool, error)
	Load(ctx context.Context, collection string) error
	Insert(ctx context.Context, collection string, rows []milvus.Row) ([]string, error)
	Search(ctx context.Context, collection string, vector []float32, topK, nprobe int) ([]milvus.SearchResult, error)
	DeleteByKeys(ctx context.Context, collection string, keys []string) error
	RowCount(ctx context.Context, collection string) (int64, error)
	Close() error
}

// MilvusConfig 集合配置。
type MilvusConfig struct {
	Collection string
	Dimension  int
	NList      int
	NProbe     int
}

// MilvusStore 实现基于 Milvus 的向量存储。
type MilvusStore struct {
	client vectorClient
	config MilvusConfig

	// 并发的加载请求共享同一次调用，不同集合互不阻塞
	activation singleflight.Group
}

var _ VectorStore = (*MilvusStore)(nil)

// NewMilvusStore 创建 Milvus 存储实例。
func NewMilvusStore(client *milvus.Client, config MilvusConfig) *MilvusStore {
	return newMilvusStore(client, config)
}

func newMilvusStore(client vectorClient, config MilvusConfig) *MilvusStore {
	return &MilvusStore{client: client, config: config}
}

// Collection 返回集合名称。
func (s *MilvusStore) Collection() string {
	return s.config.Collection
}

// EnsureCollection 创建集合（如不存在）。
func (s *MilvusStore) EnsureCollection(ctx context.Context) error {
	_, err := s.client.EnsureCollection(ctx, milvus.CollectionSpec{
		Name:      s.config.Collection,
		Dimension: s.config.Dimension,
		NList:     s.config.NList,
	})
	if err != nil {
		return errors.ErrVectorIndexUnavailable.WithCause(err)
	}
	return nil
}

// Insert 批量写入向量。
// 写入成功但刷新失败时同时返回已确认的主键与错误，调用方需要补偿。
func (s *MilvusStore) Insert(ctx context.Context, records []VectorRecord) (ids []string, err error) {
	ctx, span := tracing.StartSpan(ctx, "docqa.insert",
		tracing.String(tracing.AttrCollection, s.config.Collection),
		tracing.Int(tracing.AttrChunks, len(records)))
	defer func() { tracing.End(span, err) }()

	rows := make([]milvus.Row, len(records))
	for i, r := range records {
		rows[i] = milvus.Row{Key: r.Key, DocumentID: r.DocumentID, Vector: r.Vector}
	}

	ids, err = s.client.Insert(ctx, s.config.Collection, rows)
	if err != nil {
		return ids, errors.ErrVectorIndexUnavailable.WithCause(err)
	}
	return ids, nil
}

// Activate 加载集合。
func (s *MilvusStore) Activate(ctx context.Context) (err error) {
	ctx, span := tracing.StartSpan(ctx, "docqa.activate",
		tracing.String(tracing.AttrCollection, s.config.Collection))
	defer func() { tracing.End(span, err) }()

	ch := s.activation.DoChan(s.config.Collection, func() (interface{}, error) {
		// 共享调用不随单个请求取消
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), activateTimeout)
		defer cancel()
		return nil, s.client.Load(loadCtx, s.config.Collection)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return errors.ErrVectorIndexUnavailable.WithCause(res.Err)
		}
		return nil
	case <-ctx.Done():
		return errors.ErrRequestTimeout.WithCause(ctx.Err())
	}
}

// Search 相似度检索。
func (s *MilvusStore) Search(ctx context.Context, vector []float32, k int) (hits []Hit, err error) {
	ctx, span := tracing.StartSpan(ctx, "docqa.search",
		tracing.String(tracing.AttrCollection, s.config.Collection),
		tracing.Int(tracing.AttrTopK, k))
	defer func() { tracing.End(span, err) }()

	results, err := s.client.Search(ctx, s.config.Collection, vector, k, s.config.NProbe)
	if err != nil {
		return nil, errors.ErrVectorIndexUnavailable.WithCause(err)
	}

	hits = make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{VectorID: r.Key, DocumentID: r.DocumentID, Distance: r.Distance}
	}
	span.SetAttributes(tracing.Int(tracing.AttrHits, len(hits)))
	return hits, nil
}

// Delete 按主键删除。
func (s *MilvusStore) Delete(ctx context.Context, ids []string) error {
	if err := s.client.DeleteByKeys(ctx, s.config.Collection, ids); err != nil {
		return errors.ErrVectorIndexUnavailable.WithCause(err)
	}
	return nil
}

// Stats 返回集合行数。
func (s *MilvusStore) Stats(ctx context.Context) (*VectorStats, error) {
	rows, err := s.client.RowCount(ctx, s.config.Collection)
	if err != nil {
		return nil, errors.ErrVectorIndexUnavailable.WithCause(err)
	}
	return &VectorStats{Collection: s.config.Collection, Rows: rows}, nil
}

// Close 关闭连接。
func (s *MilvusStore) Close(_ context.Context) error {
	return s.client.Close()
}
