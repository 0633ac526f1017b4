package store

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/component/milvus"
	"github.com/kart-io/docqa/pkg/errors"
)

type fakeVectorClient struct {
	loads     atomic.Int32
	loadDelay time.Duration
	loadErr   error

	inserted []milvus.Row
	deleted  []string
	results  []milvus.SearchResult
}

func (f *fakeVectorClient) EnsureCollection(context.Context, milvus.CollectionSpec) (bool, error) {
	return true, nil
}

func (f *fakeVectorClient) Load(ctx context.Context, _ string) error {
	f.loads.Add(1)
	select {
	case <-time.After(f.loadDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return f.loadErr
}

func (f *fakeVectorClient) Insert(_ context.Context, _ string, rows []milvus.Row) ([]string, error) {
	f.inserted = append(f.inserted, rows...)
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.Key
	}
	return ids, nil
}

func (f *fakeVectorClient) Search(context.Context, string, []float32, int, int) ([]milvus.SearchResult, error) {
	return f.results, nil
}

func (f *fakeVectorClient) DeleteByKeys(_ context.Context, _ string, keys []string) error {
	f.deleted = append(f.deleted, keys...)
	return nil
}

func (f *fakeVectorClient) RowCount(context.Context, string) (int64, error) {
	return int64(len(f.inserted) - len(f.deleted)), nil
}

func (f *fakeVectorClient) Close() error { return nil }

func TestActivateDeduplicatesConcurrentLoads(t *testing.T) {
	client := &fakeVectorClient{loadDelay: 50 * time.Millisecond}
	s := newMilvusStore(client, MilvusConfig{Collection: "c"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Activate(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), client.loads.Load(), "并发加载应合并为一次调用")

	// 之后的调用仍然会重新加载，保持幂等
	require.NoError(t, s.Activate(context.Background()))
	assert.Equal(t, int32(2), client.loads.Load())
}

func TestActivateCallerCancellation(t *testing.T) {
	client := &fakeVectorClient{loadDelay: 200 * time.Millisecond}
	s := newMilvusStore(client, MilvusConfig{Collection: "c"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := s.Activate(ctx)
	assert.ErrorIs(t, err, errors.ErrRequestTimeout)
}

func TestActivateError(t *testing.T) {
	client := &fakeVectorClient{loadErr: stderrors.New("collection not found")}
	s := newMilvusStore(client, MilvusConfig{Collection: "c"})

	err := s.Activate(context.Background())
	assert.ErrorIs(t, err, errors.ErrVectorIndexUnavailable)
	assert.True(t, errors.IsRetryable(err))
}

func TestMilvusStoreInsertSearchDelete(t *testing.T) {
	ctx := context.Background()
	client := &fakeVectorClient{results: []milvus.SearchResult{
		{Key: "k2", DocumentID: "d", Distance: 0.1},
		{Key: "k1", DocumentID: "d", Distance: 0.4},
	}}
	s := newMilvusStore(client, MilvusConfig{Collection: "c", NProbe: 16})

	ids, err := s.Insert(ctx, []VectorRecord{
		{Key: "k1", DocumentID: "d", Vector: []float32{1, 0}},
		{Key: "k2", DocumentID: "d", Vector: []float32{0, 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, ids)

	hits, err := s.Search(ctx, []float32{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "k2", hits[0].VectorID)
	assert.InDelta(t, 0.1, hits[0].Distance, 1e-6)

	require.NoError(t, s.Delete(ctx, []string{"k1"}))
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Rows)
	assert.Equal(t, "c", s.Collection())
}
