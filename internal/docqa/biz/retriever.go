package biz

import (
	"context"
	"sort"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	"github.com/kart-io/docqa/pkg/llm"
)

// RetrieverConfig 检索器配置。
type RetrieverConfig struct {
	// TopK 返回结果数量。
	TopK int
	// Fuse 为 true 时同时检索改写后的查询，按最小距离融合结果。
	Fuse bool
}

// RetrievedChunk 已解析的检索结果。
type RetrievedChunk struct {
	Chunk    *model.Chunk
	Distance float32
}

// RetrievalResult 检索结果，按距离升序。
type RetrievalResult struct {
	// Hits 是向量索引返回的原始结果。
	Hits []store.Hit
	// Chunks 是在元数据存储中找到的文档块，顺序与 Hits 一致。
	Chunks []RetrievedChunk
}

// ChunkList returns the resolved chunks in rank order.
func (r *RetrievalResult) ChunkList() []*model.Chunk {
	out := make([]*model.Chunk, len(r.Chunks))
	for i, c := range r.Chunks {
		out[i] = c.Chunk
	}
	return out
}

// Retriever 负责向量检索与元数据解析。
type Retriever struct {
	embedder llm.EmbeddingProvider
	vectors  store.VectorStore
	meta     store.MetadataStore
	config   *RetrieverConfig
	metrics  *metrics.Metrics
}

// NewRetriever 创建检索器实例。
func NewRetriever(
	embedder llm.EmbeddingProvider,
	vectors store.VectorStore,
	meta store.MetadataStore,
	config *RetrieverConfig,
	m *metrics.Metrics,
) *Retriever {
	return &Retriever{embedder: embedder, vectors: vectors, meta: meta, config: config, metrics: m}
}

// Retrieve 检索与查询最相关的文档块。没有命中不是错误。
func (r *Retriever) Retrieve(ctx context.Context, query string, expansions map[string]string) (result *RetrievalResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "docqa.retrieve", tracing.Int(tracing.AttrTopK, r.config.TopK))
	defer func() { tracing.End(span, err) }()

	hits, err := r.search(ctx, query, expansions)
	if err != nil {
		return nil, err
	}

	result = &RetrievalResult{Hits: hits, Chunks: []RetrievedChunk{}}
	if len(hits) == 0 {
		r.metrics.RecordRetrieval(0, 0)
		return result, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.VectorID
	}

	rows, err := r.meta.FindChunksByVectorIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byVectorID := make(map[string]*model.Chunk, len(rows))
	for _, c := range rows {
		byVectorID[c.VectorID] = c
	}

	orphans := 0
	for _, h := range hits {
		c, ok := byVectorID[h.VectorID]
		if !ok {
			orphans++
			logger.Warnw("search hit has no metadata row, skipping",
				"vector_id", h.VectorID,
				"document_id", h.DocumentID,
				"collection", r.vectors.Collection(),
			)
			continue
		}
		result.Chunks = append(result.Chunks, RetrievedChunk{Chunk: c, Distance: h.Distance})
	}

	r.metrics.RecordRetrieval(len(result.Chunks), orphans)
	span.SetAttributes(tracing.Int(tracing.AttrHits, len(result.Chunks)))
	return result, nil
}

func (r *Retriever) search(ctx context.Context, query string, expansions map[string]string) ([]store.Hit, error) {
	texts := []string{query}
	if r.config.Fuse {
		texts = append(texts, OrderedExpansions(expansions)...)
	}

	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	if err := r.vectors.Activate(ctx); err != nil {
		return nil, err
	}

	var all []store.Hit
	for _, v := range vectors {
		hits, err := r.vectors.Search(ctx, v, r.config.TopK)
		if err != nil {
			return nil, err
		}
		all = append(all, hits...)
	}

	if len(vectors) == 1 {
		sortHits(all)
		return all, nil
	}
	return fuseHits(all, r.config.TopK), nil
}

// fuseHits keeps the best distance per vector id and truncates to k.
func fuseHits(hits []store.Hit, k int) []store.Hit {
	best := make(map[string]int, len(hits))
	fused := make([]store.Hit, 0, len(hits))
	for _, h := range hits {
		if idx, ok := best[h.VectorID]; ok {
			if h.Distance < fused[idx].Distance {
				fused[idx].Distance = h.Distance
			}
			continue
		}
		best[h.VectorID] = len(fused)
		fused = append(fused, h)
	}
	sortHits(fused)
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused
}

// sortHits orders hits closest first; ties keep the index order.
func sortHits(hits []store.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
}
