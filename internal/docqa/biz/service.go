package biz

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/llm"
)

// backgroundTimeout bounds tasks submitted to the background pool.
const backgroundTimeout = 30 * time.Second

// ServiceConfig 文档问答服务配置。
type ServiceConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	TopK           int
	EmbeddingDim   int
	SystemPrompt   string
	Expansion      bool
	ExpansionCount int
	// ExpansionStrict 为 true 时改写失败直接返回错误，否则退化为只使用原始查询。
	ExpansionStrict bool
	ExpansionFuse   bool

	ReconcileInterval  time.Duration
	ReconcileBatchSize int
	ReconcileMaxTries  int
}

// Dependencies 服务依赖。Orphans、Cache、Background、Metrics 可以为 nil。
type Dependencies struct {
	Embedder   llm.EmbeddingProvider
	Chat       llm.ChatProvider
	Vectors    store.VectorStore
	Metadata   store.MetadataStore
	Orphans    store.OrphanQueue
	Cache      *QueryCache
	Background Submitter
	Metrics    *metrics.Metrics
}

// SummaryResult 文档摘要。
type SummaryResult struct {
	DocumentID string `json:"document_id"`
	Summary    string `json:"summary"`
}

// Stats 知识库统计。
type Stats struct {
	Documents   int64              `json:"documents"`
	Chunks      int64              `json:"chunks"`
	Vectors     *store.VectorStats `json:"vectors,omitempty"`
	OrphanQueue int64              `json:"orphan_queue"`
	Cache       *CacheStats        `json:"cache"`
}

// Service 组合 Indexer、Expander、Retriever 和 Generator 提供文档问答服务。
type Service struct {
	indexer    *Indexer
	expander   *Expander
	retriever  *Retriever
	generator  *Generator
	reconciler *Reconciler

	vectors    store.VectorStore
	meta       store.MetadataStore
	orphans    store.OrphanQueue
	cache      *QueryCache
	background Submitter
	metrics    *metrics.Metrics
	config     *ServiceConfig
}

// NewService 创建文档问答服务。
func NewService(deps Dependencies, config *ServiceConfig) *Service {
	embedder := deps.Embedder
	if _, ok := embedder.(*llm.OrderedEmbedder); !ok {
		embedder = llm.NewOrderedEmbedder(embedder, config.EmbeddingDim)
	}

	s := &Service{
		indexer: NewIndexer(embedder, deps.Vectors, deps.Metadata, deps.Orphans, &IndexerConfig{
			ChunkSize:    config.ChunkSize,
			ChunkOverlap: config.ChunkOverlap,
		}, deps.Metrics),
		expander: NewExpander(deps.Chat, &ExpanderConfig{Count: config.ExpansionCount}, deps.Metrics),
		retriever: NewRetriever(embedder, deps.Vectors, deps.Metadata, &RetrieverConfig{
			TopK: config.TopK,
			Fuse: config.ExpansionFuse,
		}, deps.Metrics),
		generator:  NewGenerator(deps.Chat, &GeneratorConfig{SystemPrompt: config.SystemPrompt}, deps.Metrics),
		vectors:    deps.Vectors,
		meta:       deps.Metadata,
		orphans:    deps.Orphans,
		cache:      deps.Cache,
		background: deps.Background,
		metrics:    deps.Metrics,
		config:     config,
	}
	if deps.Orphans != nil {
		s.reconciler = NewReconciler(deps.Vectors, deps.Orphans, &ReconcilerConfig{
			Interval:    config.ReconcileInterval,
			BatchSize:   config.ReconcileBatchSize,
			MaxAttempts: config.ReconcileMaxTries,
		}, deps.Metrics)
	}
	return s
}

// Reconciler 返回对账器，未配置清理队列时为 nil。
func (s *Service) Reconciler() *Reconciler {
	return s.reconciler
}

// Ingest 入库一篇文档。
func (s *Service) Ingest(ctx context.Context, req *IngestRequest) (*IngestResult, error) {
	result, err := s.indexer.Ingest(ctx, req)
	if err != nil {
		return nil, err
	}
	s.invalidateCache(ctx)
	return result, nil
}

// AnswerQuery 回答问题。没有相关文档块时答案为 NotFoundPhrase，不返回错误。
func (s *Service) AnswerQuery(ctx context.Context, query string) (result *model.QueryResult, err error) {
	start := time.Now()
	cacheHit := false
	defer func() { s.metrics.RecordQuery(cacheHit, time.Since(start), err) }()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.ErrEmptyQuery
	}

	// 代数在检索之前读取，检索期间发生的入库或删除会让本次答案写入旧代数
	generation, gerr := s.cache.Generation(ctx)
	cacheable := gerr == nil
	if gerr != nil {
		logger.Warnw("failed to read cache generation", "error", gerr.Error())
	} else if cached, cerr := s.cache.Get(ctx, generation, query); cerr == nil && cached != nil {
		cacheHit = true
		return cached, nil
	}

	var expansions map[string]string
	if s.config.Expansion {
		expansions, err = s.expander.Expand(ctx, query)
		if err != nil {
			if s.config.ExpansionStrict {
				return nil, err
			}
			logger.Warnw("query expansion failed, using the original query only", "error", err.Error())
			expansions, err = nil, nil
		}
	}

	retrieved, err := s.retriever.Retrieve(ctx, query, expansions)
	if err != nil {
		return nil, err
	}

	result = &model.QueryResult{
		Sources:    make([]model.ChunkSource, len(retrieved.Chunks)),
		Expansions: expansions,
	}
	for i, rc := range retrieved.Chunks {
		result.Sources[i] = model.ChunkSource{
			DocumentID: rc.Chunk.DocumentID,
			VectorID:   rc.Chunk.VectorID,
			Seq:        rc.Chunk.Seq,
			Content:    rc.Chunk.Content,
			Distance:   rc.Distance,
		}
	}

	if len(retrieved.Chunks) == 0 {
		result.Answer = NotFoundPhrase
		return result, nil
	}

	prompt, err := BuildAnswerPrompt(query, retrieved.ChunkList(), expansions)
	if err != nil {
		return nil, err
	}
	result.Answer, err = s.generator.Answer(ctx, prompt)
	if err != nil {
		return nil, err
	}

	if cacheable {
		s.cacheAnswer(generation, query, result)
	}
	return result, nil
}

// SummarizeDocument 生成文档摘要。文档没有文档块时返回 ErrDocumentNotFound。
func (s *Service) SummarizeDocument(ctx context.Context, documentID string) (*SummaryResult, error) {
	chunks, err := s.meta.FindChunksByDocumentID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, errors.ErrDocumentNotFound.WithMessagef("document %s has no chunks", documentID)
	}

	summary, err := s.generator.Summarize(ctx, chunks)
	if err != nil {
		return nil, err
	}
	return &SummaryResult{DocumentID: documentID, Summary: summary}, nil
}

// DeleteDocument 删除文档：先删除向量，再删除元数据。
// 向量删除失败时转入清理队列；连入队也失败则保留元数据并返回错误。
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.meta.GetDocument(ctx, documentID); err != nil {
		return err
	}

	chunks, err := s.meta.FindChunksByDocumentID(ctx, documentID)
	if err != nil {
		return err
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.VectorID
	}

	if len(ids) > 0 {
		if delErr := s.vectors.Delete(ctx, ids); delErr != nil {
			if s.orphans == nil {
				return delErr
			}
			orphans := store.NewOrphans(s.vectors.Collection(), documentID, model.OrphanReasonDocumentDelete, ids)
			if err := s.orphans.Enqueue(ctx, orphans); err != nil {
				logger.Errorw("failed to queue vectors of deleted document",
					"document_id", documentID,
					"error", err.Error(),
				)
				return delErr
			}
			s.metrics.RecordOrphans("queued", len(ids))
			logger.Warnw("vector deletion failed, queued for reconciliation",
				"document_id", documentID,
				"vectors", len(ids),
				"error", delErr.Error(),
			)
		}
	}

	if err := s.meta.DeleteDocument(ctx, documentID); err != nil {
		return err
	}

	logger.Infow("document deleted", "document_id", documentID, "vectors", len(ids))
	s.invalidateCache(ctx)
	return nil
}

// ReconcileOrphans 立即执行一次孤立向量清理。
func (s *Service) ReconcileOrphans(ctx context.Context) (*ReconcileReport, error) {
	if s.reconciler == nil {
		return &ReconcileReport{}, nil
	}
	return s.reconciler.Sweep(ctx)
}

// GetStats 获取知识库统计信息。向量索引与缓存的统计失败只记录日志。
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	docs, err := s.meta.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	chunks, err := s.meta.CountChunks(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Documents: docs, Chunks: chunks}

	if vs, err := s.vectors.Stats(ctx); err != nil {
		logger.Warnw("failed to get vector stats", "error", err.Error())
	} else {
		stats.Vectors = vs
	}

	if s.orphans != nil {
		if n, err := s.orphans.Len(ctx); err != nil {
			logger.Warnw("failed to get orphan queue length", "error", err.Error())
		} else {
			stats.OrphanQueue = n
			s.metrics.SetOrphanQueueLength(n)
		}
	}

	if cs, err := s.cache.Stats(ctx); err != nil {
		logger.Warnw("failed to get cache stats", "error", err.Error())
	} else {
		stats.Cache = cs
	}
	return stats, nil
}

func (s *Service) cacheAnswer(generation int64, query string, result *model.QueryResult) {
	if !s.cache.enabled() {
		return
	}
	s.runBackground("cache_answer", func(ctx context.Context) {
		_ = s.cache.Set(ctx, generation, query, result)
	})
}

// invalidateCache bumps the cache generation before returning; stale keys are purged in the background.
func (s *Service) invalidateCache(ctx context.Context) {
	if !s.cache.enabled() {
		return
	}
	if err := s.cache.Invalidate(context.WithoutCancel(ctx)); err != nil {
		logger.Errorw("answer cache not invalidated", "error", err.Error())
	}
	s.runBackground("purge_cache", func(ctx context.Context) {
		_ = s.cache.Purge(ctx)
	})
}

// runBackground runs task on the background pool, or inline when none is configured.
func (s *Service) runBackground(name string, task func(ctx context.Context)) {
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		task(ctx)
	}
	if s.background == nil {
		run()
		return
	}
	if err := s.background.Submit(run); err != nil {
		logger.Warnw("failed to submit background task", "task", name, "error", err.Error())
	}
}
