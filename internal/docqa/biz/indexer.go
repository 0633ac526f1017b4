package biz

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/id"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	"github.com/kart-io/docqa/pkg/llm"
)

// compensateTimeout bounds the rollback of a failed ingestion, which runs even after the request is cancelled.
const compensateTimeout = 30 * time.Second

// IndexerConfig 索引器配置。
type IndexerConfig struct {
	// ChunkSize 默认文本块大小（字符）。
	ChunkSize int
	// ChunkOverlap 默认块重叠大小（字符）。
	ChunkOverlap int
}

// IngestRequest 入库请求。ChunkSize 为 0 时使用默认分块参数。
type IngestRequest struct {
	Text      string `json:"text"`
	Title     string `json:"title,omitempty"`
	Source    string `json:"source,omitempty"`
	ChunkSize int    `json:"chunk_size,omitempty"`
	Overlap   int    `json:"overlap,omitempty"`
}

// IngestResult 入库结果。
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
}

// Indexer 负责文档入库。
//
// 入库是一个 saga：分块、向量化、写入向量索引、加载集合、事务写入元数据。
// 向量写入之后的任何失败都会删除已写入的向量，删除失败时转入清理队列。
type Indexer struct {
	embedder llm.EmbeddingProvider
	vectors  store.VectorStore
	meta     store.MetadataStore
	orphans  store.OrphanQueue
	config   *IndexerConfig
	metrics  *metrics.Metrics

	newDocumentID func() string
	newKeys       func(n int) []string
}

// NewIndexer 创建索引器实例。orphans 可以为 nil，此时补偿失败的向量只记录日志。
func NewIndexer(
	embedder llm.EmbeddingProvider,
	vectors store.VectorStore,
	meta store.MetadataStore,
	orphans store.OrphanQueue,
	config *IndexerConfig,
	m *metrics.Metrics,
) *Indexer {
	return &Indexer{
		embedder:      embedder,
		vectors:       vectors,
		meta:          meta,
		orphans:       orphans,
		config:        config,
		metrics:       m,
		newDocumentID: id.NewDocumentID,
		newKeys:       id.NewCorrelationKeys,
	}
}

// Ingest 将一篇文档写入向量索引与元数据存储。
func (i *Indexer) Ingest(ctx context.Context, req *IngestRequest) (result *IngestResult, err error) {
	start := time.Now()
	chunkCount := 0
	defer func() { i.metrics.RecordIngest(chunkCount, time.Since(start), err) }()

	ctx, span := tracing.StartSpan(ctx, "docqa.ingest")
	defer func() { tracing.End(span, err) }()

	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.ErrEmptyDocument
	}

	size, overlap := req.ChunkSize, req.Overlap
	if size == 0 {
		size, overlap = i.config.ChunkSize, i.config.ChunkOverlap
	}

	texts, err := textutil.SplitDocument(req.Text, size, overlap)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, errors.ErrEmptyDocument
	}
	chunkCount = len(texts)

	vectors, err := i.embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	docID := i.newDocumentID()
	span.SetAttributes(tracing.String(tracing.AttrDocumentID, docID))
	keys := i.newKeys(len(texts))

	records := make([]store.VectorRecord, len(texts))
	for idx := range texts {
		records[idx] = store.VectorRecord{Key: keys[idx], DocumentID: docID, Vector: vectors[idx]}
	}

	// 写入失败或确认不完整时，索引中可能已有任意一部分 key，补偿覆盖全部 key
	ids, err := i.vectors.Insert(ctx, records)
	if err != nil {
		return nil, i.compensate(ctx, docID, unionIDs(keys, ids), err)
	}
	if err := validateInsertedIDs(keys, ids); err != nil {
		return nil, i.compensate(ctx, docID, unionIDs(keys, ids), err)
	}

	if err := i.vectors.Activate(ctx); err != nil {
		return nil, i.compensate(ctx, docID, ids, err)
	}

	doc := &model.Document{
		ID:         docID,
		Title:      req.Title,
		Source:     req.Source,
		Embedded:   true,
		ChunkCount: len(texts),
	}
	chunks := make([]*model.Chunk, len(texts))
	for idx, text := range texts {
		chunks[idx] = &model.Chunk{
			DocumentID: docID,
			Seq:        idx,
			Content:    text,
			VectorID:   ids[idx],
		}
	}
	if err := i.meta.SaveDocument(ctx, doc, chunks); err != nil {
		return nil, i.compensate(ctx, docID, ids, err)
	}

	logger.Infow("document ingested",
		"document_id", docID,
		"chunks", len(chunks),
		"chunk_size", size,
		"overlap", overlap,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return &IngestResult{DocumentID: docID, Chunks: len(chunks)}, nil
}

func (i *Indexer) embed(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	ctx, span := tracing.StartSpan(ctx, "docqa.embed",
		tracing.Int(tracing.AttrChunks, len(texts)),
		tracing.String(tracing.AttrProvider, i.embedder.Name()))
	defer func() { tracing.End(span, err) }()

	return i.embedder.Embed(ctx, texts)
}

// validateInsertedIDs checks that the index acknowledged every key, in order.
func validateInsertedIDs(keys, ids []string) error {
	if len(ids) != len(keys) {
		return errors.ErrContractViolation.WithMessagef(
			"vector index acknowledged %d ids for %d chunks", len(ids), len(keys))
	}
	for idx := range keys {
		if ids[idx] != keys[idx] {
			return errors.ErrContractViolation.WithMessagef(
				"vector index returned id %q at position %d, expected %q", ids[idx], idx, keys[idx])
		}
	}
	return nil
}

func unionIDs(keys, ids []string) []string {
	seen := make(map[string]struct{}, len(keys)+len(ids))
	out := make([]string, 0, len(keys)+len(ids))
	for _, list := range [][]string{keys, ids} {
		for _, k := range list {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

// compensate undoes the vector insert after a later step failed.
// A contract violation is returned as is once the vectors are rolled back.
func (i *Indexer) compensate(ctx context.Context, docID string, ids []string, cause error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	perr := &PartialIngestionError{DocumentID: docID, VectorIDs: ids, Err: cause}

	delErr := i.vectors.Delete(cctx, ids)
	if delErr == nil {
		perr.RolledBack = true
		logger.Warnw("ingestion rolled back",
			"document_id", docID,
			"vectors", len(ids),
			"cause", cause.Error(),
		)
		if errors.IsCode(cause, errors.ErrContractViolation.Code) {
			return cause
		}
		return perr
	}

	if i.orphans != nil {
		orphans := store.NewOrphans(i.vectors.Collection(), docID, model.OrphanReasonIngestRollback, ids)
		enqErr := i.orphans.Enqueue(cctx, orphans)
		if enqErr == nil {
			perr.Queued = true
			i.metrics.RecordOrphans("queued", len(ids))
			logger.Warnw("ingestion rollback failed, vectors queued for reconciliation",
				"document_id", docID,
				"vectors", len(ids),
				"cause", cause.Error(),
				"delete_error", delErr.Error(),
			)
			return perr
		}
		delErr = stderrors.Join(delErr, enqErr)
	}

	i.metrics.RecordOrphans("lost", len(ids))
	logger.Errorw("orphan vectors could not be removed or queued",
		"document_id", docID,
		"collection", i.vectors.Collection(),
		"vector_ids", ids,
		"cause", cause.Error(),
		"error", delErr.Error(),
	)
	return perr
}
