// Package store defines the vector index, metadata and orphan queue stores of docqa.
package store

import (
	"context"

	"github.com/kart-io/docqa/internal/model"
)

// VectorRecord is one chunk vector to insert. Key is the correlation key.
type VectorRecord struct {
	Key        string
	DocumentID string
	Vector     []float32
}

// Hit is one search result, closest first.
type Hit struct {
	VectorID   string
	DocumentID string
	Distance   float32
}

// VectorStats 向量集合统计。
type VectorStats struct {
	Collection string `json:"collection"`
	Rows       int64  `json:"rows"`
}

// VectorStore 定义向量索引接口。
type VectorStore interface {
	// Collection 返回集合名称。
	Collection() string

	// EnsureCollection 集合不存在时创建集合与索引。
	EnsureCollection(ctx context.Context) error

	// Insert 一次性写入全部向量，返回索引确认的主键，顺序与输入一致。
	Insert(ctx context.Context, records []VectorRecord) ([]string, error)

	// Activate 将集合加载到查询节点，幂等。
	Activate(ctx context.Context) error

	// Search 返回距离最近的 k 个向量。
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)

	// Delete 按主键删除向量，不存在的主键被忽略。
	Delete(ctx context.Context, ids []string) error

	// Stats 返回集合统计。
	Stats(ctx context.Context) (*VectorStats, error)

	// Close 关闭连接。
	Close(ctx context.Context) error
}

// MetadataStore 定义文档与文档块的关系存储接口。
type MetadataStore interface {
	CreateDocument(ctx context.Context, doc *model.Document) error
	CreateChunks(ctx context.Context, chunks []*model.Chunk) error

	// SaveDocument 在同一事务中写入文档及其全部文档块。
	SaveDocument(ctx context.Context, doc *model.Document, chunks []*model.Chunk) error

	// FindChunksByVectorIDs 按关联键查找文档块并预加载所属文档，不保证顺序。
	FindChunksByVectorIDs(ctx context.Context, ids []string) ([]*model.Chunk, error)

	// FindChunksByDocumentID 按 Seq 升序返回文档的全部文档块。
	FindChunksByDocumentID(ctx context.Context, documentID string) ([]*model.Chunk, error)

	GetDocument(ctx context.Context, id string) (*model.Document, error)

	// DeleteDocument 在同一事务中删除文档及其文档块。
	DeleteDocument(ctx context.Context, id string) error

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)
}

// OrphanQueue 是待清理向量的持久化队列。
type OrphanQueue interface {
	// Enqueue 追加条目，已存在的 (collection, vector_id) 被忽略。
	Enqueue(ctx context.Context, orphans []*model.OrphanVector) error

	// Peek 按入队顺序返回最多 limit 个条目，不出队。
	Peek(ctx context.Context, limit int) ([]*model.OrphanVector, error)

	// Remove 删除已清理的条目。
	Remove(ctx context.Context, orphans []*model.OrphanVector) error

	// MarkFailed 将条目的尝试次数加一并保留在队列中。
	MarkFailed(ctx context.Context, orphans []*model.OrphanVector) error

	Len(ctx context.Context) (int64, error)
}

// NewOrphans builds queue entries for vector ids of one document.
func NewOrphans(collection, documentID, reason string, ids []string) []*model.OrphanVector {
	orphans := make([]*model.OrphanVector, 0, len(ids))
	for _, id := range ids {
		orphans = append(orphans, &model.OrphanVector{
			Collection: collection,
			VectorID:   id,
			DocumentID: documentID,
			Reason:     reason,
		})
	}
	return orphans
}
