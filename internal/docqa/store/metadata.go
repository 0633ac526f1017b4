package store

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/infra/tracing"
)

// chunkBatchSize bounds the rows of one INSERT statement.
const chunkBatchSize = 200

// GormMetadataStore 实现基于 GORM 的元数据存储，支持 PostgreSQL、MySQL 与 SQLite。
type GormMetadataStore struct {
	db *gorm.DB
}

var _ MetadataStore = (*GormMetadataStore)(nil)

// NewGormMetadataStore 创建元数据存储实例。
func NewGormMetadataStore(db *gorm.DB) *GormMetadataStore {
	return &GormMetadataStore{db: db}
}

// AutoMigrate 创建或更新表结构。
func (s *GormMetadataStore) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(model.AllModels()...); err != nil {
		return errors.ErrMetadataUnavailable.WithCause(err)
	}
	return nil
}

// CreateDocument 写入文档记录。
func (s *GormMetadataStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	return createDocument(s.db.WithContext(ctx), doc)
}

// CreateChunks 批量写入文档块。
func (s *GormMetadataStore) CreateChunks(ctx context.Context, chunks []*model.Chunk) error {
	return createChunks(s.db.WithContext(ctx), chunks)
}

// SaveDocument 事务写入文档与文档块。
func (s *GormMetadataStore) SaveDocument(ctx context.Context, doc *model.Document, chunks []*model.Chunk) (err error) {
	ctx, span := tracing.StartSpan(ctx, "docqa.persist",
		tracing.String(tracing.AttrDocumentID, doc.ID),
		tracing.Int(tracing.AttrChunks, len(chunks)))
	defer func() { tracing.End(span, err) }()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := createDocument(tx, doc); err != nil {
			return err
		}
		return createChunks(tx, chunks)
	})
}

func createDocument(db *gorm.DB, doc *model.Document) error {
	if err := db.Create(doc).Error; err != nil {
		return errors.ErrMetadataUnavailable.WithCause(err)
	}
	return nil
}

func createChunks(db *gorm.DB, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := db.Omit("Document").CreateInBatches(chunks, chunkBatchSize).Error; err != nil {
		return errors.ErrMetadataUnavailable.WithCause(err)
	}
	return nil
}

// FindChunksByVectorIDs 按关联键查找文档块。
func (s *GormMetadataStore) FindChunksByVectorIDs(ctx context.Context, ids []string) ([]*model.Chunk, error) {
	if len(ids) == 0 {
		return []*model.Chunk{}, nil
	}

	var chunks []*model.Chunk
	err := s.db.WithContext(ctx).
		Preload("Document").
		Where("vector_id IN ?", ids).
		Find(&chunks).Error
	if err != nil {
		return nil, errors.ErrMetadataUnavailable.WithCause(err)
	}
	return chunks, nil
}

// FindChunksByDocumentID 按 Seq 顺序返回文档块。
func (s *GormMetadataStore) FindChunksByDocumentID(ctx context.Context, documentID string) ([]*model.Chunk, error) {
	var chunks []*model.Chunk
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("seq ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, errors.ErrMetadataUnavailable.WithCause(err)
	}
	return chunks, nil
}

// GetDocument 获取文档。
func (s *GormMetadataStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrDocumentNotFound.WithMessagef("document %s not found", id)
		}
		return nil, errors.ErrMetadataUnavailable.WithCause(err)
	}
	return &doc, nil
}

// DeleteDocument 删除文档及其文档块。
func (s *GormMetadataStore) DeleteDocument(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.Chunk{}).Error; err != nil {
			return errors.ErrMetadataUnavailable.WithCause(err)
		}
		res := tx.Where("id = ?", id).Delete(&model.Document{})
		if res.Error != nil {
			return errors.ErrMetadataUnavailable.WithCause(res.Error)
		}
		if res.RowsAffected == 0 {
			return errors.ErrDocumentNotFound.WithMessagef("document %s not found", id)
		}
		return nil
	})
}

// CountDocuments 统计文档数。
func (s *GormMetadataStore) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Document{}).Count(&n).Error; err != nil {
		return 0, errors.ErrMetadataUnavailable.WithCause(err)
	}
	return n, nil
}

// CountChunks 统计文档块数。
func (s *GormMetadataStore) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Chunk{}).Count(&n).Error; err != nil {
		return 0, errors.ErrMetadataUnavailable.WithCause(err)
	}
	return n, nil
}
