package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/errors"
)

// GormOrphanQueue 将待清理向量保存在 docqa_orphan_vectors 表中。
type GormOrphanQueue struct {
	db         *gorm.DB
	collection string
}

var _ OrphanQueue = (*GormOrphanQueue)(nil)

// NewGormOrphanQueue 创建基于数据库的清理队列，只处理指定集合的条目。
func NewGormOrphanQueue(db *gorm.DB, collection string) *GormOrphanQueue {
	return &GormOrphanQueue{db: db, collection: collection}
}

// Enqueue 入队。
func (q *GormOrphanQueue) Enqueue(ctx context.Context, orphans []*model.OrphanVector) error {
	if len(orphans) == 0 {
		return nil
	}
	err := q.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(orphans, chunkBatchSize).Error
	if err != nil {
		return errors.ErrMetadataUnavailable.WithCause(err)
	}
	return nil
}

// Peek 返回最早入队的条目。
func (q *GormOrphanQueue) Peek(ctx context.Context, limit int) ([]*model.OrphanVector, error) {
	var orphans []*model.OrphanVector
	err := q.db.WithContext(ctx).
		Where("collection = ?", q.collection).
		Order("id ASC").
		Limit(limit).
		Find(&orphans).Error
	if err != nil {
		return nil, errors.ErrMetadataUnavailable.WithCause(err)
	}
	return orphans, nil
}

// Remove 删除条目。
func (q *GormOrphanQueue) Remove(ctx context.Context, orphans []*model.OrphanVector) error {
	ids := orphanIDs(orphans)
	if len(ids) == 0 {
		return nil
	}
	if err := q.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.OrphanVector{}).Error; err != nil {
		return errors.ErrMetadataUnavailable.WithCause(err)
	}
	return nil
}

// MarkFailed 增加尝试次数。
func (q *GormOrphanQueue) MarkFailed(ctx context.Context, orphans []*model.OrphanVector) error {
	ids := orphanIDs(orphans)
	if len(ids) == 0 {
		return nil
	}
	err := q.db.WithContext(ctx).
		Model(&model.OrphanVector{}).
		Where("id IN ?", ids).
		UpdateColumn("attempts", gorm.Expr("attempts + ?", 1)).Error
	if err != nil {
		return errors.ErrMetadataUnavailable.WithCause(err)
	}
	for _, o := range orphans {
		o.Attempts++
	}
	return nil
}

// Len 返回队列长度。
func (q *GormOrphanQueue) Len(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.WithContext(ctx).
		Model(&model.OrphanVector{}).
		Where("collection = ?", q.collection).
		Count(&n).Error
	if err != nil {
		return 0, errors.ErrMetadataUnavailable.WithCause(err)
	}
	return n, nil
}

func orphanIDs(orphans []*model.OrphanVector) []int64 {
	ids := make([]int64, 0, len(orphans))
	for _, o := range orphans {
		if o.ID != 0 {
			ids = append(ids, o.ID)
		}
	}
	return ids
}
