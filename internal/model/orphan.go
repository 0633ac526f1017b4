package model

import "time"

// Reasons an orphan vector was queued.
const (
	OrphanReasonIngestRollback = "ingest_rollback"
	OrphanReasonDocumentDelete = "document_delete"
)

// OrphanVector is a vector left in the index without a metadata row.
// The reconciler deletes it from the index and then drops the entry.
type OrphanVector struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Collection string    `json:"collection" gorm:"type:varchar(255);not null;index:idx_orphan_coll_key,unique,priority:1"`
	VectorID   string    `json:"vector_id" gorm:"type:varchar(64);not null;index:idx_orphan_coll_key,unique,priority:2"`
	DocumentID string    `json:"document_id" gorm:"type:varchar(64)"`
	Reason     string    `json:"reason" gorm:"type:varchar(64)"`
	Attempts   int       `json:"attempts" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for OrphanVector.
func (OrphanVector) TableName() string {
	return "docqa_orphan_vectors"
}

// AllModels lists the models migrated at startup.
func AllModels() []any {
	return []any{&Document{}, &Chunk{}, &OrphanVector{}}
}
