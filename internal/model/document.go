// Package model provides the persistent and transfer models of docqa.
package model

import (
	"time"
)

// Document is an ingested document. It is created once and never mutated.
type Document struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Title      string    `json:"title" gorm:"type:varchar(255)"`
	Source     string    `json:"source" gorm:"type:varchar(512)"`
	Embedded   bool      `json:"embedded" gorm:"not null;default:false"`
	ChunkCount int       `json:"chunk_count" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for Document.
func (Document) TableName() string {
	return "docqa_documents"
}

// Chunk is a contiguous window of a document's filtered text.
// VectorID is the correlation key of the chunk's vector in the index.
type Chunk struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	DocumentID string    `json:"document_id" gorm:"type:varchar(64);not null;index:idx_chunk_doc_seq,priority:1"`
	Seq        int       `json:"seq" gorm:"not null;index:idx_chunk_doc_seq,priority:2"`
	Content    string    `json:"content" gorm:"type:text;not null"`
	VectorID   string    `json:"vector_id" gorm:"type:varchar(64);not null;uniqueIndex"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	Document   *Document `json:"-" gorm:"foreignKey:DocumentID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for Chunk.
func (Chunk) TableName() string {
	return "docqa_chunks"
}

// QueryResult is the answer to a question with the chunks it was grounded on.
type QueryResult struct {
	Answer     string            `json:"answer"`
	Sources    []ChunkSource     `json:"sources"`
	Expansions map[string]string `json:"expansions,omitempty"`
	Cached     bool              `json:"cached"`
}

// ChunkSource describes one retrieved chunk, closest first.
type ChunkSource struct {
	DocumentID string  `json:"document_id"`
	VectorID   string  `json:"vector_id"`
	Seq        int     `json:"seq"`
	Content    string  `json:"content"`
	Distance   float32 `json:"distance"`
}
