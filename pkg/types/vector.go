package types

import (
	"github.com/pgvector/pgvector-go"
)

// DedupKey is the uniqueness constraint of vector documents.
type DedupKey struct {
	KnowledgeSourceID string      `json:"knowledge_source_id"`
	ContentType       ContentType `json:"content_type"`
	ContentID         string      `json:"content_id"`
}

func (k DedupKey) String() string {
	return k.KnowledgeSourceID + ":" + string(k.ContentType) + ":" + k.ContentID
}

type VectorDocument struct {
	ID                string          `json:"id" db:"id"`
	KnowledgeSourceID string          `json:"knowledge_source_id" db:"knowledge_source_id"`
	ContentType       ContentType     `json:"content_type" db:"content_type"`
	ContentID         string          `json:"content_id" db:"content_id"`
	Content           string          `json:"content" db:"content"`
	Embedding         pgvector.Vector `json:"-" db:"embedding"`
	Metadata          Metadata        `json:"metadata" db:"metadata"`
	Model             string          `json:"model" db:"model"`
	CreatedAt         int64           `json:"created_at" db:"created_at"`
	UpdatedAt         int64           `json:"updated_at" db:"updated_at"`
}

func (d *VectorDocument) Key() DedupKey {
	return DedupKey{
		KnowledgeSourceID: d.KnowledgeSourceID,
		ContentType:       d.ContentType,
		ContentID:         d.ContentID,
	}
}

// RankedMatch is a vector document scored against a query.
type RankedMatch struct {
	ID                string      `json:"id" db:"id"`
	KnowledgeSourceID string      `json:"knowledge_source_id" db:"knowledge_source_id"`
	ContentType       ContentType `json:"content_type" db:"content_type"`
	ContentID         string      `json:"content_id" db:"content_id"`
	Content           string      `json:"content" db:"content"`
	Metadata          Metadata    `json:"metadata" db:"metadata"`
	Similarity        float64     `json:"similarity" db:"similarity"`
}

type MatchOptions struct {
	KnowledgeSourceIDs []string
	ContentTypes       []ContentType
	Threshold          float64
	Limit              uint64
}
