package types

import (
	sq "github.com/Masterminds/squirrel"
)

type EmbeddingJobStatus string

const (
	EMBEDDING_JOB_STATUS_PENDING    EmbeddingJobStatus = "pending"
	EMBEDDING_JOB_STATUS_PROCESSING EmbeddingJobStatus = "processing"
	EMBEDDING_JOB_STATUS_COMPLETED  EmbeddingJobStatus = "completed"
	EMBEDDING_JOB_STATUS_FAILED     EmbeddingJobStatus = "failed"
)

func (s EmbeddingJobStatus) String() string {
	return string(s)
}

// Finished reports whether the job reached a terminal state.
func (s EmbeddingJobStatus) Finished() bool {
	return s == EMBEDDING_JOB_STATUS_COMPLETED || s == EMBEDDING_JOB_STATUS_FAILED
}

// EMBEDDING_JOB_ERROR_SUPERSEDED marks jobs cancelled by a newer edit or a rolled back mutation.
const EMBEDDING_JOB_ERROR_SUPERSEDED = "superseded"

// EmbeddingJob is one embedding attempt for one content item.
type EmbeddingJob struct {
	JobID             string             `json:"job_id" db:"job_id"`
	KnowledgeSourceID string             `json:"knowledge_source_id" db:"knowledge_source_id"`
	ContentType       ContentType        `json:"content_type" db:"content_type"`
	ContentID         string             `json:"content_id" db:"content_id"`
	Content           string             `json:"content" db:"content"`
	Metadata          Metadata           `json:"metadata" db:"metadata"`
	Status            EmbeddingJobStatus `json:"status" db:"status"`
	Error             string             `json:"error" db:"error"`
	Attempts          int                `json:"attempts" db:"attempts"`
	CreatedAt         int64              `json:"created_at" db:"created_at"`
	UpdatedAt         int64              `json:"updated_at" db:"updated_at"`
	CompletedAt       int64              `json:"completed_at" db:"completed_at"`
}

func (j *EmbeddingJob) Key() DedupKey {
	return DedupKey{
		KnowledgeSourceID: j.KnowledgeSourceID,
		ContentType:       j.ContentType,
		ContentID:         j.ContentID,
	}
}

type ListEmbeddingJobOptions struct {
	KnowledgeSourceID string
	ContentID         string
	Status            []EmbeddingJobStatus
	// UpdatedBefore filters jobs untouched since the given unix time
	UpdatedBefore int64
}

func (opts ListEmbeddingJobOptions) Apply(query *sq.SelectBuilder) {
	if opts.KnowledgeSourceID != "" {
		*query = query.Where(sq.Eq{"knowledge_source_id": opts.KnowledgeSourceID})
	}
	if opts.ContentID != "" {
		*query = query.Where(sq.Eq{"content_id": opts.ContentID})
	}
	if len(opts.Status) > 0 {
		*query = query.Where(sq.Eq{"status": opts.Status})
	}
	if opts.UpdatedBefore > 0 {
		*query = query.Where(sq.Lt{"updated_at": opts.UpdatedBefore})
	}
}
