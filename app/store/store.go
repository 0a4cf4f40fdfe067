package store

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/quka-ai/knowledge-sync/pkg/sqlstore"
	"github.com/quka-ai/knowledge-sync/pkg/types"
)

// KnowledgeSourceStore 知识源，只有同步指针在创建后会被修改
type KnowledgeSourceStore interface {
	sqlstore.SqlCommons
	Create(ctx context.Context, data types.KnowledgeSource) error
	Get(ctx context.Context, id string) (*types.KnowledgeSource, error)
	List(ctx context.Context, ownerID string, page, pageSize uint64) ([]types.KnowledgeSource, error)
	// UpdateSyncPointer sets the vector index id (when not empty) and last synced time
	UpdateSyncPointer(ctx context.Context, id, vectorIndexID string, syncedAt int64) error
	Delete(ctx context.Context, id string) error
}

type ContentItemStore interface {
	sqlstore.SqlCommons
	Create(ctx context.Context, data types.ContentItem) error
	Get(ctx context.Context, id string) (*types.ContentItem, error)
	// Update replaces payload and blob url of the item
	Update(ctx context.Context, data types.ContentItem) error
	UpdateExtractedText(ctx context.Context, id, text string) error
	Delete(ctx context.Context, id string) error
	DeleteBySource(ctx context.Context, sourceID string) error
	List(ctx context.Context, opts types.ListContentItemOptions, page, pageSize uint64) ([]types.ContentItem, error)
	Total(ctx context.Context, opts types.ListContentItemOptions) (int64, error)
}

// EmbeddingJobStore holds the job state machine, transitions are guarded in sql.
type EmbeddingJobStore interface {
	sqlstore.SqlCommons
	Create(ctx context.Context, data types.EmbeddingJob) error
	Get(ctx context.Context, jobID string) (*types.EmbeddingJob, error)
	GetLatest(ctx context.Context, key types.DedupKey) (*types.EmbeddingJob, error)
	// Claim moves a pending job to processing, false when the job is not pending
	Claim(ctx context.Context, jobID string) (bool, error)
	// Complete moves a processing job to completed, false when the job is no longer processing
	Complete(ctx context.Context, jobID string) (bool, error)
	Fail(ctx context.Context, jobID, reason string) error
	// Supersede fails every pending or failed job of the key with the given reason
	Supersede(ctx context.Context, key types.DedupKey, reason string) (int64, error)
	// Reset moves a failed job back to pending
	Reset(ctx context.Context, jobID string) (bool, error)
	// ReleaseStale returns processing jobs untouched since before to pending
	ReleaseStale(ctx context.Context, before int64) (int64, error)
	List(ctx context.Context, opts types.ListEmbeddingJobOptions, page, pageSize uint64) ([]types.EmbeddingJob, error)
	Total(ctx context.Context, opts types.ListEmbeddingJobOptions) (int64, error)
	DeleteByContent(ctx context.Context, key types.DedupKey) error
	DeleteBySource(ctx context.Context, sourceID string) error
}

// TODO support other vector db
// current only pg
type VectorStore interface {
	sqlstore.SqlCommons
	Get(ctx context.Context, key types.DedupKey) (*types.VectorDocument, error)
	// Upsert writes the document by its dedup key
	Upsert(ctx context.Context, data types.VectorDocument) error
	UpdateMetadata(ctx context.Context, key types.DedupKey, metadata types.Metadata) error
	Delete(ctx context.Context, key types.DedupKey) error
	DeleteBySource(ctx context.Context, sourceID string) error
	Match(ctx context.Context, vector pgvector.Vector, opts types.MatchOptions) ([]types.RankedMatch, error)
	// Dimensions returns the length of stored embeddings, 0 when the index is empty
	Dimensions(ctx context.Context, sourceIDs []string) (int, error)
}
