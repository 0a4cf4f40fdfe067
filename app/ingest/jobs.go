package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quka-ai/knowledge-sync/pkg/content"
	"github.com/quka-ai/knowledge-sync/pkg/types"
)

// JobService owns the embedding job lifecycle up to the point a worker claims it.
type JobService struct {
	deps Deps
}

// ProcessContent enqueues an embedding job for the formatted content and returns
// its id. An empty id means the stored vector is already current: metadata drift
// is written in place and no job is created.
func (s *JobService) ProcessContent(ctx context.Context, key types.DedupKey, formatted content.Formatted) (string, error) {
	jobID, err := s.prepare(ctx, key, formatted)
	if err != nil || jobID == "" {
		return "", err
	}
	s.dispatch(ctx, jobID)
	return jobID, nil
}

// prepare is ProcessContent without handing the job to the background worker.
func (s *JobService) prepare(ctx context.Context, key types.DedupKey, formatted content.Formatted) (string, error) {
	existing, err := s.deps.Vectors.Get(ctx, key)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to load vector document: %w", err)
	}
	if existing != nil && existing.Content == formatted.Content {
		if !metadataCovers(existing.Metadata, formatted.Metadata) {
			merged := existing.Metadata.Clone()
			for k, v := range formatted.Metadata {
				merged[k] = v
			}
			if err = s.deps.Vectors.UpdateMetadata(ctx, key, merged); err != nil {
				return "", fmt.Errorf("failed to refresh vector metadata: %w", err)
			}
		}
		slog.Debug("content unchanged, skip embedding", slog.String("key", key.String()))
		return "", nil
	}

	latest, err := s.deps.Jobs.GetLatest(ctx, key)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to load latest job: %w", err)
	}
	if latest != nil && latest.Status == types.EMBEDDING_JOB_STATUS_PENDING && latest.Content == formatted.Content {
		return latest.JobID, nil
	}

	job := types.EmbeddingJob{
		JobID:             s.deps.GenID(),
		KnowledgeSourceID: key.KnowledgeSourceID,
		ContentType:       key.ContentType,
		ContentID:         key.ContentID,
		Content:           formatted.Content,
		Metadata:          formatted.Metadata,
		Status:            types.EMBEDDING_JOB_STATUS_PENDING,
		CreatedAt:         time.Now().Unix(),
	}
	if err = s.deps.Jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("failed to create embedding job: %w", err)
	}
	return job.JobID, nil
}

// dispatch 失败不影响任务本身，poller 会重新投递 pending 任务
func (s *JobService) dispatch(ctx context.Context, jobID string) {
	if s.deps.Dispatcher == nil {
		return
	}
	if err := s.deps.Dispatcher.Dispatch(ctx, jobID); err != nil {
		slog.Warn("failed to dispatch embedding job, left for poller", slog.String("job_id", jobID), slog.String("error", err.Error()))
	}
}

// InvalidateContent drops the vector document of key so the next job re-embeds
// from scratch. Earlier jobs of the key are marked superseded.
func (s *JobService) InvalidateContent(ctx context.Context, key types.DedupKey) error {
	if err := s.deps.Vectors.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to invalidate vector document: %w", err)
	}
	if _, err := s.supersede(ctx, key); err != nil {
		slog.Warn("failed to supersede embedding jobs", slog.String("key", key.String()), slog.String("error", err.Error()))
	}
	return nil
}

// supersede fails the pending and failed jobs of key so neither the poller nor RetryJob picks them up again.
func (s *JobService) supersede(ctx context.Context, key types.DedupKey) (int64, error) {
	n, err := s.deps.Jobs.Supersede(ctx, key, types.EMBEDDING_JOB_ERROR_SUPERSEDED)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("embedding jobs superseded", slog.String("key", key.String()), slog.Int64("count", n))
	}
	return n, nil
}

// DeleteContent removes everything indexed for key. It never fails, a leftover
// vector is logged and cleaned up by the next delete or re-embed.
func (s *JobService) DeleteContent(ctx context.Context, key types.DedupKey) {
	if err := s.deps.Vectors.Delete(ctx, key); err != nil {
		slog.Error("failed to delete vector document", slog.String("key", key.String()), slog.String("error", err.Error()))
	}
	if err := s.deps.Jobs.DeleteByContent(ctx, key); err != nil {
		slog.Error("failed to delete embedding jobs", slog.String("key", key.String()), slog.String("error", err.Error()))
	}
}

func (s *JobService) GetJob(ctx context.Context, jobID string) (*types.EmbeddingJob, error) {
	job, err := s.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: embedding job %s", ErrNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get embedding job: %w", err)
	}
	return job, nil
}

// ContentStatus is the indexing state of one content item.
type ContentStatus struct {
	Key       types.DedupKey      `json:"key"`
	Indexed   bool                `json:"indexed"`
	Model     string              `json:"model,omitempty"`
	IndexedAt int64               `json:"indexed_at,omitempty"`
	LatestJob *types.EmbeddingJob `json:"latest_job,omitempty"`
}

// CheckContent reports whether key is indexed and how its latest job went.
func (s *JobService) CheckContent(ctx context.Context, key types.DedupKey) (ContentStatus, error) {
	status := ContentStatus{Key: key}

	doc, err := s.deps.Vectors.Get(ctx, key)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return status, fmt.Errorf("failed to load vector document: %w", err)
	}
	if doc != nil {
		status.Indexed = true
		status.Model = doc.Model
		status.IndexedAt = doc.UpdatedAt
	}

	job, err := s.deps.Jobs.GetLatest(ctx, key)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return status, fmt.Errorf("failed to load latest job: %w", err)
	}
	status.LatestJob = job
	return status, nil
}

func (s *JobService) ListJobs(ctx context.Context, opts types.ListEmbeddingJobOptions, page, pageSize uint64) ([]types.EmbeddingJob, int64, error) {
	list, err := s.deps.Jobs.List(ctx, opts, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list embedding jobs: %w", err)
	}
	total, err := s.deps.Jobs.Total(ctx, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count embedding jobs: %w", err)
	}
	return list, total, nil
}

// RetryJob puts a failed job back to pending and dispatches it. Only the latest
// job of a content item that still exists can be retried.
func (s *JobService) RetryJob(ctx context.Context, jobID string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Error == types.EMBEDDING_JOB_ERROR_SUPERSEDED {
		return fmt.Errorf("%w: job %s was superseded by a newer edit", ErrJobNotRetryable, jobID)
	}
	if job.Status != types.EMBEDDING_JOB_STATUS_FAILED {
		return fmt.Errorf("%w: job %s is %s", ErrJobNotRetryable, jobID, job.Status)
	}

	latest, err := s.deps.Jobs.GetLatest(ctx, job.Key())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to load latest job: %w", err)
	}
	if latest != nil && latest.JobID != job.JobID {
		return fmt.Errorf("%w: job %s was replaced by %s", ErrJobNotRetryable, jobID, latest.JobID)
	}
	if _, err = s.deps.Contents.Get(ctx, job.ContentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: content item %s of job %s no longer exists", ErrJobNotRetryable, job.ContentID, jobID)
		}
		return fmt.Errorf("failed to load content item: %w", err)
	}

	ok, err := s.deps.Jobs.Reset(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to reset embedding job: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: job %s is no longer failed", ErrJobNotRetryable, jobID)
	}
	s.dispatch(ctx, jobID)
	return nil
}

// RedispatchStale re-dispatches pending jobs untouched for staleAfter, after
// returning processing jobs abandoned by a crashed worker to pending.
func (s *JobService) RedispatchStale(ctx context.Context, staleAfter time.Duration, limit uint64) (int, error) {
	before := time.Now().Add(-staleAfter).Unix()
	if n, err := s.deps.Jobs.ReleaseStale(ctx, before); err != nil {
		slog.Error("failed to release stale processing jobs", slog.String("error", err.Error()))
	} else if n > 0 {
		slog.Warn("released stale processing jobs", slog.Int64("count", n))
	}

	list, err := s.deps.Jobs.List(ctx, types.ListEmbeddingJobOptions{
		Status:        []types.EmbeddingJobStatus{types.EMBEDDING_JOB_STATUS_PENDING},
		UpdatedBefore: before,
	}, 1, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	for _, v := range list {
		s.dispatch(ctx, v.JobID)
	}
	return len(list), nil
}

// metadataCovers reports whether every wanted key is present in current with an equal value.
func metadataCovers(current, wanted types.Metadata) bool {
	sub := types.Metadata{}
	for k := range wanted {
		if v, ok := current[k]; ok {
			sub[k] = v
		}
	}
	return sub.Equal(wanted)
}
