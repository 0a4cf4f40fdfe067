package sqlstore

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/quka-ai/knowledge-sync/pkg/register"
	"github.com/quka-ai/knowledge-sync/pkg/types"
)

func init() {
	register.RegisterFunc[*Provider](RegisterKey{}, func(provider *Provider) {
		provider.stores.EmbeddingJobStore = NewEmbeddingJobStore(provider)
	})
}

type EmbeddingJobStore struct {
	CommonFields
}

func NewEmbeddingJobStore(provider SqlProviderAchieve) *EmbeddingJobStore {
	repo := &EmbeddingJobStore{}
	repo.SetProvider(provider)
	repo.SetTable(types.TABLE_EMBEDDING_JOB)
	repo.SetAllColumns("job_id", "knowledge_source_id", "content_type", "content_id", "content", "metadata", "status", "error", "attempts", "created_at", "updated_at", "completed_at")
	return repo
}

func (s *EmbeddingJobStore) Create(ctx context.Context, data types.EmbeddingJob) error {
	if data.CreatedAt == 0 {
		data.CreatedAt = time.Now().Unix()
	}
	if data.UpdatedAt == 0 {
		data.UpdatedAt = data.CreatedAt
	}
	if data.Status == "" {
		data.Status = types.EMBEDDING_JOB_STATUS_PENDING
	}
	query := sq.Insert(s.GetTable()).
		Columns("job_id", "knowledge_source_id", "content_type", "content_id", "content", "metadata", "status", "error", "attempts", "created_at", "updated_at", "completed_at").
		Values(data.JobID, data.KnowledgeSourceID, data.ContentType, data.ContentID, data.Content, data.Metadata, data.Status, data.Error, data.Attempts, data.CreatedAt, data.UpdatedAt, data.CompletedAt)

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *EmbeddingJobStore) Get(ctx context.Context, jobID string) (*types.EmbeddingJob, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).Where(sq.Eq{"job_id": jobID})

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res types.EmbeddingJob
	if err = s.GetReplica(ctx).Get(&res, queryString, args...); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *EmbeddingJobStore) GetLatest(ctx context.Context, key types.DedupKey) (*types.EmbeddingJob, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).
		Where(sq.Eq{"knowledge_source_id": key.KnowledgeSourceID, "content_type": key.ContentType, "content_id": key.ContentID}).
		OrderBy("created_at DESC", "job_id DESC").
		Limit(1)

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res types.EmbeddingJob
	if err = s.GetReplica(ctx).Get(&res, queryString, args...); err != nil {
		return nil, err
	}
	return &res, nil
}

// transition 只有当前状态为 from 时才会更新，返回是否命中
func (s *EmbeddingJobStore) transition(ctx context.Context, jobID string, from types.EmbeddingJobStatus, query sq.UpdateBuilder) (bool, error) {
	queryString, args, err := query.Where(sq.Eq{"job_id": jobID, "status": from}).ToSql()
	if err != nil {
		return false, ErrorSqlBuild(err)
	}

	res, err := s.GetMaster(ctx).Exec(queryString, args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *EmbeddingJobStore) Claim(ctx context.Context, jobID string) (bool, error) {
	return s.transition(ctx, jobID, types.EMBEDDING_JOB_STATUS_PENDING, sq.Update(s.GetTable()).
		Set("status", types.EMBEDDING_JOB_STATUS_PROCESSING).
		Set("attempts", sq.Expr("attempts + 1")).
		Set("updated_at", time.Now().Unix()))
}

func (s *EmbeddingJobStore) Complete(ctx context.Context, jobID string) (bool, error) {
	now := time.Now().Unix()
	return s.transition(ctx, jobID, types.EMBEDDING_JOB_STATUS_PROCESSING, sq.Update(s.GetTable()).
		Set("status", types.EMBEDDING_JOB_STATUS_COMPLETED).
		Set("error", "").
		Set("completed_at", now).
		Set("updated_at", now))
}

func (s *EmbeddingJobStore) Fail(ctx context.Context, jobID, reason string) error {
	_, err := s.transition(ctx, jobID, types.EMBEDDING_JOB_STATUS_PROCESSING, sq.Update(s.GetTable()).
		Set("status", types.EMBEDDING_JOB_STATUS_FAILED).
		Set("error", reason).
		Set("updated_at", time.Now().Unix()))
	return err
}

func (s *EmbeddingJobStore) Reset(ctx context.Context, jobID string) (bool, error) {
	return s.transition(ctx, jobID, types.EMBEDDING_JOB_STATUS_FAILED, sq.Update(s.GetTable()).
		Set("status", types.EMBEDDING_JOB_STATUS_PENDING).
		Set("error", "").
		Set("updated_at", time.Now().Unix()))
}

// ReleaseStale 处理 worker 崩溃后遗留在 processing 状态的任务
func (s *EmbeddingJobStore) ReleaseStale(ctx context.Context, before int64) (int64, error) {
	query := sq.Update(s.GetTable()).
		Set("status", types.EMBEDDING_JOB_STATUS_PENDING).
		Set("updated_at", time.Now().Unix()).
		Where(sq.Eq{"status": types.EMBEDDING_JOB_STATUS_PROCESSING}).
		Where(sq.Lt{"updated_at": before})

	queryString, args, err := query.ToSql()
	if err != nil {
		return 0, ErrorSqlBuild(err)
	}

	res, err := s.GetMaster(ctx).Exec(queryString, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Supersede 失败的任务也一并标记，之后不能再被 Reset
func (s *EmbeddingJobStore) Supersede(ctx context.Context, key types.DedupKey, reason string) (int64, error) {
	query := sq.Update(s.GetTable()).
		Set("status", types.EMBEDDING_JOB_STATUS_FAILED).
		Set("error", reason).
		Set("updated_at", time.Now().Unix()).
		Where(sq.Eq{
			"knowledge_source_id": key.KnowledgeSourceID,
			"content_type":        key.ContentType,
			"content_id":          key.ContentID,
			"status":              []types.EmbeddingJobStatus{types.EMBEDDING_JOB_STATUS_PENDING, types.EMBEDDING_JOB_STATUS_FAILED},
		})

	queryString, args, err := query.ToSql()
	if err != nil {
		return 0, ErrorSqlBuild(err)
	}

	res, err := s.GetMaster(ctx).Exec(queryString, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *EmbeddingJobStore) List(ctx context.Context, opts types.ListEmbeddingJobOptions, page, pageSize uint64) ([]types.EmbeddingJob, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).OrderBy("updated_at ASC")
	if page != types.NO_PAGINATION || pageSize != types.NO_PAGINATION {
		query = query.Limit(pageSize).Offset((page - 1) * pageSize)
	}
	opts.Apply(&query)

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.EmbeddingJob
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *EmbeddingJobStore) Total(ctx context.Context, opts types.ListEmbeddingJobOptions) (int64, error) {
	query := sq.Select("COUNT(*)").From(s.GetTable())
	opts.Apply(&query)

	queryString, args, err := query.ToSql()
	if err != nil {
		return 0, ErrorSqlBuild(err)
	}

	var res int64
	if err = s.GetReplica(ctx).Get(&res, queryString, args...); err != nil {
		return 0, err
	}
	return res, nil
}

func (s *EmbeddingJobStore) DeleteByContent(ctx context.Context, key types.DedupKey) error {
	query := sq.Delete(s.GetTable()).Where(sq.Eq{
		"knowledge_source_id": key.KnowledgeSourceID,
		"content_type":        key.ContentType,
		"content_id":          key.ContentID,
	})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *EmbeddingJobStore) DeleteBySource(ctx context.Context, sourceID string) error {
	query := sq.Delete(s.GetTable()).Where(sq.Eq{"knowledge_source_id": sourceID})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}
