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
		provider.stores.ContentItemStore = NewContentItemStore(provider)
	})
}

type ContentItemStore struct {
	CommonFields
}

func NewContentItemStore(provider SqlProviderAchieve) *ContentItemStore {
	repo := &ContentItemStore{}
	repo.SetProvider(provider)
	repo.SetTable(types.TABLE_CONTENT_ITEM)
	repo.SetAllColumns("id", "knowledge_source_id", "content_type", "payload", "blob_url", "extracted_text", "created_at", "updated_at")
	return repo
}

func (s *ContentItemStore) Create(ctx context.Context, data types.ContentItem) error {
	if data.CreatedAt == 0 {
		data.CreatedAt = time.Now().Unix()
	}
	if data.UpdatedAt == 0 {
		data.UpdatedAt = data.CreatedAt
	}
	query := sq.Insert(s.GetTable()).
		Columns("id", "knowledge_source_id", "content_type", "payload", "blob_url", "extracted_text", "created_at", "updated_at").
		Values(data.ID, data.KnowledgeSourceID, data.ContentType, string(data.Payload), data.BlobURL, data.ExtractedText, data.CreatedAt, data.UpdatedAt)

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *ContentItemStore) Get(ctx context.Context, id string) (*types.ContentItem, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).Where(sq.Eq{"id": id})

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res types.ContentItem
	if err = s.GetReplica(ctx).Get(&res, queryString, args...); err != nil {
		return nil, err
	}
	return &res, nil
}

// Update 覆盖内容，同时清空抽取缓存
func (s *ContentItemStore) Update(ctx context.Context, data types.ContentItem) error {
	updatedAt := data.UpdatedAt
	if updatedAt == 0 {
		updatedAt = time.Now().Unix()
	}
	query := sq.Update(s.GetTable()).
		Set("content_type", data.ContentType).
		Set("payload", string(data.Payload)).
		Set("blob_url", data.BlobURL).
		Set("extracted_text", data.ExtractedText).
		Set("updated_at", updatedAt).
		Where(sq.Eq{"id": data.ID})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *ContentItemStore) UpdateExtractedText(ctx context.Context, id, text string) error {
	query := sq.Update(s.GetTable()).
		Set("extracted_text", text).
		Where(sq.Eq{"id": id})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *ContentItemStore) Delete(ctx context.Context, id string) error {
	query := sq.Delete(s.GetTable()).Where(sq.Eq{"id": id})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *ContentItemStore) DeleteBySource(ctx context.Context, sourceID string) error {
	query := sq.Delete(s.GetTable()).Where(sq.Eq{"knowledge_source_id": sourceID})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *ContentItemStore) List(ctx context.Context, opts types.ListContentItemOptions, page, pageSize uint64) ([]types.ContentItem, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).OrderBy("created_at DESC")
	if page != types.NO_PAGINATION || pageSize != types.NO_PAGINATION {
		query = query.Limit(pageSize).Offset((page - 1) * pageSize)
	}
	opts.Apply(&query)

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.ContentItem
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *ContentItemStore) Total(ctx context.Context, opts types.ListContentItemOptions) (int64, error) {
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
