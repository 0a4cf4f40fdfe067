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
		provider.stores.KnowledgeSourceStore = NewKnowledgeSourceStore(provider)
	})
}

type KnowledgeSourceStore struct {
	CommonFields
}

func NewKnowledgeSourceStore(provider SqlProviderAchieve) *KnowledgeSourceStore {
	repo := &KnowledgeSourceStore{}
	repo.SetProvider(provider)
	repo.SetTable(types.TABLE_KNOWLEDGE_SOURCE)
	repo.SetAllColumns("id", "owner_id", "name", "description", "vector_index_id", "last_synced_at", "created_at", "updated_at")
	return repo
}

func (s *KnowledgeSourceStore) Create(ctx context.Context, data types.KnowledgeSource) error {
	if data.CreatedAt == 0 {
		data.CreatedAt = time.Now().Unix()
	}
	if data.UpdatedAt == 0 {
		data.UpdatedAt = data.CreatedAt
	}
	query := sq.Insert(s.GetTable()).
		Columns("id", "owner_id", "name", "description", "vector_index_id", "last_synced_at", "created_at", "updated_at").
		Values(data.ID, data.OwnerID, data.Name, data.Description, data.VectorIndexID, data.LastSyncedAt, data.CreatedAt, data.UpdatedAt)

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *KnowledgeSourceStore) Get(ctx context.Context, id string) (*types.KnowledgeSource, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).Where(sq.Eq{"id": id})

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res types.KnowledgeSource
	if err = s.GetReplica(ctx).Get(&res, queryString, args...); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *KnowledgeSourceStore) List(ctx context.Context, ownerID string, page, pageSize uint64) ([]types.KnowledgeSource, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).OrderBy("created_at DESC")
	if ownerID != "" {
		query = query.Where(sq.Eq{"owner_id": ownerID})
	}
	if page != types.NO_PAGINATION || pageSize != types.NO_PAGINATION {
		query = query.Limit(pageSize).Offset((page - 1) * pageSize)
	}

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.KnowledgeSource
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *KnowledgeSourceStore) UpdateSyncPointer(ctx context.Context, id, vectorIndexID string, syncedAt int64) error {
	query := sq.Update(s.GetTable()).
		Set("last_synced_at", syncedAt).
		Set("updated_at", time.Now().Unix()).
		Where(sq.Eq{"id": id})
	if vectorIndexID != "" {
		query = query.Set("vector_index_id", vectorIndexID)
	}

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *KnowledgeSourceStore) Delete(ctx context.Context, id string) error {
	query := sq.Delete(s.GetTable()).Where(sq.Eq{"id": id})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}
