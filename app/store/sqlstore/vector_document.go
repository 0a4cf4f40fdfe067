package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pgvector/pgvector-go"

	"github.com/quka-ai/knowledge-sync/pkg/register"
	"github.com/quka-ai/knowledge-sync/pkg/types"
)

func init() {
	register.RegisterFunc[*Provider](RegisterKey{}, func(provider *Provider) {
		provider.stores.VectorStore = NewVectorStore(provider)
	})
}

type VectorStore struct {
	CommonFields
}

func NewVectorStore(provider SqlProviderAchieve) *VectorStore {
	repo := &VectorStore{}
	repo.SetProvider(provider)
	repo.SetTable(types.TABLE_VECTOR_DOCUMENT)
	repo.SetAllColumns("id", "knowledge_source_id", "content_type", "content_id", "content", "embedding", "metadata", "model", "created_at", "updated_at")
	return repo
}

func keyEq(key types.DedupKey) sq.Eq {
	return sq.Eq{
		"knowledge_source_id": key.KnowledgeSourceID,
		"content_type":        key.ContentType,
		"content_id":          key.ContentID,
	}
}

func (s *VectorStore) Get(ctx context.Context, key types.DedupKey) (*types.VectorDocument, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).Where(keyEq(key))

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res types.VectorDocument
	if err = s.GetReplica(ctx).Get(&res, queryString, args...); err != nil {
		return nil, err
	}
	return &res, nil
}

// Upsert 以 (knowledge_source_id, content_type, content_id) 去重，已存在则覆盖内容与向量
func (s *VectorStore) Upsert(ctx context.Context, data types.VectorDocument) error {
	now := time.Now().Unix()
	if data.CreatedAt == 0 {
		data.CreatedAt = now
	}
	if data.UpdatedAt == 0 {
		data.UpdatedAt = now
	}
	query := sq.Insert(s.GetTable()).
		Columns("id", "knowledge_source_id", "content_type", "content_id", "content", "embedding", "metadata", "model", "created_at", "updated_at").
		Values(data.ID, data.KnowledgeSourceID, data.ContentType, data.ContentID, data.Content, data.Embedding, data.Metadata, data.Model, data.CreatedAt, data.UpdatedAt).
		Suffix("ON CONFLICT (knowledge_source_id, content_type, content_id) DO UPDATE SET " +
			"content = EXCLUDED.content, embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata, " +
			"model = EXCLUDED.model, updated_at = EXCLUDED.updated_at")

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *VectorStore) UpdateMetadata(ctx context.Context, key types.DedupKey, metadata types.Metadata) error {
	query := sq.Update(s.GetTable()).
		Set("metadata", metadata).
		Set("updated_at", time.Now().Unix()).
		Where(keyEq(key))

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *VectorStore) Delete(ctx context.Context, key types.DedupKey) error {
	query := sq.Delete(s.GetTable()).Where(keyEq(key))

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *VectorStore) DeleteBySource(ctx context.Context, sourceID string) error {
	query := sq.Delete(s.GetTable()).Where(sq.Eq{"knowledge_source_id": sourceID})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

// Match 余弦相似度检索
// pgvector supported distance functions are:
// <-> - L2 distance
// <#> - (negative) inner product
// <=> - cosine distance
func (s *VectorStore) Match(ctx context.Context, vector pgvector.Vector, opts types.MatchOptions) ([]types.RankedMatch, error) {
	similarity := sq.Expr("1 - (embedding <=> ?)", vector)
	query := sq.Select("id", "knowledge_source_id", "content_type", "content_id", "content", "metadata").
		Column(sq.Alias(similarity, "similarity")).
		From(s.GetTable()).
		Where(sq.Eq{"knowledge_source_id": opts.KnowledgeSourceIDs}).
		Where(sq.Expr("1 - (embedding <=> ?) >= ?", vector, opts.Threshold)).
		OrderBy("similarity DESC").
		Limit(opts.Limit)
	if len(opts.ContentTypes) > 0 {
		query = query.Where(sq.Eq{"content_type": opts.ContentTypes})
	}

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.RankedMatch
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *VectorStore) Dimensions(ctx context.Context, sourceIDs []string) (int, error) {
	query := sq.Select("vector_dims(embedding)").From(s.GetTable()).
		Where(sq.Eq{"knowledge_source_id": sourceIDs}).
		Limit(1)

	queryString, args, err := query.ToSql()
	if err != nil {
		return 0, ErrorSqlBuild(err)
	}

	var dims int
	if err = s.GetReplica(ctx).Get(&dims, queryString, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return dims, nil
}
