package sqlstore

import (
	"embed"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"github.com/quka-ai/knowledge-sync/app/store"
	"github.com/quka-ai/knowledge-sync/pkg/register"
	"github.com/quka-ai/knowledge-sync/pkg/sqlstore"
	"github.com/quka-ai/knowledge-sync/pkg/types"
)

//go:embed migrations/*.sql
var CreateTableFiles embed.FS

const (
	migrationDir = "migrations"

	DEFAULT_EMBEDDING_DIMENSIONS = 1024
	dimensionsPlaceholder        = "{{EMBEDDING_DIMENSIONS}}"
)

func init() {
	sq.StatementBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

var provider = &Provider{
	stores: &Stores{},
}

func GetProvider() *Provider {
	return provider
}

type Provider struct {
	*sqlstore.SqlProvider
	stores *Stores
}

type Stores struct {
	store.KnowledgeSourceStore
	store.ContentItemStore
	store.EmbeddingJobStore
	store.VectorStore
}

type RegisterKey struct{}

func MustSetup(m sqlstore.ConnectConfig, s ...sqlstore.ConnectConfig) func() *Provider {
	provider.SqlProvider = sqlstore.MustSetupProvider(m, s...)

	for _, f := range register.ResolveFuncHandlers[*Provider](RegisterKey{}) {
		f(provider)
	}

	return func() *Provider {
		return provider
	}
}

// Install 执行 migrations 目录下尚未执行过的 sql 文件，向量列的维度由 dimensions 决定
// 已建好的表不会随配置变化，修改维度需要重建向量表后重新 embedding
func (p *Provider) Install(dimensions int) error {
	if err := p.enableExtensions(); err != nil {
		return err
	}

	if err := p.ensureMigrationTable(); err != nil {
		return err
	}

	files, err := CreateTableFiles.ReadDir(migrationDir)
	if err != nil {
		return err
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name() < files[j].Name()
	})

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}
		executed, err := p.isFileExecuted(file.Name())
		if err != nil {
			return err
		}
		if executed {
			continue
		}

		raw, err := CreateTableFiles.ReadFile(path.Join(migrationDir, file.Name()))
		if err != nil {
			return err
		}

		slog.Info("Executing migration", slog.String("file", file.Name()))
		if _, err = p.SqlProvider.GetMaster().Exec(renderMigration(string(raw), dimensions)); err != nil {
			return fmt.Errorf("failed to execute %s, %w", file.Name(), err)
		}

		if err = p.markFileExecuted(file.Name()); err != nil {
			return err
		}
	}
	return nil
}

func renderMigration(raw string, dimensions int) string {
	if dimensions <= 0 {
		dimensions = DEFAULT_EMBEDDING_DIMENSIONS
	}
	return strings.ReplaceAll(raw, dimensionsPlaceholder, strconv.Itoa(dimensions))
}

func (p *Provider) enableExtensions() error {
	extensions := []string{
		"CREATE EXTENSION IF NOT EXISTS vector;",
	}

	for _, ext := range extensions {
		if _, err := p.SqlProvider.GetMaster().Exec(ext); err != nil {
			return fmt.Errorf("failed to enable extension: %w\nSQL: %s", err, ext)
		}
	}
	return nil
}

func (p *Provider) ensureMigrationTable() error {
	createTableSQL := `
CREATE TABLE IF NOT EXISTS ` + types.TABLE_PREFIX + `schema_migrations (
    filename VARCHAR(255) PRIMARY KEY,
    executed_at BIGINT NOT NULL
);`
	_, err := p.SqlProvider.GetMaster().Exec(createTableSQL)
	return err
}

func (p *Provider) isFileExecuted(filename string) (bool, error) {
	var count int
	err := p.SqlProvider.GetReplica().Get(&count,
		"SELECT COUNT(*) FROM "+types.TABLE_PREFIX+"schema_migrations WHERE filename = $1", filename)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *Provider) markFileExecuted(filename string) error {
	_, err := p.SqlProvider.GetMaster().Exec(
		"INSERT INTO "+types.TABLE_PREFIX+"schema_migrations (filename, executed_at) VALUES ($1, $2) ON CONFLICT (filename) DO NOTHING",
		filename, time.Now().Unix())
	return err
}

func (p *Provider) KnowledgeSourceStore() store.KnowledgeSourceStore {
	return p.stores.KnowledgeSourceStore
}

func (p *Provider) ContentItemStore() store.ContentItemStore {
	return p.stores.ContentItemStore
}

func (p *Provider) EmbeddingJobStore() store.EmbeddingJobStore {
	return p.stores.EmbeddingJobStore
}

func (p *Provider) VectorStore() store.VectorStore {
	return p.stores.VectorStore
}
