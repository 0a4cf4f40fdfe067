package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/quka-ai/knowledge-sync/pkg/types"
)

type SourceService struct {
	deps     Deps
	contents *ContentService
}

func (s *SourceService) Create(ctx context.Context, ownerID, name, description string) (*types.KnowledgeSource, error) {
	name = strings.TrimSpace(name)
	if ownerID == "" {
		return nil, validationError("owner is required")
	}
	if name == "" {
		return nil, validationError("name is required")
	}

	now := time.Now().Unix()
	source := types.KnowledgeSource{
		ID:          s.deps.GenID(),
		OwnerID:     ownerID,
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.deps.Sources.Create(ctx, source); err != nil {
		return nil, fmt.Errorf("failed to create knowledge source: %w", err)
	}
	return &source, nil
}

func (s *SourceService) Get(ctx context.Context, id string) (*types.KnowledgeSource, error) {
	source, err := s.deps.Sources.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: knowledge source %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get knowledge source: %w", err)
	}
	return source, nil
}

func (s *SourceService) List(ctx context.Context, ownerID string, page, pageSize uint64) ([]types.KnowledgeSource, error) {
	list, err := s.deps.Sources.List(ctx, ownerID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge sources: %w", err)
	}
	return list, nil
}

// Delete removes a source with all of its items. Vectors and jobs are removed
// best effort, rows go in one transaction, blobs are deleted last.
func (s *SourceService) Delete(ctx context.Context, id string) error {
	source, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	items, err := s.deps.Contents.List(ctx, types.ListContentItemOptions{KnowledgeSourceID: source.ID}, types.NO_PAGINATION, types.NO_PAGINATION)
	if err != nil {
		return fmt.Errorf("failed to list content items: %w", err)
	}

	if err = s.deps.Vectors.DeleteBySource(ctx, source.ID); err != nil {
		slog.Error("failed to delete source vectors", slog.String("knowledge_source_id", source.ID), slog.String("error", err.Error()))
	}
	if err = s.deps.Jobs.DeleteBySource(ctx, source.ID); err != nil {
		slog.Error("failed to delete source jobs", slog.String("knowledge_source_id", source.ID), slog.String("error", err.Error()))
	}

	err = s.deps.Tx.Transaction(ctx, func(ctx context.Context) error {
		if err := s.deps.Contents.DeleteBySource(ctx, source.ID); err != nil {
			return fmt.Errorf("failed to delete content items: %w", err)
		}
		if err := s.deps.Sources.Delete(ctx, source.ID); err != nil {
			return fmt.Errorf("failed to delete knowledge source: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	blobs := lo.Uniq(lo.FilterMap(items, func(item types.ContentItem, _ int) (string, bool) {
		return item.BlobURL, item.BlobURL != ""
	}))
	for _, url := range blobs {
		s.contents.deleteBlob(ctx, url)
	}
	return nil
}
