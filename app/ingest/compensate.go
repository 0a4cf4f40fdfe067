package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quka-ai/knowledge-sync/pkg/rollback"
	"github.com/quka-ai/knowledge-sync/pkg/types"
	"github.com/quka-ai/knowledge-sync/pkg/utils"
)

var ENTITY_CONTENT_ITEM = types.TABLE_CONTENT_ITEM.Name()

// compensators undo side effects recorded in a rollback ledger.
func compensators(deps Deps, opts Options) rollback.Compensators {
	return rollback.Compensators{
		rollback.KIND_DATABASE: func(ctx context.Context, action rollback.Action) error {
			return undoDatabase(ctx, deps, action)
		},
		rollback.KIND_BUCKET: func(ctx context.Context, action rollback.Action) error {
			_, err := utils.Call(ctx, opts.BlobCall, retryable, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, deps.Blob.Delete(ctx, action.URL)
			})
			return err
		},
		rollback.KIND_VECTOR: func(ctx context.Context, action rollback.Action) error {
			return deps.Vectors.Delete(ctx, action.Key)
		},
	}
}

// undoDatabase also retires the jobs the operation queued for the row, so a
// later retry or poll cannot index content that no longer exists.
func undoDatabase(ctx context.Context, deps Deps, action rollback.Action) error {
	switch action.Entity {
	case ENTITY_CONTENT_ITEM:
		if action.Snapshot == nil {
			item, err := deps.Contents.Get(ctx, action.EntityID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil
				}
				return err
			}
			return errors.Join(
				deps.Jobs.DeleteByContent(ctx, contentKey(item)),
				deps.Contents.Delete(ctx, action.EntityID),
			)
		}
		snapshot, ok := action.Snapshot.(types.ContentItem)
		if !ok {
			return fmt.Errorf("unexpected content item snapshot %T", action.Snapshot)
		}
		_, err := deps.Jobs.Supersede(ctx, contentKey(&snapshot), types.EMBEDDING_JOB_ERROR_SUPERSEDED)
		return errors.Join(err, deps.Contents.Update(ctx, snapshot))
	}
	return fmt.Errorf("no compensation for entity %s", action.Entity)
}
