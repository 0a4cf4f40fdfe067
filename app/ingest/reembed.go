package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/quka-ai/knowledge-sync/pkg/content"
	"github.com/quka-ai/knowledge-sync/pkg/types"
)

// Reembedder re-queues every item of a source, used after an embedding model change.
type Reembedder struct {
	deps Deps
	jobs *JobService
}

type ReembedResult struct {
	Total    int   `json:"total"`
	Enqueued int64 `json:"enqueued"`
	Failed   int64 `json:"failed"`
}

func (r *Reembedder) ReembedSource(ctx context.Context, sourceID string, concurrency int) (ReembedResult, error) {
	var res ReembedResult
	items, err := r.deps.Contents.List(ctx, types.ListContentItemOptions{KnowledgeSourceID: sourceID}, types.NO_PAGINATION, types.NO_PAGINATION)
	if err != nil {
		return res, fmt.Errorf("failed to list content items: %w", err)
	}
	res.Total = len(items)
	if len(items) == 0 {
		return res, nil
	}

	if concurrency <= 0 {
		concurrency = 4
	}
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return res, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		enqueued atomic.Int64
		failed   atomic.Int64
	)
	for i := range items {
		item := &items[i]
		wg.Add(1)
		if err = pool.Submit(func() {
			defer wg.Done()
			if err := r.reembed(ctx, item); err != nil {
				failed.Add(1)
				slog.Error("failed to reembed content", slog.String("content_id", item.ID), slog.String("error", err.Error()))
				return
			}
			enqueued.Add(1)
		}); err != nil {
			wg.Done()
			failed.Add(1)
			slog.Error("failed to submit reembed task", slog.String("content_id", item.ID), slog.String("error", err.Error()))
		}
	}
	wg.Wait()

	res.Enqueued = enqueued.Load()
	res.Failed = failed.Load()
	return res, nil
}

func (r *Reembedder) reembed(ctx context.Context, item *types.ContentItem) error {
	formatted, err := content.FormatItem(item)
	if err != nil {
		return err
	}
	key := contentKey(item)
	if err = r.jobs.InvalidateContent(ctx, key); err != nil {
		return err
	}
	_, err = r.jobs.ProcessContent(ctx, key, formatted)
	return err
}
