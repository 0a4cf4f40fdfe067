package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/quka-ai/knowledge-sync/pkg/ai"
	"github.com/quka-ai/knowledge-sync/pkg/content"
	"github.com/quka-ai/knowledge-sync/pkg/types"
	"github.com/quka-ai/knowledge-sync/pkg/utils"
)

var (
	// ErrJobBusy is returned while another run holds the lock of the same content.
	ErrJobBusy = fmt.Errorf("%w: another embedding of the same content is running", ErrUpstreamTimeout)
	// ErrJobSuperseded is returned when the stored item no longer formats to the job content.
	ErrJobSuperseded = fmt.Errorf("%w: content changed after the job was queued", ErrJobNotRetryable)
)

const (
	META_LANG      = "lang"
	META_MODEL     = "model"
	META_TRUNCATED = "truncated"
)

// Worker turns one pending job into an upserted vector document.
type Worker struct {
	deps Deps
	opts Options
}

// Process runs job jobID. Jobs no longer pending are skipped. Any failure after
// the claim marks the job failed with the reason and is returned, nothing that
// already happened is compensated here.
func (w *Worker) Process(ctx context.Context, jobID string) error {
	_, err := w.process(ctx, jobID)
	return err
}

// process reports whether this call ran the job.
func (w *Worker) process(ctx context.Context, jobID string) (bool, error) {
	job, err := w.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%w: embedding job %s", ErrNotFound, jobID)
		}
		return false, fmt.Errorf("failed to load embedding job: %w", err)
	}
	if job.Status != types.EMBEDDING_JOB_STATUS_PENDING {
		slog.Debug("embedding job is not pending, skip", slog.String("job_id", jobID), slog.String("status", job.Status.String()))
		return false, nil
	}

	if w.deps.Locker != nil {
		unlock, ok, err := w.deps.Locker.TryLock(ctx, "embedding:"+job.Key().String(), w.opts.LockTTL)
		if err != nil {
			return false, fmt.Errorf("failed to lock content: %w", err)
		}
		if !ok {
			return false, ErrJobBusy
		}
		defer unlock()
	}

	claimed, err := w.deps.Jobs.Claim(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to claim embedding job: %w", err)
	}
	if !claimed {
		return false, nil
	}

	start := time.Now()
	if err = w.run(ctx, job); err != nil {
		reason := err.Error()
		if errors.Is(err, ErrJobSuperseded) {
			reason = types.EMBEDDING_JOB_ERROR_SUPERSEDED
		}
		// the caller may already be gone, the failure still has to land
		if ferr := w.deps.Jobs.Fail(context.WithoutCancel(ctx), jobID, reason); ferr != nil {
			slog.Error("failed to mark embedding job failed", slog.String("job_id", jobID), slog.String("error", ferr.Error()))
		}
		w.deps.Metrics.ObserveEmbedding("failed", time.Since(start))
		w.deps.Metrics.JobFinished(types.EMBEDDING_JOB_STATUS_FAILED.String())
		slog.Error("embedding job failed", slog.String("job_id", jobID), slog.String("key", job.Key().String()), slog.String("error", err.Error()))
		return true, err
	}

	w.deps.Metrics.ObserveEmbedding("completed", time.Since(start))
	w.deps.Metrics.JobFinished(types.EMBEDDING_JOB_STATUS_COMPLETED.String())
	return true, nil
}

func (w *Worker) run(ctx context.Context, job *types.EmbeddingJob) error {
	text, metadata := job.Content, job.Metadata.Clone()

	item, err := w.deps.Contents.Get(ctx, job.ContentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: content item %s", ErrNotFound, job.ContentID)
		}
		return fmt.Errorf("failed to load content item: %w", err)
	}
	if contentKey(item) != job.Key() {
		return fmt.Errorf("%w: content item %s moved to %s", ErrJobSuperseded, item.ID, contentKey(item).String())
	}

	if job.ContentType == types.CONTENT_TYPE_FILE {
		// 文件的文本在这里才抽取，只能以当前行为准
		formatted, err := w.fileContent(ctx, item)
		if err != nil {
			return err
		}
		text = formatted.Content
		for k, v := range formatted.Metadata {
			metadata[k] = v
		}
	} else {
		formatted, err := content.FormatItem(item)
		if err != nil {
			return err
		}
		if formatted.Content != job.Content {
			return fmt.Errorf("%w: content item %s", ErrJobSuperseded, item.ID)
		}
	}

	input := text
	if w.opts.MaxInputChars > 0 {
		input = utils.TruncateRunes(text, w.opts.MaxInputChars)
		if len(input) < len(text) {
			metadata[META_TRUNCATED] = true
		}
	}

	vector, model, err := w.embed(ctx, input)
	if err != nil {
		return err
	}
	metadata[META_MODEL] = model
	if lang := utils.WhatLang(input); lang != "" {
		metadata[META_LANG] = lang
	}

	now := time.Now().Unix()
	doc := types.VectorDocument{
		ID:                uuid.NewString(),
		KnowledgeSourceID: job.KnowledgeSourceID,
		ContentType:       job.ContentType,
		ContentID:         job.ContentID,
		Content:           text,
		Embedding:         pgvector.NewVector(vector),
		Metadata:          metadata,
		Model:             model,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err = w.deps.Vectors.Upsert(ctx, doc); err != nil {
		return classify("vector upsert", err)
	}

	completed, err := w.deps.Jobs.Complete(ctx, job.JobID)
	if err != nil {
		return fmt.Errorf("failed to complete embedding job: %w", err)
	}
	if !completed {
		// released by the stale poller while running, the upsert is idempotent so the next run just repeats it
		slog.Warn("embedding job was no longer processing on completion, it will run again",
			slog.String("job_id", job.JobID), slog.String("key", job.Key().String()))
	}

	if err = w.deps.Sources.UpdateSyncPointer(ctx, job.KnowledgeSourceID, "", now); err != nil {
		slog.Warn("failed to update sync pointer", slog.String("knowledge_source_id", job.KnowledgeSourceID), slog.String("error", err.Error()))
	}
	return nil
}

// fileContent formats a file item, extracting and caching its text first when needed.
func (w *Worker) fileContent(ctx context.Context, item *types.ContentItem) (content.Formatted, error) {
	if item.ExtractedText == "" {
		if item.BlobURL == "" {
			return content.Formatted{}, validationError("file item %s has no blob", item.ID)
		}
		text, err := w.extract(ctx, item.BlobURL)
		if err != nil {
			return content.Formatted{}, err
		}
		item.ExtractedText = text
		if err = w.deps.Contents.UpdateExtractedText(ctx, item.ID, text); err != nil {
			slog.Warn("failed to cache extracted text", slog.String("content_id", item.ID), slog.String("error", err.Error()))
		}
	}
	return content.FormatItem(item)
}

type blob struct {
	data []byte
	mime string
}

func (w *Worker) extract(ctx context.Context, url string) (string, error) {
	file, err := call(ctx, w.opts.BlobCall, "blob download", func(ctx context.Context) (blob, error) {
		data, mime, err := w.deps.Blob.Download(ctx, url)
		if err != nil {
			return blob{}, classify("blob download", err)
		}
		return blob{data: data, mime: mime}, nil
	})
	if err != nil {
		return "", err
	}

	return call(ctx, w.opts.ExtractCall, "text extraction", func(ctx context.Context) (string, error) {
		text, err := w.deps.Extractor.Extract(ctx, file.data, file.mime)
		if errors.Is(err, ai.ErrUnsupportedMimeType) {
			return "", validationError("cannot extract text from %s", file.mime)
		}
		return text, classify("text extraction", err)
	})
}

type embedded struct {
	vector []float32
	model  string
}

func (w *Worker) embed(ctx context.Context, input string) ([]float32, string, error) {
	res, err := call(ctx, w.opts.EmbedCall, "embedding", func(ctx context.Context) (embedded, error) {
		if w.deps.Limiter != nil {
			if err := w.deps.Limiter.Wait(ctx); err != nil {
				return embedded{}, classify("embedding rate limit", err)
			}
		}
		res, err := w.deps.Embedder.EmbeddingForDocument(ctx, "", []string{input})
		if err != nil {
			return embedded{}, classify("embedding", err)
		}
		if len(res.Data) != 1 {
			return embedded{}, fmt.Errorf("%w: embedding returned %d vectors for 1 input", ErrUpstreamService, len(res.Data))
		}
		return embedded{vector: res.Data[0], model: res.Model}, nil
	})
	if err != nil {
		return nil, "", err
	}
	if w.opts.Dimensions > 0 && len(res.vector) != w.opts.Dimensions {
		return nil, "", fmt.Errorf("%w: embedding has %d dimensions, expected %d", ErrConfiguration, len(res.vector), w.opts.Dimensions)
	}
	return res.vector, res.model, nil
}
