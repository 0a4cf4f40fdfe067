package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/quka-ai/knowledge-sync/pkg/ai"
	"github.com/quka-ai/knowledge-sync/pkg/content"
	"github.com/quka-ai/knowledge-sync/pkg/rollback"
	"github.com/quka-ai/knowledge-sync/pkg/types"
	"github.com/quka-ai/knowledge-sync/pkg/utils"
)

// FileUpload is the raw file of a file content item.
type FileUpload struct {
	Name     string
	MimeType string
	Data     []byte
}

type CreateContentRequest struct {
	KnowledgeSourceID string
	Record            types.ContentRecord
	File              *FileUpload
	// Async returns right after enqueueing instead of waiting for the embedding
	Async bool
}

type UpdateContentRequest struct {
	ContentID string
	Record    types.ContentRecord
	File      *FileUpload
	Async     bool
}

// SyncStatus tells the caller how far the vector index got.
type SyncStatus string

const (
	SYNC_STATUS_CURRENT   SyncStatus = "current"
	SYNC_STATUS_PENDING   SyncStatus = "pending"
	SYNC_STATUS_COMPLETED SyncStatus = "completed"
)

type ContentResult struct {
	Item   *types.ContentItem `json:"item"`
	JobID  string             `json:"job_id,omitempty"`
	Status SyncStatus         `json:"status"`
}

// ProcessingError is returned when the item is stored but its embedding did not
// finish in time. The job keeps running in the background.
type ProcessingError struct {
	Item  *types.ContentItem
	JobID string
	Cause error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("embedding job %s is still processing: %s", e.JobID, e.Cause.Error())
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// ContentService applies content mutations and keeps the vector index in step.
// Every mutation runs under a rollback ledger: a failure undoes the blob and
// row changes already made and surfaces as RollbackError.
type ContentService struct {
	deps   Deps
	opts   Options
	jobs   *JobService
	worker *Worker
}

func (s *ContentService) newHandler(scope string) *rollback.Handler {
	return rollback.NewHandler(scope, compensators(s.deps, s.opts))
}

// abort compensates the ledger and wraps cause.
func (s *ContentService) abort(ctx context.Context, handler *rollback.Handler, scope string, cause error) error {
	res := handler.ExecuteRollback(context.WithoutCancel(ctx), cause)
	s.deps.Metrics.Rollback(scope, res.OK())
	return &RollbackError{Scope: scope, Cause: cause, Result: res}
}

// guard rolls back a ledger left open by a panic.
func (s *ContentService) guard(ctx context.Context, handler *rollback.Handler, scope string) {
	if handler.Finished() {
		return
	}
	res := handler.ExecuteRollback(context.WithoutCancel(ctx), errors.New("operation aborted"))
	s.deps.Metrics.Rollback(scope, res.OK())
}

func (s *ContentService) GetContent(ctx context.Context, id string) (*types.ContentItem, error) {
	item, err := s.deps.Contents.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: content item %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get content item: %w", err)
	}
	return item, nil
}

func (s *ContentService) ListContents(ctx context.Context, opts types.ListContentItemOptions, page, pageSize uint64) ([]types.ContentItem, int64, error) {
	list, err := s.deps.Contents.List(ctx, opts, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list content items: %w", err)
	}
	total, err := s.deps.Contents.Total(ctx, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count content items: %w", err)
	}
	return list, total, nil
}

// Create stores a new content item and syncs it into the vector index.
func (s *ContentService) Create(ctx context.Context, req CreateContentRequest) (*ContentResult, error) {
	if req.KnowledgeSourceID == "" {
		return nil, validationError("knowledge_source_id is required")
	}
	record, err := s.prepareRecord(ctx, req.Record, req.File)
	if err != nil {
		return nil, err
	}

	source, err := s.deps.Sources.Get(ctx, req.KnowledgeSourceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: knowledge source %s", ErrNotFound, req.KnowledgeSourceID)
		}
		return nil, fmt.Errorf("failed to get knowledge source: %w", err)
	}
	if err = s.ensureVectorIndex(ctx, source); err != nil {
		return nil, err
	}

	const scope = "content.create"
	handler := s.newHandler(scope)
	defer s.guard(ctx, handler, scope)

	if req.File != nil {
		if record, err = s.uploadFile(ctx, handler, source.ID, record.(types.FileContent), req.File); err != nil {
			return nil, s.abort(ctx, handler, scope, err)
		}
	}

	now := time.Now().Unix()
	item := &types.ContentItem{
		ID:                s.deps.GenID(),
		KnowledgeSourceID: source.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err = item.SetRecord(record); err != nil {
		return nil, s.abort(ctx, handler, scope, fmt.Errorf("failed to encode content: %w", err))
	}
	if err = s.deps.Contents.Create(ctx, *item); err != nil {
		return nil, s.abort(ctx, handler, scope, fmt.Errorf("failed to create content item: %w", err))
	}
	handler.RecordDatabaseSuccess(ENTITY_CONTENT_ITEM, item.ID)

	return s.syncVector(ctx, handler, scope, item, req.Async)
}

// Update replaces the record of an existing item. A changed canonical text
// invalidates the indexed vector, a metadata only change is written in place.
func (s *ContentService) Update(ctx context.Context, req UpdateContentRequest) (*ContentResult, error) {
	old, err := s.GetContent(ctx, req.ContentID)
	if err != nil {
		return nil, err
	}
	if req.Record != nil && req.Record.ContentType() != old.ContentType {
		return nil, validationError("content type cannot change from %s to %s", old.ContentType, req.Record.ContentType())
	}
	if req.Record == nil && req.File == nil {
		return nil, validationError("nothing to update")
	}

	record := req.Record
	if record == nil {
		// 仅替换文件
		if record, err = old.Record(); err != nil {
			return nil, fmt.Errorf("failed to decode stored content: %w", err)
		}
	}
	if file, ok := record.(types.FileContent); ok && req.File == nil && file.BlobURL == "" {
		file.BlobURL = old.BlobURL
		record = file
	}
	if record, err = s.prepareRecord(ctx, record, req.File); err != nil {
		return nil, err
	}

	oldFormatted, err := content.FormatItem(old)
	if err != nil {
		return nil, fmt.Errorf("failed to format stored content: %w", err)
	}

	const scope = "content.update"
	handler := s.newHandler(scope)
	defer s.guard(ctx, handler, scope)

	item := *old
	if req.File != nil {
		if record, err = s.uploadFile(ctx, handler, old.KnowledgeSourceID, record.(types.FileContent), req.File); err != nil {
			return nil, s.abort(ctx, handler, scope, err)
		}
		item.ExtractedText = ""
	}
	if err = item.SetRecord(record); err != nil {
		return nil, s.abort(ctx, handler, scope, fmt.Errorf("failed to encode content: %w", err))
	}
	item.UpdatedAt = time.Now().Unix()
	if err = s.deps.Contents.Update(ctx, item); err != nil {
		return nil, s.abort(ctx, handler, scope, fmt.Errorf("failed to update content item: %w", err))
	}
	handler.RecordDatabaseUpdate(ENTITY_CONTENT_ITEM, item.ID, *old)

	formatted, err := content.FormatItem(&item)
	if err != nil {
		return nil, s.abort(ctx, handler, scope, err)
	}
	if formatted.Content != oldFormatted.Content {
		if err = s.jobs.InvalidateContent(ctx, contentKey(&item)); err != nil {
			return nil, s.abortUpdate(ctx, handler, scope, old, err)
		}
	}

	res, err := s.syncVector(ctx, handler, scope, &item, req.Async)
	if err != nil {
		var rolled *RollbackError
		if errors.As(err, &rolled) {
			s.resync(ctx, old)
		}
		return nil, err
	}

	if old.BlobURL != "" && old.BlobURL != item.BlobURL {
		s.deleteBlob(ctx, old.BlobURL)
	}
	return res, nil
}

func (s *ContentService) abortUpdate(ctx context.Context, handler *rollback.Handler, scope string, old *types.ContentItem, cause error) error {
	err := s.abort(ctx, handler, scope, cause)
	s.resync(ctx, old)
	return err
}

// resync re-enqueues a restored item, its vector may have been invalidated before the failure.
func (s *ContentService) resync(ctx context.Context, item *types.ContentItem) {
	ctx = context.WithoutCancel(ctx)
	formatted, err := content.FormatItem(item)
	if err != nil {
		slog.Error("failed to format restored content", slog.String("content_id", item.ID), slog.String("error", err.Error()))
		return
	}
	if _, err = s.jobs.ProcessContent(ctx, contentKey(item), formatted); err != nil {
		slog.Error("failed to resync restored content", slog.String("content_id", item.ID), slog.String("error", err.Error()))
	}
}

// Delete removes the item, its vector and its blob. Only the row deletion can fail.
func (s *ContentService) Delete(ctx context.Context, id string) error {
	item, err := s.GetContent(ctx, id)
	if err != nil {
		return err
	}

	s.jobs.DeleteContent(ctx, contentKey(item))
	if err = s.deps.Contents.Delete(ctx, item.ID); err != nil {
		return fmt.Errorf("failed to delete content item: %w", err)
	}
	if item.BlobURL != "" {
		s.deleteBlob(ctx, item.BlobURL)
	}
	return nil
}

// Sync runs or enqueues embedding of an already stored item, nothing is rolled back.
func (s *ContentService) Sync(ctx context.Context, id string, async bool) (*ContentResult, error) {
	item, err := s.GetContent(ctx, id)
	if err != nil {
		return nil, err
	}
	const scope = "content.sync"
	handler := s.newHandler(scope)
	defer s.guard(ctx, handler, scope)
	return s.syncVector(ctx, handler, scope, item, async)
}

// syncVector is the last stage of every mutation. It finishes the ledger
// exactly once: cleared on success or pending work, rolled back on failure.
func (s *ContentService) syncVector(ctx context.Context, handler *rollback.Handler, scope string, item *types.ContentItem, async bool) (*ContentResult, error) {
	formatted, err := content.FormatItem(item)
	if err != nil {
		return nil, s.abort(ctx, handler, scope, err)
	}

	key := contentKey(item)
	if async {
		jobID, err := s.jobs.ProcessContent(ctx, key, formatted)
		if err != nil {
			return nil, s.abort(ctx, handler, scope, err)
		}
		handler.Clear()
		if jobID == "" {
			return &ContentResult{Item: item, Status: SYNC_STATUS_CURRENT}, nil
		}
		return &ContentResult{Item: item, JobID: jobID, Status: SYNC_STATUS_PENDING}, nil
	}

	jobID, err := s.jobs.prepare(ctx, key, formatted)
	if err != nil {
		return nil, s.abort(ctx, handler, scope, err)
	}
	if jobID == "" {
		handler.Clear()
		return &ContentResult{Item: item, Status: SYNC_STATUS_CURRENT}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, s.opts.SyncTimeout)
	ran, err := s.worker.process(runCtx, jobID)
	cancel()

	switch {
	case err == nil && ran:
		handler.RecordVectorSuccess(key.KnowledgeSourceID, key.ContentID, key.ContentType)
		handler.Clear()
		return &ContentResult{Item: item, JobID: jobID, Status: SYNC_STATUS_COMPLETED}, nil
	case err == nil:
		// claimed by a background worker in between
		handler.Clear()
		return nil, &ProcessingError{Item: item, JobID: jobID, Cause: ErrJobBusy}
	case errors.Is(err, ErrUpstreamTimeout):
		handler.Clear()
		if errors.Is(err, ErrJobBusy) || !ran {
			s.jobs.dispatch(ctx, jobID)
		} else if rerr := s.jobs.RetryJob(context.WithoutCancel(ctx), jobID); rerr != nil {
			// worker marked it failed, hand it to the background queue
			slog.Error("failed to requeue timed out job", slog.String("job_id", jobID), slog.String("error", rerr.Error()))
		}
		return nil, &ProcessingError{Item: item, JobID: jobID, Cause: err}
	case errors.Is(err, ErrJobSuperseded):
		// a concurrent edit owns the row now, undoing ours would clobber it
		handler.Clear()
		return nil, err
	}
	if ran && handler.Pending() > 0 {
		// the upsert may have landed before a later step failed, a plain sync keeps whatever was indexed
		handler.RecordVectorSuccess(key.KnowledgeSourceID, key.ContentID, key.ContentType)
	}
	return nil, s.abort(ctx, handler, scope, err)
}

// prepareRecord validates the record and fills file details from the upload.
func (s *ContentService) prepareRecord(ctx context.Context, record types.ContentRecord, file *FileUpload) (types.ContentRecord, error) {
	if record == nil {
		if file == nil {
			return nil, validationError("content is required")
		}
		record = types.FileContent{}
	}

	if file != nil {
		f, ok := record.(types.FileContent)
		if !ok {
			return nil, validationError("a file can only be attached to %s content", types.CONTENT_TYPE_FILE)
		}
		if len(file.Data) == 0 {
			return nil, validationError("file is empty")
		}
		if s.opts.MaxFileSize > 0 && int64(len(file.Data)) > s.opts.MaxFileSize {
			return nil, validationError("file exceeds %d bytes", s.opts.MaxFileSize)
		}
		if f.FileName == "" {
			f.FileName = file.Name
		}
		if file.MimeType == "" {
			file.MimeType = utils.GetMimeTypeByExtension(filepath.Ext(file.Name))
		}
		f.MimeType = utils.CleanContentType(file.MimeType)
		f.Size = int64(len(file.Data))
		record = f
	} else if f, ok := record.(types.FileContent); ok && f.BlobURL == "" {
		return nil, validationError("file content requires an uploaded file")
	}

	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if site, ok := record.(types.WebsiteContent); ok && strings.TrimSpace(site.PageText) == "" {
		record = s.crawl(ctx, site)
	}
	return record, nil
}

// crawl fills page text of a website record, best effort.
func (s *ContentService) crawl(ctx context.Context, site types.WebsiteContent) types.WebsiteContent {
	if s.deps.Reader == nil {
		return site
	}
	res, err := utils.Call(ctx, s.opts.CrawlCall, retryable, func(ctx context.Context) (*ai.ReaderResult, error) {
		return s.deps.Reader.Reader(ctx, site.URL)
	})
	if err != nil {
		slog.Warn("failed to crawl website, indexing without page text", slog.String("url", site.URL), slog.String("error", err.Error()))
		return site
	}
	site.PageText = res.Content
	if site.Title == "" {
		site.Title = res.Title
	}
	if site.Description == "" {
		site.Description = res.Description
	}
	return site
}

func (s *ContentService) uploadFile(ctx context.Context, handler *rollback.Handler, sourceID string, record types.FileContent, file *FileUpload) (types.FileContent, error) {
	key := fmt.Sprintf("%s%s/%s%s", types.FIXED_S3_UPLOAD_PATH_PREFIX, sourceID, s.deps.GenID(), strings.ToLower(filepath.Ext(file.Name)))
	url, err := call(ctx, s.opts.BlobCall, "blob upload", func(ctx context.Context) (string, error) {
		url, err := s.deps.Blob.Upload(ctx, strings.TrimPrefix(key, "/"), file.Data, record.MimeType)
		return url, classify("blob upload", err)
	})
	if err != nil {
		return record, err
	}
	handler.RecordBucketSuccess(url)
	record.BlobURL = url
	return record, nil
}

func (s *ContentService) deleteBlob(ctx context.Context, url string) {
	_, err := utils.Call(context.WithoutCancel(ctx), s.opts.BlobCall, retryable, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.deps.Blob.Delete(ctx, url)
	})
	if err != nil {
		slog.Error("failed to delete blob, left orphaned", slog.String("url", url), slog.String("error", err.Error()))
	}
}

// ensureVectorIndex assigns the vector partition of a source on its first write.
func (s *ContentService) ensureVectorIndex(ctx context.Context, source *types.KnowledgeSource) error {
	if source.VectorIndexID != "" {
		return nil
	}
	indexID := types.GenVectorIndexID(source.ID)
	_, err := call(ctx, s.opts.MatchCall, "vector index", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, classify("vector index", s.deps.Sources.UpdateSyncPointer(ctx, source.ID, indexID, source.LastSyncedAt))
	})
	if err != nil {
		return err
	}
	source.VectorIndexID = indexID
	return nil
}

func contentKey(item *types.ContentItem) types.DedupKey {
	return types.DedupKey{
		KnowledgeSourceID: item.KnowledgeSourceID,
		ContentType:       item.ContentType,
		ContentID:         item.ID,
	}
}
