package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quka-ai/knowledge-sync/pkg/ai"
	"github.com/quka-ai/knowledge-sync/pkg/content"
	"github.com/quka-ai/knowledge-sync/pkg/types"
)

func TestCreateTextContentSync(t *testing.T) {
	f := newFixture()
	f.addSource("ks1")
	ctx := context.Background()

	res, err := f.svc.Contents.Create(ctx, CreateContentRequest{
		KnowledgeSourceID: "ks1",
		Record:            types.TextContent{Title: "Refunds", Text: "Refunds take 5 days."},
	})
	require.NoError(t, err)
	assert.Equal(t, SYNC_STATUS_COMPLETED, res.Status)
	assert.NotEmpty(t, res.JobID)

	_, ok := f.mem.contents[res.Item.ID]
	assert.True(t, ok)

	key := contentKey(res.Item)
	doc, ok := f.mem.vectors[key]
	require.True(t, ok)
	assert.Equal(t, "Refunds\n\nRefunds take 5 days.", doc.Content)
	assert.Equal(t, "fake-embedding", doc.Model)
	assert.Equal(t, res.Item.ID, doc.Metadata[content.META_CONTENT_ID])
	assert.Len(t, doc.Embedding.Slice(), testDims)

	jobs := f.jobsOf(key)
	require.Len(t, jobs, 1)
	assert.Equal(t, types.EMBEDDING_JOB_STATUS_COMPLETED, jobs[0].Status)
	assert.Equal(t, 1, jobs[0].Attempts)

	// 同步模式不投递到后台队列
	assert.Empty(t, f.dispatcher.ids)
	assert.Empty(t, f.metrics.rollbacks)
	assert.Equal(t, types.GenVectorIndexID("ks1"), f.mem.sources["ks1"].VectorIndexID)
	assert.NotZero(t, f.mem.sources["ks1"].LastSyncedAt)
}

func TestCreateFileContentRollsBackOnExtractionFailure(t *testing.T) {
	f := newFixture(func(f *fixture) {
		f.extractor.err = errors.New("corrupted pdf")
	})
	f.addSource("ks1")

	_, err := f.svc.Contents.Create(context.Background(), CreateContentRequest{
		KnowledgeSourceID: "ks1",
		File:              &FileUpload{Name: "handbook.pdf", MimeType: "application/pdf", Data: []byte("%PDF-1.7")},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRolledBack))
	assert.True(t, errors.Is(err, ErrUpstreamService))

	var rolled *RollbackError
	require.True(t, errors.As(err, &rolled))
	assert.Equal(t, 2, rolled.Result.Attempted)
	assert.True(t, rolled.Result.OK())

	assert.Empty(t, f.mem.contents)
	assert.Empty(t, f.mem.vectors)
	assert.Empty(t, f.blob.objects)
	require.Len(t, f.blob.deleted, 1)
	assert.Contains(t, f.blob.deleted[0], "knowledge/files/ks1/")
	assert.Equal(t, 1, f.metrics.rollbacks["content.create"])

	// the failed job stays for inspection
	require.Len(t, f.mem.jobs, 1)
	for _, job := range f.mem.jobs {
		assert.Equal(t, types.EMBEDDING_JOB_STATUS_FAILED, job.Status)
		assert.Contains(t, job.Error, "corrupted pdf")
	}
}

func TestCreateFileContentExtractsAndCaches(t *testing.T) {
	f := newFixture()
	f.addSource("ks1")

	res, err := f.svc.Contents.Create(context.Background(), CreateContentRequest{
		KnowledgeSourceID: "ks1",
		File:              &FileUpload{Name: "notes.txt", Data: []byte("hello")},
	})
	require.NoError(t, err)

	item := f.mem.contents[res.Item.ID]
	assert.Equal(t, "extracted body", item.ExtractedText)
	assert.NotEmpty(t, item.BlobURL)
	assert.Equal(t, "text/plain", f.blob.mimes[item.BlobURL])

	doc := f.mem.vectors[contentKey(res.Item)]
	assert.Equal(t, "File: notes.txt\n\nextracted body", doc.Content)
	assert.Equal(t, 1, f.extractor.calls)
}

func TestCreateContentTimeoutLeavesJobProcessing(t *testing.T) {
	f := newFixture(func(f *fixture) {
		f.embedder.block = true
		f.opts.SyncTimeout = 50 * time.Millisecond
	})
	f.addSource("ks1")

	_, err := f.svc.Contents.Create(context.Background(), CreateContentRequest{
		KnowledgeSourceID: "ks1",
		Record:            types.QAContent{Question: "Hours?", Answer: "9 to 5"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstreamTimeout))
	assert.False(t, errors.Is(err, ErrRolledBack))

	var processing *ProcessingError
	require.True(t, errors.As(err, &processing))
	assert.NotEmpty(t, processing.JobID)

	// the item is kept and the job is handed to the background worker
	_, ok := f.mem.contents[processing.Item.ID]
	assert.True(t, ok)
	job := f.mem.jobs[processing.JobID]
	assert.Equal(t, types.EMBEDDING_JOB_STATUS_PENDING, job.Status)
	assert.Equal(t, []string{processing.JobID}, f.dispatcher.ids)
	assert.Empty(t, f.metrics.rollbacks)

	f.embedder.mu.Lock()
	f.embedder.block = false
	f.embedder.mu.Unlock()
	require.NoError(t, f.svc.Worker.Process(context.Background(), processing.JobID))
	assert.Equal(t, types.EMBEDDING_JOB_STATUS_COMPLETED, f.mem.jobs[processing.JobID].Status)
	assert.Len(t, f.mem.vectors, 1)
}

func TestUpdateContentReembeds(t *testing.T) {
	f := newFixture()
	f.addSource("ks1")
	ctx := context.Background()

	created, err := f.svc.Contents.Create(ctx, CreateContentRequest{
		KnowledgeSourceID: "ks1",
		Record:            types.TextContent{Title: "Shipping", Text: "Ships in 2 days."},
	})
	require.NoError(t, err)
	key := contentKey(created.Item)
	firstID := f.mem.vectors[key].ID

	updated, err := f.svc.Contents.Update(ctx, UpdateContentRequest{
		ContentID: created.Item.ID,
		Record:    types.TextContent{Title: "Shipping", Text: "Ships in 3 days."},
	})
	require.NoError(t, err)
	assert.Equal(t, SYNC_STATUS_COMPLETED, updated.Status)
	assert.NotEqual(t, created.JobID, updated.JobID)

	// one document per dedup key, rebuilt after the invalidation
	assert.Len(t, f.mem.vectors, 1)
	doc := f.mem.vectors[key]
	assert.Equal(t, "Shipping\n\nShips in 3 days.", doc.Content)
	assert.NotEqual(t, firstID, doc.ID)

	jobs := f.jobsOf(key)
	require.Len(t, jobs, 2)
	for _, job := range jobs {
		assert.Equal(t, types.EMBEDDING_JOB_STATUS_COMPLETED, job.Status)
	}
	assert.Equal(t, 2, f.embedder.Calls())
}

func TestUpdateContentRollbackRestoresRow(t *testing.T) {
	f := newFixture()
	f.addSource("ks1")
	ctx := context.Background()

	created, err := f.svc.Contents.Create(ctx, CreateContentRequest{
		KnowledgeSourceID: "ks1",
		Record:            types.TextContent{Text: "v1"},
	})
	require.NoError(t, err)
	before := f.mem.contents[created.Item.ID]

	f.embedder.err = errors.New("provider down")
	_, err = f.svc.Contents.Update(ctx, UpdateContentRequest{
		ContentID: created.Item.ID,
		Record:    types.TextContent{Text: "v2"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRolledBack))
	assert.Equal(t, before, f.mem.contents[created.Item.ID])
	assert.Equal(t, 1, f.metrics.rollbacks["content.update"])

	// the restored item is queued again since its vector was invalidated
	latest, err := fakeJobs{m: f.mem}.GetLatest(ctx, contentKey(created.Item))
	require.NoError(t, err)
	assert.Equal(t, types.EMBEDDING_JOB_STATUS_PENDING, latest.Status)
	assert.Equal(t, "v1", latest.Content)
	assert.Contains(t, f.dispatcher.ids, latest.JobID)
}

func TestUpdateMetadataOnlyDoesNotReembed(t *testing.T) {
	f := newFixture()
	f.addSource("ks1")
	ctx := context.Background()

	created, err := f.svc.Contents.Create(ctx, CreateContentRequest{
		KnowledgeSourceID: "ks1",
		Record:            types.CatalogContent{ProductID: "p-1", Name: "Kettle", Price: "30", Currency: "USD"},
	})
	require.NoError(t, err)

	res, err := f.svc.Contents.Update(ctx, UpdateContentRequest{
		ContentID: created.Item.ID,
		Record:    types.CatalogContent{ProductID: "p-2", Name: "Kettle", Price: "30", Currency: "USD"},
	})
	require.NoError(t, err)
	assert.Equal(t, SYNC_STATUS_CURRENT, res.Status)
	assert.Empty(t, res.JobID)

	assert.Equal(t, 1, f.embedder.Calls())
	assert.Len(t, f.mem.jobs, 1)
	assert.Equal(t, "p-2", f.mem.vectors[contentKey(created.Item)].Metadata["product_id"])
	// lang and model written by the worker survive the refresh
	assert.Equal(t, "fake-embedding", f.mem.vectors[contentKey(created.Item)].Metadata[META_MODEL])
}

func TestUpdateContentTypeChangeRejected(t *testing.T) {
	f := newFixture()
	f.addSource("ks1")
	ctx := context.Background()

	created, err := f.svc.Contents.Create(ctx, CreateContentRequest{
		KnowledgeSourceID: "ks1",
		Record:            types.TextContent{Text: "hi"},
		Async:             true,
	})
	require.NoError(t, err)

	_, err = f.svc.Contents.Update(ctx, UpdateContentRequest{
		ContentID: created.Item.ID,
		Record:    types.QAContent{Question: "q", Answer: "a"},
	})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestSyncTwiceIsIdempotent(t *testing.T) {
	f := newFixture()
	f.addSource("ks1")
	ctx := context.Background()

	created, err := f.svc.Contents.Create(ctx, CreateContentRequest{
		KnowledgeSourceID: "ks1",
		Record:            types.WebsiteContent{URL: "https://example.com", Title: "Example", PageText: "body"},
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := f.svc.Contents.Sync(ctx, created.Item.ID, false)
		require.NoError(t, err)
		assert.Equal(t, SYNC_STATUS_CURRENT, res.Status)
	}
	assert.Len(t, f.mem.jobs, 1)
	assert.Equal(t, 1, f.embedder.Calls())
}

func TestCreateContentAsync(t *testing.T) {
	f := newFixture()
	f.addSource("ks1")
	calls := f.embedder.Calls()

	res, err := f.svc.Contents.Create(context.Background(), CreateContentRequest{
		KnowledgeSourceID: "ks1",
		Record:            types.TextContent{Text: "later"},
		Async:             true,
	})
	require.NoError(t, err)
	assert.Equal(t, SYNC_STATUS_PENDING, res.Status)
	assert.Equal(t, []string{res.JobID}, f.dispatcher.ids)
	assert.Empty(t, f.mem.vectors)
	assert.Equal(t, calls, f.embedder.Calls())
}

func TestCreateContentValidation(t *testing.T) {
	f := newFixture()
	f.addSource("ks1")
	ctx := context.Background()

	cases := []CreateContentRequest{
		{KnowledgeSourceID: "", Record: types.TextContent{Text: "x"}},
		{KnowledgeSourceID: "ks1", Record: types.QAContent{Question: "q"}},
		{KnowledgeSourceID: "ks1", Record: types.FileContent{FileName: "a.pdf"}},
		{KnowledgeSourceID: "ks1", Record: types.TextContent{Text: "x"}, File: &FileUpload{Name: "a.txt", Data: []byte("x")}},
		{KnowledgeSourceID: "ks1"},
	}
	for _, req := range cases {
		_, err := f.svc.Contents.Create(ctx, req)
		assert.True(t, errors.Is(err, ErrValidation), "%+v: %v", req, err)
	}
	assert.Empty(t, f.mem.contents)
	assert.Empty(t, f.mem.jobs)
	assert.Empty(t, f.blob.objects)

	_, err := f.svc.Contents.Create(ctx, CreateContentRequest{KnowledgeSourceID: "missing", Record: types.TextContent{Text: "x"}})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCreateFileTooLarge(t *testing.T) {
	f := newFixture(func(f *fixture) {
		f.opts.MaxFileSize = 4
	})
	f.addSource("ks1")

	_, err := f.svc.Contents.Create(context.Background(), CreateContentRequest{
		KnowledgeSourceID: "ks1",
		File:              &FileUpload{Name: "a.txt", Data: []byte("too large")},
	})
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Empty(t, f.blob.objects)
}

func TestCreateContentRowFailureRemovesBlob(t *testing.T) {
	f := newFixture()
	f.addSource("ks1")
	f.mem.createContentErr = errBoom

	_, err := f.svc.Contents.Create(context.Background(), CreateContentRequest{
		KnowledgeSourceID: "ks1",
		File:              &FileUpload{Name: "a.txt", Data: []byte("abc")},
	})
	assert.True(t, errors.Is(err, ErrRolledBack))
	assert.True(t, errors.Is(err, errBoom))
	assert.Len(t, f.blob.deleted, 1)
	assert.Empty(t, f.blob.objects)
}

func TestCreateWebsiteCrawlsPage(t *testing.T) {
	f := newFixture(func(f *fixture) {
		f.reader = &fakeReader{res: &ai.ReaderResult{Title: "Docs", Content: "crawled page"}}
	})
	f.addSource("ks1")

	res, err := f.svc.Contents.Create(context.Background(), CreateContentRequest{
		KnowledgeSourceID: "ks1",
		Record:            types.WebsiteContent{URL: "https://example.com/docs"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Docs\nURL: https://example.com/docs\n\ncrawled page", f.mem.vectors[contentKey(res.Item)].Content)
}

func TestCreateWebsiteCrawlFailureIsNotFatal(t *testing.T) {
	f := newFixture(func(f *fixture) {
		f.reader = &fakeReader{err: errBoom}
	})
	f.addSource("ks1")

	res, err := f.svc.Contents.Create(context.Background(), CreateContentRequest{
		KnowledgeSourceID: "ks1",
		Record:            types.WebsiteContent{URL: "https://example.com", Title: "Home"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Home\nURL: https://example.com", f.mem.vectors[contentKey(res.Item)].Content)
}

func TestDeleteContent(t *testing.T) {
	f := newFixture()
	f.addSource("ks1")
	ctx := context.Background()

	created, err := f.svc.Contents.Create(ctx, CreateContentRequest{
		KnowledgeSourceID: "ks1",
		File:              &FileUpload{Name: "a.txt", Data: []byte("abc")},
	})
	require.NoError(t, err)
	url := f.mem.contents[created.Item.ID].BlobURL

	// a failing vector delete is swallowed
	f.mem.deleteVectorErr = errBoom
	require.NoError(t, f.svc.Contents.Delete(ctx, created.Item.ID))
	assert.Empty(t, f.mem.contents)
	assert.Empty(t, f.mem.jobs)
	assert.Equal(t, []string{url}, f.blob.deleted)

	err = f.svc.Contents.Delete(ctx, created.Item.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCreateQAContentSync(t *testing.T) {
	f := newFixture()
	f.addSource("ks1")

	res, err := f.svc.Contents.Create(context.Background(), CreateContentRequest{
		KnowledgeSourceID: "ks1",
		Record:            types.QAContent{Question: "What are your hours?", Answer: "9 to 5"},
	})
	require.NoError(t, err)
	assert.Equal(t, SYNC_STATUS_COMPLETED, res.Status)
	assert.Len(t, f.mem.contents, 1)

	key := contentKey(res.Item)
	jobs := f.jobsOf(key)
	require.Len(t, jobs, 1)
	assert.Equal(t, types.EMBEDDING_JOB_STATUS_COMPLETED, jobs[0].Status)

	require.Len(t, f.mem.vectors, 1)
	doc := f.mem.vectors[key]
	assert.Contains(t, doc.Content, "What are your hours?")
	assert.Contains(t, doc.Content, "9 to 5")
	assert.Equal(t, types.CONTENT_TYPE_QA, doc.ContentType)
}

func TestCreateTextRollsBackOnEmbeddingFailure(t *testing.T) {
	f := newFixture(func(f *fixture) {
		f.embedder.err = errors.New("provider down")
	})
	f.addSource("ks1")

	_, err := f.svc.Contents.Create(context.Background(), CreateContentRequest{
		KnowledgeSourceID: "ks1",
		Record:            types.TextContent{Text: "Refunds take 5 days."},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRolledBack))
	assert.True(t, errors.Is(err, ErrUpstreamService))

	var rolled *RollbackError
	require.True(t, errors.As(err, &rolled))
	assert.True(t, rolled.Result.OK())

	assert.Empty(t, f.mem.contents)
	assert.Empty(t, f.mem.vectors)
	// the failed job goes with the row
	assert.Empty(t, f.mem.jobs)
	assert.Equal(t, 1, f.metrics.rollbacks["content.create"])
}

func TestRolledBackCreateCannotBeIndexedLater(t *testing.T) {
	f := newFixture(func(f *fixture) {
		f.embedder.err = errBoom
	})
	f.addSource("ks1")
	ctx := context.Background()

	_, err := f.svc.Contents.Create(ctx, CreateContentRequest{
		KnowledgeSourceID: "ks1",
		Record:            types.TextContent{Text: "hello"},
	})
	require.True(t, errors.Is(err, ErrRolledBack))
	require.Empty(t, f.mem.contents)
	f.embedder.err = nil
	calls := f.embedder.Calls()

	// a job left over for the removed row, e.g. by a compensation that failed
	key := types.DedupKey{KnowledgeSourceID: "ks1", ContentType: types.CONTENT_TYPE_TEXT, ContentID: "gone"}
	failed := types.EmbeddingJob{JobID: "failed", KnowledgeSourceID: key.KnowledgeSourceID, ContentType: key.ContentType, ContentID: key.ContentID,
		Content: "hello", Metadata: types.Metadata{}, Status: types.EMBEDDING_JOB_STATUS_FAILED}
	require.NoError(t, fakeJobs{m: f.mem}.Create(ctx, failed))

	err = f.svc.Jobs.RetryJob(ctx, "failed")
	assert.True(t, errors.Is(err, ErrJobNotRetryable))
	assert.Equal(t, types.EMBEDDING_JOB_STATUS_FAILED, f.mem.jobs["failed"].Status)

	f.mem.setJobStatus("failed", types.EMBEDDING_JOB_STATUS_PENDING)
	err = f.svc.Worker.Process(ctx, "failed")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Empty(t, f.mem.vectors)
	assert.Equal(t, calls, f.embedder.Calls())
}

func TestRolledBackUpdateKeepsRestoredContentIndexed(t *testing.T) {
	f := newFixture()
	f.addSource("ks1")
	ctx := context.Background()

	created, err := f.svc.Contents.Create(ctx, CreateContentRequest{
		KnowledgeSourceID: "ks1",
		Record:            types.TextContent{Text: "v1"},
	})
	require.NoError(t, err)
	key := contentKey(created.Item)

	f.embedder.err = errBoom
	_, err = f.svc.Contents.Update(ctx, UpdateContentRequest{
		ContentID: created.Item.ID,
		Record:    types.TextContent{Text: "v2"},
	})
	require.True(t, errors.Is(err, ErrRolledBack))
	f.embedder.err = nil

	var v2Job, resyncJob string
	for _, job := range f.jobsOf(key) {
		switch {
		case job.Content == "v2":
			v2Job = job.JobID
			assert.Equal(t, types.EMBEDDING_JOB_ERROR_SUPERSEDED, job.Error)
		case job.Status == types.EMBEDDING_JOB_STATUS_PENDING:
			resyncJob = job.JobID
		}
	}
	require.NotEmpty(t, v2Job)
	require.NotEmpty(t, resyncJob)

	require.NoError(t, f.svc.Worker.Process(ctx, resyncJob))
	assert.Equal(t, "v1", f.mem.vectors[key].Content)

	err = f.svc.Jobs.RetryJob(ctx, v2Job)
	assert.True(t, errors.Is(err, ErrJobNotRetryable))

	// even when forced back to pending the worker refuses the stale content
	f.mem.setJobStatus(v2Job, types.EMBEDDING_JOB_STATUS_PENDING)
	err = f.svc.Worker.Process(ctx, v2Job)
	assert.True(t, errors.Is(err, ErrJobSuperseded))
	assert.Equal(t, "v1", f.mem.vectors[key].Content)
	assert.Equal(t, types.EMBEDDING_JOB_ERROR_SUPERSEDED, f.mem.jobs[v2Job].Error)
}

func TestCreateClaimFailureLeavesNoPendingJob(t *testing.T) {
	f := newFixture(func(f *fixture) {
		f.mem.claimErr = errBoom
	})
	f.addSource("ks1")
	ctx := context.Background()

	_, err := f.svc.Contents.Create(ctx, CreateContentRequest{
		KnowledgeSourceID: "ks1",
		Record:            types.TextContent{Text: "hello"},
	})
	require.True(t, errors.Is(err, ErrRolledBack))
	assert.Empty(t, f.mem.contents)
	assert.Empty(t, f.mem.jobs)

	n, err := f.svc.Jobs.RedispatchStale(ctx, 0, 100)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.dispatcher.ids)
}

func TestCreateCompletionFailureRemovesVector(t *testing.T) {
	f := newFixture(func(f *fixture) {
		f.mem.completeErr = errBoom
	})
	f.addSource("ks1")

	_, err := f.svc.Contents.Create(context.Background(), CreateContentRequest{
		KnowledgeSourceID: "ks1",
		Record:            types.TextContent{Text: "hello"},
	})
	require.True(t, errors.Is(err, ErrRolledBack))
	assert.Equal(t, 1, f.embedder.Calls())
	assert.Empty(t, f.mem.contents)
	assert.Empty(t, f.mem.vectors)
	assert.Empty(t, f.mem.jobs)
}

func TestSyncVectorResolvesLedgerOnce(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*fixture)
		async      bool
		wantErr    error
		rolledBack bool
	}{
		{name: "completed"},
		{name: "async", async: true},
		{name: "timeout", wantErr: ErrUpstreamTimeout, mutate: func(f *fixture) {
			f.embedder.block = true
			f.opts.SyncTimeout = 20 * time.Millisecond
		}},
		{name: "failure", wantErr: ErrRolledBack, rolledBack: true, mutate: func(f *fixture) {
			f.embedder.err = errBoom
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mutate []func(*fixture)
			if tt.mutate != nil {
				mutate = append(mutate, tt.mutate)
			}
			f := newFixture(mutate...)
			f.addSource("ks1")
			ctx := context.Background()

			item := &types.ContentItem{ID: "c1", KnowledgeSourceID: "ks1"}
			require.NoError(t, item.SetRecord(types.TextContent{Text: "hello"}))
			f.mem.contents[item.ID] = *item

			const scope = "content.create"
			handler := f.svc.Contents.newHandler(scope)
			handler.RecordDatabaseSuccess(ENTITY_CONTENT_ITEM, item.ID)

			_, err := f.svc.Contents.syncVector(ctx, handler, scope, item, tt.async)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tt.wantErr))
			}

			assert.True(t, handler.Finished())
			assert.Equal(t, tt.rolledBack, handler.RolledBack())
			assert.Zero(t, handler.Pending())
			if tt.rolledBack {
				assert.Equal(t, 1, f.metrics.rollbacks[scope])
			} else {
				assert.Empty(t, f.metrics.rollbacks)
			}
			// a second resolution has nothing left to undo
			assert.Zero(t, handler.ExecuteRollback(ctx, nil).Attempted)
		})
	}
}
