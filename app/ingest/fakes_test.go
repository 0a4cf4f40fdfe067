package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/quka-ai/knowledge-sync/pkg/ai"
	"github.com/quka-ai/knowledge-sync/pkg/types"
)

// memory holds every table of the fake stores.
type memory struct {
	mu       sync.Mutex
	sources  map[string]types.KnowledgeSource
	contents map[string]types.ContentItem
	jobs     map[string]types.EmbeddingJob
	jobOrder []string
	vectors  map[types.DedupKey]types.VectorDocument
	matches  []types.RankedMatch

	createContentErr error
	updateContentErr error
	deleteContentErr error
	deleteVectorErr  error
	upsertErr        error
	claimErr         error
	completeErr      error
	lastMatch        types.MatchOptions
	matchCalls       int
}

func newMemory() *memory {
	return &memory{
		sources:  map[string]types.KnowledgeSource{},
		contents: map[string]types.ContentItem{},
		jobs:     map[string]types.EmbeddingJob{},
		vectors:  map[types.DedupKey]types.VectorDocument{},
	}
}

func (m *memory) err(target *error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *target
}

func (m *memory) setJobStatus(jobID string, status types.EmbeddingJobStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.jobs[jobID]
	v.Status = status
	m.jobs[jobID] = v
}

type table struct{ name types.TableName }

func (t table) GetTable(...interface{}) string { return t.name.Name() }

type fakeSources struct {
	table
	m *memory
}

func (s fakeSources) Create(_ context.Context, data types.KnowledgeSource) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.sources[data.ID] = data
	return nil
}

func (s fakeSources) Get(_ context.Context, id string) (*types.KnowledgeSource, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	v, ok := s.m.sources[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &v, nil
}

func (s fakeSources) List(_ context.Context, ownerID string, _, _ uint64) ([]types.KnowledgeSource, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var res []types.KnowledgeSource
	for _, v := range s.m.sources {
		if v.OwnerID == ownerID {
			res = append(res, v)
		}
	}
	return res, nil
}

func (s fakeSources) UpdateSyncPointer(_ context.Context, id, vectorIndexID string, syncedAt int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	v, ok := s.m.sources[id]
	if !ok {
		return nil
	}
	if vectorIndexID != "" {
		v.VectorIndexID = vectorIndexID
	}
	v.LastSyncedAt = syncedAt
	s.m.sources[id] = v
	return nil
}

func (s fakeSources) Delete(_ context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	delete(s.m.sources, id)
	return nil
}

type fakeContents struct {
	table
	m *memory
}

func (s fakeContents) Create(_ context.Context, data types.ContentItem) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.createContentErr != nil {
		return s.m.createContentErr
	}
	s.m.contents[data.ID] = data
	return nil
}

func (s fakeContents) Get(_ context.Context, id string) (*types.ContentItem, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	v, ok := s.m.contents[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &v, nil
}

func (s fakeContents) Update(_ context.Context, data types.ContentItem) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.updateContentErr != nil {
		return s.m.updateContentErr
	}
	s.m.contents[data.ID] = data
	return nil
}

func (s fakeContents) UpdateExtractedText(_ context.Context, id, text string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	v := s.m.contents[id]
	v.ExtractedText = text
	s.m.contents[id] = v
	return nil
}

func (s fakeContents) Delete(_ context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.deleteContentErr != nil {
		return s.m.deleteContentErr
	}
	delete(s.m.contents, id)
	return nil
}

func (s fakeContents) DeleteBySource(_ context.Context, sourceID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for k, v := range s.m.contents {
		if v.KnowledgeSourceID == sourceID {
			delete(s.m.contents, k)
		}
	}
	return nil
}

func (s fakeContents) List(_ context.Context, opts types.ListContentItemOptions, _, _ uint64) ([]types.ContentItem, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var res []types.ContentItem
	for _, v := range s.m.contents {
		if opts.KnowledgeSourceID != "" && v.KnowledgeSourceID != opts.KnowledgeSourceID {
			continue
		}
		if opts.ContentType != "" && v.ContentType != opts.ContentType {
			continue
		}
		res = append(res, v)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s fakeContents) Total(ctx context.Context, opts types.ListContentItemOptions) (int64, error) {
	list, _ := s.List(ctx, opts, 0, 0)
	return int64(len(list)), nil
}

type fakeJobs struct {
	table
	m *memory
}

func (s fakeJobs) Create(_ context.Context, data types.EmbeddingJob) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.jobs[data.JobID] = data
	s.m.jobOrder = append(s.m.jobOrder, data.JobID)
	return nil
}

func (s fakeJobs) Get(_ context.Context, jobID string) (*types.EmbeddingJob, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	v, ok := s.m.jobs[jobID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &v, nil
}

func (s fakeJobs) GetLatest(_ context.Context, key types.DedupKey) (*types.EmbeddingJob, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i := len(s.m.jobOrder) - 1; i >= 0; i-- {
		v, ok := s.m.jobs[s.m.jobOrder[i]]
		if ok && v.Key() == key {
			return &v, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s fakeJobs) transition(jobID string, from types.EmbeddingJobStatus, fn func(*types.EmbeddingJob)) bool {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	v, ok := s.m.jobs[jobID]
	if !ok || v.Status != from {
		return false
	}
	fn(&v)
	v.UpdatedAt = time.Now().Unix()
	s.m.jobs[jobID] = v
	return true
}

func (s fakeJobs) Claim(_ context.Context, jobID string) (bool, error) {
	if err := s.m.err(&s.m.claimErr); err != nil {
		return false, err
	}
	return s.transition(jobID, types.EMBEDDING_JOB_STATUS_PENDING, func(j *types.EmbeddingJob) {
		j.Status = types.EMBEDDING_JOB_STATUS_PROCESSING
		j.Attempts++
	}), nil
}

func (s fakeJobs) Complete(_ context.Context, jobID string) (bool, error) {
	if err := s.m.err(&s.m.completeErr); err != nil {
		return false, err
	}
	return s.transition(jobID, types.EMBEDDING_JOB_STATUS_PROCESSING, func(j *types.EmbeddingJob) {
		j.Status = types.EMBEDDING_JOB_STATUS_COMPLETED
		j.Error = ""
		j.CompletedAt = time.Now().Unix()
	}), nil
}

func (s fakeJobs) Fail(_ context.Context, jobID, reason string) error {
	s.transition(jobID, types.EMBEDDING_JOB_STATUS_PROCESSING, func(j *types.EmbeddingJob) {
		j.Status = types.EMBEDDING_JOB_STATUS_FAILED
		j.Error = reason
	})
	return nil
}

func (s fakeJobs) Supersede(_ context.Context, key types.DedupKey, reason string) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	for id, v := range s.m.jobs {
		if v.Key() == key && (v.Status == types.EMBEDDING_JOB_STATUS_PENDING || v.Status == types.EMBEDDING_JOB_STATUS_FAILED) {
			v.Status = types.EMBEDDING_JOB_STATUS_FAILED
			v.Error = reason
			s.m.jobs[id] = v
			n++
		}
	}
	return n, nil
}

func (s fakeJobs) Reset(_ context.Context, jobID string) (bool, error) {
	return s.transition(jobID, types.EMBEDDING_JOB_STATUS_FAILED, func(j *types.EmbeddingJob) {
		j.Status = types.EMBEDDING_JOB_STATUS_PENDING
		j.Error = ""
	}), nil
}

func (s fakeJobs) ReleaseStale(_ context.Context, before int64) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	for id, v := range s.m.jobs {
		if v.Status == types.EMBEDDING_JOB_STATUS_PROCESSING && v.UpdatedAt < before {
			v.Status = types.EMBEDDING_JOB_STATUS_PENDING
			v.UpdatedAt = time.Now().Unix()
			s.m.jobs[id] = v
			n++
		}
	}
	return n, nil
}

func (s fakeJobs) List(_ context.Context, opts types.ListEmbeddingJobOptions, _, _ uint64) ([]types.EmbeddingJob, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var res []types.EmbeddingJob
	for _, id := range s.m.jobOrder {
		v, ok := s.m.jobs[id]
		if !ok {
			continue
		}
		if opts.KnowledgeSourceID != "" && v.KnowledgeSourceID != opts.KnowledgeSourceID {
			continue
		}
		if opts.ContentID != "" && v.ContentID != opts.ContentID {
			continue
		}
		if len(opts.Status) > 0 && !containsStatus(opts.Status, v.Status) {
			continue
		}
		if opts.UpdatedBefore > 0 && v.UpdatedAt >= opts.UpdatedBefore {
			continue
		}
		res = append(res, v)
	}
	return res, nil
}

func containsStatus(list []types.EmbeddingJobStatus, s types.EmbeddingJobStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s fakeJobs) Total(ctx context.Context, opts types.ListEmbeddingJobOptions) (int64, error) {
	list, _ := s.List(ctx, opts, 0, 0)
	return int64(len(list)), nil
}

func (s fakeJobs) DeleteByContent(_ context.Context, key types.DedupKey) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for id, v := range s.m.jobs {
		if v.Key() == key {
			delete(s.m.jobs, id)
		}
	}
	return nil
}

func (s fakeJobs) DeleteBySource(_ context.Context, sourceID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for id, v := range s.m.jobs {
		if v.KnowledgeSourceID == sourceID {
			delete(s.m.jobs, id)
		}
	}
	return nil
}

type fakeVectors struct {
	table
	m *memory
}

func (s fakeVectors) Get(_ context.Context, key types.DedupKey) (*types.VectorDocument, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	v, ok := s.m.vectors[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &v, nil
}

func (s fakeVectors) Upsert(_ context.Context, data types.VectorDocument) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.upsertErr != nil {
		return s.m.upsertErr
	}
	if old, ok := s.m.vectors[data.Key()]; ok {
		data.ID = old.ID
		data.CreatedAt = old.CreatedAt
	}
	s.m.vectors[data.Key()] = data
	return nil
}

func (s fakeVectors) UpdateMetadata(_ context.Context, key types.DedupKey, metadata types.Metadata) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	v, ok := s.m.vectors[key]
	if !ok {
		return nil
	}
	v.Metadata = metadata
	s.m.vectors[key] = v
	return nil
}

func (s fakeVectors) Delete(_ context.Context, key types.DedupKey) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.deleteVectorErr != nil {
		return s.m.deleteVectorErr
	}
	delete(s.m.vectors, key)
	return nil
}

func (s fakeVectors) DeleteBySource(_ context.Context, sourceID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for k := range s.m.vectors {
		if k.KnowledgeSourceID == sourceID {
			delete(s.m.vectors, k)
		}
	}
	return nil
}

// Match serves the preset matches, filtered and ranked like the sql store.
func (s fakeVectors) Match(_ context.Context, _ pgvector.Vector, opts types.MatchOptions) ([]types.RankedMatch, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.lastMatch = opts
	s.m.matchCalls++
	var res []types.RankedMatch
	for _, v := range s.m.matches {
		if v.Similarity < opts.Threshold || !containsString(opts.KnowledgeSourceIDs, v.KnowledgeSourceID) {
			continue
		}
		res = append(res, v)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Similarity > res[j].Similarity })
	if uint64(len(res)) > opts.Limit {
		res = res[:opts.Limit]
	}
	return res, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s fakeVectors) Dimensions(_ context.Context, sourceIDs []string) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for k, v := range s.m.vectors {
		if containsString(sourceIDs, k.KnowledgeSourceID) {
			return len(v.Embedding.Slice()), nil
		}
	}
	return 0, nil
}

type fakeEmbedder struct {
	mu      sync.Mutex
	dims    int
	err     error
	block   bool
	calls   int
	input   []string
	onEmbed func()
}

func (e *fakeEmbedder) embed(ctx context.Context, content []string) (ai.EmbeddingResult, error) {
	e.mu.Lock()
	e.calls++
	e.input = append(e.input, content...)
	err, block, dims, hook := e.err, e.block, e.dims, e.onEmbed
	e.mu.Unlock()

	if hook != nil {
		hook()
	}
	if block {
		<-ctx.Done()
		return ai.EmbeddingResult{}, ctx.Err()
	}
	if err != nil {
		return ai.EmbeddingResult{}, err
	}
	res := ai.EmbeddingResult{Model: "fake-embedding"}
	for range content {
		vec := make([]float32, dims)
		for i := range vec {
			vec[i] = 1
		}
		res.Data = append(res.Data, vec)
	}
	return res, nil
}

func (e *fakeEmbedder) EmbeddingForQuery(ctx context.Context, content []string) (ai.EmbeddingResult, error) {
	return e.embed(ctx, content)
}

func (e *fakeEmbedder) EmbeddingForDocument(ctx context.Context, _ string, content []string) (ai.EmbeddingResult, error) {
	return e.embed(ctx, content)
}

func (e *fakeEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeExtractor struct {
	text  string
	err   error
	calls int
}

func (e *fakeExtractor) Extract(_ context.Context, _ []byte, _ string) (string, error) {
	e.calls++
	return e.text, e.err
}

type fakeBlob struct {
	mu        sync.Mutex
	objects   map[string][]byte
	mimes     map[string]string
	deleted   []string
	uploadErr error
	deleteErr error
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{objects: map[string][]byte{}, mimes: map[string]string{}}
}

func (b *fakeBlob) Upload(_ context.Context, key string, body []byte, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploadErr != nil {
		return "", b.uploadErr
	}
	url := "https://bucket.test/" + strings.TrimPrefix(key, "/")
	b.objects[url] = body
	b.mimes[url] = contentType
	return url, nil
}

func (b *fakeBlob) Download(_ context.Context, url string) ([]byte, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[url]
	if !ok {
		return nil, "", fmt.Errorf("object %s not found", url)
	}
	return data, b.mimes[url], nil
}

func (b *fakeBlob) Delete(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, url)
	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.objects, url)
	return nil
}

type fakeDispatcher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, jobID)
	return d.err
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}

type fakeReader struct {
	res *ai.ReaderResult
	err error
}

func (r *fakeReader) Reader(context.Context, string) (*ai.ReaderResult, error) {
	return r.res, r.err
}

type fakeMetrics struct {
	mu        sync.Mutex
	rollbacks map[string]int
	jobs      map[string]int
}

func (m *fakeMetrics) ObserveEmbedding(string, time.Duration) {}
func (m *fakeMetrics) ObserveSearch(string, time.Duration)    {}

func (m *fakeMetrics) JobFinished(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[status]++
}

func (m *fakeMetrics) Rollback(scope string, _ bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbacks[scope]++
}

const testDims = 8

type fixture struct {
	mem        *memory
	embedder   *fakeEmbedder
	extractor  *fakeExtractor
	blob       *fakeBlob
	dispatcher *fakeDispatcher
	locker     *fakeLocker
	reader     *fakeReader
	metrics    *fakeMetrics
	opts       Options
	svc        *Ingest
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Dimensions = testDims
	opts.MaxInputChars = 64
	opts.SyncTimeout = 2 * time.Second
	opts.EmbedCall.Attempts = 1
	opts.EmbedCall.BaseDelay = time.Millisecond
	opts.BlobCall.Attempts = 1
	opts.ExtractCall.Attempts = 1
	opts.MatchCall.Attempts = 1
	opts.Diagnostics = false
	return opts
}

func newFixture(mutate ...func(*fixture)) *fixture {
	var seq int
	var seqMu sync.Mutex
	f := &fixture{
		mem:        newMemory(),
		embedder:   &fakeEmbedder{dims: testDims},
		extractor:  &fakeExtractor{text: "extracted body"},
		blob:       newFakeBlob(),
		dispatcher: &fakeDispatcher{},
		locker:     &fakeLocker{},
		metrics:    &fakeMetrics{rollbacks: map[string]int{}, jobs: map[string]int{}},
		opts:       testOptions(),
	}
	for _, fn := range mutate {
		fn(f)
	}

	deps := Deps{
		Sources:    fakeSources{table{types.TABLE_KNOWLEDGE_SOURCE}, f.mem},
		Contents:   fakeContents{table{types.TABLE_CONTENT_ITEM}, f.mem},
		Jobs:       fakeJobs{table{types.TABLE_EMBEDDING_JOB}, f.mem},
		Vectors:    fakeVectors{table{types.TABLE_VECTOR_DOCUMENT}, f.mem},
		Blob:       f.blob,
		Embedder:   f.embedder,
		Extractor:  f.extractor,
		Dispatcher: f.dispatcher,
		Locker:     f.locker,
		Metrics:    f.metrics,
		GenID: func() string {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return "id" + strconv.Itoa(seq)
		},
	}
	if f.reader != nil {
		deps.Reader = f.reader
	}
	f.svc = New(deps, f.opts)
	return f
}

func (f *fixture) addSource(id string) {
	f.mem.sources[id] = types.KnowledgeSource{ID: id, OwnerID: "owner", Name: id}
}

func (f *fixture) jobsOf(key types.DedupKey) []types.EmbeddingJob {
	list, _ := fakeJobs{m: f.mem}.List(context.Background(), types.ListEmbeddingJobOptions{ContentID: key.ContentID}, 0, 0)
	return list
}

var errBoom = errors.New("boom")
