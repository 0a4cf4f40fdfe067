// Package ingest keeps knowledge source content and its vector index in sync.
package ingest

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/quka-ai/knowledge-sync/app/store"
	"github.com/quka-ai/knowledge-sync/pkg/ai"
	"github.com/quka-ai/knowledge-sync/pkg/utils"
)

// BlobStorage stores uploaded files, objects are addressed by their public url.
type BlobStorage interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
	Download(ctx context.Context, url string) ([]byte, string, error)
	Delete(ctx context.Context, url string) error
}

// Dispatcher hands a pending job to the asynchronous worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// Locker serializes embedding runs of the same content.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// Transactor runs fn inside one relational transaction.
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Metrics interface {
	ObserveEmbedding(status string, d time.Duration)
	JobFinished(status string)
	Rollback(scope string, ok bool)
	ObserveSearch(status string, d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveEmbedding(string, time.Duration) {}
func (noopMetrics) JobFinished(string)                     {}
func (noopMetrics) Rollback(string, bool)                  {}
func (noopMetrics) ObserveSearch(string, time.Duration)    {}

type Deps struct {
	Sources  store.KnowledgeSourceStore
	Contents store.ContentItemStore
	Jobs     store.EmbeddingJobStore
	Vectors  store.VectorStore
	Tx       Transactor

	Blob      BlobStorage
	Embedder  ai.Embedder
	Extractor ai.Extractor
	// Reader is optional, website items without page text are crawled with it
	Reader ai.Reader

	Dispatcher Dispatcher
	Locker     Locker
	// Limiter throttles embedding requests, nil for unlimited
	Limiter *rate.Limiter
	Metrics Metrics
	GenID   func() string
}

type Options struct {
	// Dimensions is the configured embedding length, query and stored vectors must match it
	Dimensions int
	// MaxInputChars caps the text sent to the embedding provider
	MaxInputChars int
	// MaxFileSize in bytes, 0 disables the check
	MaxFileSize int64

	SyncTimeout  time.Duration
	LockTTL      time.Duration
	EmbedCall    utils.RetryPolicy
	ExtractCall  utils.RetryPolicy
	BlobCall     utils.RetryPolicy
	CrawlCall    utils.RetryPolicy
	MatchCall    utils.RetryPolicy
	SearchTopK   int
	MaxTopK      int
	Threshold    float64
	Diagnostics  bool
	DiagnoseFrom float64
}

func DefaultOptions() Options {
	call := utils.RetryPolicy{
		Timeout:   30 * time.Second,
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  5 * time.Second,
	}
	return Options{
		Dimensions:    1024,
		MaxInputChars: 8000,
		MaxFileSize:   20 << 20,
		SyncTimeout:   30 * time.Second,
		LockTTL:       5 * time.Minute,
		EmbedCall:     call,
		ExtractCall:   utils.RetryPolicy{Timeout: 60 * time.Second, Attempts: 2, BaseDelay: time.Second, MaxDelay: 5 * time.Second},
		BlobCall:      call,
		CrawlCall:     utils.RetryPolicy{Timeout: 20 * time.Second, Attempts: 1},
		MatchCall:     utils.RetryPolicy{Timeout: 10 * time.Second, Attempts: 2, BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second},
		SearchTopK:    5,
		MaxTopK:       5,
		Threshold:     0.7,
		Diagnostics:   true,
		DiagnoseFrom:  0.3,
	}
}

// Ingest bundles the services sharing one set of collaborators.
type Ingest struct {
	Jobs     *JobService
	Worker   *Worker
	Searcher *Searcher
	Contents *ContentService
	Sources  *SourceService
	Reembed  *Reembedder
}

func New(deps Deps, opts Options) *Ingest {
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.GenID == nil {
		deps.GenID = utils.GenUniqIDStr
	}
	if deps.Tx == nil {
		deps.Tx = directTx{}
	}

	jobs := &JobService{deps: deps}
	worker := &Worker{deps: deps, opts: opts}
	contents := &ContentService{deps: deps, opts: opts, jobs: jobs, worker: worker}
	return &Ingest{
		Jobs:     jobs,
		Worker:   worker,
		Searcher: &Searcher{deps: deps, opts: opts},
		Contents: contents,
		Sources:  &SourceService{deps: deps, contents: contents},
		Reembed:  &Reembedder{deps: deps, jobs: jobs},
	}
}

type directTx struct{}

func (directTx) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
