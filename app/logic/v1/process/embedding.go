package process

import (
	"context"
	"errors"
	"log/slog"

	"github.com/quka-ai/knowledge-sync/app/core"
	"github.com/quka-ai/knowledge-sync/app/ingest"
	"github.com/quka-ai/knowledge-sync/pkg/queue"
	"github.com/quka-ai/knowledge-sync/pkg/safe"
	"github.com/quka-ai/knowledge-sync/pkg/types"
)

// JobReader is the part of the job service the consumer needs to decide on redelivery.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*types.EmbeddingJob, error)
}

type JobRunner interface {
	Process(ctx context.Context, jobID string) error
}

func embeddingHandler(core *core.Core) queue.HandlerFunc {
	return func(ctx context.Context, task queue.EmbeddingTask) error {
		return safe.Call("process.embedding", func() error {
			return consume(ctx, core.Ingest().Worker, core.Ingest().Jobs, task)
		})
	}
}

// consume 只有任务本身未记录失败时才交给 asynq 重试，
// 已标记 failed 的任务通过 RetryJob 重新投递，busy 的任务由定时轮询补发
func consume(ctx context.Context, worker JobRunner, jobs JobReader, task queue.EmbeddingTask) error {
	err := worker.Process(ctx, task.JobID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ingest.ErrJobBusy):
		slog.Info("embedding job is busy, leave it to the stale poller", slog.String("job_id", task.JobID))
		return nil
	case errors.Is(err, ingest.ErrNotFound):
		slog.Warn("drop embedding task of missing job", slog.String("job_id", task.JobID))
		return nil
	}

	job, getErr := jobs.GetJob(ctx, task.JobID)
	if getErr == nil && job.Status == types.EMBEDDING_JOB_STATUS_FAILED {
		return nil
	}
	slog.Error("embedding task will be retried", slog.String("job_id", task.JobID), slog.String("error", err.Error()))
	return err
}
