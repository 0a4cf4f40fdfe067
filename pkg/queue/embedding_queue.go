package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// 任务类型
	TaskTypeEmbedding = "knowledge:embedding"

	EmbeddingQueueName = "embedding"

	MaxRetries  = 3
	TaskTimeout = 5 * time.Minute
)

// EmbeddingTask carries only the job id, the job row is the source of truth
type EmbeddingTask struct {
	JobID string `json:"job_id"`
}

// EmbeddingQueue 基于 Asynq 的向量化任务队列
type EmbeddingQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	keyPrefix string
}

func NewEmbeddingQueue(keyPrefix string, client *asynq.Client, inspector *asynq.Inspector) *EmbeddingQueue {
	if keyPrefix == "" {
		keyPrefix = "quka"
	}

	return &EmbeddingQueue{
		keyPrefix: keyPrefix,
		client:    client,
		inspector: inspector,
	}
}

func (q *EmbeddingQueue) taskID(jobID string) string {
	return q.keyPrefix + ":embedding:" + jobID
}

// Dispatch enqueues the job, a job that is already queued is not an error.
// A task archived after exhausting its retries still holds the task id, it is
// moved back to pending instead.
func (q *EmbeddingQueue) Dispatch(ctx context.Context, jobID string) error {
	payload, err := json.Marshal(EmbeddingTask{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	_, err = q.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeEmbedding, payload,
		asynq.MaxRetry(MaxRetries),
		asynq.Timeout(TaskTimeout),
		asynq.TaskID(q.taskID(jobID)),
		asynq.Queue(EmbeddingQueueName),
	))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return q.revive(jobID)
		}
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	slog.Debug("embedding task enqueued", slog.String("job_id", jobID))
	return nil
}

func (q *EmbeddingQueue) revive(jobID string) error {
	if q.inspector == nil {
		slog.Debug("embedding task already queued", slog.String("job_id", jobID))
		return nil
	}

	info, err := q.inspector.GetTaskInfo(EmbeddingQueueName, q.taskID(jobID))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) {
			// 冲突之后任务刚好被处理完
			return nil
		}
		return fmt.Errorf("failed to inspect task: %w", err)
	}
	if info.State != asynq.TaskStateArchived {
		slog.Debug("embedding task already queued", slog.String("job_id", jobID), slog.String("state", info.State.String()))
		return nil
	}

	if err = q.inspector.RunTask(EmbeddingQueueName, info.ID); err != nil {
		return fmt.Errorf("failed to run archived task: %w", err)
	}
	slog.Info("archived embedding task moved back to pending", slog.String("job_id", jobID))
	return nil
}

func ParseEmbeddingTask(task *asynq.Task) (EmbeddingTask, error) {
	var res EmbeddingTask
	if err := json.Unmarshal(task.Payload(), &res); err != nil {
		return res, fmt.Errorf("failed to unmarshal embedding task: %w", err)
	}
	if res.JobID == "" {
		return res, errors.New("embedding task without job id")
	}
	return res, nil
}

// HandlerFunc Asynq 任务处理器函数类型
type HandlerFunc func(ctx context.Context, task EmbeddingTask) error

// SetupHandler 设置任务处理器，payload 无法解析的任务直接丢弃不再重试
func (q *EmbeddingQueue) SetupHandler(handler HandlerFunc) *asynq.ServeMux {
	mux := asynq.NewServeMux()

	mux.HandleFunc(TaskTypeEmbedding, func(ctx context.Context, task *asynq.Task) error {
		payload, err := ParseEmbeddingTask(task)
		if err != nil {
			slog.Error("drop malformed embedding task", slog.String("error", err.Error()))
			return fmt.Errorf("%s: %w", err.Error(), asynq.SkipRetry)
		}
		return handler(ctx, payload)
	})

	return mux
}

func (q *EmbeddingQueue) Shutdown() {
	if q.client != nil {
		if err := q.client.Close(); err != nil {
			slog.Error("Failed to close asynq client", slog.String("error", err.Error()))
		}
	}
	if q.inspector != nil {
		if err := q.inspector.Close(); err != nil {
			slog.Error("Failed to close asynq inspector", slog.String("error", err.Error()))
		}
	}
}

// asynqLogger 适配器，将 asynq 日志输出到项目的 slog
type asynqLogger struct{}

func NewAsynqLogger() asynq.Logger {
	return &asynqLogger{}
}

func (l *asynqLogger) Debug(args ...any) {
	slog.Debug(fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...any) {
	slog.Info(fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...any) {
	slog.Warn(fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...any) {
	slog.Error(fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...any) {
	slog.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}
