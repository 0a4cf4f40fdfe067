package v1

import (
	"context"

	"github.com/quka-ai/knowledge-sync/app/core"
	"github.com/quka-ai/knowledge-sync/pkg/types"
)

type JobLogic struct {
	UserInfo
	ctx  context.Context
	core *core.Core
}

func NewJobLogic(ctx context.Context, core *core.Core) *JobLogic {
	return &JobLogic{
		ctx:      ctx,
		core:     core,
		UserInfo: SetupUserInfo(ctx, core),
	}
}

func (l *JobLogic) GetJob(id string) (*types.EmbeddingJob, error) {
	job, err := l.core.Ingest().Jobs.GetJob(l.ctx, id)
	if err != nil {
		return nil, wrapError("JobLogic.GetJob.Jobs.GetJob", err)
	}
	if _, err = l.loadSource(job.KnowledgeSourceID); err != nil {
		return nil, err
	}
	return job, nil
}

func (l *JobLogic) ListJobs(sourceID string, status []types.EmbeddingJobStatus, page, pageSize uint64) ([]types.EmbeddingJob, int64, error) {
	if _, err := l.loadSource(sourceID); err != nil {
		return nil, 0, err
	}
	list, total, err := l.core.Ingest().Jobs.ListJobs(l.ctx, types.ListEmbeddingJobOptions{
		KnowledgeSourceID: sourceID,
		Status:            status,
	}, page, pageSize)
	if err != nil {
		return nil, 0, wrapError("JobLogic.ListJobs.Jobs.ListJobs", err)
	}
	return list, total, nil
}

// RetryJob 仅 failed 状态的任务可以重试
func (l *JobLogic) RetryJob(id string) error {
	if _, err := l.GetJob(id); err != nil {
		return err
	}
	if err := l.core.Ingest().Jobs.RetryJob(l.ctx, id); err != nil {
		return wrapError("JobLogic.RetryJob.Jobs.RetryJob", err)
	}
	return nil
}
