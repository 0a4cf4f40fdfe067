package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	v1 "github.com/quka-ai/knowledge-sync/app/logic/v1"
	"github.com/quka-ai/knowledge-sync/app/response"
	"github.com/quka-ai/knowledge-sync/pkg/types"
	"github.com/quka-ai/knowledge-sync/pkg/utils"
)

func (s *HttpSrv) GetJob(c *gin.Context) {
	job, err := v1.NewJobLogic(c, s.Core).GetJob(c.Param("jobid"))
	if err != nil {
		response.APIError(c, err)
		return
	}

	response.APISuccess(c, job)
}

type ListJobsRequest struct {
	PageRequest
	Status []string `json:"status" form:"status"`
}

func (s *HttpSrv) ListJobs(c *gin.Context) {
	var (
		err error
		req ListJobsRequest
	)
	if err = utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	status := lo.Map(req.Status, func(item string, _ int) types.EmbeddingJobStatus {
		return types.EmbeddingJobStatus(item)
	})
	list, total, err := v1.NewJobLogic(c, s.Core).ListJobs(c.Param("sourceid"), status, req.Page, req.PageSize)
	if err != nil {
		response.APIError(c, err)
		return
	}

	response.APISuccess(c, response.ListResponse[types.EmbeddingJob]{
		List:  list,
		Total: total,
	})
}

func (s *HttpSrv) RetryJob(c *gin.Context) {
	if err := v1.NewJobLogic(c, s.Core).RetryJob(c.Param("jobid")); err != nil {
		response.APIError(c, err)
		return
	}

	response.APISuccess(c, nil)
}
