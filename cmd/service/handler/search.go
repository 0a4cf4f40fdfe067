package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	v1 "github.com/quka-ai/knowledge-sync/app/logic/v1"
	"github.com/quka-ai/knowledge-sync/app/ingest"
	"github.com/quka-ai/knowledge-sync/app/response"
	"github.com/quka-ai/knowledge-sync/pkg/types"
	"github.com/quka-ai/knowledge-sync/pkg/utils"
)

type SearchRequest struct {
	SourceIDs    []string `json:"source_ids" binding:"required"`
	Query        string   `json:"query" binding:"required"`
	TopK         int      `json:"top_k"`
	Threshold    float64  `json:"threshold"`
	ContentTypes []string `json:"content_types"`
}

func (s *HttpSrv) Search(c *gin.Context) {
	var (
		err error
		req SearchRequest
	)
	if err = utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	res, err := v1.NewSearchLogic(c, s.Core).Search(req.SourceIDs, req.Query, ingest.SearchOptions{
		TopK:      req.TopK,
		Threshold: req.Threshold,
		ContentTypes: lo.Map(req.ContentTypes, func(item string, _ int) types.ContentType {
			return types.ContentType(item)
		}),
	})
	if err != nil {
		response.APIError(c, err)
		return
	}

	response.APISuccess(c, res)
}
