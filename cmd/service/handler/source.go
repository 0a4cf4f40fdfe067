package handler

import (
	"github.com/gin-gonic/gin"

	v1 "github.com/quka-ai/knowledge-sync/app/logic/v1"
	"github.com/quka-ai/knowledge-sync/app/response"
	"github.com/quka-ai/knowledge-sync/pkg/types"
	"github.com/quka-ai/knowledge-sync/pkg/utils"
)

type CreateSourceRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func (s *HttpSrv) CreateSource(c *gin.Context) {
	var (
		err error
		req CreateSourceRequest
	)
	if err = utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	source, err := v1.NewSourceLogic(c, s.Core).CreateSource(req.Name, req.Description)
	if err != nil {
		response.APIError(c, err)
		return
	}

	response.APISuccess(c, source)
}

func (s *HttpSrv) GetSource(c *gin.Context) {
	source, err := v1.NewSourceLogic(c, s.Core).GetSource(c.Param("sourceid"))
	if err != nil {
		response.APIError(c, err)
		return
	}

	response.APISuccess(c, source)
}

type ListSourcesResponse struct {
	List []types.KnowledgeSource `json:"list"`
}

func (s *HttpSrv) ListSources(c *gin.Context) {
	var (
		err error
		req PageRequest
	)
	if err = utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	list, err := v1.NewSourceLogic(c, s.Core).ListSources(req.Page, req.PageSize)
	if err != nil {
		response.APIError(c, err)
		return
	}

	response.APISuccess(c, ListSourcesResponse{
		List: list,
	})
}

func (s *HttpSrv) DeleteSource(c *gin.Context) {
	if err := v1.NewSourceLogic(c, s.Core).DeleteSource(c.Param("sourceid")); err != nil {
		response.APIError(c, err)
		return
	}

	response.APISuccess(c, nil)
}

func (s *HttpSrv) ReembedSource(c *gin.Context) {
	res, err := v1.NewSourceLogic(c, s.Core).ReembedSource(c.Param("sourceid"))
	if err != nil {
		response.APIError(c, err)
		return
	}

	response.APISuccess(c, res)
}
