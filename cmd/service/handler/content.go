package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	v1 "github.com/quka-ai/knowledge-sync/app/logic/v1"
	"github.com/quka-ai/knowledge-sync/app/ingest"
	"github.com/quka-ai/knowledge-sync/app/response"
	"github.com/quka-ai/knowledge-sync/pkg/errors"
	"github.com/quka-ai/knowledge-sync/pkg/i18n"
	"github.com/quka-ai/knowledge-sync/pkg/types"
	"github.com/quka-ai/knowledge-sync/pkg/utils"
)

type ContentRequest struct {
	ContentType string          `json:"content_type"`
	Payload     json.RawMessage `json:"payload"`
	Async       bool            `json:"async"`
}

// bindContentArgs 支持 json 请求与带文件的 multipart 请求，
// multipart 中 payload 为 json 字符串，文件字段为 file
func bindContentArgs(c *gin.Context) (v1.ContentArgs, error) {
	if !strings.HasPrefix(c.ContentType(), gin.MIMEMultipartPOSTForm) {
		var req ContentRequest
		if err := utils.BindArgsWithGin(c, &req); err != nil {
			return v1.ContentArgs{}, err
		}
		return v1.ContentArgs{
			ContentType: types.ContentType(req.ContentType),
			Payload:     req.Payload,
			Async:       req.Async,
		}, nil
	}

	args := v1.ContentArgs{
		ContentType: types.ContentType(c.PostForm("content_type")),
	}
	if payload := c.PostForm("payload"); payload != "" {
		args.Payload = json.RawMessage(payload)
	}
	if async := c.PostForm("async"); async != "" {
		v, err := strconv.ParseBool(async)
		if err != nil {
			return args, errors.New("bindContentArgs.async", i18n.ERROR_INVALIDARGUMENT, err).Code(http.StatusBadRequest)
		}
		args.Async = v
	}

	fh, err := c.FormFile("file")
	if err == http.ErrMissingFile {
		return args, nil
	}
	if err != nil {
		return args, errors.New("bindContentArgs.FormFile", i18n.ERROR_INVALIDARGUMENT, err).Code(http.StatusBadRequest)
	}

	f, err := fh.Open()
	if err != nil {
		return args, errors.New("bindContentArgs.FormFile.Open", i18n.ERROR_INTERNAL, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return args, errors.New("bindContentArgs.FormFile.Read", i18n.ERROR_INTERNAL, fmt.Errorf("failed to read upload: %w", err))
	}
	args.File = &ingest.FileUpload{
		Name:     fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Data:     data,
	}
	return args, nil
}

func (s *HttpSrv) CreateContent(c *gin.Context) {
	args, err := bindContentArgs(c)
	if err != nil {
		response.APIError(c, err)
		return
	}

	res, err := v1.NewContentLogic(c, s.Core).CreateContent(c.Param("sourceid"), args)
	if err != nil {
		response.APIError(c, err)
		return
	}

	response.APISuccess(c, res)
}

func (s *HttpSrv) UpdateContent(c *gin.Context) {
	args, err := bindContentArgs(c)
	if err != nil {
		response.APIError(c, err)
		return
	}

	res, err := v1.NewContentLogic(c, s.Core).UpdateContent(c.Param("contentid"), args)
	if err != nil {
		response.APIError(c, err)
		return
	}

	response.APISuccess(c, res)
}

func (s *HttpSrv) GetContent(c *gin.Context) {
	item, err := v1.NewContentLogic(c, s.Core).GetContent(c.Param("contentid"))
	if err != nil {
		response.APIError(c, err)
		return
	}

	response.APISuccess(c, item)
}

type ListContentsRequest struct {
	PageRequest
	ContentType string `json:"content_type" form:"content_type"`
}

func (s *HttpSrv) ListContents(c *gin.Context) {
	var (
		err error
		req ListContentsRequest
	)
	if err = utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	list, total, err := v1.NewContentLogic(c, s.Core).ListContents(c.Param("sourceid"), types.StringToContentType(req.ContentType), req.Page, req.PageSize)
	if err != nil {
		response.APIError(c, err)
		return
	}

	response.APISuccess(c, response.ListResponse[types.ContentItem]{
		List:  list,
		Total: total,
	})
}

func (s *HttpSrv) DeleteContent(c *gin.Context) {
	if err := v1.NewContentLogic(c, s.Core).DeleteContent(c.Param("contentid")); err != nil {
		response.APIError(c, err)
		return
	}

	response.APISuccess(c, nil)
}

type SyncContentRequest struct {
	Async bool `json:"async" form:"async"`
}

func (s *HttpSrv) SyncContent(c *gin.Context) {
	var (
		err error
		req SyncContentRequest
	)
	if err = utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	res, err := v1.NewContentLogic(c, s.Core).SyncContent(c.Param("contentid"), req.Async)
	if err != nil {
		response.APIError(c, err)
		return
	}

	response.APISuccess(c, res)
}

func (s *HttpSrv) GetContentStatus(c *gin.Context) {
	status, err := v1.NewContentLogic(c, s.Core).ContentStatus(c.Param("contentid"))
	if err != nil {
		response.APIError(c, err)
		return
	}

	response.APISuccess(c, status)
}
