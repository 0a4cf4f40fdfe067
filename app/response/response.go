package response

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quka-ai/knowledge-sync/pkg/errors"
	"github.com/quka-ai/knowledge-sync/pkg/i18n"
	"github.com/quka-ai/knowledge-sync/pkg/utils"
)

func ProvideResponseLocalizer(l i18n.Localizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("i18n", l)
	}
}

func InjectResponseLocalizer(c *gin.Context) i18n.Localizer {
	return c.MustGet("i18n").(i18n.Localizer)
}

// 常量定义
const (
	RequestIDKey = "request_id"
	ResponseKey  = "response_key"
	OwnerKey     = "owner"
)

// Response 响应结构体定义
type Response struct {
	Meta Meta        `json:"meta"`
	Data interface{} `json:"data"`
}

// Meta 响应meta定义
type Meta struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// ListResponse 分页列表
type ListResponse[T any] struct {
	List  []T   `json:"list"`
	Total int64 `json:"total"`
}

func GetLangFromRequestOrDefault(c *gin.Context) string {
	lang := c.Request.Header.Get("Accept-Language")
	if lang == "zh" {
		lang = "zh-CN"
	}
	if i18n.ALLOW_LANG[lang] {
		return lang
	}
	return i18n.DEFAULT_LANG
}

// APIError api响应失败，CustomizedError 携带的 data 一并返回
func APIError(c *gin.Context, err error) {
	c.Abort()
	l := InjectResponseLocalizer(c)

	res := c.MustGet(ResponseKey).(*Response)
	var cerr *errors.CustomizedError
	if !errors.As(err, &cerr) {
		res.Meta.Code = http.StatusInternalServerError
		res.Meta.Message = l.Get(GetLangFromRequestOrDefault(c), i18n.ERROR_INTERNAL)
	} else {
		res.Meta.Code = cerr.GetCode()
		res.Meta.Message = l.Get(GetLangFromRequestOrDefault(c), cerr.Message())
		if data := cerr.Data(); data != nil {
			res.Data = data
		}
	}

	c.JSON(res.Meta.Code, res)
	if res.Meta.Code >= http.StatusInternalServerError {
		printErrorLog(c, res, err)
	} else {
		printSuccessLog(c, res)
	}
}

func printErrorLog(c *gin.Context, res *Response, err error) {
	// 统一打印日志
	var logFields = map[string]any{
		"request_uri": c.Request.URL.Path,
		"end_time":    time.Now().Unix(),
		"code":        res.Meta.Code,
		"error":       err.Error(),
		"request_id":  res.Meta.RequestID,
	}

	if owner := c.GetString(OwnerKey); owner != "" {
		logFields["owner"] = owner
	}
	slog.Error("response error", slog.Any("fields", logFields))
}

func printSuccessLog(c *gin.Context, res *Response) {
	var logFields = map[string]any{
		"request_uri": c.Request.URL.Path,
		"end_time":    time.Now().Unix(),
		"code":        res.Meta.Code,
		"request_id":  res.Meta.RequestID,
		"params":      c.Request.URL.Query().Encode(),
	}

	if owner := c.GetString(OwnerKey); owner != "" {
		logFields["owner"] = owner
	}
	slog.Info("request done", slog.Any("fields", logFields))
}

// APISuccess api响应成功
func APISuccess(c *gin.Context, response interface{}) {
	c.Abort()
	res := c.MustGet(ResponseKey).(*Response)
	res.Meta.Code = http.StatusOK
	if response != nil {
		res.Data = response
	}
	c.JSON(http.StatusOK, res)
	printSuccessLog(c, res)
}

func NewResponse() gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := &Response{
			Meta: Meta{
				RequestID: utils.GenUniqIDStr(),
			},
		}
		c.Set(ResponseKey, resp)
		c.Header("X-Request-Id", resp.Meta.RequestID)
	}
}
