package response

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quka-ai/knowledge-sync/pkg/errors"
	"github.com/quka-ai/knowledge-sync/pkg/i18n"
	"github.com/quka-ai/knowledge-sync/pkg/utils"
)

func setup(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	utils.SetupIDWorker(1)
	engine := gin.New()
	engine.Use(ProvideResponseLocalizer(i18n.NewLocalizer("en", "zh-CN")), NewResponse())
	engine.GET("/", handler)
	return engine
}

func do(t *testing.T, engine *gin.Engine, lang string) (*httptest.ResponseRecorder, Response) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", lang)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var res Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return w, res
}

func TestAPIErrorCarriesData(t *testing.T) {
	engine := setup(func(c *gin.Context) {
		APIError(c, errors.New("test", i18n.MESSAGE_PROCESSING, nil).Code(http.StatusAccepted).WithData(map[string]interface{}{
			"status": "processing",
			"job_id": "j1",
		}))
	})

	w, res := do(t, engine, "en")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, http.StatusAccepted, res.Meta.Code)
	assert.NotEmpty(t, res.Meta.RequestID)
	data := res.Data.(map[string]interface{})
	assert.Equal(t, "processing", data["status"])
	assert.Equal(t, "j1", data["job_id"])
}

func TestAPIErrorHidesUnknownErrors(t *testing.T) {
	engine := setup(func(c *gin.Context) {
		APIError(c, stderrors.New("pq: connection refused"))
	})

	w, res := do(t, engine, "en")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, res.Meta.Message, "pq")
}

func TestAPISuccess(t *testing.T) {
	engine := setup(func(c *gin.Context) {
		APISuccess(c, ListResponse[string]{List: []string{"a"}, Total: 1})
	})

	w, res := do(t, engine, "zh")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, res.Data.(map[string]interface{})["total"])
}
