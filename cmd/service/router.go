package service

import (
	"github.com/gin-gonic/gin"

	"github.com/quka-ai/knowledge-sync/app/core"
	"github.com/quka-ai/knowledge-sync/app/response"
	"github.com/quka-ai/knowledge-sync/cmd/service/handler"
	"github.com/quka-ai/knowledge-sync/cmd/service/middleware"
	"github.com/quka-ai/knowledge-sync/pkg/metrics"
)

func serve(core *core.Core) error {
	httpSrv := &handler.HttpSrv{
		Core:   core,
		Engine: core.HttpEngine(),
	}
	setupHttpRouter(httpSrv)

	return core.HttpEngine().Run(core.Cfg().Addr)
}

func setupHttpRouter(s *handler.HttpSrv) {
	cfg := s.Core.Cfg()
	s.Engine.Use(gin.Recovery())
	if cfg.Prometheus.Enabled {
		path := cfg.Prometheus.Path
		if path == "" {
			path = "/metrics"
		}
		s.Engine.GET(path, metrics.DefaultExportHandler())
	}

	s.Engine.Use(middleware.I18n(), response.NewResponse(), middleware.AcceptLanguage())
	s.Engine.Use(middleware.Cors, middleware.Metrics(s.Core.Metrics()))

	apiV1 := s.Engine.Group("/api/v1")
	{
		apiV1.GET("/ping", func(c *gin.Context) {
			response.APISuccess(c, s.Core.Srv().GetAIStatus())
		})

		authed := apiV1.Group("")
		authed.Use(middleware.Authorization(cfg.Security.Tokens))

		source := authed.Group("/sources")
		{
			source.POST("", s.CreateSource)
			source.GET("", s.ListSources)
			source.GET("/:sourceid", s.GetSource)
			source.DELETE("/:sourceid", s.DeleteSource)
			source.POST("/:sourceid/reembed", s.ReembedSource)
			source.POST("/:sourceid/contents", s.CreateContent)
			source.GET("/:sourceid/contents", s.ListContents)
			source.GET("/:sourceid/jobs", s.ListJobs)
		}

		content := authed.Group("/contents")
		{
			content.GET("/:contentid", s.GetContent)
			content.PUT("/:contentid", s.UpdateContent)
			content.DELETE("/:contentid", s.DeleteContent)
			content.POST("/:contentid/sync", s.SyncContent)
			content.GET("/:contentid/status", s.GetContentStatus)
		}

		job := authed.Group("/jobs")
		{
			job.GET("/:jobid", s.GetJob)
			job.POST("/:jobid/retry", s.RetryJob)
		}

		authed.POST("/search", s.Search)
	}
}
