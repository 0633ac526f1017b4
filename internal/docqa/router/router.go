// Package router wires the docqa handlers and middleware into a gin engine.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kart-io/docqa/internal/docqa/handler"
	"github.com/kart-io/docqa/pkg/infra/middleware"
)

// Config 路由配置。
type Config struct {
	// Mode gin 运行模式。
	Mode string
	// MaxBodyBytes 入库请求体上限。
	MaxBodyBytes int64
	// Gatherer 为 nil 时不暴露 /metrics。
	Gatherer prometheus.Gatherer
}

// New builds the engine with all routes registered.
func New(h *handler.Handler, cfg Config) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Tracing(),
		middleware.Logger(),
		middleware.Recovery(),
	)

	Register(r, h, cfg)
	return r
}

// Register registers the docqa routes on r.
func Register(r gin.IRouter, h *handler.Handler, cfg Config) {
	logger.Info("Registering docqa routes...")

	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	{
		docs := v1.Group("/documents")
		{
			docs.POST("", middleware.BodyLimit(cfg.MaxBodyBytes), h.Ingest)
			docs.GET("/:id/summary", h.Summary)
			docs.DELETE("/:id", h.Delete)
		}

		v1.POST("/query", middleware.BodyLimit(cfg.MaxBodyBytes), h.Query)
		v1.GET("/stats", h.Stats)
		v1.POST("/admin/reconcile", h.Reconcile)
	}

	logger.Info("HTTP routes registered")
}
