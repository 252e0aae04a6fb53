// Package httpserver 组装 HTTP 路由。
package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/azhengyongqin/novelhub/internal/cache"
	"github.com/azhengyongqin/novelhub/internal/config"
	"github.com/azhengyongqin/novelhub/internal/filestore"
	"github.com/azhengyongqin/novelhub/internal/healthcheck"
	"github.com/azhengyongqin/novelhub/internal/hub"
	"github.com/azhengyongqin/novelhub/internal/middleware"
	"github.com/azhengyongqin/novelhub/internal/processor"
	"github.com/azhengyongqin/novelhub/internal/repository"
	"github.com/azhengyongqin/novelhub/internal/server/handler"
)

// Deps 路由依赖
type Deps struct {
	Config   *config.Config
	TaskRepo repository.TaskRepository
	Cache    *cache.RedisCache // 可选
	Files    *filestore.Store
	Enqueuer *processor.Enqueuer
	Hub      *hub.Hub

	// HealthChecker 健康检查器
	HealthChecker *healthcheck.HealthChecker
}

// NewRouter 提供 Gin HTTP API
func NewRouter(deps Deps) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	// 全局中间件
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.PrometheusMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.PayloadSizeLimit(middleware.MaxPayloadSize))
	r.Use(middleware.CORSMiddleware())

	// 创建各个 handler 实例
	healthHandler := handler.NewHealthHandler(deps.HealthChecker)
	taskHandler := handler.NewTaskHandler(deps.TaskRepo, deps.Cache, deps.Files, deps.Enqueuer, deps.Hub, deps.Config)
	wsHandler := handler.NewWSHandler(deps.Hub, deps.TaskRepo)

	// 健康检查路由
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	// Prometheus metrics 端点
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API 路由
	api := r.Group("/api/v1")
	{
		api.POST("/tasks/upload", taskHandler.Upload)
		api.GET("/tasks", taskHandler.List)
		api.GET("/tasks/statistics", taskHandler.Statistics)
		api.GET("/tasks/:task_id", middleware.ValidateTaskIDParam(), taskHandler.Get)
		api.GET("/tasks/:task_id/status", middleware.ValidateTaskIDParam(), taskHandler.Status)
		api.PATCH("/tasks/:task_id", middleware.ValidateTaskIDParam(), taskHandler.Update)
		api.DELETE("/tasks/:task_id", middleware.ValidateTaskIDParam(), taskHandler.Delete)
		api.POST("/tasks/:task_id/retry", middleware.ValidateTaskIDParam(), taskHandler.Retry)
	}

	// WebSocket 接入（client_id 由客户端生成，一进程一个）
	r.GET("/ws/tasks/:client_id", middleware.ValidateClientIDParam(), wsHandler.Serve)

	// 处理结果静态文件
	r.Static("/results", deps.Config.Upload.Dir)

	return r
}
