package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/novelhub/internal/healthcheck"
)

// HealthHandler 健康检查接口处理器
type HealthHandler struct {
	checker *healthcheck.HealthChecker
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(checker *healthcheck.HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Liveness 存活检查
// GET /healthz
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, h.checker.LivenessCheck())
}

// Readiness 就绪检查（依赖不可用时返回 503）
// GET /readyz
func (h *HealthHandler) Readiness(c *gin.Context) {
	result := h.checker.ReadinessCheck(c.Request.Context())
	code := http.StatusOK
	if result.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, result)
}
