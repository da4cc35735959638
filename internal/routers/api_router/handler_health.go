// Package api_router 提供 HTTP API 路由处理器
package api_router

import (
	"time"

	"github.com/haierkeys/psnotes-service/internal/app"
	pkgapp "github.com/haierkeys/psnotes-service/pkg/app"
	"github.com/haierkeys/psnotes-service/pkg/code"

	"github.com/gin-gonic/gin"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	*Handler
}

// NewHealthHandler 创建健康检查处理器实例
func NewHealthHandler(a *app.App) *HealthHandler {
	return &HealthHandler{Handler: NewHandler(a)}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status   string  `json:"status"`         // "healthy" 或 "unhealthy"
	Version  string  `json:"version"`        // 服务版本号
	Uptime   float64 `json:"uptime"`         // 运行时间（秒）
	Database string  `json:"database"`       // "connected" 或 "error"
	Nats     string  `json:"nats,omitempty"` // "connected" 或 "disconnected"，未启用时为空
}

// Check 健康检查接口
// @Summary 健康检查
// @Description 检查服务健康状态，包括数据库与 NATS 连接
// @Tags 系统
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /api/health [get]
func (h *HealthHandler) Check(c *gin.Context) {
	response := HealthResponse{
		Status:   "healthy",
		Version:  h.App.Version().Version,
		Uptime:   time.Since(h.App.StartTime).Seconds(),
		Database: "connected",
	}

	// 检查数据库连接
	if sqlDB, err := h.App.DB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		response.Status = "unhealthy"
		response.Database = "error"
	}

	if nc := h.App.Nats(); nc != nil {
		response.Nats = "connected"
		if !nc.IsConnected() {
			response.Status = "unhealthy"
			response.Nats = "disconnected"
		}
	}

	if response.Status != "healthy" {
		pkgapp.NewResponse(c).ToResponse(code.Failed.WithData(response))
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(response))
}
