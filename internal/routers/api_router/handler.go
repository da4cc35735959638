// Package api_router 提供 HTTP API 路由处理器
package api_router

import (
	"context"
	"errors"

	"github.com/haierkeys/psnotes-service/internal/app"
	"github.com/haierkeys/psnotes-service/internal/domain"
	"github.com/haierkeys/psnotes-service/internal/middleware"
	"github.com/haierkeys/psnotes-service/pkg/code"
	"github.com/haierkeys/psnotes-service/pkg/logger"

	"go.uber.org/zap"
)

// Handler 基础 Handler 结构体，封装 App Container
// 所有 API Handler 都应该嵌入此结构体以获得依赖注入能力
type Handler struct {
	App *app.App
}

// NewHandler 创建基础 Handler 实例
func NewHandler(a *app.App) *Handler {
	return &Handler{App: a}
}

// logError 记录业务错误，预期内的错误（校验、不存在）使用 warn 级别
func (h *Handler) logError(ctx context.Context, op string, err error) {
	fields := []zap.Field{
		zap.String(logger.FieldAction, op),
		zap.String(logger.FieldTraceID, middleware.GetTraceID(ctx)),
		zap.Error(err),
	}
	if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound) {
		h.App.Logger().Warn(op, fields...)
		return
	}
	h.App.Logger().Error(op, fields...)
}

// toCode 将领域错误映射为接口结果码
func toCode(err error) *code.Code {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return code.ErrorInvalidParams.WithDetails(err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return code.ErrorNoteNotFound
	case errors.Is(err, domain.ErrRetryable):
		return code.ErrorNoteDeleteRetry
	case errors.Is(err, domain.ErrCache):
		return code.ErrorCacheBackend
	case errors.Is(err, domain.ErrStore):
		return code.ErrorDBQuery
	default:
		return code.ErrorServerInternal
	}
}
