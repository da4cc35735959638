package routers

import (
	"github.com/haierkeys/psnotes-service/internal/app"
	"github.com/haierkeys/psnotes-service/internal/middleware"
	"github.com/haierkeys/psnotes-service/internal/routers/api_router"
	"github.com/haierkeys/psnotes-service/internal/routers/mcp_router"
	"github.com/haierkeys/psnotes-service/pkg/limiter"

	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
)

// NewRouter 创建公开 HTTP 路由
func NewRouter(appContainer *app.App, uni *ut.UniversalTranslator) *gin.Engine {

	// 获取配置
	cfg := appContainer.Config()

	r := gin.New()

	api := r.Group("/api")
	{
		api.Use(middleware.AppInfo(app.Name, appContainer.Version().Version))
		api.Use(middleware.TraceMiddleware(middleware.TraceConfig{Enabled: cfg.Tracer.Enabled, Header: cfg.Tracer.Header})) // Trace ID 中间件
		if cfg.Limiter.Enabled {
			api.Use(middleware.RateLimiter(limiter.NewMethodLimiter().AddBuckets(cfg.GetLimiterRules()...)))
		}
		api.Use(middleware.ContextTimeout(cfg.GetContextTimeout()))
		api.Use(middleware.LangWithTranslator(uni))
		api.Use(middleware.AccessLogWithLogger(appContainer.Logger()))
		api.Use(middleware.RecoveryWithLogger(appContainer.Logger()))

		// 创建 Handlers（注入 App Container）
		noteHandler := api_router.NewNoteHandler(appContainer)
		healthHandler := api_router.NewHealthHandler(appContainer)
		versionHandler := api_router.NewVersionHandler(appContainer)

		api.GET("/health", healthHandler.Check)
		api.GET("/version", versionHandler.ServerVersion)

		api.GET("/notes/:username", noteHandler.List)
		api.POST("/notes/:username", noteHandler.Save)
		api.GET("/notes/:username/:id", noteHandler.Get)
		api.DELETE("/notes/:username/:id", noteHandler.Delete)
	}

	if cfg.MCP.Enabled {
		mcpServer := mcp_router.NewServer(appContainer.NoteService, appContainer.Logger(), app.ServiceName, appContainer.Version().Version)
		r.Any(cfg.MCP.Path, middleware.RecoveryWithLogger(appContainer.Logger()), gin.WrapH(mcpServer))
	}

	r.NoRoute(middleware.NoFound())

	return r
}
