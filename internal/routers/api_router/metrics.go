package api_router

import (
	"expvar"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	expvarHandler = expvar.Handler()
	startedAt     = time.Now()
)

func init() {
	expvar.Publish("goroutines", expvar.Func(func() any { return runtime.NumGoroutine() }))
	expvar.Publish("uptime_seconds", expvar.Func(func() any { return int64(time.Since(startedAt).Seconds()) }))
}

// Expvar 输出 expvar 变量（memstats、cmdline、协程数、运行时长），仅挂在私有路由上
func Expvar(c *gin.Context) {
	expvarHandler.ServeHTTP(c.Writer, c.Request)
}
