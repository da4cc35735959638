package middleware

import (
	"github.com/haierkeys/psnotes-service/pkg/app"
	"github.com/haierkeys/psnotes-service/pkg/code"
	"github.com/haierkeys/psnotes-service/pkg/limiter"

	"github.com/gin-gonic/gin"
)

// RateLimiter creates rate limiting middleware (supports dependency injection)
// RateLimiter 创建限流中间件（支持依赖注入）
func RateLimiter(l limiter.Face) gin.HandlerFunc {
	return func(c *gin.Context) {
		if bucket, ok := l.GetBucket(l.Key(c)); ok && bucket.TakeAvailable(1) == 0 {
			c.Header("Retry-After", "1")
			app.NewResponse(c).ToResponse(code.ErrorTooManyRequests)
			c.Abort()
			return
		}

		c.Next()
	}
}
