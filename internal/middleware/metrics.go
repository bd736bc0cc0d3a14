package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mcp-knowledge-go/pkg/metrics"
)

// Metrics 记录每个路由的请求数和耗时，path 使用路由模板避免标签爆炸。
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
