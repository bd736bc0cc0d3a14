package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS 允许任意来源访问，浏览器端的 MCP 客户端需要跨域调用 /mcp 与 /mcp/sse。
// 没有注册 OPTIONS 路由的预检请求直接返回 204。
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Cache-Control")
		if c.Request.Method == http.MethodOptions && c.FullPath() == "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
