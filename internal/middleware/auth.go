// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mcp-knowledge-go/pkg/log"
	"mcp-knowledge-go/pkg/token"
)

// ClaimsKey 认证通过后 claims 在 gin.Context 中的键。
const ClaimsKey = "claims"

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// token 从 Authorization: Bearer 头读取；浏览器的 EventSource 与 WebSocket 无法设置请求头，
// 因此也接受 token 查询参数。jwtManager 为 nil 时不做校验。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtManager == nil {
			c.Next()
			return
		}

		tokenString := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的授权头格式"})
				return
			}
			tokenString = strings.TrimPrefix(authHeader, bearerPrefix)
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "请求未包含授权头"})
			return
		}

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			log.Warnf("[Auth] token 校验失败: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效或已过期的 token"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}
