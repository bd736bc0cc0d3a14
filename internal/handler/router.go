package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mcp-knowledge-go/internal/middleware"
	"mcp-knowledge-go/pkg/token"
)

// Handlers 汇总所有路由处理器。
type Handlers struct {
	Server   *ServerHandler
	Upload   *UploadHandler
	Document *DocumentHandler
	Search   *SearchHandler
	MCP      *MCPHandler
	Events   *EventsHandler
}

// NewRouter 创建路由引擎并注册全部路由。jwtManager 为 nil 时不启用鉴权。
func NewRouter(h Handlers, jwtManager *token.JWTManager) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), middleware.Metrics(), middleware.CORS(), gin.Recovery())

	r.GET("/", h.Server.Root)
	r.GET("/health", h.Server.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 预检请求不带鉴权头，注册在鉴权之外
	r.OPTIONS("/mcp/sse", h.MCP.Preflight)

	authed := r.Group("/")
	authed.Use(middleware.AuthMiddleware(jwtManager))
	{
		authed.POST("/upload", h.Upload.Upload)

		authed.GET("/documents", h.Document.List)
		authed.GET("/documents/:id", h.Document.Get)
		authed.DELETE("/documents/:id", h.Document.Delete)

		authed.GET("/search", h.Search.Search)

		authed.POST("/mcp", h.MCP.RPC)
		authed.GET("/mcp/sse", h.MCP.SSE)
		authed.POST("/mcp/sse", h.MCP.SSE)

		authed.GET("/events/ws", h.Events.Handle)
	}
	return r
}
