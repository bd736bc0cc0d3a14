// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StatsProvider 提供向量索引概况，由 vectorstore.Adapter 实现。
type StatsProvider interface {
	Stats(ctx context.Context) map[string]any
}

// ServerInfo 描述服务身份。
type ServerInfo struct {
	Name       string
	Domain     string
	Version    string
	Categories []string
}

// ServerHandler 负责服务身份与健康检查。
type ServerHandler struct {
	info  ServerInfo
	stats StatsProvider
}

// NewServerHandler 创建一个新的 ServerHandler。
func NewServerHandler(info ServerInfo, stats StatsProvider) *ServerHandler {
	return &ServerHandler{info: info, stats: stats}
}

// Root 返回服务身份。
func (h *ServerHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":  fmt.Sprintf("MCP %s Knowledge Server", h.info.Name),
		"domain":   h.info.Domain,
		"version":  h.info.Version,
		"protocol": "HTTP",
	})
}

// Health 返回健康状态与索引统计。
func (h *ServerHandler) Health(c *gin.Context) {
	protocols := h.info.Categories
	if protocols == nil {
		protocols = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":              "healthy",
		"timestamp":           time.Now().Format("2006-01-02T15:04:05.000000"),
		"server":              h.info.Name,
		"domain":              h.info.Domain,
		"version":             h.info.Version,
		"vector_db_stats":     h.stats.Stats(c.Request.Context()),
		"protocols_supported": protocols,
	})
}

// respondError 统一错误响应结构。
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}
