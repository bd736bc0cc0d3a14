package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mcp-knowledge-go/internal/mcpserver"
	"mcp-knowledge-go/pkg/events"
	"mcp-knowledge-go/pkg/log"
)

const maxRPCBody = 1 << 20

// MCPHandler 承载 JSON-RPC 入口与 SSE 流。
type MCPHandler struct {
	dispatcher *mcpserver.Dispatcher
	bus        events.Bus
	heartbeat  time.Duration
}

// NewMCPHandler 创建一个新的 MCPHandler。heartbeat 为 SSE 空闲多久后发送心跳。
func NewMCPHandler(dispatcher *mcpserver.Dispatcher, bus events.Bus, heartbeat time.Duration) *MCPHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &MCPHandler{dispatcher: dispatcher, bus: bus, heartbeat: heartbeat}
}

// RPC 处理 POST /mcp。通知没有响应体，返回 202。
func (h *MCPHandler) RPC(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRPCBody))
	if err != nil {
		respondError(c, http.StatusBadRequest, "无法读取请求体")
		return
	}
	resp := h.dispatcher.Handle(c.Request.Context(), body)
	if resp == nil {
		c.Status(http.StatusAccepted)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SSE 处理 GET|POST /mcp/sse：先推送 initialize 结果，再转发摄取事件，空闲时发送心跳。
func (h *MCPHandler) SSE(c *gin.Context) {
	sub, err := h.bus.Subscribe()
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "事件总线不可用")
		return
	}
	defer sub.Unsubscribe()

	clientID := "mcp_client_" + uuid.NewString()
	log.Infof("[SSE] 客户端已连接: %s", clientID)
	defer log.Infof("[SSE] 客户端已断开: %s", clientID)

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "*")
	c.Status(http.StatusOK)

	if err := writeSSE(c.Writer, h.dispatcher.InitializeMessage()); err != nil {
		return
	}

	idle := time.NewTimer(h.heartbeat)
	defer idle.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeSSE(c.Writer, e); err != nil {
				return
			}
		case <-idle.C:
			heartbeat := gin.H{"event": "heartbeat", "timestamp": time.Now().Format("2006-01-02T15:04:05.000000")}
			if err := writeSSE(c.Writer, heartbeat); err != nil {
				return
			}
		}
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(h.heartbeat)
	}
}

// Preflight 处理 OPTIONS /mcp/sse。
func (h *MCPHandler) Preflight(c *gin.Context) {
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "*")
	c.JSON(http.StatusOK, gin.H{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
		"Access-Control-Allow-Headers": "*",
	})
}

func writeSSE(w gin.ResponseWriter, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		log.Warnf("[SSE] 写入失败: %v", err)
		return err
	}
	w.Flush()
	return nil
}
