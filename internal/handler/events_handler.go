package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mcp-knowledge-go/pkg/events"
	"mcp-knowledge-go/pkg/log"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// EventsHandler 通过 WebSocket 推送摄取事件。
type EventsHandler struct {
	bus events.Bus
}

// NewEventsHandler 创建一个新的 EventsHandler。
func NewEventsHandler(bus events.Bus) *EventsHandler {
	return &EventsHandler{bus: bus}
}

// Handle 处理一个 WebSocket 连接，客户端只读，发送的消息被忽略。
func (h *EventsHandler) Handle(c *gin.Context) {
	sub, err := h.bus.Subscribe()
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "事件总线不可用")
		return
	}
	defer sub.Unsubscribe()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("[EventsHandler] WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("[EventsHandler] WebSocket 连接已建立: %s", c.ClientIP())

	// 读循环用于处理 close/ping 控制帧，连接断开时结束
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(e); err != nil {
				log.Warnf("[EventsHandler] 推送事件失败: %v", err)
				return
			}
		}
	}
}
