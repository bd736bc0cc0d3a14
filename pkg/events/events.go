// Package events 在摄取流水线与 SSE / WebSocket 订阅者之间分发事件。
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mcp-knowledge-go/internal/config"
)

// ErrClosed 表示总线已关闭。
var ErrClosed = errors.New("events: bus closed")

// TypeDocumentProcessed 文档处理结束（成功或失败）时发布。
const TypeDocumentProcessed = "document_processed"

// DocumentProcessed 描述一次文档处理的结果。
type DocumentProcessed struct {
	DocumentID uint   `json:"document_id"`
	FileName   string `json:"filename"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	Error      string `json:"error,omitempty"`
}

// Event 是总线上传递的消息。
type Event struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Document  DocumentProcessed `json:"document"`
}

// NewDocumentProcessed 构造一条文档处理事件。
func NewDocumentProcessed(d DocumentProcessed) Event {
	return Event{Type: TypeDocumentProcessed, Timestamp: time.Now().UTC(), Document: d}
}

// Bus 发布事件并为每个连接提供独立的订阅。
type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe() (*Subscription, error)
	Close() error
}

// New 根据配置创建事件总线。
func New(cfg config.EventsConfig) (Bus, error) {
	switch cfg.Backend {
	case "nats":
		return NewNATSBus(cfg.NatsURL, cfg.Subject, cfg.BufferSize)
	case "local", "":
		return NewBroker(cfg.BufferSize), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}
