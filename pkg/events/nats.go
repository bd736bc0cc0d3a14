package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"mcp-knowledge-go/pkg/log"
)

// headerCarrier 让 nats.Msg 的 header 可以承载 trace 上下文。
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NATSBus 通过 NATS subject 发布事件，多实例部署时每个实例都能收到。
// 本地订阅者由内部的 Broker 分发。
type NATSBus struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	local   *Broker
}

// NewNATSBus 连接 NATS 并订阅 subject。
func NewNATSBus(url, subject string, buffer int) (*NATSBus, error) {
	nc, err := nats.Connect(url, nats.Name("mcp-knowledge-go"))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	b := &NATSBus{nc: nc, subject: subject, local: NewBroker(buffer)}

	b.sub, err = nc.Subscribe(subject, b.dispatch)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	log.Infof("NATS 事件总线已连接: %s, subject: %s", url, subject)
	return b, nil
}

func (b *NATSBus) dispatch(msg *nats.Msg) {
	var e Event
	if err := json.Unmarshal(msg.Data, &e); err != nil {
		log.Warnf("[NATSBus] 丢弃无法解析的消息: %v", err)
		return
	}
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
	_ = b.local.Publish(ctx, e)
}

func (b *NATSBus) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	msg := &nats.Msg{Subject: b.subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	if err := b.nc.PublishMsg(msg); err != nil {
		if err == nats.ErrConnectionClosed {
			return ErrClosed
		}
		return err
	}
	return nil
}

func (b *NATSBus) Subscribe() (*Subscription, error) {
	return b.local.Subscribe()
}

func (b *NATSBus) Close() error {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	b.nc.Close()
	return b.local.Close()
}
