package events

import (
	"context"
	"sync"

	"mcp-knowledge-go/pkg/log"
)

const defaultBufferSize = 16

// Subscription 是单个连接持有的订阅，事件通过 C 读取。
type Subscription struct {
	ch     chan Event
	broker *Broker
	once   sync.Once
}

// C 返回事件通道，订阅取消或总线关闭后通道会被关闭。
func (s *Subscription) C() <-chan Event { return s.ch }

// Unsubscribe 取消订阅，可重复调用。
func (s *Subscription) Unsubscribe() {
	s.broker.remove(s)
}

// Broker 是进程内的事件总线。订阅者读得慢时新事件会被丢弃，不会阻塞发布方。
type Broker struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

// NewBroker 创建进程内总线，buffer 为每个订阅的通道容量。
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	return &Broker{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

func (b *Broker) Subscribe() (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	s := &Subscription{ch: make(chan Event, b.buffer), broker: b}
	b.subs[s] = struct{}{}
	return s, nil
}

func (b *Broker) Publish(_ context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
			log.Warnf("[EventBroker] 订阅者缓冲已满，丢弃事件 type=%s document_id=%d", e.Type, e.Document.DocumentID)
		}
	}
	return nil
}

// Subscribers 返回当前订阅数。
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for s := range b.subs {
		s.once.Do(func() { close(s.ch) })
	}
	b.subs = map[*Subscription]struct{}{}
	return nil
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
	}
	s.once.Do(func() { close(s.ch) })
}
