// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/segmentio/kafka-go"

	"mcp-knowledge-go/internal/config"
	"mcp-knowledge-go/pkg/log"
	"mcp-knowledge-go/pkg/tasks"
)

// TaskProcessor 处理一个文档任务，消费者不依赖具体的流水线实现。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.DocumentTask) error
}

// Producer 把文档任务写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	p := &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(splitBrokers(cfg.Brokers)...),
			Topic:    cfg.Topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
	log.Info("Kafka 生产者初始化成功")
	return p
}

// Dispatch 发送一个文档处理任务到 Kafka。
func (p *Producer) Dispatch(ctx context.Context, task tasks.DocumentTask) error {
	msg, err := EncodeTask(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// EncodeTask 把任务编码为 Kafka 消息，文档 ID 作为 key 保证同一文档落在同一分区。
func EncodeTask(task tasks.DocumentTask) (kafka.Message, error) {
	value, err := json.Marshal(task)
	if err != nil {
		return kafka.Message{}, err
	}
	key, _ := json.Marshal(task.DocumentID)
	return kafka.Message{Key: key, Value: value}, nil
}

// messageReader 是消费循环用到的 kafka.Reader 子集。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StartConsumer 启动一个 Kafka 消费者来处理文档任务，ctx 取消后返回。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  splitBrokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	consume(ctx, r, processor)
}

func consume(ctx context.Context, r messageReader, processor TaskProcessor) {
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info("Kafka 消费者已停止")
			} else {
				log.Error("从 Kafka 读取消息失败", err)
			}
			return
		}

		var task tasks.DocumentTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		} else {
			log.Infof("开始处理文档任务: ID=%d, FileName=%s", task.DocumentID, task.FileName)
			// 处理失败时文档已被标记为 failed，不做自动重试
			if err := processor.Process(context.Background(), task); err != nil {
				log.Errorf("处理文档任务失败: ID=%d, Error: %v", task.DocumentID, err)
			}
		}

		if err := r.CommitMessages(context.Background(), m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

func splitBrokers(brokers string) []string {
	out := []string{}
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
