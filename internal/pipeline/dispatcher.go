package pipeline

import (
	"context"

	"mcp-knowledge-go/pkg/log"
	"mcp-knowledge-go/pkg/tasks"
	"mcp-knowledge-go/pkg/workerpool"
)

// Dispatcher 把文档任务交给后台执行，调用方不等待处理结果。
type Dispatcher interface {
	Dispatch(ctx context.Context, task tasks.DocumentTask) error
}

// PoolDispatcher 在进程内的任务池中执行 Processor。
type PoolDispatcher struct {
	pool      *workerpool.Pool
	processor *Processor
}

// NewPoolDispatcher 创建基于任务池的分发器。
func NewPoolDispatcher(pool *workerpool.Pool, processor *Processor) *PoolDispatcher {
	return &PoolDispatcher{pool: pool, processor: processor}
}

// Dispatch 队列满时返回 workerpool.ErrQueueFull。
func (d *PoolDispatcher) Dispatch(_ context.Context, task tasks.DocumentTask) error {
	return d.pool.Submit(func(ctx context.Context) {
		if err := d.processor.Process(ctx, task); err != nil {
			log.Warnf("[PoolDispatcher] 文档 %d 处理失败: %v", task.DocumentID, err)
		}
	})
}
