// Package workerpool 提供了有界队列加固定数量 worker 的后台任务池。
package workerpool

import (
	"context"
	"errors"
	"sync"

	"mcp-knowledge-go/pkg/log"
	"mcp-knowledge-go/pkg/metrics"
)

var (
	// ErrQueueFull 表示队列已满，任务未被接收。
	ErrQueueFull = errors.New("workerpool: queue full")
	// ErrStopped 表示任务池已停止。
	ErrStopped = errors.New("workerpool: stopped")
)

// Job 是一个后台任务。ctx 在任务池停止后才会被取消。
type Job func(ctx context.Context)

// Pool 是有界的任务池。
type Pool struct {
	jobs    chan Job
	workers int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// New 创建任务池并启动 workers 个 worker。
func New(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		jobs:    make(chan Job, queueSize),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	log.Infof("[WorkerPool] 已启动 %d 个 worker, 队列容量 %d", workers, queueSize)
	return p
}

// Submit 非阻塞地提交任务，队列满时返回 ErrQueueFull。
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- job:
		metrics.IngestQueueDepth.Set(float64(len(p.jobs)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending 返回队列中等待执行的任务数。
func (p *Pool) Pending() int {
	return len(p.jobs)
}

// Stop 停止接收新任务，等待已排队的任务执行完毕。ctx 到期后取消正在执行的任务。
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		metrics.IngestQueueDepth.Set(float64(len(p.jobs)))
		p.run(id, job)
	}
}

func (p *Pool) run(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[WorkerPool] worker %d 任务 panic: %v", id, r)
		}
	}()
	job(p.ctx)
}
