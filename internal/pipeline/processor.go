// Package pipeline 定义了文档处理的核心流程。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"mcp-knowledge-go/internal/chunker"
	"mcp-knowledge-go/internal/model"
	"mcp-knowledge-go/internal/repository"
	"mcp-knowledge-go/pkg/events"
	"mcp-knowledge-go/pkg/log"
	"mcp-knowledge-go/pkg/metrics"
	"mcp-knowledge-go/pkg/storage"
	"mcp-knowledge-go/pkg/tasks"
)

// OperationProcess 是处理日志中的操作名。
const OperationProcess = "process"

// ErrNoContent 表示分块器没有产出任何分块。
var ErrNoContent = errors.New("未能从文件中抽取到任何内容")

// Indexer 把分块写入向量索引。
type Indexer interface {
	Insert(ctx context.Context, chunks []model.ChunkDraft, shared model.Metadata) (int, error)
}

// Processor 封装了文档处理的所有依赖和逻辑。
type Processor struct {
	store   storage.Store
	chunker *chunker.Chunker
	indexer Indexer
	docRepo repository.DocumentRepository
	bus     events.Bus
}

// NewProcessor 创建一个新的 Processor 实例。bus 可以为 nil。
func NewProcessor(
	store storage.Store,
	chunker *chunker.Chunker,
	indexer Indexer,
	docRepo repository.DocumentRepository,
	bus events.Bus,
) *Processor {
	return &Processor{
		store:   store,
		chunker: chunker,
		indexer: indexer,
		docRepo: docRepo,
		bus:     bus,
	}
}

// Process 是文档处理的主函数：读取、分块、写入索引并更新状态。
// 任何一步失败文档都会被标记为 failed，不会自动重试。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentTask) error {
	log.Infof("[Processor] 开始处理文档, ID: %d, FileName: %s", task.DocumentID, task.FileName)

	// 1. 从存储读取文件
	object, err := p.store.Open(ctx, task.Location)
	if err != nil {
		return p.fail(ctx, task, fmt.Errorf("读取文件失败: %w", err))
	}
	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	_ = object.Close()
	if err != nil {
		return p.fail(ctx, task, fmt.Errorf("读取文件流失败: %w", err))
	}
	log.Infof("[Processor] 步骤1: 文件读取成功, 大小: %d字节", size)

	// 2. 分块
	chunks, err := p.chunker.Chunk(ctx, task.Location, bytes.NewReader(buf.Bytes()), task.FileName)
	if err != nil {
		return p.fail(ctx, task, err)
	}
	if len(chunks) == 0 {
		return p.fail(ctx, task, ErrNoContent)
	}
	log.Infof("[Processor] 步骤2: 分块完成, 共生成 %d 个分块", len(chunks))

	// 3. 向量化并写入索引
	shared := model.Metadata{
		model.MetaKeyDocumentID: model.IntValue(int64(task.DocumentID)),
		model.MetaKeyDomain:     model.StringValue(task.Domain),
		model.MetaKeyFileName:   model.StringValue(task.FileName),
	}
	inserted, err := p.indexer.Insert(ctx, chunks, shared)
	if err != nil {
		return p.fail(ctx, task, err)
	}
	log.Infof("[Processor] 步骤3: 写入索引 %d 个分块", inserted)

	// 4. 更新状态，终态写入不受任务取消影响
	final := context.WithoutCancel(ctx)
	if err := p.docRepo.SetStatus(final, task.DocumentID, model.StatusCompleted, &inserted); err != nil {
		log.Errorf("[Processor] 更新文档状态失败, ID: %d, Error: %v", task.DocumentID, err)
		return err
	}
	p.appendLog(final, task.DocumentID, model.StatusCompleted, fmt.Sprintf("indexed %d chunks", inserted))
	p.publish(final, task, model.StatusCompleted, inserted, nil)
	metrics.DocumentsProcessedTotal.WithLabelValues(string(model.StatusCompleted)).Inc()

	log.Infof("[Processor] 文档处理成功完成, ID: %d, 分块数: %d", task.DocumentID, inserted)
	return nil
}

// fail 标记文档为 failed。ctx 可能已被取消（任务池停止时），状态仍需落库。
func (p *Processor) fail(ctx context.Context, task tasks.DocumentTask, cause error) error {
	ctx = context.WithoutCancel(ctx)
	log.Errorf("[Processor] 文档处理失败, ID: %d, FileName: %s, Error: %v", task.DocumentID, task.FileName, cause)

	zero := 0
	if err := p.docRepo.SetStatus(ctx, task.DocumentID, model.StatusFailed, &zero); err != nil {
		log.Errorf("[Processor] 标记文档失败状态出错, ID: %d, Error: %v", task.DocumentID, err)
	}
	p.appendLog(ctx, task.DocumentID, model.StatusFailed, cause.Error())
	p.publish(ctx, task, model.StatusFailed, 0, cause)
	metrics.DocumentsProcessedTotal.WithLabelValues(string(model.StatusFailed)).Inc()
	return cause
}

func (p *Processor) appendLog(ctx context.Context, id uint, status model.DocumentStatus, details string) {
	entry := &model.ProcessingLog{
		DocumentID: id,
		Operation:  OperationProcess,
		Status:     string(status),
		Details:    details,
	}
	if err := p.docRepo.AppendLog(ctx, entry); err != nil {
		log.Warnf("[Processor] 写入处理日志失败, ID: %d, Error: %v", id, err)
	}
}

func (p *Processor) publish(ctx context.Context, task tasks.DocumentTask, status model.DocumentStatus, chunks int, cause error) {
	if p.bus == nil {
		return
	}
	e := events.DocumentProcessed{
		DocumentID: task.DocumentID,
		FileName:   task.FileName,
		Status:     string(status),
		ChunkCount: chunks,
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	if err := p.bus.Publish(ctx, events.NewDocumentProcessed(e)); err != nil {
		log.Warnf("[Processor] 发布处理事件失败, ID: %d, Error: %v", task.DocumentID, err)
	}
}
