// Package service 包含了应用的业务逻辑层。
package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"mcp-knowledge-go/internal/model"
	"mcp-knowledge-go/internal/pipeline"
	"mcp-knowledge-go/internal/repository"
	"mcp-knowledge-go/pkg/log"
	"mcp-knowledge-go/pkg/storage"
	"mcp-knowledge-go/pkg/tasks"
)

// 摄取结果中的状态。
const (
	OutcomeProcessing = "processing"
	OutcomeDuplicate  = "duplicate"
	OutcomeFailed     = "failed"
)

// OperationUpload 是处理日志中上传步骤的操作名。
const OperationUpload = "upload"

// UploadRequest 描述一次上传。Tags 为逗号分隔的原始字符串。
type UploadRequest struct {
	FileName    string
	Content     []byte
	Tags        string
	Description string
	Domain      string
}

// IngestOutcome 是上传接口的返回体。
type IngestOutcome struct {
	Message    string `json:"message,omitempty"`
	DocumentID uint   `json:"document_id,omitempty"`
	FileName   string `json:"filename,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// IngestService 接口定义了文档摄取操作。
type IngestService interface {
	Ingest(ctx context.Context, req UploadRequest) (IngestOutcome, error)
	IngestFile(ctx context.Context, path string, tags string) (IngestOutcome, error)
}

type ingestService struct {
	store         storage.Store
	docRepo       repository.DocumentRepository
	dispatcher    pipeline.Dispatcher
	defaultDomain string
}

// NewIngestService 创建一个新的 IngestService 实例。
func NewIngestService(store storage.Store, docRepo repository.DocumentRepository, dispatcher pipeline.Dispatcher, defaultDomain string) IngestService {
	return &ingestService{
		store:         store,
		docRepo:       docRepo,
		dispatcher:    dispatcher,
		defaultDomain: defaultDomain,
	}
}

// Ingest 保存文件、登记目录并投递后台处理，不等待处理完成。
// 返回 error 时 outcome 的状态为 failed；重复上传不视为 error。
func (s *ingestService) Ingest(ctx context.Context, req UploadRequest) (IngestOutcome, error) {
	fileName := filepath.Base(req.FileName)
	log.Infof("[IngestService] 收到上传, FileName: %s, Size: %d", fileName, len(req.Content))

	// 1. 计算 MD5，已存在的内容不再落盘
	sum := md5.Sum(req.Content)
	hash := hex.EncodeToString(sum[:])
	if _, err := s.docRepo.FindByHash(ctx, hash); err == nil {
		log.Infof("[IngestService] 文档已存在, FileName: %s, MD5: %s", fileName, hash)
		return duplicateOutcome(), nil
	} else if !errors.Is(err, repository.ErrDocumentNotFound) {
		return failedOutcome(err), err
	}

	// 2. 持久化
	location, err := s.store.Put(ctx, storage.ObjectKey(hash, fileName), bytes.NewReader(req.Content), int64(len(req.Content)))
	if err != nil {
		return failedOutcome(err), fmt.Errorf("保存上传文件失败: %w", err)
	}

	// 3. 登记
	domain := req.Domain
	if domain == "" {
		domain = s.defaultDomain
	}
	var metadata map[string]any
	if req.Description != "" {
		metadata = map[string]any{"description": req.Description}
	}
	id, err := s.docRepo.Register(ctx, repository.RegisterParams{
		FileName:    fileName,
		Location:    location,
		ContentHash: hash,
		Size:        int64(len(req.Content)),
		Domain:      domain,
		Tags:        model.SplitTags(req.Tags),
		Metadata:    metadata,
	})
	if errors.Is(err, repository.ErrDuplicateDocument) {
		// 并发上传相同内容时另一方先登记成功
		log.Infof("[IngestService] 文档已存在, FileName: %s, MD5: %s", fileName, hash)
		s.discardObject(ctx, hash, location)
		return duplicateOutcome(), nil
	}
	if err != nil {
		return failedOutcome(err), err
	}
	s.appendLog(ctx, id, string(model.StatusPending), "uploaded "+fileName)

	// 4. 投递后台处理
	task := tasks.DocumentTask{DocumentID: id, FileName: fileName, Location: location, Domain: domain}
	if err := s.dispatcher.Dispatch(ctx, task); err != nil {
		log.Errorf("[IngestService] 投递处理任务失败, ID: %d, Error: %v", id, err)
		zero := 0
		if serr := s.docRepo.SetStatus(ctx, id, model.StatusFailed, &zero); serr != nil {
			log.Errorf("[IngestService] 标记文档失败状态出错, ID: %d, Error: %v", id, serr)
		}
		s.appendLog(ctx, id, string(model.StatusFailed), err.Error())
		out := failedOutcome(err)
		out.DocumentID = id
		out.FileName = fileName
		return out, fmt.Errorf("投递处理任务失败: %w", err)
	}

	log.Infof("[IngestService] 文档已登记并投递处理, ID: %d, FileName: %s", id, fileName)
	return IngestOutcome{
		Message:    "Document uploaded successfully",
		DocumentID: id,
		FileName:   fileName,
		Status:     OutcomeProcessing,
	}, nil
}

// IngestFile 从本地路径读取文件并走同一条摄取流程。
func (s *ingestService) IngestFile(ctx context.Context, path string, tags string) (IngestOutcome, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return failedOutcome(err), fmt.Errorf("读取文件 %s 失败: %w", path, err)
	}
	return s.Ingest(ctx, UploadRequest{FileName: filepath.Base(path), Content: content, Tags: tags})
}

func (s *ingestService) appendLog(ctx context.Context, id uint, status, details string) {
	entry := &model.ProcessingLog{DocumentID: id, Operation: OperationUpload, Status: status, Details: details}
	if err := s.docRepo.AppendLog(ctx, entry); err != nil {
		log.Warnf("[IngestService] 写入处理日志失败, ID: %d, Error: %v", id, err)
	}
}

// discardObject 删除未能登记的对象，已登记文档正在使用的同一位置保留。
func (s *ingestService) discardObject(ctx context.Context, hash, location string) {
	if existing, err := s.docRepo.FindByHash(ctx, hash); err == nil && existing.Location == location {
		return
	}
	if err := s.store.Remove(ctx, location); err != nil {
		log.Warnf("[IngestService] 删除重复上传的对象失败, Location: %s, Error: %v", location, err)
	}
}

func duplicateOutcome() IngestOutcome {
	return IngestOutcome{Status: OutcomeDuplicate, Error: "Document already exists"}
}

func failedOutcome(err error) IngestOutcome {
	return IngestOutcome{Status: OutcomeFailed, Error: err.Error()}
}
