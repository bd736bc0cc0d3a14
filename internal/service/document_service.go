package service

import (
	"context"

	"mcp-knowledge-go/internal/model"
	"mcp-knowledge-go/internal/repository"
)

// DocumentDetail 是单个文档及其处理日志。
type DocumentDetail struct {
	model.DocumentView
	Logs []model.ProcessingLog `json:"processing_log"`
}

// DocumentService 接口定义了文档目录的查询操作。
type DocumentService interface {
	List(ctx context.Context, domain string, status model.DocumentStatus) ([]model.Document, error)
	ListViews(ctx context.Context, domain string, status model.DocumentStatus) ([]model.DocumentView, error)
	Get(ctx context.Context, id uint) (*DocumentDetail, error)
}

type documentService struct {
	docRepo repository.DocumentRepository
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(docRepo repository.DocumentRepository) DocumentService {
	return &documentService{docRepo: docRepo}
}

func (s *documentService) List(ctx context.Context, domain string, status model.DocumentStatus) ([]model.Document, error) {
	return s.docRepo.List(ctx, repository.ListFilter{Domain: domain, Status: status})
}

// ListViews 返回解码了标签与元数据的文档列表。
func (s *documentService) ListViews(ctx context.Context, domain string, status model.DocumentStatus) ([]model.DocumentView, error) {
	docs, err := s.List(ctx, domain, status)
	if err != nil {
		return nil, err
	}
	views := make([]model.DocumentView, 0, len(docs))
	for _, d := range docs {
		views = append(views, d.View())
	}
	return views, nil
}

func (s *documentService) Get(ctx context.Context, id uint) (*DocumentDetail, error) {
	doc, err := s.docRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	logs, err := s.docRepo.Logs(ctx, id)
	if err != nil {
		return nil, err
	}
	return &DocumentDetail{DocumentView: doc.View(), Logs: logs}, nil
}
