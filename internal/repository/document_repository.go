package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"mcp-knowledge-go/internal/model"
)

// RegisterParams 登记新文档所需的信息。
type RegisterParams struct {
	FileName    string
	Location    string
	ContentHash string
	Size        int64
	Domain      string
	Tags        []string
	Metadata    map[string]any
}

// ListFilter 两个条件都是可选的，同时给出时取交集。
type ListFilter struct {
	Domain string
	Status model.DocumentStatus
}

// DocumentRepository 是文档目录库：文档身份、去重、状态以及处理日志。
type DocumentRepository interface {
	Register(ctx context.Context, p RegisterParams) (uint, error)
	// SetStatus 覆盖状态并刷新 last_processed，chunkCount 为 nil 时保留原值。
	SetStatus(ctx context.Context, id uint, status model.DocumentStatus, chunkCount *int) error
	List(ctx context.Context, f ListFilter) ([]model.Document, error)
	Get(ctx context.Context, id uint) (*model.Document, error)
	FindByHash(ctx context.Context, contentHash string) (*model.Document, error)
	FindBatchByIDs(ctx context.Context, ids []uint) ([]model.Document, error)
	AppendLog(ctx context.Context, entry *model.ProcessingLog) error
	Logs(ctx context.Context, documentID uint) ([]model.ProcessingLog, error)
}

// documentRepository 是 DocumentRepository 接口的 GORM 实现。
type documentRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db, now: time.Now}
}

// Register 以 pending 状态登记文档；内容哈希已存在时返回 ErrDuplicateDocument，不做任何修改。
func (r *documentRepository) Register(ctx context.Context, p RegisterParams) (uint, error) {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return 0, catalogErr("register", err)
	}
	meta := p.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return 0, catalogErr("register", err)
	}

	doc := model.Document{
		FileName:    p.FileName,
		Location:    p.Location,
		ContentHash: p.ContentHash,
		FileSize:    p.Size,
		Domain:      p.Domain,
		Tags:        string(tagsJSON),
		Metadata:    string(metaJSON),
		UploadDate:  r.now(),
		Status:      model.StatusPending,
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Document{}).Where("content_hash = ?", p.ContentHash).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateDocument
		}
		return tx.Create(&doc).Error
	})
	switch {
	case err == nil:
		return doc.ID, nil
	case errors.Is(err, ErrDuplicateDocument), errors.Is(err, gorm.ErrDuplicatedKey):
		// 并发登记时由唯一索引兜底
		return 0, ErrDuplicateDocument
	default:
		return 0, catalogErr("register", err)
	}
}

// SetStatus 不校验状态迁移，任意状态都可以覆盖。
func (r *documentRepository) SetStatus(ctx context.Context, id uint, status model.DocumentStatus, chunkCount *int) error {
	updates := map[string]any{
		"status":         status,
		"last_processed": r.now(),
	}
	if chunkCount != nil {
		updates["chunk_count"] = *chunkCount
	}
	res := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return catalogErr("set_status", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// List 按上传时间倒序返回文档。
func (r *documentRepository) List(ctx context.Context, f ListFilter) ([]model.Document, error) {
	q := r.db.WithContext(ctx).Model(&model.Document{})
	if f.Domain != "" {
		q = q.Where("domain = ?", f.Domain)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	docs := []model.Document{}
	if err := q.Order("upload_date desc").Order("id desc").Find(&docs).Error; err != nil {
		return nil, catalogErr("list", err)
	}
	return docs, nil
}

// Get 根据 ID 查询文档。
func (r *documentRepository) Get(ctx context.Context, id uint) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, catalogErr("get", err)
	}
	return &doc, nil
}

// FindByHash 按内容 MD5 查找文档，不存在时返回 ErrDocumentNotFound。
func (r *documentRepository) FindByHash(ctx context.Context, contentHash string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("content_hash = ?", contentHash).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, catalogErr("find_by_hash", err)
	}
	return &doc, nil
}

// FindBatchByIDs 批量查询文档，不存在的 ID 被忽略。
func (r *documentRepository) FindBatchByIDs(ctx context.Context, ids []uint) ([]model.Document, error) {
	docs := []model.Document{}
	if len(ids) == 0 {
		return docs, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&docs).Error; err != nil {
		return nil, catalogErr("find_batch", err)
	}
	return docs, nil
}

// AppendLog 追加一条处理日志。
func (r *documentRepository) AppendLog(ctx context.Context, entry *model.ProcessingLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return catalogErr("append_log", err)
	}
	return nil
}

// Logs 按时间顺序返回文档的处理日志。
func (r *documentRepository) Logs(ctx context.Context, documentID uint) ([]model.ProcessingLog, error) {
	logs := []model.ProcessingLog{}
	err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Order("id asc").Find(&logs).Error
	if err != nil {
		return nil, catalogErr("logs", err)
	}
	return logs, nil
}
