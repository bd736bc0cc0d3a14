// Package model 定义了与数据库表对应的 Go 结构体以及检索链路中的领域类型。
package model

import (
	"encoding/json"
	"strings"
	"time"
)

// DocumentStatus 文档处理状态。
type DocumentStatus string

const (
	StatusPending   DocumentStatus = "pending"
	StatusCompleted DocumentStatus = "completed"
	StatusFailed    DocumentStatus = "failed"
)

// Document 定义了 documents 表的 ORM 模型。
// content_hash 上的唯一索引保证同一份字节只会被登记一次。
type Document struct {
	ID            uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	FileName      string         `gorm:"type:varchar(255);not null" json:"filename"`
	Location      string         `gorm:"type:varchar(512);not null" json:"file_path"`
	ContentHash   string         `gorm:"type:varchar(32);not null;uniqueIndex" json:"content_hash"`
	FileSize      int64          `gorm:"not null" json:"file_size"`
	Domain        string         `gorm:"type:varchar(64);index" json:"domain"`
	Tags          string         `gorm:"type:text" json:"-"`
	Metadata      string         `gorm:"type:text" json:"-"`
	UploadDate    time.Time      `gorm:"not null;index" json:"upload_date"`
	LastProcessed *time.Time     `json:"last_processed"`
	ChunkCount    int            `gorm:"not null;default:0" json:"chunk_count"`
	Status        DocumentStatus `gorm:"type:varchar(16);not null;default:pending;index" json:"status"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// TagList 解码 JSON 编码的标签列表。
func (d Document) TagList() []string {
	if d.Tags == "" {
		return []string{}
	}
	var tags []string
	if err := json.Unmarshal([]byte(d.Tags), &tags); err != nil {
		// 兼容历史数据中的逗号分隔格式
		return SplitTags(d.Tags)
	}
	return tags
}

// HasTag 判断标签原文中是否包含 needle（忽略大小写的子串匹配）。
func (d Document) HasTag(needle string) bool {
	return strings.Contains(strings.ToLower(d.Tags), strings.ToLower(needle))
}

// MetadataMap 解码 JSON 编码的元数据。
func (d Document) MetadataMap() map[string]any {
	out := map[string]any{}
	if d.Metadata == "" {
		return out
	}
	_ = json.Unmarshal([]byte(d.Metadata), &out)
	return out
}

// SplitTags 把逗号分隔的标签串拆成去掉空白的列表。
func SplitTags(raw string) []string {
	tags := []string{}
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// DocumentView 是返回给 HTTP 调用方的文档表示。
type DocumentView struct {
	ID            uint           `json:"id"`
	FileName      string         `json:"filename"`
	Location      string         `json:"file_path"`
	ContentHash   string         `json:"content_hash"`
	FileSize      int64          `json:"file_size"`
	Domain        string         `json:"domain"`
	Tags          []string       `json:"tags"`
	Metadata      map[string]any `json:"metadata"`
	UploadDate    LocalTime      `json:"upload_date"`
	LastProcessed *LocalTime     `json:"last_processed"`
	ChunkCount    int            `json:"chunk_count"`
	Status        DocumentStatus `json:"status"`
}

// View 把数据库记录转换为对外视图。
func (d Document) View() DocumentView {
	v := DocumentView{
		ID:          d.ID,
		FileName:    d.FileName,
		Location:    d.Location,
		ContentHash: d.ContentHash,
		FileSize:    d.FileSize,
		Domain:      d.Domain,
		Tags:        d.TagList(),
		Metadata:    d.MetadataMap(),
		UploadDate:  LocalTime(d.UploadDate),
		ChunkCount:  d.ChunkCount,
		Status:      d.Status,
	}
	if d.LastProcessed != nil {
		lp := LocalTime(*d.LastProcessed)
		v.LastProcessed = &lp
	}
	return v
}

// ProcessingLog 定义了 processing_log 表，记录每个文档经历的处理步骤。
type ProcessingLog struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID uint      `gorm:"not null;index" json:"document_id"`
	Operation  string    `gorm:"type:varchar(32);not null" json:"operation"`
	Status     string    `gorm:"type:varchar(16);not null" json:"status"`
	Details    string    `gorm:"type:text" json:"details"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"timestamp"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ProcessingLog) TableName() string {
	return "processing_log"
}
