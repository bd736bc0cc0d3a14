// Package tasks 定义了投递给后台处理的任务结构。
package tasks

// DocumentTask 表示一个待处理的文档。
type DocumentTask struct {
	DocumentID uint   `json:"document_id"`
	FileName   string `json:"file_name"`
	Location   string `json:"location"`
	Domain     string `json:"domain"`
}
