package model

import "path/filepath"

// ChunkKind 分块类型。
type ChunkKind string

const (
	ChunkPage      ChunkKind = "page"
	ChunkParagraph ChunkKind = "paragraph"
)

// 元数据中的保留键。
const (
	MetaKeySource     = "source"
	MetaKeyChunkType  = "chunk_type"
	MetaKeyTimestamp  = "timestamp"
	MetaKeyTextLength = "text_length"
	MetaKeyPage       = "page"
	MetaKeyChunkID    = "chunk_id"
	MetaKeyDocumentID = "document_id"
	MetaKeyDomain     = "domain"
	MetaKeyFileName   = "filename"
)

// ChunkDraft 是分块器的输出，尚未向量化。
// Page 与 Seq 为 0 表示没有该属性。
type ChunkDraft struct {
	Text   string
	Kind   ChunkKind
	Source string
	Page   int
	Seq    int
}

// IndexRecord 是写入向量索引的一条记录。
type IndexRecord struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata Metadata
}

// IndexHit 是向量索引返回的一条命中，Distance 为余弦距离（越小越相似）。
type IndexHit struct {
	ID       string
	Text     string
	Distance float64
	Metadata Metadata
}

// QueryResult 是检索结果，Score = 1 - Distance。
type QueryResult struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Score    float64  `json:"similarity_score"`
	Metadata Metadata `json:"metadata"`
}

// Source 返回分块来源路径。
func (r QueryResult) Source() string {
	if s := r.Metadata.Str(MetaKeySource); s != "" {
		return s
	}
	return "Unknown"
}

// FileName 返回来源文档的文件名，缺失时退回来源路径的文件名部分。
func (r QueryResult) FileName() string {
	if f := r.Metadata.Str(MetaKeyFileName); f != "" {
		return f
	}
	if s := r.Metadata.Str(MetaKeySource); s != "" {
		return filepath.Base(s)
	}
	return "Unknown"
}

// Page 返回页码，没有页码时返回 0。
func (r QueryResult) Page() int {
	p, _ := r.Metadata.Int(MetaKeyPage)
	return int(p)
}

// DocumentID 返回所属文档 ID。
func (r QueryResult) DocumentID() (uint, bool) {
	id, ok := r.Metadata.Int(MetaKeyDocumentID)
	if !ok || id <= 0 {
		return 0, false
	}
	return uint(id), true
}
