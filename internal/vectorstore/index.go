// Package vectorstore 负责分块的向量化、写入以及相似度检索。
package vectorstore

import (
	"context"

	"mcp-knowledge-go/internal/model"
)

// Index 是底层向量索引的最小能力集合。
// Query 返回的命中按相似度从高到低排列，Distance 为余弦距离。
type Index interface {
	Upsert(ctx context.Context, records []model.IndexRecord) error
	Query(ctx context.Context, vector []float32, topK int, filter model.Metadata) ([]model.IndexHit, error)
	Count(ctx context.Context) (int64, error)
	Name() string
	Location() string
}
