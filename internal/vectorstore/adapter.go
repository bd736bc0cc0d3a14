package vectorstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"mcp-knowledge-go/internal/model"
	"mcp-knowledge-go/pkg/embedding"
	"mcp-knowledge-go/pkg/log"
	"mcp-knowledge-go/pkg/metrics"
)

const (
	// MinChunkChars 去掉首尾空白后短于该长度的分块不会被写入索引。
	MinChunkChars = 10
	idPrefixChars = 100
)

// Adapter 把分块转换为索引记录，并把检索命中转换为带相似度的结果。
type Adapter struct {
	index    Index
	embedder embedding.Client
	now      func() time.Time
}

// NewAdapter 创建一个新的 Adapter 实例。
func NewAdapter(index Index, embedder embedding.Client) *Adapter {
	return &Adapter{index: index, embedder: embedder, now: time.Now}
}

// ChunkID 由来源、位置和正文前 100 个字符决定，同一分块重复写入会覆盖旧记录。
func ChunkID(source string, position int, text string) string {
	prefix := text
	if utf8.RuneCountInString(text) > idPrefixChars {
		prefix = string([]rune(text)[:idPrefixChars])
	}
	sum := md5.Sum([]byte(source + strconv.Itoa(position) + prefix))
	return hex.EncodeToString(sum[:])
}

// Insert 过滤过短的分块、向量化并写入索引，返回写入的条数。
// position 按输入顺序计数（包含被过滤掉的分块）。
func (a *Adapter) Insert(ctx context.Context, chunks []model.ChunkDraft, shared model.Metadata) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	timestamp := a.now().UTC().Format(time.RFC3339)
	records := make([]model.IndexRecord, 0, len(chunks))
	for i, chunk := range chunks {
		if utf8.RuneCountInString(strings.TrimSpace(chunk.Text)) < MinChunkChars {
			continue
		}

		md := make(model.Metadata, len(shared)+6)
		for k, v := range shared {
			// 空值不写入索引
			if v.Valid() {
				md[k] = v
			}
		}
		md[model.MetaKeySource] = model.StringValue(chunk.Source)
		md[model.MetaKeyChunkType] = model.StringValue(string(chunk.Kind))
		md[model.MetaKeyTimestamp] = model.StringValue(timestamp)
		md[model.MetaKeyTextLength] = model.IntValue(int64(utf8.RuneCountInString(chunk.Text)))
		if chunk.Page > 0 {
			md[model.MetaKeyPage] = model.IntValue(int64(chunk.Page))
		}
		if chunk.Seq > 0 {
			md[model.MetaKeyChunkID] = model.StringValue(strconv.Itoa(chunk.Seq))
		}

		vector, err := a.embedder.CreateEmbedding(ctx, chunk.Text)
		if err != nil {
			return 0, fmt.Errorf("分块 %d 向量化失败: %w", i, err)
		}
		records = append(records, model.IndexRecord{
			ID:       ChunkID(chunk.Source, i, chunk.Text),
			Text:     chunk.Text,
			Vector:   vector,
			Metadata: md,
		})
	}

	if len(records) == 0 {
		return 0, nil
	}
	if err := a.index.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("写入向量索引 %s 失败: %w", a.index.Name(), err)
	}
	metrics.ChunksIndexedTotal.Add(float64(len(records)))
	log.Infof("[VectorIndex] 写入 %d/%d 个分块到 %s", len(records), len(chunks), a.index.Name())
	return len(records), nil
}

// Query 返回与 text 最相似的 topK 个分块，任何失败都降级为空结果。
func (a *Adapter) Query(ctx context.Context, text string, topK int, filter model.Metadata) []model.QueryResult {
	results := []model.QueryResult{}
	if topK <= 0 {
		return results
	}

	vector, err := a.embedder.CreateEmbedding(ctx, text)
	if err != nil {
		log.Errorf("[VectorIndex] 查询向量化失败, query: '%s', error: %v", text, err)
		return results
	}
	hits, err := a.index.Query(ctx, vector, topK, filter)
	if err != nil {
		log.Errorf("[VectorIndex] 向量检索失败, index: %s, error: %v", a.index.Name(), err)
		return results
	}

	for _, hit := range hits {
		results = append(results, model.QueryResult{
			ID:       hit.ID,
			Text:     hit.Text,
			Score:    1 - hit.Distance,
			Metadata: hit.Metadata,
		})
	}
	return results
}

// Stats 返回索引概况，失败时返回空 map。
func (a *Adapter) Stats(ctx context.Context) map[string]any {
	count, err := a.index.Count(ctx)
	if err != nil {
		log.Errorf("[VectorIndex] 获取索引统计失败: %v", err)
		return map[string]any{}
	}
	return map[string]any{
		"collection_name":   a.index.Name(),
		"document_count":    count,
		"persist_directory": a.index.Location(),
	}
}
