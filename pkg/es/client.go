// Package es 提供了基于 Elasticsearch dense_vector 的向量索引。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"mcp-knowledge-go/internal/config"
	"mcp-knowledge-go/internal/model"
	"mcp-knowledge-go/pkg/log"
)

// ESClient 是全局的 Elasticsearch 客户端实例。
var ESClient *elasticsearch.Client

// Index 把分块保存在一个 ES 索引中，向量字段使用 cosine 相似度。
type Index struct {
	client    *elasticsearch.Client
	indexName string
	addresses string
}

// esDocument 是写入 ES 的文档结构。
type esDocument struct {
	ChunkUID string         `json:"chunk_uid"`
	Text     string         `json:"text"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata"`
}

// InitES 初始化 Elasticsearch 客户端，并在索引不存在时按 dims 创建。
func InitES(esCfg config.ElasticsearchConfig, dims int) (*Index, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	ESClient = client

	idx := NewIndex(client, esCfg.IndexName, esCfg.Addresses)
	if err := idx.createIndexIfNotExists(dims); err != nil {
		return nil, err
	}
	return idx, nil
}

// NewIndex 使用已有客户端创建索引句柄，不检查索引是否存在。
func NewIndex(client *elasticsearch.Client, indexName, addresses string) *Index {
	return &Index{client: client, indexName: indexName, addresses: addresses}
}

func (i *Index) Name() string     { return i.indexName }
func (i *Index) Location() string { return i.addresses }

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (i *Index) createIndexIfNotExists(dims int) error {
	res, err := i.client.Indices.Exists([]string{i.indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	defer res.Body.Close()
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", i.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// metadata 下的字符串统一映射为 keyword，term 过滤才能精确匹配
	mapping := fmt.Sprintf(`{
		"mappings": {
			"dynamic_templates": [
				{
					"metadata_strings": {
						"path_match": "metadata.*",
						"match_mapping_type": "string",
						"mapping": { "type": "keyword" }
					}
				}
			],
			"properties": {
				"chunk_uid": { "type": "keyword" },
				"text": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"metadata": { "type": "object", "dynamic": true }
			}
		}
	}`, dims)

	res, err = i.client.Indices.Create(
		i.indexName,
		i.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", i.indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", i.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功, dims: %d", i.indexName, dims)
	return nil
}

// Upsert 通过 bulk 接口写入记录，分块 ID 作为 ES 文档 ID。
func (i *Index) Upsert(ctx context.Context, records []model.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, r := range records {
		action := map[string]any{"index": map[string]any{"_index": i.indexName, "_id": r.ID}}
		if err := json.NewEncoder(&buf).Encode(action); err != nil {
			return err
		}
		doc := esDocument{ChunkUID: r.ID, Text: r.Text, Vector: r.Vector, Metadata: r.Metadata.Plain()}
		if err := json.NewEncoder(&buf).Encode(doc); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{
		Index:   i.indexName,
		Body:    &buf,
		Refresh: "true",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("批量写入 Elasticsearch 出错: %s", res.String())
		return fmt.Errorf("bulk index failed: %s", res.Status())
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("解析 bulk 响应失败: %w", err)
	}
	if bulkResp.Errors {
		return errors.New("bulk index reported item errors")
	}
	return nil
}

// Query 执行 kNN 检索，filter 中的每个键转换为 metadata.<key> 的 term 过滤。
func (i *Index) Query(ctx context.Context, vector []float32, topK int, filter model.Metadata) ([]model.IndexHit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildKNNQuery(vector, topK, filter)); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.indexName),
		i.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search returned error: %s", res.String())
	}
	return decodeHits(res.Body)
}

// Count 返回索引中的分块数量。
func (i *Index) Count(ctx context.Context) (int64, error) {
	res, err := i.client.Count(
		i.client.Count.WithContext(ctx),
		i.client.Count.WithIndex(i.indexName),
	)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("elasticsearch count returned error: %s", res.String())
	}
	var body struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, err
	}
	return body.Count, nil
}

func buildKNNQuery(vector []float32, topK int, filter model.Metadata) map[string]any {
	numCandidates := topK * 10
	if numCandidates < 100 {
		numCandidates = 100
	}
	knn := map[string]any{
		"field":          "vector",
		"query_vector":   vector,
		"k":              topK,
		"num_candidates": numCandidates,
	}
	if len(filter) > 0 {
		terms := make([]map[string]any, 0, len(filter))
		for k, v := range filter {
			terms = append(terms, map[string]any{
				"term": map[string]any{"metadata." + k: v.Interface()},
			})
		}
		knn["filter"] = map[string]any{"bool": map[string]any{"filter": terms}}
	}
	return map[string]any{
		"knn":     knn,
		"size":    topK,
		"_source": []string{"chunk_uid", "text", "metadata"},
	}
}

// decodeHits 解析检索结果。cosine 相似度下 _score = (1 + cos) / 2。
func decodeHits(body io.Reader) ([]model.IndexHit, error) {
	var resp struct {
		Hits struct {
			Hits []struct {
				ID     string  `json:"_id"`
				Score  float64 `json:"_score"`
				Source struct {
					ChunkUID string         `json:"chunk_uid"`
					Text     string         `json:"text"`
					Metadata model.Metadata `json:"metadata"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]model.IndexHit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		id := h.Source.ChunkUID
		if id == "" {
			id = h.ID
		}
		md := h.Source.Metadata
		if md == nil {
			md = model.Metadata{}
		}
		cos := 2*h.Score - 1
		hits = append(hits, model.IndexHit{
			ID:       id,
			Text:     h.Source.Text,
			Distance: 1 - cos,
			Metadata: md,
		})
	}
	return hits, nil
}
