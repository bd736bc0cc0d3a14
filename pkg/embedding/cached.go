package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"mcp-knowledge-go/internal/repository"
	"mcp-knowledge-go/pkg/log"
	"mcp-knowledge-go/pkg/metrics"
)

// cachedClient caches vectors keyed by model and text hash.
type cachedClient struct {
	inner Client
	store repository.EmbeddingCacheRepository
	model string
}

// NewCachedClient wraps inner with a key-value cache. Cache errors never fail a call.
func NewCachedClient(inner Client, store repository.EmbeddingCacheRepository, model string) Client {
	return &cachedClient{inner: inner, store: store, model: model}
}

func (c *cachedClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if data, err := c.store.Get(ctx, key); err == nil {
		if vec, perr := bytesToVector(data); perr == nil && len(vec) > 0 {
			metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
			return vec, nil
		}
		log.Warnf("[EmbeddingCache] 缓存数据损坏, key: %s", key)
	} else if !errors.Is(err, repository.ErrCacheMiss) {
		log.Warnf("[EmbeddingCache] 读取缓存失败, key: %s, error: %v", key, err)
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()

	vec, err := c.inner.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, key, vectorToBytes(vec)); err != nil {
		log.Warnf("[EmbeddingCache] 写入缓存失败, key: %s, error: %v", key, err)
	}
	return vec, nil
}

func (c *cachedClient) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.model + "\x00" + text))
	return hex.EncodeToString(h[:])
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
