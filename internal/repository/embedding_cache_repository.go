package repository

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss 缓存中没有对应的键。
var ErrCacheMiss = errors.New("cache miss")

const embeddingCachePrefix = "kb:emb_cache:"

// EmbeddingCacheRepository 在 Redis 中保存文本向量。
type EmbeddingCacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

type embeddingCacheRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewEmbeddingCacheRepository 创建缓存仓库，ttl 为 0 表示永不过期。
func NewEmbeddingCacheRepository(redisClient *redis.Client, ttl time.Duration) EmbeddingCacheRepository {
	return &embeddingCacheRepository{redisClient: redisClient, ttl: ttl}
}

func (r *embeddingCacheRepository) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.redisClient.Get(ctx, embeddingCachePrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return data, nil
}

func (r *embeddingCacheRepository) Set(ctx context.Context, key string, value []byte) error {
	return r.redisClient.Set(ctx, embeddingCachePrefix+key, value, r.ttl).Err()
}
