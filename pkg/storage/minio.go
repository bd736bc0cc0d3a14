package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"mcp-knowledge-go/internal/config"
	"mcp-knowledge-go/pkg/log"
)

const minioScheme = "minio://"

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// MinIOStore 把文件保存在单个存储桶中。
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOStore 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewMinIOStore(ctx context.Context, cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", cfg.BucketName)
	}

	MinioClient = client
	return &MinIOStore{client: client, bucket: cfg.BucketName}, nil
}

func (s *MinIOStore) Backend() string { return "minio" }

// Put 上传对象，返回 minio://<bucket>/<key> 形式的位置。
func (s *MinIOStore) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{}); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return minioScheme + s.bucket + "/" + key, nil
}

// Open 读取 Put 返回的位置。
func (s *MinIOStore) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, ok := parseMinIOLocation(location)
	if !ok {
		return nil, fmt.Errorf("invalid minio location %q", location)
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	// GetObject 是惰性的，Stat 才会暴露对象不存在
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, location)
		}
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}
	return obj, nil
}

// Remove 删除 Put 返回的位置对应的对象。
func (s *MinIOStore) Remove(ctx context.Context, location string) error {
	bucket, key, ok := parseMinIOLocation(location)
	if !ok {
		return fmt.Errorf("invalid minio location %q", location)
	}
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

func parseMinIOLocation(location string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(location, minioScheme)
	if !found {
		return "", "", false
	}
	bucket, key, ok = strings.Cut(rest, "/")
	return bucket, key, ok && bucket != "" && key != ""
}
