// Package storage 负责上传文件的持久化，支持 MinIO 与本地目录两种后端。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"mcp-knowledge-go/internal/config"
)

// ErrObjectNotFound 表示 location 对应的对象不存在。
var ErrObjectNotFound = errors.New("storage: object not found")

// Store 保存并读取上传的原始字节。Put 返回的 location 会写入目录表，之后交给 Open 读取。
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) (string, error)
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	// Remove 删除对象，对象不存在时不报错。
	Remove(ctx context.Context, location string) error
	Backend() string
}

// ObjectKey 返回上传文件的对象键：documents/<md5>/<filename>。
func ObjectKey(contentHash, fileName string) string {
	return path.Join("documents", contentHash, path.Base(fileName))
}

// New 根据配置创建对应的存储后端。
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "minio":
		return NewMinIOStore(ctx, cfg.MinIO)
	case "local", "":
		return NewLocalStore(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
