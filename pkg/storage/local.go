package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore 把文件写到本地目录，location 即文件的绝对路径。
type LocalStore struct {
	root string
}

// NewLocalStore 创建本地存储，目录不存在时自动创建。
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		dir = "data/uploads"
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) Backend() string { return "local" }

// Put 先写临时文件再 rename，避免读到半截文件。
func (s *LocalStore) Put(_ context.Context, key string, r io.Reader, _ int64) (string, error) {
	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return dst, nil
}

func (s *LocalStore) Open(_ context.Context, location string) (io.ReadCloser, error) {
	f, err := os.Open(location)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, location)
	}
	return f, err
}

func (s *LocalStore) Remove(_ context.Context, location string) error {
	if err := os.Remove(location); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	// 清理空的 documents/<md5> 目录，非空时 Remove 失败，忽略即可
	_ = os.Remove(filepath.Dir(location))
	return nil
}
