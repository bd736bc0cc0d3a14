// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateDocument 同样内容哈希的文档已经登记过。
	ErrDuplicateDocument = errors.New("document already exists")
	// ErrDocumentNotFound 指定 ID 的文档不存在。
	ErrDocumentNotFound = errors.New("document not found")
)

// CatalogError 包装目录库底层存储的错误。
type CatalogError struct {
	Op  string
	Err error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

func catalogErr(op string, err error) error {
	return &CatalogError{Op: op, Err: err}
}
