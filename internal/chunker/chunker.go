// Package chunker 把原始文档切分成可检索的分块。
package chunker

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"mcp-knowledge-go/internal/model"
	"mcp-knowledge-go/pkg/log"
)

// Extractor 是分块器依赖的文本抽取服务，由 tika.Client 实现。
type Extractor interface {
	ExtractPages(ctx context.Context, r io.Reader, fileName string) ([]string, error)
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

type policy int

const (
	policyNone policy = iota
	policyPages
	policyParagraphs
	policyMarkup
)

var policies = map[string]policy{
	".pdf":  policyPages,
	".txt":  policyParagraphs,
	".md":   policyParagraphs,
	".html": policyMarkup,
	".htm":  policyMarkup,
	".docx": policyMarkup,
}

// Supported 判断扩展名是否有对应的分块策略。
func Supported(fileName string) bool {
	return policies[strings.ToLower(filepath.Ext(fileName))] != policyNone
}

// Chunker 根据文件格式选择分块策略。
type Chunker struct {
	extractor Extractor
}

// New 创建分块器，extractor 为 nil 时只能处理纯文本格式。
func New(extractor Extractor) *Chunker {
	return &Chunker{extractor: extractor}
}

// Chunk 读取 r 中的字节并按 fileName 的扩展名切分。
// 不支持的格式返回空结果而不是错误。
func (c *Chunker) Chunk(ctx context.Context, source string, r io.Reader, fileName string) ([]model.ChunkDraft, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch policies[ext] {
	case policyPages:
		if c.extractor == nil {
			return nil, fmt.Errorf("没有可用的文本抽取服务, 无法处理 %s", ext)
		}
		pages, err := c.extractor.ExtractPages(ctx, r, fileName)
		if err != nil {
			return nil, fmt.Errorf("按页抽取文本失败: %w", err)
		}
		return PageDrafts(source, pages), nil

	case policyParagraphs:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("读取文本失败: %w", err)
		}
		return SplitParagraphs(source, string(data)), nil

	case policyMarkup:
		if c.extractor == nil {
			return nil, fmt.Errorf("没有可用的文本抽取服务, 无法处理 %s", ext)
		}
		text, err := c.extractor.ExtractText(ctx, r, fileName)
		if err != nil {
			return nil, fmt.Errorf("抽取文本失败: %w", err)
		}
		return SplitParagraphs(source, text), nil
	}

	log.Warnf("[Chunker] 不支持的文件格式: %s (%s)", ext, fileName)
	return []model.ChunkDraft{}, nil
}

// PageDrafts 每个非空页生成一个分块，页码从 1 开始。
func PageDrafts(source string, pages []string) []model.ChunkDraft {
	drafts := make([]model.ChunkDraft, 0, len(pages))
	for i, page := range pages {
		text := strings.TrimSpace(page)
		if text == "" {
			continue
		}
		drafts = append(drafts, model.ChunkDraft{
			Text:   text,
			Kind:   model.ChunkPage,
			Source: source,
			Page:   i + 1,
		})
	}
	return drafts
}

// SplitParagraphs 以空行切分文本，序号按保留下来的段落从 1 计数。
func SplitParagraphs(source, text string) []model.ChunkDraft {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	drafts := []model.ChunkDraft{}
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		drafts = append(drafts, model.ChunkDraft{
			Text:   para,
			Kind:   model.ChunkParagraph,
			Source: source,
			Seq:    len(drafts) + 1,
		})
	}
	return drafts
}
