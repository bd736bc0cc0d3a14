// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
package tika

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"mcp-knowledge-go/internal/config"
)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{
		serverURL:  strings.TrimRight(cfg.ServerURL, "/"),
		httpClient: &http.Client{},
	}
}

// ExtractText 自动根据文件后缀推断 MIME 类型，并调用 Tika 提取纯文本。
func (c *Client) ExtractText(ctx context.Context, fileReader io.Reader, fileName string) (string, error) {
	body, err := c.put(ctx, fileReader, fileName, "text/plain")
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("读取 Tika 响应失败: %w", err)
	}
	return string(data), nil
}

// ExtractPages 请求 XHTML 输出，按 <div class="page"> 拆出每一页的文本。
// 返回切片的下标 i 对应第 i+1 页，空白页保留为空字符串。
func (c *Client) ExtractPages(ctx context.Context, fileReader io.Reader, fileName string) ([]string, error) {
	body, err := c.put(ctx, fileReader, fileName, "text/html")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	pages, err := ParsePages(body)
	if err != nil {
		return nil, fmt.Errorf("解析 Tika XHTML 失败: %w", err)
	}
	return pages, nil
}

func (c *Client) put(ctx context.Context, fileReader io.Reader, fileName, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", fileReader)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Content-Type", detectMimeType(fileName))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 Tika 失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(data))
	}
	return resp.Body, nil
}

// ParsePages 从 Tika 的 XHTML 输出中提取每页文本。
func ParsePages(r io.Reader) ([]string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var pages []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "page") {
			var sb strings.Builder
			collectText(n, &sb)
			pages = append(pages, sb.String())
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return pages, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

// collectText 拼接节点下的全部文本，块级元素之间补换行。
func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, sb)
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
			sb.WriteString("\n")
		}
	}
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
