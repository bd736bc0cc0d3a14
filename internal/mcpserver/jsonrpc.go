// Package mcpserver 实现 MCP 的 JSON-RPC 2.0 协议面以及工具能力表。
//
// HTTP 的 /mcp 与 /mcp/sse 使用本包自己的信封编解码，不走 go-sdk 的
// mcp.NewStreamableHTTPHandler / mcp.NewSSEHandler：客户端按 2025-03-26 版本
// 直接 POST 单条请求，SSE 连接建立后要先推送 id 为 "init" 的 initialize 结果，
// 再推送文档处理事件和心跳，SDK 的处理器不产生这些消息。
// stdio 传输使用 go-sdk，见 NewStdioServer。
package mcpserver

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion 是 initialize 返回的协议版本。
const ProtocolVersion = "2025-03-26"

// JSON-RPC 错误码。
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Error 是 JSON-RPC 错误对象，同时实现 error。
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// InvalidParams 构造 -32602 错误。
func InvalidParams(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

// MissingParam 构造缺少必填参数的错误。
func MissingParam(name string) *Error {
	return InvalidParams("Missing required parameter '%s'", name)
}

// Request 是 JSON-RPC 请求。ID 缺失表示通知。
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification 判断请求是否为通知（没有 id）。
func (r Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response 是 JSON-RPC 响应，Result 与 Error 只会有一个。
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

var nullID = json.RawMessage("null")

func resultResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: normalizeID(id), Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{JSONRPC: "2.0", ID: normalizeID(id), Error: &Error{Code: code, Message: message}}
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return nullID
	}
	return id
}

// Content 是工具输出中的一段内容。
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult 是 tools/call 的结果。
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// TextResult 把若干段文本包装成工具结果。
func TextResult(parts ...string) ToolResult {
	content := make([]Content, 0, len(parts))
	for _, p := range parts {
		content = append(content, Content{Type: "text", Text: p})
	}
	return ToolResult{Content: content}
}

// ServerInfo 是 initialize 返回的服务信息。
type ServerInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// InitializeResult 是 initialize 方法的结果。
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}
