package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"mcp-knowledge-go/pkg/log"
)

// ToolHandler 执行一个工具。返回 *Error 表示协议层错误，其它 error 作为 isError 结果返回。
type ToolHandler func(ctx context.Context, args json.RawMessage) (ToolResult, error)

// Tool 是能力表中的一项。
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     ToolHandler
}

type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Dispatcher 持有工具能力表并处理 JSON-RPC 请求，HTTP 与 stdio 共用。
type Dispatcher struct {
	info ServerInfo

	mu    sync.RWMutex
	tools []Tool
	index map[string]int
}

// NewDispatcher 创建一个空能力表的分发器。
func NewDispatcher(domain, version string) *Dispatcher {
	return &Dispatcher{
		info: ServerInfo{
			Name:        fmt.Sprintf("mcp-%s-server", domain),
			Version:     version,
			Description: fmt.Sprintf("Knowledge server for %s domain", domain),
		},
		index: map[string]int{},
	}
}

// Info 返回服务信息。
func (d *Dispatcher) Info() ServerInfo { return d.info }

// Register 追加工具，重名时返回错误。
func (d *Dispatcher) Register(tools ...Tool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range tools {
		if t.Name == "" || t.Handler == nil {
			return fmt.Errorf("tool %q: name and handler are required", t.Name)
		}
		if _, exists := d.index[t.Name]; exists {
			return fmt.Errorf("tool %q already registered", t.Name)
		}
		d.index[t.Name] = len(d.tools)
		d.tools = append(d.tools, t)
	}
	return nil
}

// Tools 按注册顺序返回能力表。
func (d *Dispatcher) Tools() []Tool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Tool(nil), d.tools...)
}

// Initialize 返回 initialize 的结果。
func (d *Dispatcher) Initialize() InitializeResult {
	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]any{
			"tools":        map[string]any{"listChanged": false},
			"experimental": map[string]any{"http": true, "sse": true},
		},
		ServerInfo: d.info,
	}
}

// InitializeMessage 返回 id 为 "init" 的 initialize 响应，SSE 建连时推送。
func (d *Dispatcher) InitializeMessage() *Response {
	return resultResponse(json.RawMessage(`"init"`), d.Initialize())
}

// Handle 处理一条原始 JSON-RPC 消息。通知返回 nil。
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) *Response {
	trimmed := bytes.TrimSpace(raw)
	if !json.Valid(trimmed) {
		return errorResponse(nil, CodeParseError, "Parse error")
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errorResponse(nil, CodeInvalidRequest, "Invalid Request")
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return errorResponse(nil, CodeInvalidRequest, "Invalid Request")
	}
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, CodeInvalidRequest, "Invalid Request")
	}
	return d.dispatch(ctx, req)
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[MCP] 处理方法 %s 时 panic: %v", req.Method, r)
			resp = errorResponse(req.ID, CodeInternalError, fmt.Sprintf("Internal error: %v", r))
		}
	}()

	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, d.Initialize())
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return resultResponse(req.ID, map[string]any{"tools": d.describe()})
	case "tools/call":
		return d.callTool(ctx, req)
	}
	if req.IsNotification() && strings.HasPrefix(req.Method, "notifications/") {
		return nil
	}
	return errorResponse(req.ID, CodeMethodNotFound, "Method not found")
}

func (d *Dispatcher) describe() []toolDescriptor {
	tools := d.Tools()
	out := make([]toolDescriptor, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolDescriptor{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return out
}

func (d *Dispatcher) callTool(ctx context.Context, req Request) *Response {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "Invalid params")
		}
	}

	result, err := d.Call(ctx, params.Name, params.Arguments)
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
	}
	return resultResponse(req.ID, result)
}

// Call 执行指定工具。工具不存在返回 -32601，参数错误返回 -32602；
// 工具内部的其它错误转换为 isError 结果。
func (d *Dispatcher) Call(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	d.mu.RLock()
	i, ok := d.index[name]
	var tool Tool
	if ok {
		tool = d.tools[i]
	}
	d.mu.RUnlock()
	if !ok {
		return ToolResult{}, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found", name)}
	}

	if len(bytes.TrimSpace(args)) == 0 || bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
		args = json.RawMessage("{}")
	}
	log.Infof("[MCP] 调用工具 %s", name)
	result, err := tool.Handler(ctx, args)
	if err == nil {
		return result, nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return ToolResult{}, rpcErr
	}
	log.Errorf("[MCP] 工具 %s 执行失败: %v", name, err)
	res := TextResult(fmt.Sprintf("Error in tool %s: %v", name, err))
	res.IsError = true
	return res, nil
}

// DecodeArgs 把工具参数解码到 v，格式错误时返回 -32602。
func DecodeArgs(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return InvalidParams("Invalid arguments: %v", err)
	}
	return nil
}
