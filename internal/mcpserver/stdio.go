package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewStdioServer 把能力表挂到官方 SDK 的 Server 上，供 stdio 传输使用。
func NewStdioServer(d *Dispatcher) (*mcp.Server, error) {
	info := d.Info()
	server := mcp.NewServer(&mcp.Implementation{Name: info.Name, Version: info.Version}, nil)

	for _, t := range d.Tools() {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, err
		}
		name := t.Name
		server.AddTool(&mcp.Tool{
			Name:        name,
			Description: t.Description,
			InputSchema: json.RawMessage(schema),
		}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args json.RawMessage
			if req.Params != nil {
				args = req.Params.Arguments
			}
			result, err := d.Call(ctx, name, args)
			var rpcErr *Error
			if errors.As(err, &rpcErr) {
				return nil, rpcErr
			}
			return toSDKResult(result), nil
		})
	}
	return server, nil
}

// RunStdio 在 stdin/stdout 上运行 MCP 服务，直到 ctx 取消或连接关闭。
func RunStdio(ctx context.Context, d *Dispatcher) error {
	server, err := NewStdioServer(d)
	if err != nil {
		return err
	}
	return server.Run(ctx, &mcp.StdioTransport{})
}

func toSDKResult(r ToolResult) *mcp.CallToolResult {
	content := make([]mcp.Content, 0, len(r.Content))
	for _, c := range r.Content {
		content = append(content, &mcp.TextContent{Text: c.Text})
	}
	return &mcp.CallToolResult{Content: content, IsError: r.IsError}
}
