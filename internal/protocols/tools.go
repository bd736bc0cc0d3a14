// Package protocols 为硬件协议知识库注册领域工具。
package protocols

import (
	"context"
	"encoding/json"

	"mcp-knowledge-go/internal/config"
	"mcp-knowledge-go/internal/mcpserver"
	"mcp-knowledge-go/internal/service"
)

const defaultMaxResults = 5

// Register 把协议领域的工具追加到能力表。
func Register(d *mcpserver.Dispatcher, query service.QueryService, categories []config.CategoryConfig) error {
	return d.Register(Tools(query, categories)...)
}

// CategoryNames 返回分类名，用于 protocol_type 的枚举与健康检查。
func CategoryNames(categories []config.CategoryConfig) []string {
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	return names
}

// Tools 返回协议领域工具：规格检索、协议对比、版本演进与兼容性分析。
func Tools(query service.QueryService, categories []config.CategoryConfig) []mcpserver.Tool {
	protocolTypes := append(CategoryNames(categories), "all")

	return []mcpserver.Tool{
		{
			Name:        "search_protocol_specs",
			Description: "Search protocol specifications and standards documents",
			InputSchema: objectSchema(map[string]any{
				"query": stringProp("Search query for protocol specifications"),
				"protocol_type": map[string]any{
					"type":        "string",
					"enum":        protocolTypes,
					"description": "Specific protocol type to search within",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"default":     defaultMaxResults,
					"description": "Maximum number of results to return",
				},
			}, "query"),
			Handler: func(ctx context.Context, args json.RawMessage) (mcpserver.ToolResult, error) {
				var in struct {
					Query        string `json:"query"`
					ProtocolType string `json:"protocol_type"`
					MaxResults   *int   `json:"max_results"`
				}
				if err := mcpserver.DecodeArgs(args, &in); err != nil {
					return mcpserver.ToolResult{}, err
				}
				if in.Query == "" {
					return mcpserver.ToolResult{}, mcpserver.MissingParam("query")
				}
				if in.ProtocolType == "" {
					in.ProtocolType = "all"
				}
				limit := defaultMaxResults
				if in.MaxResults != nil {
					limit = *in.MaxResults
				}
				results := query.Search(ctx, service.SearchRequest{
					Query:      in.Query,
					Category:   in.ProtocolType,
					Limit:      limit,
					PostFilter: true,
				})
				return mcpserver.TextResult(service.FormatSpecResults(in.Query, results)), nil
			},
		},
		{
			Name:        "compare_protocols",
			Description: "Compare features and specifications between different protocols",
			InputSchema: objectSchema(map[string]any{
				"protocol1": stringProp("First protocol to compare"),
				"protocol2": stringProp("Second protocol to compare"),
				"comparison_aspects": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Specific aspects to compare (e.g., speed, power, compatibility)",
				},
			}, "protocol1", "protocol2"),
			Handler: func(ctx context.Context, args json.RawMessage) (mcpserver.ToolResult, error) {
				var in struct {
					Protocol1 string   `json:"protocol1"`
					Protocol2 string   `json:"protocol2"`
					Aspects   []string `json:"comparison_aspects"`
				}
				if err := mcpserver.DecodeArgs(args, &in); err != nil {
					return mcpserver.ToolResult{}, err
				}
				if in.Protocol1 == "" {
					return mcpserver.ToolResult{}, mcpserver.MissingParam("protocol1")
				}
				if in.Protocol2 == "" {
					return mcpserver.ToolResult{}, mcpserver.MissingParam("protocol2")
				}
				c := query.Compare(ctx, in.Protocol1, in.Protocol2, in.Aspects)
				return mcpserver.TextResult(service.FormatComparison(c)), nil
			},
		},
		{
			Name:        "get_protocol_versions",
			Description: "Get version history and evolution of a specific protocol",
			InputSchema: objectSchema(map[string]any{
				"protocol": stringProp("Protocol name to get version information for"),
			}, "protocol"),
			Handler: func(ctx context.Context, args json.RawMessage) (mcpserver.ToolResult, error) {
				var in struct {
					Protocol string `json:"protocol"`
				}
				if err := mcpserver.DecodeArgs(args, &in); err != nil {
					return mcpserver.ToolResult{}, err
				}
				if in.Protocol == "" {
					return mcpserver.ToolResult{}, mcpserver.MissingParam("protocol")
				}
				results := query.VersionHistory(ctx, in.Protocol)
				return mcpserver.TextResult(service.FormatVersionHistory(in.Protocol, results)), nil
			},
		},
		{
			Name:        "analyze_compatibility",
			Description: "Analyze compatibility between protocol versions or different protocols",
			InputSchema: objectSchema(map[string]any{
				"source_protocol": stringProp("Source protocol or version"),
				"target_protocol": stringProp("Target protocol or version"),
			}, "source_protocol", "target_protocol"),
			Handler: func(ctx context.Context, args json.RawMessage) (mcpserver.ToolResult, error) {
				var in struct {
					Source string `json:"source_protocol"`
					Target string `json:"target_protocol"`
				}
				if err := mcpserver.DecodeArgs(args, &in); err != nil {
					return mcpserver.ToolResult{}, err
				}
				if in.Source == "" {
					return mcpserver.ToolResult{}, mcpserver.MissingParam("source_protocol")
				}
				if in.Target == "" {
					return mcpserver.ToolResult{}, mcpserver.MissingParam("target_protocol")
				}
				results := query.Compatibility(ctx, in.Source, in.Target)
				return mcpserver.TextResult(service.FormatCompatibility(in.Source, in.Target, results)), nil
			},
		},
	}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}
