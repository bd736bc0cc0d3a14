package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"mcp-knowledge-go/internal/model"
	"mcp-knowledge-go/internal/service"
)

const defaultLimit = 5

// KnowledgeTools 返回每个知识库都提供的基础工具：search_knowledge 与 list_documents。
func KnowledgeTools(domain string, query service.QueryService, docs service.DocumentService) []Tool {
	return []Tool{
		{
			Name:        "search_knowledge",
			Description: fmt.Sprintf("Search the %s knowledge base", domain),
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "Search query"},
					"limit": map[string]any{"type": "integer", "description": "Maximum number of results", "default": defaultLimit},
				},
				"required": []string{"query"},
			},
			Handler: func(ctx context.Context, args json.RawMessage) (ToolResult, error) {
				var in struct {
					Query string `json:"query"`
					Limit *int   `json:"limit"`
				}
				if err := DecodeArgs(args, &in); err != nil {
					return ToolResult{}, err
				}
				if in.Query == "" {
					return ToolResult{}, MissingParam("query")
				}
				limit := defaultLimit
				if in.Limit != nil {
					limit = *in.Limit
				}
				results := query.Search(ctx, service.SearchRequest{Query: in.Query, Limit: limit})
				return TextResult(service.FormatSearchResults(in.Query, results)...), nil
			},
		},
		{
			Name:        "list_documents",
			Description: fmt.Sprintf("List documents in the %s knowledge base", domain),
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"status": map[string]any{"type": "string", "description": "Filter by status"},
				},
			},
			Handler: func(ctx context.Context, args json.RawMessage) (ToolResult, error) {
				var in struct {
					Status string `json:"status"`
				}
				if err := DecodeArgs(args, &in); err != nil {
					return ToolResult{}, err
				}
				list, err := docs.List(ctx, domain, model.DocumentStatus(in.Status))
				if err != nil {
					return ToolResult{}, err
				}
				return TextResult(service.FormatDocumentList(domain, list)...), nil
			},
		},
	}
}
