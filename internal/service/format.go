package service

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"mcp-knowledge-go/internal/model"
)

const searchSnippetChars = 500

var titleCaser = cases.Title(language.Und)

// FormatSearchResults 渲染 search_knowledge 的输出，每个元素是一段文本。
func FormatSearchResults(query string, results []model.QueryResult) []string {
	if len(results) == 0 {
		return []string{fmt.Sprintf("No results found for query: '%s'", query)}
	}
	parts := make([]string, 0, len(results)+1)
	parts = append(parts, fmt.Sprintf("Found %d results for query: '%s'\n", len(results), query))
	for i, r := range results {
		location := ""
		if page := r.Page(); page > 0 {
			location = fmt.Sprintf(" (Page %d)", page)
		}
		parts = append(parts, fmt.Sprintf("\n**Result %d** (Similarity: %.2f)\nSource: %s%s\nContent: %s...\n",
			i+1, r.Score, r.Source(), location, Snippet(r.Text, searchSnippetChars)))
	}
	return parts
}

// FormatDocumentList 渲染 list_documents 的输出。
func FormatDocumentList(domain string, docs []model.Document) []string {
	if len(docs) == 0 {
		return []string{fmt.Sprintf("No documents found in %s knowledge base", domain)}
	}
	parts := make([]string, 0, len(docs)+1)
	parts = append(parts, fmt.Sprintf("Found %d documents in %s knowledge base:\n", len(docs), domain))
	for _, d := range docs {
		parts = append(parts, fmt.Sprintf("• %s - Status: %s - Chunks: %d - Upload: %s\n",
			d.FileName, d.Status, d.ChunkCount, model.LocalTime(d.UploadDate).String()))
	}
	return parts
}

// FormatSpecResults 渲染 search_protocol_specs 的输出。
func FormatSpecResults(query string, results []model.QueryResult) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, fmt.Sprintf("**%s** (Score: %.3f)\n%s", r.FileName(), r.Score, r.Text))
	}
	return fmt.Sprintf("Found %d protocol specification results for '%s':\n\n", len(results), query) +
		strings.Join(blocks, "\n\n")
}

// FormatComparison 渲染对比结果。
func FormatComparison(c Comparison) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Protocol Comparison: %s vs %s\n\n", c.First, c.Second)
	for _, a := range c.Aspects {
		fmt.Fprintf(&b, "## %s\n\n", titleCaser.String(a.Aspect))
		for _, e := range a.Entries {
			fmt.Fprintf(&b, "### %s\n%s\n\n", e.Entity, e.Text)
		}
	}
	return b.String()
}

// FormatVersionHistory 渲染版本演进结果。
func FormatVersionHistory(entity string, results []model.QueryResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Version History and Evolution\n\n", strings.ToUpper(entity))
	for i, r := range results {
		fmt.Fprintf(&b, "## Source %d: %s\n%s\n\n", i+1, r.FileName(), r.Text)
	}
	return b.String()
}

// FormatCompatibility 渲染兼容性分析结果。
func FormatCompatibility(source, target string, results []model.QueryResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Compatibility Analysis: %s ↔ %s\n\n", source, target)
	if len(results) == 0 {
		b.WriteString("## No specific compatibility information found\n\n")
		b.WriteString("Please check official specifications or contact protocol vendors for detailed compatibility information.\n")
		return b.String()
	}
	b.WriteString("## Compatibility Information Found:\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "### Reference %d (%s)\n%s\n\n", i+1, r.FileName(), r.Text)
	}
	return b.String()
}
