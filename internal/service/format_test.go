package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-knowledge-go/internal/model"
)

func TestFormatSearchResults(t *testing.T) {
	assert.Equal(t, []string{"No results found for query: 'lanes'"}, FormatSearchResults("lanes", nil))

	r := model.QueryResult{Score: 0.876, Text: strings.Repeat("a", 600), Metadata: model.Metadata{
		model.MetaKeySource: model.StringValue("/data/pcie.pdf"),
		model.MetaKeyPage:   model.IntValue(3),
	}}
	noPage := model.QueryResult{Score: 0.5, Text: "short"}
	parts := FormatSearchResults("lanes", []model.QueryResult{r, noPage})
	require.Len(t, parts, 3)
	assert.Equal(t, "Found 2 results for query: 'lanes'\n", parts[0])
	assert.Equal(t, "\n**Result 1** (Similarity: 0.88)\nSource: /data/pcie.pdf (Page 3)\nContent: "+strings.Repeat("a", 500)+"...\n", parts[1])
	assert.Equal(t, "\n**Result 2** (Similarity: 0.50)\nSource: Unknown\nContent: short...\n", parts[2])
}

func TestFormatDocumentList(t *testing.T) {
	assert.Equal(t, []string{"No documents found in protocols knowledge base"}, FormatDocumentList("protocols", nil))

	docs := []model.Document{{FileName: "a.pdf", Status: model.StatusCompleted, ChunkCount: 4, UploadDate: time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)}}
	parts := FormatDocumentList("protocols", docs)
	assert.Equal(t, "Found 1 documents in protocols knowledge base:\n", parts[0])
	assert.Equal(t, "• a.pdf - Status: completed - Chunks: 4 - Upload: 2025-03-01 08:30:00\n", parts[1])
}

func TestFormatSpecResults(t *testing.T) {
	rs := []model.QueryResult{
		{Score: 0.91234, Text: "first", Metadata: model.Metadata{model.MetaKeyFileName: model.StringValue("a.pdf")}},
		{Score: 0.5, Text: "second", Metadata: model.Metadata{model.MetaKeyFileName: model.StringValue("b.pdf")}},
	}
	assert.Equal(t,
		"Found 2 protocol specification results for 'q':\n\n**a.pdf** (Score: 0.912)\nfirst\n\n**b.pdf** (Score: 0.500)\nsecond",
		FormatSpecResults("q", rs))
	assert.Equal(t, "Found 0 protocol specification results for 'q':\n\n", FormatSpecResults("q", nil))
}

func TestFormatVersionHistory(t *testing.T) {
	rs := []model.QueryResult{{Text: "Gen5", Metadata: model.Metadata{model.MetaKeyFileName: model.StringValue("pcie5.pdf")}}}
	assert.Equal(t, "# PCIE Version History and Evolution\n\n## Source 1: pcie5.pdf\nGen5\n\n", FormatVersionHistory("pcie", rs))
}

func TestFormatCompatibility(t *testing.T) {
	rs := []model.QueryResult{{Text: "works", Metadata: model.Metadata{model.MetaKeyFileName: model.StringValue("usb.pdf")}}}
	assert.Equal(t,
		"# Compatibility Analysis: usb3 ↔ usb4\n\n## Compatibility Information Found:\n\n### Reference 1 (usb.pdf)\nworks\n\n",
		FormatCompatibility("usb3", "usb4", rs))
}

func TestFormatComparison_TitleCasesAspect(t *testing.T) {
	c := Comparison{First: "a", Second: "b", Aspects: []AspectComparison{{
		Aspect:  "link SPEED",
		Entries: []AspectEntry{{Entity: "a", Text: "x"}, {Entity: "b", Text: "y"}},
	}}}
	assert.Equal(t, "# Protocol Comparison: a vs b\n\n## Link Speed\n\n### a\nx\n\n### b\ny\n\n", FormatComparison(c))
}
