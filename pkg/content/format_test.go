package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quka-ai/knowledge-sync/pkg/types"
)

func TestFormatQA(t *testing.T) {
	res := Format(types.QAContent{Question: "What are your hours?", Answer: "9 to 5"})

	assert.Equal(t, "Q: What are your hours?\nA: 9 to 5", res.Content)
	assert.Equal(t, "qa", res.Metadata[META_SOURCE])
	assert.Equal(t, "What are your hours?", res.Metadata["question"])
}

func TestFormatIsDeterministic(t *testing.T) {
	record := types.CatalogContent{
		ProductID:   "sku-1",
		Name:        "Desk lamp",
		Description: "Warm light, dimmable.",
		Price:       "19.90",
		Currency:    "EUR",
		Category:    "lighting",
	}

	first := Format(record)
	second := Format(record)
	assert.Equal(t, first, second)
	assert.Equal(t, "Product: Desk lamp\nPrice: 19.90 EUR\nCategory: lighting\n\nWarm light, dimmable.", first.Content)
	assert.Equal(t, "sku-1", first.Metadata["product_id"])
}

func TestFormatVariants(t *testing.T) {
	cases := []struct {
		name    string
		record  types.ContentRecord
		content string
		source  string
	}{
		{
			name:    "text without title",
			record:  types.TextContent{Text: "  plain body "},
			content: "plain body",
			source:  "text",
		},
		{
			name:    "text with title",
			record:  types.TextContent{Title: "Refunds", Text: "30 days"},
			content: "Refunds\n\n30 days",
			source:  "text",
		},
		{
			name:    "website",
			record:  types.WebsiteContent{URL: "https://example.com", Title: "Example", PageText: "hello"},
			content: "Example\nURL: https://example.com\n\nhello",
			source:  "website",
		},
		{
			name:    "file before extraction",
			record:  types.FileContent{FileName: "menu.pdf", BlobURL: "https://bucket/menu.pdf"},
			content: "File: menu.pdf",
			source:  "file",
		},
		{
			name:    "file after extraction",
			record:  types.FileContent{FileName: "menu.pdf", ExtractedText: "soup of the day"},
			content: "File: menu.pdf\n\nsoup of the day",
			source:  "file",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res := Format(c.record)
			assert.Equal(t, c.content, res.Content)
			assert.Equal(t, c.source, res.Metadata[META_SOURCE])
		})
	}
}

func TestFormatItem(t *testing.T) {
	item := &types.ContentItem{ID: "c1", KnowledgeSourceID: "s1"}
	require.NoError(t, item.SetRecord(types.FileContent{FileName: "a.txt", BlobURL: "https://bucket/a.txt"}))
	item.ExtractedText = "cached"

	res, err := FormatItem(item)
	require.NoError(t, err)
	assert.Equal(t, "File: a.txt\n\ncached", res.Content)
	assert.Equal(t, "c1", res.Metadata[META_CONTENT_ID])
	assert.Equal(t, "s1", res.Metadata[META_KNOWLEDGE_SOURCE_ID])
	assert.Equal(t, "https://bucket/a.txt", res.Metadata["blob_url"])
}
