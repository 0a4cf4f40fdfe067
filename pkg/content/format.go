// Package content turns content item variants into the canonical text that is
// shown to users and sent to the embedding provider.
package content

import (
	"strings"

	"github.com/quka-ai/knowledge-sync/pkg/types"
)

const (
	META_SOURCE              = "source"
	META_CONTENT_ID          = "content_id"
	META_KNOWLEDGE_SOURCE_ID = "knowledge_source_id"
)

type Formatted struct {
	Content  string         `json:"content"`
	Metadata types.Metadata `json:"metadata"`
}

// Format is pure: the same record always yields the same content and metadata.
func Format(record types.ContentRecord) Formatted {
	meta := types.Metadata{
		META_SOURCE: record.ContentType().String(),
	}

	var text string
	switch c := record.(type) {
	case types.TextContent:
		text = joinParts("\n\n", c.Title, c.Text)
		setIfNotEmpty(meta, "title", c.Title)
	case types.QAContent:
		text = "Q: " + strings.TrimSpace(c.Question) + "\nA: " + strings.TrimSpace(c.Answer)
		meta["question"] = strings.TrimSpace(c.Question)
	case types.WebsiteContent:
		head := joinParts("\n", c.Title, "URL: "+strings.TrimSpace(c.URL))
		text = joinParts("\n\n", head, c.Description, c.PageText)
		meta["url"] = strings.TrimSpace(c.URL)
		setIfNotEmpty(meta, "title", c.Title)
	case types.CatalogContent:
		var price string
		if strings.TrimSpace(c.Price) != "" {
			price = "Price: " + joinParts(" ", c.Price, c.Currency)
		}
		var category string
		if strings.TrimSpace(c.Category) != "" {
			category = "Category: " + strings.TrimSpace(c.Category)
		}
		head := joinParts("\n", "Product: "+strings.TrimSpace(c.Name), price, category)
		text = joinParts("\n\n", head, c.Description)
		meta["product_id"] = strings.TrimSpace(c.ProductID)
		meta["name"] = strings.TrimSpace(c.Name)
		setIfNotEmpty(meta, "category", c.Category)
	case types.FileContent:
		text = joinParts("\n\n", "File: "+strings.TrimSpace(c.FileName), c.ExtractedText)
		meta["file_name"] = strings.TrimSpace(c.FileName)
		setIfNotEmpty(meta, "blob_url", c.BlobURL)
		setIfNotEmpty(meta, "mime_type", c.MimeType)
	}

	return Formatted{
		Content:  text,
		Metadata: meta,
	}
}

// FormatItem formats a stored item and stamps its identifiers into the metadata.
func FormatItem(item *types.ContentItem) (Formatted, error) {
	record, err := item.Record()
	if err != nil {
		return Formatted{}, err
	}
	res := Format(record)
	res.Metadata[META_CONTENT_ID] = item.ID
	res.Metadata[META_KNOWLEDGE_SOURCE_ID] = item.KnowledgeSourceID
	return res, nil
}

func joinParts(sep string, parts ...string) string {
	var kept []string
	for _, v := range parts {
		if v = strings.TrimSpace(v); v != "" {
			kept = append(kept, v)
		}
	}
	return strings.Join(kept, sep)
}

func setIfNotEmpty(meta types.Metadata, key, val string) {
	if val = strings.TrimSpace(val); val != "" {
		meta[key] = val
	}
}
