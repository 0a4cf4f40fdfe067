package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

type ContentType string

const (
	CONTENT_TYPE_TEXT    ContentType = "text"
	CONTENT_TYPE_QA      ContentType = "qa"
	CONTENT_TYPE_WEBSITE ContentType = "website"
	CONTENT_TYPE_CATALOG ContentType = "catalog"
	CONTENT_TYPE_FILE    ContentType = "file"
)

func (t ContentType) String() string {
	return string(t)
}

func (t ContentType) Valid() bool {
	switch t {
	case CONTENT_TYPE_TEXT, CONTENT_TYPE_QA, CONTENT_TYPE_WEBSITE, CONTENT_TYPE_CATALOG, CONTENT_TYPE_FILE:
		return true
	}
	return false
}

func StringToContentType(str string) ContentType {
	t := ContentType(strings.ToLower(strings.TrimSpace(str)))
	if !t.Valid() {
		return ""
	}
	return t
}

// ErrInvalidContent is wrapped by every ContentRecord.Validate failure.
var ErrInvalidContent = errors.New("invalid content")

func invalidField(t ContentType, field string) error {
	return fmt.Errorf("%w: %s requires %s", ErrInvalidContent, t, field)
}

// ContentRecord is one variant of the content item union.
type ContentRecord interface {
	ContentType() ContentType
	Validate() error
}

type TextContent struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

func (TextContent) ContentType() ContentType { return CONTENT_TYPE_TEXT }

func (c TextContent) Validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return invalidField(CONTENT_TYPE_TEXT, "text")
	}
	return nil
}

type QAContent struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (QAContent) ContentType() ContentType { return CONTENT_TYPE_QA }

func (c QAContent) Validate() error {
	if strings.TrimSpace(c.Question) == "" {
		return invalidField(CONTENT_TYPE_QA, "question")
	}
	if strings.TrimSpace(c.Answer) == "" {
		return invalidField(CONTENT_TYPE_QA, "answer")
	}
	return nil
}

type WebsiteContent struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	// 抓取后的正文
	PageText string `json:"page_text,omitempty"`
}

func (WebsiteContent) ContentType() ContentType { return CONTENT_TYPE_WEBSITE }

func (c WebsiteContent) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return invalidField(CONTENT_TYPE_WEBSITE, "url")
	}
	return nil
}

type CatalogContent struct {
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price,omitempty"`
	Currency    string `json:"currency,omitempty"`
	Category    string `json:"category,omitempty"`
}

func (CatalogContent) ContentType() ContentType { return CONTENT_TYPE_CATALOG }

func (c CatalogContent) Validate() error {
	if strings.TrimSpace(c.ProductID) == "" {
		return invalidField(CONTENT_TYPE_CATALOG, "product_id")
	}
	if strings.TrimSpace(c.Name) == "" {
		return invalidField(CONTENT_TYPE_CATALOG, "name")
	}
	return nil
}

type FileContent struct {
	FileName string `json:"file_name"`
	BlobURL  string `json:"blob_url"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
	// ExtractedText is the cached extraction result, filled by the embedding worker.
	ExtractedText string `json:"-"`
}

func (FileContent) ContentType() ContentType { return CONTENT_TYPE_FILE }

func (c FileContent) Validate() error {
	if strings.TrimSpace(c.FileName) == "" {
		return invalidField(CONTENT_TYPE_FILE, "file_name")
	}
	return nil
}

// DecodeContentRecord builds the concrete record for a stored payload.
func DecodeContentRecord(t ContentType, raw json.RawMessage) (ContentRecord, error) {
	var (
		record ContentRecord
		err    error
	)
	switch t {
	case CONTENT_TYPE_TEXT:
		var c TextContent
		err = json.Unmarshal(raw, &c)
		record = c
	case CONTENT_TYPE_QA:
		var c QAContent
		err = json.Unmarshal(raw, &c)
		record = c
	case CONTENT_TYPE_WEBSITE:
		var c WebsiteContent
		err = json.Unmarshal(raw, &c)
		record = c
	case CONTENT_TYPE_CATALOG:
		var c CatalogContent
		err = json.Unmarshal(raw, &c)
		record = c
	case CONTENT_TYPE_FILE:
		var c FileContent
		err = json.Unmarshal(raw, &c)
		record = c
	default:
		return nil, fmt.Errorf("%w: unknown content type %q", ErrInvalidContent, t)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s payload, %s", ErrInvalidContent, t, err.Error())
	}
	return record, nil
}

// ContentItem is one unit of knowledge owned by a knowledge source.
type ContentItem struct {
	ID                string          `json:"id" db:"id"`
	KnowledgeSourceID string          `json:"knowledge_source_id" db:"knowledge_source_id"`
	ContentType       ContentType     `json:"content_type" db:"content_type"`
	Payload           json.RawMessage `json:"payload" db:"payload"`
	BlobURL           string          `json:"blob_url,omitempty" db:"blob_url"`
	ExtractedText     string          `json:"-" db:"extracted_text"`
	CreatedAt         int64           `json:"created_at" db:"created_at"`
	UpdatedAt         int64           `json:"updated_at" db:"updated_at"`
}

// Record decodes the payload. File records get the cached extraction attached.
func (c *ContentItem) Record() (ContentRecord, error) {
	record, err := DecodeContentRecord(c.ContentType, c.Payload)
	if err != nil {
		return nil, err
	}
	if file, ok := record.(FileContent); ok {
		file.ExtractedText = c.ExtractedText
		if file.BlobURL == "" {
			file.BlobURL = c.BlobURL
		}
		record = file
	}
	return record, nil
}

// SetRecord stores the record as the item payload.
func (c *ContentItem) SetRecord(record ContentRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	c.ContentType = record.ContentType()
	c.Payload = raw
	if file, ok := record.(FileContent); ok {
		c.BlobURL = file.BlobURL
	}
	return nil
}

type ListContentItemOptions struct {
	KnowledgeSourceID string
	ContentType       ContentType
	IDs               []string
}

func (opts ListContentItemOptions) Apply(query *sq.SelectBuilder) {
	if opts.KnowledgeSourceID != "" {
		*query = query.Where(sq.Eq{"knowledge_source_id": opts.KnowledgeSourceID})
	}
	if opts.ContentType != "" {
		*query = query.Where(sq.Eq{"content_type": opts.ContentType})
	}
	if len(opts.IDs) > 0 {
		*query = query.Where(sq.Eq{"id": opts.IDs})
	}
}
