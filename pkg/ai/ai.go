package ai

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"
)

const (
	MODEL_BASE_LANGUAGE_EN = "en"
	MODEL_BASE_LANGUAGE_CN = "zh-CN"
)

// ErrUnsupportedMimeType is returned by extractors for content they cannot read.
var ErrUnsupportedMimeType = errors.New("unsupported mime type")

type EmbeddingResult struct {
	Model string
	Usage *openai.Usage
	Data  [][]float32
}

// Embedder turns texts into fixed length vectors, one per input.
type Embedder interface {
	EmbeddingForQuery(ctx context.Context, content []string) (EmbeddingResult, error)
	EmbeddingForDocument(ctx context.Context, title string, content []string) (EmbeddingResult, error)
}

// Extractor reads plain text out of a binary document.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
}

type ReaderResult struct {
	Warning     string `json:"warning"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Url         string `json:"url"`
	Content     string `json:"content"`
	Usage       struct {
		Tokens int `json:"tokens"`
	} `json:"usage"`
}

// Reader crawls a web page into text.
type Reader interface {
	Reader(ctx context.Context, endpoint string) (*ReaderResult, error)
}
