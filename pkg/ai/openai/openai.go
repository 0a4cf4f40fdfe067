package openai

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/quka-ai/knowledge-sync/pkg/ai"
)

const (
	NAME = "openai"

	DEFAULT_DIMENSIONS = 1024
	// 单次请求最多携带的文本条数
	batchMax = 6
)

type Driver struct {
	client     *openai.Client
	model      string
	dimensions int
}

func NewClient(token, proxy string) *openai.Client {
	cfg := openai.DefaultConfig(token)
	if proxy != "" {
		cfg.BaseURL = proxy
	}

	return openai.NewClientWithConfig(cfg)
}

func New(token, proxy, model string, dimensions int) *Driver {
	if model == "" {
		model = string(openai.LargeEmbedding3)
	}
	if dimensions <= 0 {
		dimensions = DEFAULT_DIMENSIONS
	}

	return &Driver{
		client:     NewClient(token, proxy),
		model:      model,
		dimensions: dimensions,
	}
}

func (s *Driver) Dimensions() int {
	return s.dimensions
}

func (s *Driver) Model() string {
	return s.model
}

func (s *Driver) embedding(ctx context.Context, content []string) (ai.EmbeddingResult, error) {
	slog.Debug("Embedding", slog.String("driver", NAME), slog.Int("inputs", len(content)))
	queryReq := openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(s.model),
		Dimensions: s.dimensions,
	}

	r := ai.EmbeddingResult{
		Model: s.model,
		Usage: &openai.Usage{},
	}
	for start := 0; start < len(content); start += batchMax {
		end := min(start+batchMax, len(content))
		queryReq.Input = content[start:end]

		resp, err := s.client.CreateEmbeddings(ctx, queryReq)
		if err != nil {
			return r, fmt.Errorf("Error creating embedding: %w", err)
		}
		for _, v := range resp.Data {
			r.Data = append(r.Data, v.Embedding)
		}

		r.Usage.PromptTokens += resp.Usage.PromptTokens
		r.Usage.TotalTokens += resp.Usage.TotalTokens
		if resp.Model != "" {
			r.Model = string(resp.Model)
		}
	}

	if len(r.Data) != len(content) {
		return r, fmt.Errorf("Error creating embedding: got %d vectors for %d inputs", len(r.Data), len(content))
	}
	return r, nil
}

func (s *Driver) EmbeddingForQuery(ctx context.Context, content []string) (ai.EmbeddingResult, error) {
	return s.embedding(ctx, content)
}

// EmbeddingForDocument ignores the title, documents already carry it in their canonical text
func (s *Driver) EmbeddingForDocument(ctx context.Context, title string, content []string) (ai.EmbeddingResult, error) {
	return s.embedding(ctx, content)
}
