package srv

import (
	"fmt"

	"github.com/quka-ai/knowledge-sync/pkg/ai"
	"github.com/quka-ai/knowledge-sync/pkg/ai/extract"
	"github.com/quka-ai/knowledge-sync/pkg/ai/jina"
	"github.com/quka-ai/knowledge-sync/pkg/ai/openai"
)

const (
	EMBEDDING_PROVIDER_OPENAI = "openai"
)

type AIConfig struct {
	Embedding EmbeddingConfig `toml:"embedding"`
	Reader    ReaderConfig    `toml:"reader"`
	Extract   ExtractConfig   `toml:"extract"`
}

type EmbeddingConfig struct {
	Provider   string `toml:"provider"`
	Token      string `toml:"token"`
	Endpoint   string `toml:"endpoint"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	// RateLimit 每秒请求数，0 表示不限制
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`
}

type ReaderConfig struct {
	Token    string `toml:"token"`
	Endpoint string `toml:"endpoint"`
}

// ExtractConfig points to a tika compatible server, local extraction handles plain text formats only.
type ExtractConfig struct {
	Endpoint string `toml:"endpoint"`
}

type AI struct {
	embedder   ai.Embedder
	embedModel string
	dimensions int
	reader     ai.Reader
	extractor  ai.Extractor
}

func (s *AI) Embedder() ai.Embedder {
	return s.embedder
}

func (s *AI) Dimensions() int {
	return s.dimensions
}

// Reader returns nil when no reader is configured.
func (s *AI) Reader() ai.Reader {
	return s.reader
}

func (s *AI) Extractor() ai.Extractor {
	return s.extractor
}

func SetupAI(cfg AIConfig) (*AI, error) {
	a := &AI{}

	switch cfg.Embedding.Provider {
	case EMBEDDING_PROVIDER_OPENAI, "":
		if cfg.Embedding.Token == "" {
			return nil, fmt.Errorf("embedding token is required")
		}
		driver := openai.New(cfg.Embedding.Token, cfg.Embedding.Endpoint, cfg.Embedding.Model, cfg.Embedding.Dimensions)
		a.embedder = driver
		a.embedModel = driver.Model()
		a.dimensions = driver.Dimensions()
	default:
		return nil, fmt.Errorf("unsupported embedding provider %s", cfg.Embedding.Provider)
	}

	if cfg.Reader.Token != "" {
		a.reader = jina.New(cfg.Reader.Token, cfg.Reader.Endpoint)
	}

	chain := extract.Chain{extract.Local{}}
	if cfg.Extract.Endpoint != "" {
		chain = append(chain, extract.NewRemote(cfg.Extract.Endpoint))
	}
	a.extractor = chain
	return a, nil
}

func ApplyAI(cfg AIConfig) ApplyFunc {
	return func(s *Srv) error {
		a, err := SetupAI(cfg)
		if err != nil {
			return err
		}
		s.ai = a
		return nil
	}
}
