package srv

import (
	"golang.org/x/time/rate"
)

type Srv struct {
	ai      *AI
	limiter *rate.Limiter
}

type ApplyFunc func(s *Srv) error

func SetupSrvs(opts ...ApplyFunc) (*Srv, error) {
	a := &Srv{}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (s *Srv) AI() *AI {
	return s.ai
}

// EmbeddingLimiter 限制向量化请求速率，未配置时为 nil
func (s *Srv) EmbeddingLimiter() *rate.Limiter {
	return s.limiter
}

// ApplyRateLimit allows rps embedding requests per second with the given burst.
func ApplyRateLimit(rps float64, burst int) ApplyFunc {
	return func(s *Srv) error {
		if rps <= 0 {
			return nil
		}
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// GetAIStatus 获取AI系统状态
func (s *Srv) GetAIStatus() map[string]interface{} {
	if s.ai == nil {
		return map[string]interface{}{
			"status": "not_initialized",
		}
	}

	return map[string]interface{}{
		"status":              "running",
		"embed_model":         s.ai.embedModel,
		"embed_dimensions":    s.ai.dimensions,
		"reader_available":    s.ai.reader != nil,
		"extractor_available": s.ai.extractor != nil,
	}
}
