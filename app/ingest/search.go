package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/samber/lo"

	"github.com/quka-ai/knowledge-sync/pkg/types"
)

type SearchOptions struct {
	TopK         int
	Threshold    float64
	ContentTypes []types.ContentType
}

type Searcher struct {
	deps Deps
	opts Options
}

// Search embeds query and returns at most MaxTopK matches above the threshold,
// most similar first. No match is not an error.
func (s *Searcher) Search(ctx context.Context, sourceIDs []string, query string, opts SearchOptions) (matches []types.RankedMatch, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		} else if len(matches) == 0 {
			status = "empty"
		}
		s.deps.Metrics.ObserveSearch(status, time.Since(start))
	}()

	sourceIDs = lo.Uniq(lo.Compact(sourceIDs))
	if len(sourceIDs) == 0 {
		return nil, validationError("at least one knowledge source is required")
	}
	if strings.TrimSpace(query) == "" {
		return nil, validationError("query is empty")
	}
	for _, t := range opts.ContentTypes {
		if !t.Valid() {
			return nil, validationError("unknown content type %q", t)
		}
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = s.opts.SearchTopK
	}
	if s.opts.MaxTopK > 0 && topK > s.opts.MaxTopK {
		topK = s.opts.MaxTopK
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = s.opts.Threshold
	}

	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	stored, err := s.deps.Vectors.Dimensions(ctx, sourceIDs)
	if err != nil {
		return nil, classify("vector dimensions", err)
	}
	if stored != 0 && stored != len(vector) {
		slog.Error("query and stored embeddings disagree on dimensions, check the embedding model configuration",
			slog.Int("query", len(vector)), slog.Int("stored", stored), slog.Any("knowledge_source_ids", sourceIDs))
		return nil, fmt.Errorf("%w: query has %d dimensions, stored vectors have %d", ErrConfiguration, len(vector), stored)
	}

	match := types.MatchOptions{
		KnowledgeSourceIDs: sourceIDs,
		ContentTypes:       opts.ContentTypes,
		Threshold:          threshold,
		Limit:              uint64(topK),
	}
	matches, err = s.match(ctx, vector, match)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 && s.opts.Diagnostics && s.opts.DiagnoseFrom < threshold {
		s.diagnose(ctx, vector, match)
	}
	return matches, nil
}

func (s *Searcher) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vector, err := call(ctx, s.opts.EmbedCall, "query embedding", func(ctx context.Context) ([]float32, error) {
		if s.deps.Limiter != nil {
			if err := s.deps.Limiter.Wait(ctx); err != nil {
				return nil, classify("embedding rate limit", err)
			}
		}
		res, err := s.deps.Embedder.EmbeddingForQuery(ctx, []string{query})
		if err != nil {
			return nil, classify("query embedding", err)
		}
		if len(res.Data) != 1 {
			return nil, fmt.Errorf("%w: embedding returned %d vectors for 1 query", ErrUpstreamService, len(res.Data))
		}
		return res.Data[0], nil
	})
	if err != nil {
		return nil, err
	}
	if s.opts.Dimensions > 0 && len(vector) != s.opts.Dimensions {
		return nil, fmt.Errorf("%w: query embedding has %d dimensions, expected %d", ErrConfiguration, len(vector), s.opts.Dimensions)
	}
	return vector, nil
}

func (s *Searcher) match(ctx context.Context, vector []float32, opts types.MatchOptions) ([]types.RankedMatch, error) {
	return call(ctx, s.opts.MatchCall, "vector match", func(ctx context.Context) ([]types.RankedMatch, error) {
		res, err := s.deps.Vectors.Match(ctx, pgvector.NewVector(vector), opts)
		return res, classify("vector match", err)
	})
}

// diagnose reruns an empty search with a lower threshold, only to log what was missed.
func (s *Searcher) diagnose(ctx context.Context, vector []float32, opts types.MatchOptions) {
	opts.Threshold = s.opts.DiagnoseFrom
	res, err := s.match(ctx, vector, opts)
	if err != nil {
		slog.Debug("search diagnostics failed", slog.String("error", err.Error()))
		return
	}
	if len(res) == 0 {
		slog.Info("search found nothing even with the diagnostic threshold", slog.Float64("threshold", opts.Threshold))
		return
	}
	slog.Info("search matched only below threshold",
		slog.Float64("best_similarity", res[0].Similarity),
		slog.Float64("diagnostic_threshold", opts.Threshold),
		slog.Int("count", len(res)))
}

// FormatForPrompt renders matches as a system prompt section. It returns an
// empty string when there is nothing to show.
func FormatForPrompt(matches []types.RankedMatch) string {
	if len(matches) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("The following knowledge was retrieved from this assistant's knowledge base. ")
	sb.WriteString("Prefer it over general knowledge when it is relevant, and keep your usual voice and tone.\n\n")
	sb.WriteString("<knowledge>\n")
	for i, m := range matches {
		sb.WriteString("[")
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString("] similarity: ")
		sb.WriteString(strconv.FormatFloat(m.Similarity, 'f', -1, 64))
		if label := attribution(m); label != "" {
			sb.WriteString(" | ")
			sb.WriteString(label)
		}
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(m.Content))
		sb.WriteString("\n\n")
	}
	sb.WriteString("</knowledge>\n")
	sb.WriteString("Answer from the knowledge above when it covers the question. Say so when it does not, and never mention similarity scores.")
	return sb.String()
}

func attribution(m types.RankedMatch) string {
	label := m.ContentType.String()
	for _, key := range []string{"title", "name", "file_name", "url"} {
		if v, ok := m.Metadata[key].(string); ok && v != "" {
			return label + ": " + v
		}
	}
	return label
}
