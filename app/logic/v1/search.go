package v1

import (
	"context"

	"github.com/quka-ai/knowledge-sync/app/core"
	"github.com/quka-ai/knowledge-sync/app/ingest"
	"github.com/quka-ai/knowledge-sync/pkg/types"
)

type SearchLogic struct {
	UserInfo
	ctx  context.Context
	core *core.Core
}

func NewSearchLogic(ctx context.Context, core *core.Core) *SearchLogic {
	return &SearchLogic{
		ctx:      ctx,
		core:     core,
		UserInfo: SetupUserInfo(ctx, core),
	}
}

type SearchResult struct {
	Matches []types.RankedMatch `json:"matches"`
	// Prompt 可直接拼接进 LLM 上下文，无结果时为空字符串
	Prompt string `json:"prompt"`
}

// Search 在调用方拥有的知识源中检索，结果为空不是错误
func (l *SearchLogic) Search(sourceIDs []string, query string, opts ingest.SearchOptions) (*SearchResult, error) {
	for _, id := range sourceIDs {
		if _, err := l.loadSource(id); err != nil {
			return nil, err
		}
	}

	matches, err := l.core.Ingest().Searcher.Search(l.ctx, sourceIDs, query, opts)
	if err != nil {
		return nil, wrapError("SearchLogic.Search.Searcher.Search", err)
	}

	return &SearchResult{
		Matches: matches,
		Prompt:  ingest.FormatForPrompt(matches),
	}, nil
}
