package v1

import (
	"context"

	"github.com/quka-ai/knowledge-sync/app/core"
	"github.com/quka-ai/knowledge-sync/app/ingest"
	"github.com/quka-ai/knowledge-sync/pkg/types"
)

type SourceLogic struct {
	UserInfo
	ctx  context.Context
	core *core.Core
}

func NewSourceLogic(ctx context.Context, core *core.Core) *SourceLogic {
	return &SourceLogic{
		ctx:      ctx,
		core:     core,
		UserInfo: SetupUserInfo(ctx, core),
	}
}

func (l *SourceLogic) CreateSource(name, description string) (*types.KnowledgeSource, error) {
	source, err := l.core.Ingest().Sources.Create(l.ctx, l.GetOwner(), name, description)
	if err != nil {
		return nil, wrapError("SourceLogic.CreateSource.Sources.Create", err)
	}
	return source, nil
}

func (l *SourceLogic) GetSource(id string) (*types.KnowledgeSource, error) {
	return l.loadSource(id)
}

func (l *SourceLogic) ListSources(page, pageSize uint64) ([]types.KnowledgeSource, error) {
	list, err := l.core.Ingest().Sources.List(l.ctx, l.GetOwner(), page, pageSize)
	if err != nil {
		return nil, wrapError("SourceLogic.ListSources.Sources.List", err)
	}
	return list, nil
}

// DeleteSource 删除知识源及其全部内容、向量与文件
func (l *SourceLogic) DeleteSource(id string) error {
	if _, err := l.loadSource(id); err != nil {
		return err
	}
	if err := l.core.Ingest().Sources.Delete(l.ctx, id); err != nil {
		return wrapError("SourceLogic.DeleteSource.Sources.Delete", err)
	}
	return nil
}

// ReembedSource 在模型或维度变更后重新投递知识源下的全部内容
func (l *SourceLogic) ReembedSource(id string) (ingest.ReembedResult, error) {
	if _, err := l.loadSource(id); err != nil {
		return ingest.ReembedResult{}, err
	}
	res, err := l.core.Ingest().Reembed.ReembedSource(l.ctx, id, l.core.Cfg().Worker.ReembedConcurrency)
	if err != nil {
		return res, wrapError("SourceLogic.ReembedSource.Reembed.ReembedSource", err)
	}
	return res, nil
}
