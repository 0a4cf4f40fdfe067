package v1

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quka-ai/knowledge-sync/app/core"
	"github.com/quka-ai/knowledge-sync/app/ingest"
	"github.com/quka-ai/knowledge-sync/pkg/types"
)

type ContentLogic struct {
	UserInfo
	ctx  context.Context
	core *core.Core
}

func NewContentLogic(ctx context.Context, core *core.Core) *ContentLogic {
	return &ContentLogic{
		ctx:      ctx,
		core:     core,
		UserInfo: SetupUserInfo(ctx, core),
	}
}

// ContentArgs 新建或更新内容的参数，payload 按 content_type 解析
type ContentArgs struct {
	ContentType types.ContentType
	Payload     json.RawMessage
	File        *ingest.FileUpload
	Async       bool
}

func (a ContentArgs) record() (types.ContentRecord, error) {
	if len(a.Payload) == 0 {
		if a.File != nil && (a.ContentType == "" || a.ContentType == types.CONTENT_TYPE_FILE) {
			// ContentService 根据文件补全 FileContent
			return nil, nil
		}
		return nil, fmt.Errorf("%w: payload is required", ingest.ErrValidation)
	}
	return types.DecodeContentRecord(a.ContentType, a.Payload)
}

func (l *ContentLogic) CreateContent(sourceID string, args ContentArgs) (*ingest.ContentResult, error) {
	if _, err := l.loadSource(sourceID); err != nil {
		return nil, err
	}

	record, err := args.record()
	if err != nil {
		return nil, wrapError("ContentLogic.CreateContent.record", err)
	}

	res, err := l.core.Ingest().Contents.Create(l.ctx, ingest.CreateContentRequest{
		KnowledgeSourceID: sourceID,
		Record:            record,
		File:              args.File,
		Async:             args.Async,
	})
	if err != nil {
		return nil, wrapError("ContentLogic.CreateContent.Contents.Create", err)
	}
	return res, nil
}

func (l *ContentLogic) UpdateContent(id string, args ContentArgs) (*ingest.ContentResult, error) {
	item, err := l.loadContent(id)
	if err != nil {
		return nil, err
	}
	if args.ContentType == "" {
		args.ContentType = item.ContentType
	}

	record, err := args.record()
	if err != nil {
		return nil, wrapError("ContentLogic.UpdateContent.record", err)
	}

	res, err := l.core.Ingest().Contents.Update(l.ctx, ingest.UpdateContentRequest{
		ContentID: id,
		Record:    record,
		File:      args.File,
		Async:     args.Async,
	})
	if err != nil {
		return nil, wrapError("ContentLogic.UpdateContent.Contents.Update", err)
	}
	return res, nil
}

func (l *ContentLogic) GetContent(id string) (*types.ContentItem, error) {
	return l.loadContent(id)
}

func (l *ContentLogic) ListContents(sourceID string, contentType types.ContentType, page, pageSize uint64) ([]types.ContentItem, int64, error) {
	if _, err := l.loadSource(sourceID); err != nil {
		return nil, 0, err
	}
	list, total, err := l.core.Ingest().Contents.ListContents(l.ctx, types.ListContentItemOptions{
		KnowledgeSourceID: sourceID,
		ContentType:       contentType,
	}, page, pageSize)
	if err != nil {
		return nil, 0, wrapError("ContentLogic.ListContents.Contents.ListContents", err)
	}
	return list, total, nil
}

func (l *ContentLogic) DeleteContent(id string) error {
	if _, err := l.loadContent(id); err != nil {
		return err
	}
	if err := l.core.Ingest().Contents.Delete(l.ctx, id); err != nil {
		return wrapError("ContentLogic.DeleteContent.Contents.Delete", err)
	}
	return nil
}

// SyncContent 重新触发向量化，内容未变化时直接返回 current
func (l *ContentLogic) SyncContent(id string, async bool) (*ingest.ContentResult, error) {
	if _, err := l.loadContent(id); err != nil {
		return nil, err
	}
	res, err := l.core.Ingest().Contents.Sync(l.ctx, id, async)
	if err != nil {
		return nil, wrapError("ContentLogic.SyncContent.Contents.Sync", err)
	}
	return res, nil
}

func (l *ContentLogic) ContentStatus(id string) (ingest.ContentStatus, error) {
	item, err := l.loadContent(id)
	if err != nil {
		return ingest.ContentStatus{}, err
	}
	status, err := l.core.Ingest().Jobs.CheckContent(l.ctx, types.DedupKey{
		KnowledgeSourceID: item.KnowledgeSourceID,
		ContentType:       item.ContentType,
		ContentID:         item.ID,
	})
	if err != nil {
		return status, wrapError("ContentLogic.ContentStatus.Jobs.CheckContent", err)
	}
	return status, nil
}
