package v1

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/quka-ai/knowledge-sync/app/core"
	"github.com/quka-ai/knowledge-sync/pkg/errors"
	"github.com/quka-ai/knowledge-sync/pkg/i18n"
	"github.com/quka-ai/knowledge-sync/pkg/types"
)

type _userInfo struct {
	ctx   context.Context
	core  *core.Core
	owner string
}

func (u *_userInfo) GetOwner() string {
	return u.owner
}

// loadSource 获取知识源并校验归属
func (u *_userInfo) loadSource(id string) (*types.KnowledgeSource, error) {
	source, err := u.core.Ingest().Sources.Get(u.ctx, id)
	if err != nil {
		return nil, wrapError("_userInfo.loadSource.Sources.Get", err)
	}
	if err = checkOwner(u.owner, source); err != nil {
		return nil, err
	}
	return source, nil
}

// loadContent 获取内容并校验其知识源的归属
func (u *_userInfo) loadContent(id string) (*types.ContentItem, error) {
	item, err := u.core.Ingest().Contents.GetContent(u.ctx, id)
	if err != nil {
		return nil, wrapError("_userInfo.loadContent.Contents.GetContent", err)
	}
	if _, err = u.loadSource(item.KnowledgeSourceID); err != nil {
		return nil, err
	}
	return item, nil
}

func checkOwner(owner string, source *types.KnowledgeSource) error {
	if owner == "" {
		return errors.New("checkOwner.owner.empty", i18n.ERROR_UNAUTHORIZED, nil).Code(http.StatusUnauthorized)
	}
	if source.OwnerID != owner {
		return errors.New("checkOwner.OwnerID", i18n.ERROR_PERMISSION_DENIED, nil).Code(http.StatusForbidden)
	}
	return nil
}

func SetupUserInfo(ctx context.Context, core *core.Core) UserInfo {
	owner, ok := InjectOwner(ctx)
	if !ok {
		slog.Error("Not found owner in context", slog.String("component", "logic.v1.setupUserInfo"))
	}
	return &_userInfo{
		ctx:   ctx,
		core:  core,
		owner: owner,
	}
}

type UserInfo interface {
	GetOwner() string
	loadSource(id string) (*types.KnowledgeSource, error)
	loadContent(id string) (*types.ContentItem, error)
}
