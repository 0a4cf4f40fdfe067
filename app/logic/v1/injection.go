package v1

import (
	"context"

	"github.com/samber/lo"

	"github.com/quka-ai/knowledge-sync/pkg/types"
)

const (
	OWNER_CONTEXT_KEY = "__sync.owner"
	LANGUAGE_KEY      = "__sync.accept_language"
)

// InjectOwner get the owner bound to the request token
func InjectOwner(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(OWNER_CONTEXT_KEY).(string)
	return val, ok && val != ""
}

func InjectLanguage(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(LANGUAGE_KEY).(string)
	return val, ok
}

func GetContentByClientLanguage[T any](c context.Context, enRes T, cnRes T) T {
	clientLang, _ := InjectLanguage(c)
	return lo.If(clientLang == types.LANGUAGE_EN_KEY, enRes).Else(cnRes)
}
