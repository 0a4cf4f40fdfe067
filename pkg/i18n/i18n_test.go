package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLang(t *testing.T) {
	l := NewLocalizer("zh-CN", "en")

	assert.Equal(t, "Resource not found", l.Get("en", ERROR_NOT_FOUND))
	assert.Equal(t, "操作失败，所有变更已回滚", l.Get("zh-CN", ERROR_ROLLED_BACK))
	// unknown language falls back to the message id
	assert.Equal(t, ERROR_INTERNAL, l.Get("fr", ERROR_INTERNAL))
}
