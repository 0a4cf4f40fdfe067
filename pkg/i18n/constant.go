package i18n

var ALLOW_LANG = map[string]bool{
	"en":    true,
	"zh-CN": true,
}

const DEFAULT_LANG = "en"

const (
	ERROR_INTERNAL          = "error.internal"
	ERROR_NOT_FOUND         = "error.notfound"
	ERROR_INVALIDARGUMENT   = "error.invalidargument"
	ERROR_PERMISSION_DENIED = "error.permission.denied"
	ERROR_UNAUTHORIZED      = "error.unauthorized"
	ERROR_FORBIDDEN         = "error.forbidden"
	ERROR_TOO_MANY_REQUESTS = "error.tooManyRequests"

	ERROR_UNSUPPORTED_CONTENT_TYPE = "error.content.type.unsupported"
	ERROR_FILE_TOO_LARGE           = "error.file.too_large"
	ERROR_ROLLED_BACK              = "error.rolled_back"
	ERROR_UPSTREAM_SERVICE         = "error.upstream.service"
	ERROR_EMBEDDING_CONFIGURATION  = "error.embedding.configuration"
	ERROR_JOB_NOT_RETRYABLE        = "error.job.not_retryable"

	MESSAGE_PROCESSING = "message.processing"
)
