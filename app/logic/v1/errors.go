package v1

import (
	"net/http"

	"github.com/quka-ai/knowledge-sync/app/ingest"
	"github.com/quka-ai/knowledge-sync/pkg/errors"
	"github.com/quka-ai/knowledge-sync/pkg/i18n"
	"github.com/quka-ai/knowledge-sync/pkg/types"
)

const STATUS_PROCESSING = "processing"

// wrapError maps ingest failures onto response codes.
func wrapError(trace string, err error) error {
	if err == nil {
		return nil
	}

	var ce *errors.CustomizedError
	if errors.As(err, &ce) {
		return errors.Trace(trace, err)
	}

	var processing *ingest.ProcessingError
	if errors.As(err, &processing) {
		return errors.New(trace, i18n.MESSAGE_PROCESSING, err).Code(http.StatusAccepted).WithData(map[string]interface{}{
			"status": STATUS_PROCESSING,
			"job_id": processing.JobID,
			"item":   processing.Item,
		})
	}

	switch {
	case errors.Is(err, ingest.ErrRolledBack):
		return errors.New(trace, i18n.ERROR_ROLLED_BACK, err).Code(http.StatusInternalServerError)
	case errors.Is(err, ingest.ErrValidation), errors.Is(err, types.ErrInvalidContent):
		return errors.New(trace, i18n.ERROR_INVALIDARGUMENT, err).Code(http.StatusBadRequest).WithData(map[string]interface{}{
			"reason": err.Error(),
		})
	case errors.Is(err, ingest.ErrJobNotRetryable):
		return errors.New(trace, i18n.ERROR_JOB_NOT_RETRYABLE, err).Code(http.StatusConflict)
	case errors.Is(err, ingest.ErrNotFound):
		return errors.New(trace, i18n.ERROR_NOT_FOUND, err).Code(http.StatusNotFound)
	case errors.Is(err, ingest.ErrConfiguration):
		return errors.New(trace, i18n.ERROR_EMBEDDING_CONFIGURATION, err).Code(http.StatusInternalServerError)
	case errors.Is(err, ingest.ErrUpstreamTimeout):
		return errors.New(trace, i18n.MESSAGE_PROCESSING, err).Code(http.StatusAccepted).WithData(map[string]interface{}{
			"status": STATUS_PROCESSING,
		})
	case errors.Is(err, ingest.ErrUpstreamService):
		return errors.New(trace, i18n.ERROR_UPSTREAM_SERVICE, err).Code(http.StatusInternalServerError)
	}
	return errors.New(trace, i18n.ERROR_INTERNAL, err)
}
