package communication

import (
	"errors"

	apperrors "comm-dispatch/internal/common/errors"
	"comm-dispatch/internal/communication/templates"
)

// JobError classifies a dispatcher error for the workflow engine. Errors that
// already carry a code are returned unchanged. Template failures are never
// retried since a retry renders the same template again.
func JobError(err error) *apperrors.StandardError {
	var stdErr *apperrors.StandardError
	switch {
	case errors.As(err, &stdErr):
		return stdErr
	case errors.Is(err, ErrSMSNotImplemented):
		return apperrors.NewSMSNotImplementedError()
	case errors.Is(err, templates.ErrTemplateNotFound):
		return apperrors.NewTemplateNotFoundError(err)
	case errors.Is(err, templates.ErrTemplateRender):
		return apperrors.NewTemplateRenderFailedError(err)
	case errors.Is(err, ErrEmailDelivery):
		return apperrors.NewEmailSendFailedError(err)
	case errors.Is(err, ErrRecordWrite):
		return apperrors.NewDatabaseInsertFailedError(err)
	default:
		return apperrors.NewDispatchFailedError(err)
	}
}
