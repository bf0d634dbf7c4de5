package httpadapter

import (
	"net/http"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrValidation),
		domain.IsKind(err, domain.ErrInvalidDrawType):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrRecordNotFound),
		domain.IsKind(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict),
		domain.IsKind(err, domain.ErrCaptureInactive):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrInsufficientPoints),
		domain.IsKind(err, domain.ErrMissingCity):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrPrimaryUpload),
		domain.IsKind(err, domain.ErrSecondaryUpload):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
