package httpapi

import (
	"errors"
	"net/http"

	"github.com/agency-portal/chat-pipeline/internal/apperrors"
	"github.com/agency-portal/chat-pipeline/pkg/jsonx"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := jsonx.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, fallbackStatus int, err error) {
	writeJSON(w, statusFor(err, fallbackStatus), errorBody{Code: apperrors.Code(err), Message: err.Error()})
}

func statusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, apperrors.ErrCircuitOpen), errors.Is(err, apperrors.ErrStoreUnavailable),
		errors.Is(err, apperrors.ErrTransientStore), errors.Is(err, apperrors.ErrTransientBroker):
		return http.StatusServiceUnavailable
	default:
		return fallback
	}
}
