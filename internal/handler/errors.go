package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/eventcore/events-api/internal/apperr"
)

// errorBody is the wire format for every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      apperr.Code     `json:"code"`
	Message   string          `json:"message"`
	Details   []apperr.Detail `json:"details,omitempty"`
	Timestamp string          `json:"timestamp"`
	Path      string          `json:"path"`
	RequestID string          `json:"requestId"`
}

// statusOf maps the error taxonomy to HTTP status codes.
func statusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeUserNotFound, apperr.CodeEventNotFound, apperr.CodeRegistrationNotFound:
		return http.StatusNotFound
	case apperr.CodeDuplicateUser, apperr.CodeAlreadyRegistered,
		apperr.CodeAlreadyOnWaitlist, apperr.CodeEventFull, apperr.CodeContention:
		return http.StatusConflict
	case apperr.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError translates a typed error into the external envelope. The
// underlying cause is logged but never serialised.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Wrap(apperr.CodeInternal, "internal error", err)
	}

	status := statusOf(ae.Code)
	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "request failed",
			"code", ae.Code, "path", r.URL.Path, "error", err)
	}

	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:      ae.Code,
		Message:   ae.Message,
		Details:   ae.Details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
		RequestID: middleware.GetReqID(r.Context()),
	}})
}
