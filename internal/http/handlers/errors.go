package handlers

import (
	"context"
	"errors"
	"net/http"

	"toonlab/internal/domain"
	"toonlab/internal/middleware"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{domain.ErrValidation, http.StatusBadRequest, "bad_request", ""},
	{domain.ErrDecode, http.StatusBadRequest, "invalid_image", "could not decode the uploaded image"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found", ""},
	{domain.ErrPaymentRequired, http.StatusPaymentRequired, "payment_required", ""},
	{domain.ErrUnavailable, http.StatusServiceUnavailable, "unavailable", ""},
	{domain.ErrProviderFailure, http.StatusInternalServerError, "generation_failed", "generation failed"},
	{domain.ErrProcessing, http.StatusInternalServerError, "processing_failed", "image processing failed"},
	{domain.ErrEncode, http.StatusInternalServerError, "encode_failed", "could not encode the result"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout", "request timed out"},
	{context.Canceled, http.StatusServiceUnavailable, "canceled", "request canceled"},
}

// statusFor maps an error to its HTTP status, error code and client message.
// Messages for server-side failures are fixed so internal causes do not leak.
func statusFor(err error) (int, string, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			msg := m.message
			if msg == "" {
				msg = err.Error()
			}
			return m.status, m.code, msg
		}
	}
	return http.StatusInternalServerError, "internal", "internal error"
}

func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := statusFor(err)
	ev := a.Logger.Warn()
	if status >= http.StatusInternalServerError {
		ev = a.Logger.Error()
	}
	ev.Err(err).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("request failed")
	a.error(w, status, code, msg)
}
