package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"feedesk/internal/core"
	"feedesk/internal/ledger"
	applog "feedesk/internal/log"
	"feedesk/internal/middleware/trace"
	"feedesk/internal/services"
)

const maxBodyBytes = 1 << 20

var (
	errUnauthenticated = errors.New("missing or invalid session")
	errWrongRole       = errors.New("role not allowed")
	errBadRequest      = errors.New("bad request")
)

var coreValidationErrors = []error{
	core.ErrInvalidAmount, core.ErrBreakdownMismatch, core.ErrEmptyOwner, core.ErrEmptyFeeType,
	core.ErrEmptyFeeReference, core.ErrMissingDueDate, core.ErrInvalidStatus, core.ErrInvalidRole,
	core.ErrMissingIdentifiers,
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps service errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errWrongRole), errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrFeeAlreadyPaid), errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrPaymentFailed):
		return http.StatusBadGateway
	}
	for _, v := range coreValidationErrors {
		if errors.Is(err, v) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

// writeError logs err and writes it as JSON. Internal errors are not echoed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	logger := applog.FromContext(r.Context())
	switch {
	case status >= 500:
		logger.ErrorContext(r.Context(), "Request failed", applog.FieldError, err, applog.FieldStatusCode, status)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		} else {
			msg = services.ErrPaymentFailed.Error()
		}
	case status != http.StatusNotFound:
		logger.WarnContext(r.Context(), "Request rejected", applog.FieldError, err, applog.FieldStatusCode, status)
	}
	writeJSON(w, status, errorBody{Error: msg, RequestID: trace.RequestID(r)})
}

// decodeJSON reads a single JSON object into dst. An empty body leaves dst
// untouched when allowEmpty is set.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", errBadRequest)
	}
	return nil
}
