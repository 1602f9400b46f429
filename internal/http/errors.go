// Package httpapi exposes the HTTP API layer of the service.
package httpapi

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"

	apperrors "github.com/fairyhunter13/pantry-pilot/internal/errors"
	"github.com/fairyhunter13/pantry-pilot/internal/obs"
)

// jsonError represents a JSON error payload.
type jsonError struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSONError writes err as a JSON error payload with the status its code
// maps to. Untyped errors are reported as INTERNAL_ERROR.
func WriteJSONError(ctx context.Context, logg *obs.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = stdErrors.New("unknown error")
	}
	typed := apperrors.As(err)
	if typed == nil {
		typed = apperrors.Wrap(apperrors.CodeInternal, err, "unexpected error")
	}
	meta := apperrors.MetadataFor(typed.Code())

	msg := meta.PublicMessage
	switch typed.Code() {
	case apperrors.CodeValidation,
		apperrors.CodeNotFound,
		apperrors.CodeConflict,
		apperrors.CodeMalformedSource,
		apperrors.CodeNotLoaded:
		if m := typed.Message(); m != "" {
			msg = m
		}
	}
	payload := jsonError{
		Error:     string(typed.Code()),
		Message:   msg,
		Retryable: meta.Retryable,
		RequestID: RequestIDFromContext(ctx),
	}
	if meta.DetailsAllowed {
		payload.Details = typed.Details()
	}

	if logg != nil {
		fields := map[string]any{"error_code": string(typed.Code()), "status": meta.HTTPStatus}
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(logg.WithFields(ctx, fields), "request_failed", err)
		} else {
			logg.Info(logg.WithFields(ctx, fields), "request_rejected")
		}
	}
	writeJSON(w, meta.HTTPStatus, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
