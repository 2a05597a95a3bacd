// Package httpx holds the JSON request and response helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"records-dashboard/backend/internal/platform/apperr"
)

// maxBodyBytes bounds request bodies; the largest legitimate body is a bulk batch of ids.
const maxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error kind, a human-readable reason, and whether a retry may succeed.
type ErrorDetail struct {
	Kind      apperr.Kind `json:"kind"`
	Reason    string      `json:"reason"`
	Retryable bool        `json:"retryable"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindForbidden, apperr.KindSelfActionDenied, apperr.KindActorMismatch:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidState, apperr.KindConflict, apperr.KindLastOwnerDenied:
		return http.StatusConflict
	case apperr.KindExpired:
		return http.StatusGone
	case apperr.KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

// WriteJSON writes v as JSON with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError writes err as an ErrorBody. Untyped errors are reported as Unavailable.
func WriteError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	WriteJSON(w, StatusFor(kind), ErrorBody{Error: ErrorDetail{
		Kind:      kind,
		Reason:    apperr.ReasonOf(err),
		Retryable: kind == apperr.KindUnavailable,
	}})
}

// Unauthenticated writes a 401 for a missing or invalid access token.
func Unauthenticated(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="records-dashboard"`)
	WriteJSON(w, http.StatusUnauthorized, ErrorBody{Error: ErrorDetail{
		Kind:   "Unauthenticated",
		Reason: "missing or invalid authorization",
	}})
}

// DecodeJSON decodes the request body into v. Unknown fields and trailing data are rejected.
// An empty body is an InvalidArgument error.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.InvalidArgument("request body is required")
		}
		return apperr.InvalidArgument("invalid request body: %v", err)
	}
	if dec.More() {
		return apperr.InvalidArgument("invalid request body: unexpected trailing data")
	}
	return nil
}
