// Package api provides the HTTP handlers of the evaluation service and
// the JSON envelope they share.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/onnwee/contentrank/internal/middleware"
)

// Error codes returned in the envelope's code field.
const (
	// ErrCodeValidation indicates a request that failed validation.
	ErrCodeValidation = "validation_error"

	// ErrCodeBadRequest indicates a body that could not be decoded.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeBodyTooLarge indicates a body over MaxBodyBytes.
	ErrCodeBodyTooLarge = "body_too_large"

	// ErrCodeMethodNotAllowed indicates the wrong HTTP method.
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// ErrCodeNotFound indicates an unknown route.
	ErrCodeNotFound = "not_found"

	// ErrCodeStoreUnavailable indicates the content store could not be read.
	ErrCodeStoreUnavailable = "store_unavailable"

	// ErrCodeInternal indicates an unexpected server failure.
	ErrCodeInternal = "internal_error"
)

// MaxBodyBytes limits request bodies.
const MaxBodyBytes = 1 << 20

// ErrorResponse is the failure envelope:
//
//	{"success": false, "error": "...", "code": "validation_error"}
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// WriteError writes the failure envelope and records code for the logging
// middleware.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.SetErrorCode(ctx, code)
	writeJSON(w, ctx, status, ErrorResponse{Success: false, Error: message, Code: code})
}

// writeJSON encodes v with status. Encoding errors after the header is
// written can only be logged.
func writeJSON(w http.ResponseWriter, ctx context.Context, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// decodeBody reads a JSON body of at most MaxBodyBytes into dst. On
// failure it writes the error response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	err := dec.Decode(dst)
	if err == nil {
		if _, extra := dec.Token(); extra != io.EOF {
			err = errors.New("unexpected data after JSON body")
		}
	}
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		WriteError(w, r.Context(), http.StatusRequestEntityTooLarge, ErrCodeBodyTooLarge,
			fmt.Sprintf("Request body exceeds %d bytes", MaxBodyBytes))
	case errors.Is(err, io.EOF):
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Request body is required")
	default:
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body: "+err.Error())
	}
	return false
}

// requireMethod writes 405 unless r uses method.
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
	return false
}

// NotFound answers unknown routes with the envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
}
