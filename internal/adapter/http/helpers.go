package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/EscrowBoard/internal/domain"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

// parseDuration reads a Go duration string. Unparsable input yields zero,
// which the board's input validation rejects in its usual order.
func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusForKind maps a domain error kind to its HTTP status.
func statusForKind(kind error) int {
	switch {
	case errors.Is(kind, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(kind, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(kind, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(kind, domain.ErrConflict), errors.Is(kind, domain.ErrStateMismatch):
		return http.StatusConflict
	case errors.Is(kind, domain.ErrFunds):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError writes err with the status of its kind and its failure code.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *domain.CodeError
	if errors.As(err, &ce) {
		status := statusForKind(ce.Kind())
		if status == http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "request failed", "code", ce.Code, "error", err)
		}
		writeJSON(w, status, errorResponse{Error: err.Error(), Code: ce.Code})
		return
	}

	status := statusForKind(err)
	if status == http.StatusInternalServerError {
		writeInternalError(w, r, err)
		return
	}
	writeError(w, status, err.Error())
}

// writeInternalError logs the actual error server-side and returns a generic message to the client.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
