package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"claims/internal/core"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errorStatus(err), errorResponse{Error: err.Error()})
}

// errorStatus maps domain errors onto HTTP status codes. Unknown errors
// stay a 500 so callers can distinguish domain rejections from faults.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, core.ErrExpenseNotFound),
		errors.Is(err, core.ErrCategoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrAlreadyApproved),
		errors.Is(err, core.ErrAlreadyRejected):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrEmptyPrincipal),
		errors.Is(err, core.ErrDescriptionTooLong),
		errors.Is(err, core.ErrNotesTooLong),
		errors.Is(err, core.ErrNameTooLong):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
