package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/tiskarna/internal/model"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// domainError maps reservation engine and store errors to HTTP responses.
// InsufficientStock surfaces the shortfall so callers can adjust; everything
// else gets a generic message with the error kind.
func domainError(w http.ResponseWriter, err error) {
	var insufficient *model.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		jsonResponse(w, http.StatusConflict, map[string]string{
			"error":     "insufficient stock",
			"requested": insufficient.Requested.String(),
			"available": insufficient.Available.String(),
		})
	case errors.Is(err, model.ErrNotFound):
		jsonError(w, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrInvalidQuantity):
		jsonError(w, http.StatusBadRequest, model.ErrInvalidQuantity.Error())
	case errors.Is(err, model.ErrInvalidExpiry):
		jsonError(w, http.StatusBadRequest, model.ErrInvalidExpiry.Error())
	case errors.Is(err, model.ErrInvalidState):
		jsonError(w, http.StatusConflict, model.ErrInvalidState.Error())
	case errors.Is(err, model.ErrLedgerInconsistency):
		jsonError(w, http.StatusInternalServerError, model.ErrLedgerInconsistency.Error())
	default:
		slog.Error("internal error", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}
