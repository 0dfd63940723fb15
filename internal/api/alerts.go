package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/tiskarna/internal/store"
)

// AlertsHandler handles low-stock alert endpoints.
type AlertsHandler struct {
	DB *sql.DB
}

// List handles GET /api/alerts.
func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	alerts, err := store.ListOpenAlerts(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to list alerts", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []store.StockAlert{}
	}
	jsonResponse(w, http.StatusOK, alerts)
}

// Acknowledge handles POST /api/alerts/{id}/ack.
func (h *AlertsHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	if err := store.AcknowledgeAlert(r.Context(), h.DB, id); err != nil {
		domainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "alert acknowledged"})
}
