package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/tiskarna/internal/model"
	"github.com/erazemk/tiskarna/internal/reserve"
)

// ReservationsHandler handles reservation endpoints, mapping 1:1 to the
// engine's operations.
type ReservationsHandler struct {
	Engine *reserve.Engine
}

type createReservationRequest struct {
	MaterialID int64           `json:"material_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	OrderID    string          `json:"order_id"`
	ExpiresAt  *time.Time      `json:"expires_at"`
	Notes      string          `json:"notes"`
}

type updateReservationRequest struct {
	Quantity  *decimal.Decimal `json:"quantity"`
	ExpiresAt *time.Time       `json:"expires_at"`
	Notes     *string          `json:"notes"`
}

type cancelReservationRequest struct {
	Reason string `json:"reason"`
}

// Create handles POST /api/reservations.
func (h *ReservationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MaterialID <= 0 {
		jsonError(w, http.StatusBadRequest, "material_id is required")
		return
	}

	var reservedBy string
	if claims := GetClaims(r.Context()); claims != nil {
		reservedBy = claims.Username
	}

	reservation, err := h.Engine.Create(r.Context(), reserve.CreateRequest{
		MaterialID: req.MaterialID,
		Quantity:   req.Quantity,
		OrderID:    req.OrderID,
		ExpiresAt:  req.ExpiresAt,
		ReservedBy: reservedBy,
		Notes:      req.Notes,
	})
	if err != nil {
		domainError(w, err)
		return
	}

	jsonResponse(w, http.StatusCreated, reservation)
}

// List handles GET /api/reservations?material_id=&status=.
func (h *ReservationsHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter reserve.Filter

	if v := r.URL.Query().Get("material_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			jsonError(w, http.StatusBadRequest, "invalid material_id")
			return
		}
		filter.MaterialID = id
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := model.ReservationStatus(v)
		if !status.Valid() {
			jsonError(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Status = status
	}

	reservations, err := h.Engine.List(r.Context(), filter)
	if err != nil {
		domainError(w, err)
		return
	}
	if reservations == nil {
		reservations = []model.Reservation{}
	}
	jsonResponse(w, http.StatusOK, reservations)
}

// Get handles GET /api/reservations/{id}.
func (h *ReservationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	reservation, err := h.Engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		domainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, reservation)
}

// Update handles PUT /api/reservations/{id}.
func (h *ReservationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reservation, err := h.Engine.Update(r.Context(), r.PathValue("id"), reserve.UpdateRequest{
		Quantity:  req.Quantity,
		ExpiresAt: req.ExpiresAt,
		Notes:     req.Notes,
	})
	if err != nil {
		domainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, reservation)
}

// Cancel handles POST /api/reservations/{id}/cancel.
func (h *ReservationsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelReservationRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := h.Engine.Cancel(r.Context(), r.PathValue("id"), req.Reason); err != nil {
		domainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "reservation cancelled"})
}

// Fulfill handles POST /api/reservations/{id}/fulfill.
func (h *ReservationsHandler) Fulfill(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Fulfill(r.Context(), r.PathValue("id")); err != nil {
		domainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "reservation fulfilled"})
}

// Sweep handles POST /api/reservations/sweep, the maintenance endpoint that
// expires stale reservations immediately instead of waiting for the next
// scheduled run.
func (h *ReservationsHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	count, err := h.Engine.SweepExpired(r.Context())
	if err != nil {
		domainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int{"expired": count})
}
