package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/erazemk/tiskarna/internal/imaging"
	"github.com/erazemk/tiskarna/internal/model"
	"github.com/erazemk/tiskarna/internal/reserve"
	"github.com/erazemk/tiskarna/internal/store"
)

// MaterialsHandler handles material endpoints.
type MaterialsHandler struct {
	DB     *sql.DB
	Engine *reserve.Engine
}

type materialRequest struct {
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	MinStock     decimal.Decimal `json:"min_stock_quantity"`
	SupplierNote string          `json:"supplier_note"`
}

type addStockRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

// List handles GET /api/materials.
func (h *MaterialsHandler) List(w http.ResponseWriter, r *http.Request) {
	materials, err := store.ListMaterials(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to list materials", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list materials")
		return
	}
	if materials == nil {
		materials = []model.Material{}
	}
	jsonResponse(w, http.StatusOK, materials)
}

// Create handles POST /api/materials.
func (h *MaterialsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req materialRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name is required")
		return
	}

	material, err := store.CreateMaterial(r.Context(), h.DB, req.Name, req.Unit, req.MinStock, req.SupplierNote)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	jsonResponse(w, http.StatusCreated, material)
}

// Get handles GET /api/materials/{id}.
func (h *MaterialsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := materialID(w, r)
	if !ok {
		return
	}

	material, err := store.GetMaterial(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get material", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get material")
		return
	}
	if material == nil {
		jsonError(w, http.StatusNotFound, "material not found")
		return
	}

	jsonResponse(w, http.StatusOK, material)
}

// Update handles PUT /api/materials/{id}.
func (h *MaterialsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := materialID(w, r)
	if !ok {
		return
	}

	var req materialRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := store.UpdateMaterial(r.Context(), h.DB, id, req.Name, req.Unit, req.MinStock, req.SupplierNote); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	material, _ := store.GetMaterial(r.Context(), h.DB, id)
	jsonResponse(w, http.StatusOK, material)
}

// Delete handles DELETE /api/materials/{id}.
func (h *MaterialsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := materialID(w, r)
	if !ok {
		return
	}

	if err := store.DeleteMaterial(r.Context(), h.DB, id); err != nil {
		domainError(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "material deleted"})
}

// GetAvailability handles GET /api/materials/{id}/availability.
func (h *MaterialsHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := materialID(w, r)
	if !ok {
		return
	}

	available, err := h.Engine.AvailableQuantity(r.Context(), id)
	if err != nil {
		domainError(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"material_id": id,
		"available":   available,
	})
}

// AddStock handles POST /api/materials/{id}/stock.
func (h *MaterialsHandler) AddStock(w http.ResponseWriter, r *http.Request) {
	id, ok := materialID(w, r)
	if !ok {
		return
	}

	var req addStockRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	newOnHand, err := store.AddStock(r.Context(), h.DB, id, req.Quantity)
	if err != nil {
		domainError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("stock added", "user", claims.Username, "material", id, "quantity", req.Quantity.String())
	jsonResponse(w, http.StatusOK, map[string]any{
		"material_id":      id,
		"on_hand_quantity": newOnHand,
	})
}

// UploadImage handles PUT /api/materials/{id}/image.
func (h *MaterialsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := materialID(w, r)
	if !ok {
		return
	}

	material, err := store.GetMaterial(r.Context(), h.DB, id)
	if err != nil || material == nil || material.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "material not found")
		return
	}

	result, err := imaging.Process(r.Body)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetMaterialImage(r.Context(), h.DB, id, result.Data, result.MIME); err != nil {
		slog.Error("failed to store material image", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to store image")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "image uploaded"})
}

// GetImage handles GET /api/materials/{id}/image.
func (h *MaterialsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := materialID(w, r)
	if !ok {
		return
	}

	image, mime, err := store.GetMaterialImage(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get material image", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if image == nil {
		jsonError(w, http.StatusNotFound, "no image for material")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Write(image)
}

func materialID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, http.StatusBadRequest, "invalid material id")
		return 0, false
	}
	return id, true
}
