package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Material represents a stock-tracked printing material (paper, ink, supplies).
// OnHandQuantity is the authoritative physical stock; it is only changed by
// manual stock transactions and reservation fulfillment, never by reservations
// themselves.
type Material struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	OnHandQuantity   decimal.Decimal `json:"on_hand_quantity"`
	MinStockQuantity decimal.Decimal `json:"min_stock_quantity"`
	SupplierNote     string          `json:"supplier_note,omitempty"`
	ImageMime        string          `json:"image_mime,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DeletedAt        *time.Time      `json:"deleted_at,omitempty"`
}
