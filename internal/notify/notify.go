// Package notify turns availability changes into low-stock alerts. Delivery
// to external channels is out of scope; alerts are recorded in the database
// and logged, for the API (or a future dispatcher) to pick up.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/tiskarna/internal/store"
)

// monitorTimeout bounds the database work done per availability event.
const monitorTimeout = 5 * time.Second

// Monitor watches post-mutation availability and records a low-stock alert
// when a material drops to or below its minimum stock threshold. At most one
// open alert exists per material; it stays open until acknowledged.
type Monitor struct {
	DB store.Querier
}

// NewMonitor creates a threshold monitor.
func NewMonitor(db store.Querier) *Monitor {
	return &Monitor{DB: db}
}

// AvailabilityChanged implements the reservation engine's notifier contract.
// Errors only log; the engine never depends on notification success.
func (m *Monitor) AvailabilityChanged(materialID int64, available decimal.Decimal) {
	ctx, cancel := context.WithTimeout(context.Background(), monitorTimeout)
	defer cancel()

	material, err := store.GetMaterial(ctx, m.DB, materialID)
	if err != nil {
		slog.Warn("threshold monitor failed to load material",
			"material", materialID, "error", err)
		return
	}
	if material == nil || material.DeletedAt != nil {
		return
	}

	if available.GreaterThan(material.MinStockQuantity) {
		return
	}

	created, err := store.OpenAlert(ctx, m.DB, materialID, available, material.MinStockQuantity)
	if err != nil {
		slog.Warn("failed to record low-stock alert",
			"material", materialID, "error", err)
		return
	}
	if created {
		slog.Warn("low stock",
			"material", materialID,
			"name", material.Name,
			"available", available.String(),
			"threshold", material.MinStockQuantity.String())
	}
}
