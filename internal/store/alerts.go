package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/tiskarna/internal/model"
)

// StockAlert records that a material's availability dropped to or below its
// minimum stock threshold. At most one unacknowledged alert exists per
// material (enforced by a partial unique index).
type StockAlert struct {
	ID             int64           `json:"id"`
	MaterialID     int64           `json:"material_id"`
	Available      decimal.Decimal `json:"available"`
	Threshold      decimal.Decimal `json:"threshold"`
	Acknowledged   bool            `json:"acknowledged"`
	CreatedAt      time.Time       `json:"created_at"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`

	// Joined field (not always populated).
	MaterialName string `json:"material_name,omitempty"`
}

// OpenAlert records a low-stock alert for a material. Returns true if a new
// alert was created, false if one was already open (INSERT OR IGNORE against
// the partial unique index).
func OpenAlert(ctx context.Context, q Querier, materialID int64, available, threshold decimal.Decimal) (bool, error) {
	res, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO stock_alerts (material_id, available, threshold) VALUES (?, ?, ?)`,
		materialID, available.String(), threshold.String(),
	)
	if err != nil {
		return false, fmt.Errorf("opening stock alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking stock alert insert: %w", err)
	}
	return n > 0, nil
}

// ListOpenAlerts returns all unacknowledged alerts, newest first.
func ListOpenAlerts(ctx context.Context, q Querier) ([]StockAlert, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT a.id, a.material_id, a.available, a.threshold, a.acknowledged,
		        a.created_at, a.acknowledged_at, m.name
		 FROM stock_alerts a
		 JOIN materials m ON m.id = a.material_id
		 WHERE a.acknowledged = 0
		 ORDER BY a.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing stock alerts: %w", err)
	}
	defer rows.Close()

	var alerts []StockAlert
	for rows.Next() {
		var a StockAlert
		var available, threshold string
		var ackAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.MaterialID, &available, &threshold, &a.Acknowledged,
			&a.CreatedAt, &ackAt, &a.MaterialName); err != nil {
			return nil, fmt.Errorf("scanning stock alert: %w", err)
		}
		if a.Available, err = decimal.NewFromString(available); err != nil {
			return nil, fmt.Errorf("parsing alert availability: %w", err)
		}
		if a.Threshold, err = decimal.NewFromString(threshold); err != nil {
			return nil, fmt.Errorf("parsing alert threshold: %w", err)
		}
		if ackAt.Valid {
			a.AcknowledgedAt = &ackAt.Time
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// AcknowledgeAlert marks an alert as acknowledged. Returns model.ErrNotFound
// if the alert does not exist or is already acknowledged.
func AcknowledgeAlert(ctx context.Context, q Querier, id int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE stock_alerts SET acknowledged = 1, acknowledged_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND acknowledged = 0`, id,
	)
	if err != nil {
		return fmt.Errorf("acknowledging stock alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}
