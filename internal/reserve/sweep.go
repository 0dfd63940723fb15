package reserve

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SweepExpired transitions every active reservation whose expiry has passed
// to expired and returns the count. Each row transition is an independent
// optimistic update, so a reservation cancelled or fulfilled concurrently is
// skipped, and a failed row is simply retried on the next sweep.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	// Expiry is compared in Go rather than in SQL so that rows written with
	// driver-bound timestamps and the current time always compare correctly.
	rows, err := e.DB.QueryContext(ctx,
		`SELECT id, material_id, expires_at FROM reservations
		 WHERE status = 'active' AND expires_at IS NOT NULL`,
	)
	if err != nil {
		return 0, fmt.Errorf("scanning for expired reservations: %w", err)
	}

	type candidate struct {
		id         string
		materialID int64
	}
	var due []candidate
	for rows.Next() {
		var c candidate
		var expiresAt time.Time
		if err := rows.Scan(&c.id, &c.materialID, &expiresAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning reservation expiry: %w", err)
		}
		if !expiresAt.After(now) {
			due = append(due, c)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	expired := 0
	touched := make(map[int64]bool)
	for _, c := range due {
		res, err := e.DB.ExecContext(ctx,
			`UPDATE reservations SET status = 'expired', updated_at = ?
			 WHERE id = ? AND status = 'active'`,
			now, c.id,
		)
		if err != nil {
			slog.Warn("failed to expire reservation", "reservation", c.id, "error", err)
			continue
		}
		if n, _ := res.RowsAffected(); n == 1 {
			expired++
			touched[c.materialID] = true
		}
	}

	for materialID := range touched {
		e.notify(ctx, materialID)
	}

	return expired, nil
}
