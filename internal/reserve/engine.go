// Package reserve implements the material stock reservation engine.
//
// A reservation is a claim against a material's on-hand quantity. The engine
// guarantees that the sum of active reservations for a material never exceeds
// its on-hand stock, including under concurrent requests: every check-then-
// write runs in a SQLite transaction whose first statement writes the
// material row, so conflicting writers on the same material serialize behind
// the database's write lock.
//
// Availability is pessimistic: reservations whose expiry has passed still
// count as active until the sweeper transitions them. This trades a little
// utilization (bounded by the sweep interval) for never overselling.
package reserve

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erazemk/tiskarna/internal/model"
	"github.com/erazemk/tiskarna/internal/store"
)

// Notifier receives post-mutation availability updates. Implementations must
// return quickly; the engine calls them synchronously after commit and does
// not depend on their success.
type Notifier interface {
	AvailabilityChanged(materialID int64, available decimal.Decimal)
}

// Engine validates and atomically applies reservation operations.
type Engine struct {
	DB       *sql.DB
	Notifier Notifier // optional
}

// New creates an engine. notifier may be nil.
func New(db *sql.DB, notifier Notifier) *Engine {
	return &Engine{DB: db, Notifier: notifier}
}

// CreateRequest holds the inputs for creating a reservation.
type CreateRequest struct {
	MaterialID int64
	Quantity   decimal.Decimal
	OrderID    string
	ExpiresAt  *time.Time // nil means the reservation never auto-expires
	ReservedBy string
	Notes      string
}

// UpdateRequest holds a partial update of an active reservation. Nil fields
// are left unchanged. Quantity is validated before ExpiresAt; the first
// failing validation wins.
type UpdateRequest struct {
	Quantity  *decimal.Decimal
	ExpiresAt *time.Time
	Notes     *string
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	MaterialID int64
	Status     model.ReservationStatus
}

// Create reserves quantity against a material. Fails with
// model.ErrInvalidQuantity, model.ErrInvalidExpiry, model.ErrNotFound, or
// *model.InsufficientStockError.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*model.Reservation, error) {
	if !req.Quantity.IsPositive() {
		return nil, model.ErrInvalidQuantity
	}

	now := time.Now().UTC()
	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		t := req.ExpiresAt.UTC()
		if !t.After(now) {
			return nil, model.ErrInvalidExpiry
		}
		expiresAt = &t
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockMaterial(ctx, tx, req.MaterialID); err != nil {
		return nil, err
	}

	available, err := availableLocked(ctx, tx, req.MaterialID)
	if err != nil {
		return nil, err
	}
	if req.Quantity.GreaterThan(available) {
		return nil, &model.InsufficientStockError{
			MaterialID: req.MaterialID,
			Requested:  req.Quantity,
			Available:  available,
		}
	}

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO reservations
		     (id, material_id, order_id, quantity_reserved, status, reserved_at,
		      expires_at, reserved_by, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, req.MaterialID, req.OrderID, req.Quantity.String(), model.ReservationActive,
		now, expiresAt, req.ReservedBy, req.Notes, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing reservation: %w", err)
	}

	e.notify(ctx, req.MaterialID)

	return &model.Reservation{
		ID:               id,
		MaterialID:       req.MaterialID,
		OrderID:          req.OrderID,
		QuantityReserved: req.Quantity,
		Status:           model.ReservationActive,
		ReservedAt:       now,
		ExpiresAt:        expiresAt,
		ReservedBy:       req.ReservedBy,
		Notes:            req.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Update applies a partial update to an active reservation. A quantity
// increase re-validates against availability, excluding the reservation's own
// current hold.
func (e *Engine) Update(ctx context.Context, id string, req UpdateRequest) (*model.Reservation, error) {
	now := time.Now().UTC()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Serialize against concurrent creates on the same material. Matches no
	// row for an unknown reservation; getReservation diagnoses that below.
	if _, err := tx.ExecContext(ctx,
		`UPDATE materials SET updated_at = updated_at
		 WHERE id = (SELECT material_id FROM reservations WHERE id = ?)`, id,
	); err != nil {
		return nil, fmt.Errorf("locking material: %w", err)
	}

	r, err := getReservation(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, model.ErrNotFound
	}
	if r.Status != model.ReservationActive {
		return nil, model.ErrInvalidState
	}

	newQty := r.QuantityReserved
	if req.Quantity != nil {
		if !req.Quantity.IsPositive() {
			return nil, model.ErrInvalidQuantity
		}
		newQty = *req.Quantity
	}

	newExpiry := r.ExpiresAt
	if req.ExpiresAt != nil {
		t := req.ExpiresAt.UTC()
		if !t.After(now) {
			return nil, model.ErrInvalidExpiry
		}
		newExpiry = &t
	}

	if newQty.GreaterThan(r.QuantityReserved) {
		available, err := availableLocked(ctx, tx, r.MaterialID)
		if err != nil {
			return nil, err
		}
		// The reservation's own current hold does not count against the
		// increase.
		headroom := available.Add(r.QuantityReserved)
		if newQty.GreaterThan(headroom) {
			return nil, &model.InsufficientStockError{
				MaterialID: r.MaterialID,
				Requested:  newQty,
				Available:  headroom,
			}
		}
	}

	notes := r.Notes
	if req.Notes != nil {
		notes = *req.Notes
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE reservations
		 SET quantity_reserved = ?, expires_at = ?, notes = ?, updated_at = ?
		 WHERE id = ? AND status = 'active'`,
		newQty.String(), newExpiry, notes, now, id,
	); err != nil {
		return nil, fmt.Errorf("updating reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing reservation update: %w", err)
	}

	if !newQty.Equal(r.QuantityReserved) {
		e.notify(ctx, r.MaterialID)
	}

	updated := *r
	updated.QuantityReserved = newQty
	updated.ExpiresAt = newExpiry
	updated.Notes = notes
	updated.UpdatedAt = now
	return &updated, nil
}

// Cancel transitions an active reservation to cancelled, releasing its hold.
// Cancelling an already-cancelled reservation is a no-op; any other terminal
// state fails model.ErrInvalidState. The transition is a single optimistic
// statement, so it is safe against a concurrent sweep or fulfillment.
func (e *Engine) Cancel(ctx context.Context, id, reason string) error {
	now := time.Now().UTC()

	res, err := e.DB.ExecContext(ctx,
		`UPDATE reservations
		 SET status = 'cancelled', updated_at = ?,
		     notes = CASE
		         WHEN ? = '' THEN notes
		         WHEN notes IS NULL OR notes = '' THEN ?
		         ELSE notes || '; ' || ?
		     END
		 WHERE id = ? AND status = 'active'`,
		now, reason, reason, reason, id,
	)
	if err != nil {
		return fmt.Errorf("cancelling reservation: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		r, err := getReservation(ctx, e.DB, id)
		if err != nil {
			return err
		}
		if r == nil {
			return model.ErrNotFound
		}
		if r.Status == model.ReservationCancelled {
			return nil
		}
		return model.ErrInvalidState
	}

	var materialID int64
	if err := e.DB.QueryRowContext(ctx,
		`SELECT material_id FROM reservations WHERE id = ?`, id,
	).Scan(&materialID); err != nil {
		return fmt.Errorf("reading cancelled reservation: %w", err)
	}
	e.notify(ctx, materialID)
	return nil
}

// Fulfill converts an active reservation into a physical stock deduction:
// on-hand is decremented by the reserved quantity and the reservation becomes
// fulfilled, in one transaction. This is the only path that touches on-hand
// stock; cancel and expiry never do.
func (e *Engine) Fulfill(ctx context.Context, id string) error {
	now := time.Now().UTC()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE materials SET updated_at = updated_at
		 WHERE id = (SELECT material_id FROM reservations WHERE id = ?)`, id,
	); err != nil {
		return fmt.Errorf("locking material: %w", err)
	}

	r, err := getReservation(ctx, tx, id)
	if err != nil {
		return err
	}
	if r == nil {
		return model.ErrNotFound
	}
	if r.Status != model.ReservationActive {
		return model.ErrInvalidState
	}

	if _, err := store.DecrementOnHand(ctx, tx, r.MaterialID, r.QuantityReserved); err != nil {
		if errors.Is(err, model.ErrInsufficientOnHand) {
			// The stock invariant was already broken upstream; this must
			// never happen and is alerting-level.
			slog.Error("ledger inconsistency during fulfillment",
				"reservation", id,
				"material", r.MaterialID,
				"reserved", r.QuantityReserved.String())
			return model.ErrLedgerInconsistency
		}
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE reservations SET status = 'fulfilled', updated_at = ?
		 WHERE id = ? AND status = 'active'`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("fulfilling reservation: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("reservation %s changed during fulfillment", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing fulfillment: %w", err)
	}

	// Availability is unchanged by fulfillment: on-hand and the active hold
	// drop together, so no notification fires.
	return nil
}

// Get returns a reservation by id.
func (e *Engine) Get(ctx context.Context, id string) (*model.Reservation, error) {
	r, err := getReservation(ctx, e.DB, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, model.ErrNotFound
	}
	return r, nil
}

// List returns reservations matching the filter, newest first.
func (e *Engine) List(ctx context.Context, f Filter) ([]model.Reservation, error) {
	query := `SELECT id, material_id, order_id, quantity_reserved, status, reserved_at,
	                 expires_at, reserved_by, notes, created_at, updated_at
	          FROM reservations WHERE 1=1`
	var args []any

	if f.MaterialID > 0 {
		query += ` AND material_id = ?`
		args = append(args, f.MaterialID)
	}
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, fmt.Errorf("unknown reservation status %q", f.Status)
		}
		query += ` AND status = ?`
		args = append(args, f.Status)
	}

	query += ` ORDER BY reserved_at DESC, id`

	rows, err := e.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reservations: %w", err)
	}
	defer rows.Close()

	var reservations []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, *r)
	}
	return reservations, rows.Err()
}

// AvailableQuantity returns on-hand minus all active reservation holds for a
// material. Pure read against the latest committed state.
func (e *Engine) AvailableQuantity(ctx context.Context, materialID int64) (decimal.Decimal, error) {
	return availableLocked(ctx, e.DB, materialID)
}

// notify reports the material's post-mutation availability to the configured
// notifier. Failures to compute availability only log; the mutation has
// already committed.
func (e *Engine) notify(ctx context.Context, materialID int64) {
	if e.Notifier == nil {
		return
	}
	available, err := availableLocked(ctx, e.DB, materialID)
	if err != nil {
		slog.Warn("failed to compute availability for notification",
			"material", materialID, "error", err)
		return
	}
	e.Notifier.AvailabilityChanged(materialID, available)
}

// lockMaterial takes the write lock via the material row as the transaction's
// first statement, so the following availability check and insert cannot race
// another writer. Returns model.ErrNotFound for unknown or deleted materials.
func lockMaterial(ctx context.Context, tx *sql.Tx, materialID int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE materials SET updated_at = updated_at WHERE id = ? AND deleted_at IS NULL`,
		materialID,
	)
	if err != nil {
		return fmt.Errorf("locking material: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// availableLocked computes on-hand minus the sum of active holds using q.
// Reservations past their expiry but not yet swept still count.
func availableLocked(ctx context.Context, q store.Querier, materialID int64) (decimal.Decimal, error) {
	onHand, err := store.GetOnHand(ctx, q, materialID)
	if err != nil {
		return decimal.Zero, err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT quantity_reserved FROM reservations WHERE material_id = ? AND status = 'active'`,
		materialID,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("summing active reservations: %w", err)
	}
	defer rows.Close()

	reserved := decimal.Zero
	for rows.Next() {
		var qty string
		if err := rows.Scan(&qty); err != nil {
			return decimal.Zero, fmt.Errorf("scanning reserved quantity: %w", err)
		}
		d, err := decimal.NewFromString(qty)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parsing reserved quantity: %w", err)
		}
		reserved = reserved.Add(d)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, err
	}

	return onHand.Sub(reserved), nil
}

// getReservation returns a reservation by id using q, or (nil, nil) if it
// does not exist.
func getReservation(ctx context.Context, q store.Querier, id string) (*model.Reservation, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, material_id, order_id, quantity_reserved, status, reserved_at,
		        expires_at, reserved_by, notes, created_at, updated_at
		 FROM reservations WHERE id = ?`, id,
	)
	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
	r := &model.Reservation{}
	var orderID, reservedBy, notes sql.NullString
	var qty, status string
	var expiresAt sql.NullTime

	err := row.Scan(&r.ID, &r.MaterialID, &orderID, &qty, &status, &r.ReservedAt,
		&expiresAt, &reservedBy, &notes, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning reservation: %w", err)
	}

	if r.QuantityReserved, err = decimal.NewFromString(qty); err != nil {
		return nil, fmt.Errorf("parsing reserved quantity: %w", err)
	}
	r.Status = model.ReservationStatus(status)
	r.OrderID = orderID.String
	r.ReservedBy = reservedBy.String
	r.Notes = notes.String
	if expiresAt.Valid {
		t := expiresAt.Time
		r.ExpiresAt = &t
	}
	return r, nil
}
