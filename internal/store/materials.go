package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/erazemk/tiskarna/internal/model"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// ledger operations can run standalone or inside the reservation engine's
// transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateMaterial creates a new material with zero on-hand stock.
func CreateMaterial(ctx context.Context, q Querier, name, unit string, minStock decimal.Decimal, supplierNote string) (*model.Material, error) {
	if unit == "" {
		unit = "pcs"
	}
	if minStock.IsNegative() {
		return nil, fmt.Errorf("minimum stock must not be negative")
	}

	result, err := q.ExecContext(ctx,
		`INSERT INTO materials (name, unit, min_stock_quantity, supplier_note) VALUES (?, ?, ?, ?)`,
		name, unit, minStock.String(), supplierNote,
	)
	if err != nil {
		return nil, fmt.Errorf("creating material: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting material id: %w", err)
	}

	return GetMaterial(ctx, q, id)
}

// GetMaterial returns a material by ID, or (nil, nil) if it does not exist.
func GetMaterial(ctx context.Context, q Querier, id int64) (*model.Material, error) {
	m := &model.Material{}
	var onHand, minStock string
	var supplierNote, imageMime sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT id, name, unit, on_hand_quantity, min_stock_quantity, supplier_note, image_mime,
		        created_at, updated_at, deleted_at
		 FROM materials WHERE id = ?`, id,
	).Scan(&m.ID, &m.Name, &m.Unit, &onHand, &minStock, &supplierNote, &imageMime,
		&m.CreatedAt, &m.UpdatedAt, &m.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting material: %w", err)
	}

	if m.OnHandQuantity, err = decimal.NewFromString(onHand); err != nil {
		return nil, fmt.Errorf("parsing on-hand quantity: %w", err)
	}
	if m.MinStockQuantity, err = decimal.NewFromString(minStock); err != nil {
		return nil, fmt.Errorf("parsing minimum stock quantity: %w", err)
	}
	m.SupplierNote = supplierNote.String
	m.ImageMime = imageMime.String
	return m, nil
}

// ListMaterials returns all non-deleted materials ordered by name.
func ListMaterials(ctx context.Context, q Querier) ([]model.Material, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, unit, on_hand_quantity, min_stock_quantity, supplier_note, image_mime,
		        created_at, updated_at, deleted_at
		 FROM materials WHERE deleted_at IS NULL ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing materials: %w", err)
	}
	defer rows.Close()

	var materials []model.Material
	for rows.Next() {
		var m model.Material
		var onHand, minStock string
		var supplierNote, imageMime sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &m.Unit, &onHand, &minStock, &supplierNote, &imageMime,
			&m.CreatedAt, &m.UpdatedAt, &m.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning material: %w", err)
		}
		if m.OnHandQuantity, err = decimal.NewFromString(onHand); err != nil {
			return nil, fmt.Errorf("parsing on-hand quantity: %w", err)
		}
		if m.MinStockQuantity, err = decimal.NewFromString(minStock); err != nil {
			return nil, fmt.Errorf("parsing minimum stock quantity: %w", err)
		}
		m.SupplierNote = supplierNote.String
		m.ImageMime = imageMime.String
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

// UpdateMaterial updates a material's metadata. On-hand stock is not touched
// here; use AddStock or the reservation engine's fulfillment path.
func UpdateMaterial(ctx context.Context, q Querier, id int64, name, unit string, minStock decimal.Decimal, supplierNote string) error {
	if minStock.IsNegative() {
		return fmt.Errorf("minimum stock must not be negative")
	}
	_, err := q.ExecContext(ctx,
		`UPDATE materials SET name = ?, unit = ?, min_stock_quantity = ?, supplier_note = ?,
		        updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		name, unit, minStock.String(), supplierNote, id,
	)
	if err != nil {
		return fmt.Errorf("updating material: %w", err)
	}
	return nil
}

// DeleteMaterial soft-deletes a material. Fails if the material still has
// active reservations, since those count against its stock.
func DeleteMaterial(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Take the write lock up front so a concurrent reservation cannot slip in
	// between the check and the delete.
	res, err := tx.ExecContext(ctx,
		`UPDATE materials SET updated_at = updated_at WHERE id = ? AND deleted_at IS NULL`, id,
	)
	if err != nil {
		return fmt.Errorf("locking material: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}

	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE material_id = ? AND status = 'active'`, id,
	).Scan(&active)
	if err != nil {
		return fmt.Errorf("checking active reservations: %w", err)
	}
	if active > 0 {
		return fmt.Errorf("material has %d active reservations", active)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE materials SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id,
	)
	if err != nil {
		return fmt.Errorf("deleting material: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing material deletion: %w", err)
	}
	return nil
}

// GetOnHand returns a material's current on-hand quantity. Returns
// model.ErrNotFound for unknown or deleted materials.
func GetOnHand(ctx context.Context, q Querier, id int64) (decimal.Decimal, error) {
	var onHand string
	err := q.QueryRowContext(ctx,
		`SELECT on_hand_quantity FROM materials WHERE id = ? AND deleted_at IS NULL`, id,
	).Scan(&onHand)
	if err == sql.ErrNoRows {
		return decimal.Zero, model.ErrNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("getting on-hand quantity: %w", err)
	}
	qty, err := decimal.NewFromString(onHand)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing on-hand quantity: %w", err)
	}
	return qty, nil
}

// AddStock increments a material's on-hand quantity (manual stock
// transaction, e.g. a delivery).
func AddStock(ctx context.Context, db *sql.DB, id int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, model.ErrInvalidQuantity
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// First statement is a write so the transaction holds the write lock for
	// the whole read-modify-write.
	res, err := tx.ExecContext(ctx,
		`UPDATE materials SET updated_at = updated_at WHERE id = ? AND deleted_at IS NULL`, id,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("locking material: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return decimal.Zero, model.ErrNotFound
	}

	onHand, err := GetOnHand(ctx, tx, id)
	if err != nil {
		return decimal.Zero, err
	}

	newOnHand := onHand.Add(amount)
	if err := setOnHand(ctx, tx, id, newOnHand); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("committing stock addition: %w", err)
	}
	return newOnHand, nil
}

// DecrementOnHand decreases a material's on-hand quantity, failing with
// model.ErrInsufficientOnHand if it would go below zero. Must run inside a
// transaction that already holds the write lock on the material (the
// reservation engine's fulfillment path does this).
func DecrementOnHand(ctx context.Context, q Querier, id int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, model.ErrInvalidQuantity
	}

	onHand, err := GetOnHand(ctx, q, id)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.GreaterThan(onHand) {
		return decimal.Zero, model.ErrInsufficientOnHand
	}

	newOnHand := onHand.Sub(amount)
	if err := setOnHand(ctx, q, id, newOnHand); err != nil {
		return decimal.Zero, err
	}
	return newOnHand, nil
}

func setOnHand(ctx context.Context, q Querier, id int64, qty decimal.Decimal) error {
	_, err := q.ExecContext(ctx,
		`UPDATE materials SET on_hand_quantity = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		qty.String(), id,
	)
	if err != nil {
		return fmt.Errorf("setting on-hand quantity: %w", err)
	}
	return nil
}

// SetMaterialImage sets a material's sample photo.
func SetMaterialImage(ctx context.Context, q Querier, id int64, image []byte, mime string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE materials SET image = ?, image_mime = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting material image: %w", err)
	}
	return nil
}

// GetMaterialImage returns a material's sample photo and MIME type.
func GetMaterialImage(ctx context.Context, q Querier, id int64) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT image, image_mime FROM materials WHERE id = ?`, id,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting material image: %w", err)
	}
	return image, mime.String, nil
}
