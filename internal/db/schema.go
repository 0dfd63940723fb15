package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS materials (
    id                 INTEGER PRIMARY KEY,
    name               TEXT NOT NULL,
    unit               TEXT NOT NULL DEFAULT 'pcs',
    on_hand_quantity   TEXT NOT NULL DEFAULT '0',
    min_stock_quantity TEXT NOT NULL DEFAULT '0',
    supplier_note      TEXT,
    image              BLOB,
    image_mime         TEXT,
    created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at         DATETIME
);

CREATE TABLE IF NOT EXISTS reservations (
    id                TEXT PRIMARY KEY,
    material_id       INTEGER NOT NULL REFERENCES materials(id),
    order_id          TEXT,
    quantity_reserved TEXT NOT NULL,
    status            TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'fulfilled', 'cancelled', 'expired')),
    reserved_at       DATETIME NOT NULL,
    expires_at        DATETIME,
    reserved_by       TEXT,
    notes             TEXT,
    created_at        DATETIME NOT NULL,
    updated_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reservations_material_status
    ON reservations(material_id, status);

CREATE INDEX IF NOT EXISTS idx_reservations_status_expiry
    ON reservations(status, expires_at);

CREATE TABLE IF NOT EXISTS stock_alerts (
    id              INTEGER PRIMARY KEY,
    material_id     INTEGER NOT NULL REFERENCES materials(id),
    available       TEXT NOT NULL,
    threshold       TEXT NOT NULL,
    acknowledged    INTEGER NOT NULL DEFAULT 0,
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    acknowledged_at DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_stock_alerts_open
    ON stock_alerts(material_id) WHERE acknowledged = 0;

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
