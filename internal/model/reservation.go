package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReservationStatus is the lifecycle state of a reservation. Active is the
// only non-terminal state; fulfilled, cancelled and expired are terminal and
// never revert.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationExpired   ReservationStatus = "expired"
)

// Valid reports whether s is a known status.
func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationActive, ReservationFulfilled, ReservationCancelled, ReservationExpired:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal state.
func (s ReservationStatus) Terminal() bool {
	return s.Valid() && s != ReservationActive
}

// CanTransitionTo reports whether the state machine allows moving from s to
// next. Only active → {fulfilled, cancelled, expired} is permitted.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	return s == ReservationActive && next.Terminal()
}

// Reservation is a claim against a material's on-hand quantity. Active
// reservations reduce availability but never touch physical stock; only
// fulfillment converts the claim into an on-hand deduction. Reservations are
// kept as audit records after reaching a terminal state.
type Reservation struct {
	ID               string            `json:"id"`
	MaterialID       int64             `json:"material_id"`
	OrderID          string            `json:"order_id,omitempty"`
	QuantityReserved decimal.Decimal   `json:"quantity_reserved"`
	Status           ReservationStatus `json:"status"`
	ReservedAt       time.Time         `json:"reserved_at"`
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
	ReservedBy       string            `json:"reserved_by,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}
