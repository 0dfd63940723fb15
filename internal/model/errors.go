package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Domain errors returned by the store and the reservation engine. Callers
// match them with errors.Is / errors.As.
var (
	// ErrNotFound means the referenced material or reservation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidQuantity means a reservation quantity was zero or negative.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrInvalidExpiry means an expiry timestamp was not in the future.
	ErrInvalidExpiry = errors.New("expiry must be in the future")

	// ErrInvalidState means the operation is not valid for the reservation's
	// current status (terminal states never revert).
	ErrInvalidState = errors.New("reservation is not active")

	// ErrInsufficientOnHand means a ledger decrement would drive on-hand
	// stock below zero.
	ErrInsufficientOnHand = errors.New("insufficient on-hand quantity")

	// ErrLedgerInconsistency means fulfillment found less on-hand stock than
	// the reservation holds. The stock invariant was already broken upstream,
	// so this is alerting-level, not a normal rejection.
	ErrLedgerInconsistency = errors.New("ledger inconsistency: reserved quantity exceeds on-hand stock")
)

// InsufficientStockError is returned when a reservation would exceed a
// material's availability. It carries the shortfall so callers can adjust.
type InsufficientStockError struct {
	MaterialID int64
	Requested  decimal.Decimal
	Available  decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for material %d: requested %s, available %s",
		e.MaterialID, e.Requested, e.Available)
}
