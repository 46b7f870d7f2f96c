package models

import (
	"errors"
	"fmt"
)

// Business-rule and validation errors surfaced to API callers. Every
// operation returning one of these has performed no mutation.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrCannotCancel      = errors.New("order cannot be cancelled")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyProcessed  = errors.New("submission already processed")
)

// InsufficientStockError reports which book could not cover the
// requested quantity. Raised both by the pre-checkout validation pass
// and by the in-transaction stock guard, so a caller cannot tell a
// stale cart from a lost race.
type InsufficientStockError struct {
	BookID int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for book %d", e.BookID)
}
