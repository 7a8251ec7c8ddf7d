package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for order lifecycle operations.
var (
	// ErrNotFound covers both a missing order and an ownership mismatch;
	// callers cannot distinguish the two.
	ErrNotFound = errors.New("order not found")

	// ErrEmptyItems rejects carts with no lines.
	ErrEmptyItems = errors.New("items required")

	// ErrConflict reports a bounded lock wait that timed out or a
	// transaction aborted by concurrent activity. It is the only error a
	// caller may retry.
	ErrConflict = errors.New("conflicting concurrent operation")
)

// ProductNotFoundError indicates a cart line references a product with no
// catalog row.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// InsufficientStockError indicates a cart line requests more than the
// remaining visible stock. Requested and Available name the exact quantities
// so the rejection is never anonymous.
type InsufficientStockError struct {
	ProductID int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// InvalidQuantityError indicates a cart line with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %d", e.ProductID)
}
