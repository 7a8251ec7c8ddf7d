package order

import (
	"context"
	"time"

	"github.com/storefront-go/storefront/internal/domain/catalog"
)

// Status enumerates order lifecycle states. Only pending is modeled; the
// column exists for forward compatibility with shipped/cancelled flows.
type Status string

// StatusPending is the state every order is created in.
const StatusPending Status = "pending"

// UnknownProductName is the display label rendered for an item whose product
// has since been deleted from the catalog.
const UnknownProductName = "Unknown Product"

// Order is a placed order owned by a single user. TotalAmount is the exact
// integer sum of item price*quantity in minor currency units.
type Order struct {
	ID          int64
	UserID      int64
	TotalAmount int64
	Status      Status
	Items       []Item
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Item is one line of an order. Price is the product's unit price captured
// at order time and never recomputed, even if the catalog price changes.
// ProductName is derived on read and not stored.
type Item struct {
	ID          int64
	ProductID   int64
	ProductName string
	Quantity    int64
	Price       int64
}

// CartLine is one requested product/quantity pair.
type CartLine struct {
	ProductID int64
	Quantity  int64
}

// Cart is the ordered sequence of lines submitted for one order operation.
// Duplicate product references are kept as separate lines.
type Cart []CartLine

// CatalogView is the live, lock-acquiring view of the catalog the
// reservation algorithm validates against.
type CatalogView interface {
	// ProductForUpdate returns the product row, holding a row lock on it for
	// the remainder of the transaction. Returns catalog.ErrProductNotFound
	// when no such row exists.
	ProductForUpdate(ctx context.Context, id int64) (*catalog.Product, error)
}

// Tx is the unit of work handed to lifecycle operations. Every method sees
// the same database transaction; if the callback passed to Store.InTx
// returns an error, nothing done through Tx is visible afterwards.
type Tx interface {
	CatalogView

	// AdjustStock adds delta (which may be negative) to a product's stock.
	// Adjusting a product that no longer exists is a no-op: order items hold
	// weak references and restored stock for a deleted product has nowhere
	// to go.
	AdjustStock(ctx context.Context, productID, delta int64) error

	// InsertOrder persists o and fills its ID, CreatedAt and UpdatedAt.
	InsertOrder(ctx context.Context, o *Order) error

	// InsertItems persists items for an existing order, filling item IDs.
	InsertItems(ctx context.Context, orderID int64, items []Item) error

	// OrderForUpdate loads an order with its items, row-locked, scoped to
	// ownerID. Returns ErrNotFound for both absence and ownership mismatch.
	OrderForUpdate(ctx context.Context, ownerID, orderID int64) (*Order, error)

	// DeleteItems removes all items of an order.
	DeleteItems(ctx context.Context, orderID int64) error

	// DeleteOrder removes the order row itself.
	DeleteOrder(ctx context.Context, orderID int64) error

	// SetTotal overwrites the order total and bumps updated_at, returning
	// the new timestamp.
	SetTotal(ctx context.Context, orderID, total int64) (time.Time, error)
}

// Store is the persistence boundary for the order lifecycle. Writes go
// through InTx; reads are owner-scoped and run at default isolation.
type Store interface {
	// InTx runs fn inside a single transaction. fn returning an error
	// discards every change; bounded lock waits inside fn surface as
	// ErrConflict.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// GetOrder loads an order with items, scoped to ownerID.
	// Returns ErrNotFound for both absence and ownership mismatch.
	GetOrder(ctx context.Context, ownerID, orderID int64) (*Order, error)

	// ListByOwner returns all orders of a user, newest first, with items.
	ListByOwner(ctx context.Context, ownerID int64) ([]Order, error)

	// ProductNames resolves display names for the given product IDs.
	// Missing products are simply absent from the result.
	ProductNames(ctx context.Context, ids []int64) (map[int64]string, error)
}
