package catalog

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrProductNotFound is returned when a requested product does not exist.
var ErrProductNotFound = errors.New("product not found")

// Product is a catalog item available for purchase. Price is in minor
// currency units. Stock is mutated only by the order engine and by
// administrative catalog edits; it never goes negative.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       int64
	Stock       int64
	CategoryID  int64
	ImageURL    string
}

// ProductUpdate carries a partial product edit. Nil fields are left unchanged.
type ProductUpdate struct {
	Name        *string
	Description *string
	Price       *int64
	Stock       *int64
	CategoryID  *int64
	ImageURL    *string
}

// ProductRepository defines catalog persistence for products.
type ProductRepository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, id int64, upd ProductUpdate) (*Product, error)
	Delete(ctx context.Context, id int64) error
}
