package catalog

import (
	"context"

	"github.com/go-faster/errors"
)

// Sentinel errors for category operations.
var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrCategoryExists   = errors.New("category already exists")
)

// Category groups products for browsing. It carries no cross-entity
// invariants; deleting a category leaves its products uncategorized.
type Category struct {
	ID          int64
	Name        string
	Description string
	ImageURL    string
}

// CategoryUpdate carries a partial category edit. Nil fields are left unchanged.
type CategoryUpdate struct {
	Name        *string
	Description *string
	ImageURL    *string
}

// CategoryRepository defines catalog persistence for categories.
type CategoryRepository interface {
	List(ctx context.Context) ([]Category, error)
	GetByID(ctx context.Context, id int64) (*Category, error)
	Create(ctx context.Context, c *Category) error
	Update(ctx context.Context, id int64, upd CategoryUpdate) (*Category, error)
	Delete(ctx context.Context, id int64) error
}
