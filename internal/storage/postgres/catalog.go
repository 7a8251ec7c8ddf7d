package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storefront-go/storefront/internal/domain/catalog"
)

const (
	listProductsSQL = `SELECT id, name, description, price, stock, COALESCE(category_id, 0), image_url
		FROM products ORDER BY id`

	getProductSQL = `SELECT id, name, description, price, stock, COALESCE(category_id, 0), image_url
		FROM products WHERE id = $1`

	insertProductSQL = `INSERT INTO products (name, description, price, stock, category_id, image_url)
		VALUES ($1, $2, $3, $4, NULLIF($5, 0), $6) RETURNING id`

	updateProductSQL = `UPDATE products SET
		name        = COALESCE($2, name),
		description = COALESCE($3, description),
		price       = COALESCE($4, price),
		stock       = COALESCE($5, stock),
		category_id = COALESCE(NULLIF($6, 0), category_id),
		image_url   = COALESCE($7, image_url)
		WHERE id = $1
		RETURNING id, name, description, price, stock, COALESCE(category_id, 0), image_url`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	listCategoriesSQL = `SELECT id, name, description, image_url FROM categories ORDER BY id`
	getCategorySQL    = `SELECT id, name, description, image_url FROM categories WHERE id = $1`

	insertCategorySQL = `INSERT INTO categories (name, description, image_url)
		VALUES ($1, $2, $3) RETURNING id`

	updateCategorySQL = `UPDATE categories SET
		name        = COALESCE($2, name),
		description = COALESCE($3, description),
		image_url   = COALESCE($4, image_url)
		WHERE id = $1
		RETURNING id, name, description, image_url`

	deleteCategorySQL = `DELETE FROM categories WHERE id = $1`
)

var (
	_ catalog.ProductRepository  = (*ProductRepository)(nil)
	_ catalog.CategoryRepository = (*CategoryRepository)(nil)
)

// ProductRepository implements catalog.ProductRepository backed by PostgreSQL.
// Stock edits here are plain administrative writes; transactional stock
// reservation lives in OrderStore.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "listing products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting product %d", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, errors.Wrapf(err, "getting product %d", id)
	}
	return &p, nil
}

// Create persists a new product, filling its ID.
func (r *ProductRepository) Create(ctx context.Context, p *catalog.Product) error {
	err := r.pool.QueryRow(ctx, insertProductSQL,
		p.Name, p.Description, p.Price, p.Stock, p.CategoryID, p.ImageURL,
	).Scan(&p.ID)
	if err != nil {
		return errors.Wrapf(err, "creating product %q", p.Name)
	}
	return nil
}

// Update applies a partial edit and returns the resulting row.
func (r *ProductRepository) Update(ctx context.Context, id int64, upd catalog.ProductUpdate) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, updateProductSQL,
		id, upd.Name, upd.Description, upd.Price, upd.Stock, upd.CategoryID, upd.ImageURL,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "updating product %d", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, errors.Wrapf(err, "updating product %d", id)
	}
	return &p, nil
}

// Delete removes a product. Existing order items keep their weak reference.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	ct, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return errors.Wrapf(err, "deleting product %d", id)
	}
	if ct.RowsAffected() == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CategoryID, &p.ImageURL)
	return p, err
}

// CategoryRepository implements catalog.CategoryRepository backed by PostgreSQL.
type CategoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository returns a CategoryRepository that uses the given pool.
func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// List returns all categories ordered by ID.
func (r *CategoryRepository) List(ctx context.Context) ([]catalog.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "listing categories")
	}
	return pgx.CollectRows(rows, scanCategory)
}

// GetByID returns a single category.
func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*catalog.Category, error) {
	rows, err := r.pool.Query(ctx, getCategorySQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting category %d", id)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrCategoryNotFound
		}
		return nil, errors.Wrapf(err, "getting category %d", id)
	}
	return &c, nil
}

// Create persists a new category, filling its ID. A duplicate name is
// reported as catalog.ErrCategoryExists.
func (r *CategoryRepository) Create(ctx context.Context, c *catalog.Category) error {
	err := r.pool.QueryRow(ctx, insertCategorySQL, c.Name, c.Description, c.ImageURL).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrCategoryExists
		}
		return errors.Wrapf(err, "creating category %q", c.Name)
	}
	return nil
}

// Update applies a partial edit and returns the resulting row.
func (r *CategoryRepository) Update(ctx context.Context, id int64, upd catalog.CategoryUpdate) (*catalog.Category, error) {
	rows, err := r.pool.Query(ctx, updateCategorySQL, id, upd.Name, upd.Description, upd.ImageURL)
	if err != nil {
		return nil, errors.Wrapf(err, "updating category %d", id)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrCategoryNotFound
		}
		if isUniqueViolation(err) {
			return nil, catalog.ErrCategoryExists
		}
		return nil, errors.Wrapf(err, "updating category %d", id)
	}
	return &c, nil
}

// Delete removes a category; its products fall back to uncategorized.
func (r *CategoryRepository) Delete(ctx context.Context, id int64) error {
	ct, err := r.pool.Exec(ctx, deleteCategorySQL, id)
	if err != nil {
		return errors.Wrapf(err, "deleting category %d", id)
	}
	if ct.RowsAffected() == 0 {
		return catalog.ErrCategoryNotFound
	}
	return nil
}

func scanCategory(row pgx.CollectableRow) (catalog.Category, error) {
	var c catalog.Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.ImageURL)
	return c, err
}
