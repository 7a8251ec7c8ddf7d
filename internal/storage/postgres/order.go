package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storefront-go/storefront/internal/domain/catalog"
	"github.com/storefront-go/storefront/internal/domain/order"
)

const (
	getOrderSQL = `SELECT id, user_id, total_amount, status, created_at, updated_at
		FROM orders WHERE id = $1 AND user_id = $2`

	orderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	listOrdersSQL = `SELECT id, user_id, total_amount, status, created_at, updated_at
		FROM orders WHERE user_id = $1 ORDER BY id DESC`

	listItemsSQL = `SELECT id, order_id, product_id, quantity, price
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`

	productNamesSQL = `SELECT id, name FROM products WHERE id = ANY($1)`

	productForUpdateSQL = `SELECT id, name, description, price, stock, COALESCE(category_id, 0), image_url
		FROM products WHERE id = $1 FOR UPDATE`

	adjustStockSQL = `UPDATE products SET stock = stock + $2 WHERE id = $1`

	insertOrderSQL = `INSERT INTO orders (user_id, total_amount, status)
		VALUES ($1, $2, $3) RETURNING id, created_at, updated_at`

	insertItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4) RETURNING id`

	deleteItemsSQL = `DELETE FROM order_items WHERE order_id = $1`
	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	setTotalSQL = `UPDATE orders SET total_amount = $2, updated_at = now()
		WHERE id = $1 RETURNING updated_at`
)

// DefaultLockTimeout bounds row lock waits inside order transactions. A wait
// exceeding it surfaces as order.ErrConflict instead of blocking the caller.
const DefaultLockTimeout = 3 * time.Second

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL. Every lifecycle
// mutation runs in one read-committed transaction with FOR UPDATE row locks
// on the products it touches, so concurrent requests against overlapping
// products serialize instead of over-reserving stock.
type OrderStore struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewOrderStore returns an OrderStore using the given pool. A non-positive
// lockTimeout falls back to DefaultLockTimeout.
func NewOrderStore(pool *pgxpool.Pool, lockTimeout time.Duration) *OrderStore {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &OrderStore{pool: pool, lockTimeout: lockTimeout}
}

// InTx runs fn in a single transaction. Any error from fn rolls everything
// back; lock timeouts, deadlocks and serialization failures are reported as
// order.ErrConflict. Context cancellation aborts the transaction.
func (s *OrderStore) InTx(ctx context.Context, fn func(tx order.Tx) error) error {
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() { _ = pgtx.Rollback(ctx) }()

	if _, err := pgtx.Exec(ctx, lockTimeoutSQL(s.lockTimeout)); err != nil {
		return errors.Wrap(err, "set lock timeout")
	}

	if err := fn(&orderTx{tx: pgtx}); err != nil {
		return asConflict(err)
	}

	if err := pgtx.Commit(ctx); err != nil {
		return asConflict(errors.Wrap(err, "commit transaction"))
	}
	return nil
}

// GetOrder loads one order with its items, owner scoped.
func (s *OrderStore) GetOrder(ctx context.Context, ownerID, orderID int64) (*order.Order, error) {
	rows, err := s.pool.Query(ctx, getOrderSQL, orderID, ownerID)
	if err != nil {
		return nil, errors.Wrapf(err, "getting order %d", orderID)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting order %d", orderID)
	}

	items, err := loadItems(ctx, s.pool, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return &o, nil
}

// ListByOwner loads all of a user's orders with their items, newest first.
func (s *OrderStore) ListByOwner(ctx context.Context, ownerID int64) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, listOrdersSQL, ownerID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing orders for user %d", ownerID)
	}

	list, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrapf(err, "listing orders for user %d", ownerID)
	}
	if len(list) == 0 {
		return []order.Order{}, nil
	}

	ids := make([]int64, len(list))
	for i, o := range list {
		ids[i] = o.ID
	}
	items, err := loadItems(ctx, s.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Items = items[list[i].ID]
	}
	return list, nil
}

// ProductNames resolves display names for the given product IDs; deleted
// products are simply absent from the result.
func (s *OrderStore) ProductNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	rows, err := s.pool.Query(ctx, productNamesSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "resolving product names")
	}
	defer rows.Close()

	names := make(map[int64]string, len(ids))
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, errors.Wrap(err, "scanning product name")
		}
		names[id] = name
	}
	return names, rows.Err()
}

// orderTx implements order.Tx over one pgx transaction.
type orderTx struct {
	tx pgx.Tx
}

var _ order.Tx = (*orderTx)(nil)

func (t *orderTx) ProductForUpdate(ctx context.Context, id int64) (*catalog.Product, error) {
	var p catalog.Product
	err := t.tx.QueryRow(ctx, productForUpdateSQL, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CategoryID, &p.ImageURL,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, errors.Wrapf(err, "locking product %d", id)
	}
	return &p, nil
}

func (t *orderTx) AdjustStock(ctx context.Context, productID, delta int64) error {
	// Zero rows affected means the product was deleted since the order was
	// placed; order items are weak references, so that is fine.
	if _, err := t.tx.Exec(ctx, adjustStockSQL, productID, delta); err != nil {
		return errors.Wrapf(err, "adjusting stock of product %d by %d", productID, delta)
	}
	return nil
}

func (t *orderTx) InsertOrder(ctx context.Context, o *order.Order) error {
	err := t.tx.QueryRow(ctx, insertOrderSQL, o.UserID, o.TotalAmount, string(o.Status)).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "inserting order")
	}
	return nil
}

func (t *orderTx) InsertItems(ctx context.Context, orderID int64, items []order.Item) error {
	for i := range items {
		err := t.tx.QueryRow(ctx, insertItemSQL,
			orderID, items[i].ProductID, items[i].Quantity, items[i].Price,
		).Scan(&items[i].ID)
		if err != nil {
			return errors.Wrapf(err, "inserting item for product %d", items[i].ProductID)
		}
	}
	return nil
}

func (t *orderTx) OrderForUpdate(ctx context.Context, ownerID, orderID int64) (*order.Order, error) {
	rows, err := t.tx.Query(ctx, orderForUpdateSQL, orderID, ownerID)
	if err != nil {
		return nil, errors.Wrapf(err, "locking order %d", orderID)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "locking order %d", orderID)
	}

	items, err := loadItems(ctx, t.tx, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return &o, nil
}

func (t *orderTx) DeleteItems(ctx context.Context, orderID int64) error {
	if _, err := t.tx.Exec(ctx, deleteItemsSQL, orderID); err != nil {
		return errors.Wrapf(err, "deleting items of order %d", orderID)
	}
	return nil
}

func (t *orderTx) DeleteOrder(ctx context.Context, orderID int64) error {
	if _, err := t.tx.Exec(ctx, deleteOrderSQL, orderID); err != nil {
		return errors.Wrapf(err, "deleting order %d", orderID)
	}
	return nil
}

func (t *orderTx) SetTotal(ctx context.Context, orderID, total int64) (time.Time, error) {
	var updatedAt time.Time
	if err := t.tx.QueryRow(ctx, setTotalSQL, orderID, total).Scan(&updatedAt); err != nil {
		return time.Time{}, errors.Wrapf(err, "updating total of order %d", orderID)
	}
	return updatedAt, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &status, &o.CreatedAt, &o.UpdatedAt)
	o.Status = order.Status(status)
	return o, err
}

// loadItems fetches the items of the given orders in one query, grouped by
// order ID.
func loadItems(ctx context.Context, q querier, orderIDs []int64) (map[int64][]order.Item, error) {
	rows, err := q.Query(ctx, listItemsSQL, orderIDs)
	if err != nil {
		return nil, errors.Wrap(err, "loading order items")
	}
	defer rows.Close()

	items := make(map[int64][]order.Item, len(orderIDs))
	for rows.Next() {
		var (
			it      order.Item
			orderID int64
		)
		if err := rows.Scan(&it.ID, &orderID, &it.ProductID, &it.Quantity, &it.Price); err != nil {
			return nil, errors.Wrap(err, "scanning order item")
		}
		items[orderID] = append(items[orderID], it)
	}
	return items, rows.Err()
}

// asConflict rewrites race-indicating Postgres failures to the retryable
// order.ErrConflict; everything else passes through untouched.
func asConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && isConflictCode(pgErr.Code) {
		return errors.Wrap(order.ErrConflict, pgErr.Message)
	}
	return err
}
