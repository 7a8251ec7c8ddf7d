package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/storefront-go/storefront/internal/domain/catalog"
)

// memStore is an in-memory Store with real transactional semantics: InTx
// serializes callers and restores a snapshot when the callback fails, so
// rollback behavior matches what the Postgres store provides.
type memStore struct {
	mu       sync.Mutex
	products map[int64]catalog.Product
	orders   map[int64]*Order

	nextOrderID int64
	nextItemID  int64
}

func newMemStore(products ...catalog.Product) *memStore {
	s := &memStore{
		products: make(map[int64]catalog.Product, len(products)),
		orders:   make(map[int64]*Order),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *memStore) stock(id int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

func (s *memStore) setPrice(id, price int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[id]
	p.Price = price
	s.products[id] = p
}

func (s *memStore) deleteProduct(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type memSnapshot struct {
	products map[int64]catalog.Product
	orders   map[int64]*Order
	nextO    int64
	nextI    int64
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		products: make(map[int64]catalog.Product, len(s.products)),
		orders:   make(map[int64]*Order, len(s.orders)),
		nextO:    s.nextOrderID,
		nextI:    s.nextItemID,
	}
	for id, p := range s.products {
		snap.products[id] = p
	}
	for id, o := range s.orders {
		snap.orders[id] = copyOrder(o)
	}
	return snap
}

func copyOrder(o *Order) *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	return &c
}

func (s *memStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.products = snap.products
		s.orders = snap.orders
		s.nextOrderID = snap.nextO
		s.nextItemID = snap.nextI
		return err
	}
	return nil
}

func (s *memStore) GetOrder(_ context.Context, ownerID, orderID int64) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupOrder(ownerID, orderID)
}

func (s *memStore) lookupOrder(ownerID, orderID int64) (*Order, error) {
	o, ok := s.orders[orderID]
	if !ok || o.UserID != ownerID {
		return nil, ErrNotFound
	}
	return copyOrder(o), nil
}

func (s *memStore) ListByOwner(_ context.Context, ownerID int64) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Order, 0)
	for _, o := range s.orders {
		if o.UserID == ownerID {
			out = append(out, *copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *memStore) ProductNames(_ context.Context, ids []int64) (map[int64]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make(map[int64]string, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			names[id] = p.Name
		}
	}
	return names, nil
}

// memTx operates directly on the store state; memStore.InTx undoes its work
// via snapshot restore on failure. The store mutex is already held.
type memTx struct {
	s *memStore
}

func (t *memTx) ProductForUpdate(_ context.Context, id int64) (*catalog.Product, error) {
	p, ok := t.s.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return &p, nil
}

func (t *memTx) AdjustStock(_ context.Context, productID, delta int64) error {
	p, ok := t.s.products[productID]
	if !ok {
		return nil // weak reference, nothing to restore onto
	}
	if p.Stock+delta < 0 {
		return errors.Errorf("stock constraint violated for product %d", productID)
	}
	p.Stock += delta
	t.s.products[productID] = p
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, o *Order) error {
	t.s.nextOrderID++
	o.ID = t.s.nextOrderID
	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now
	stored := copyOrder(o)
	stored.Items = nil // items arrive via InsertItems
	t.s.orders[o.ID] = stored
	return nil
}

func (t *memTx) InsertItems(_ context.Context, orderID int64, items []Item) error {
	o, ok := t.s.orders[orderID]
	if !ok {
		return errors.Errorf("order %d does not exist", orderID)
	}
	for i := range items {
		t.s.nextItemID++
		items[i].ID = t.s.nextItemID
	}
	o.Items = append(o.Items, items...)
	return nil
}

func (t *memTx) OrderForUpdate(_ context.Context, ownerID, orderID int64) (*Order, error) {
	return t.s.lookupOrder(ownerID, orderID)
}

func (t *memTx) DeleteItems(_ context.Context, orderID int64) error {
	if o, ok := t.s.orders[orderID]; ok {
		o.Items = nil
	}
	return nil
}

func (t *memTx) DeleteOrder(_ context.Context, orderID int64) error {
	delete(t.s.orders, orderID)
	return nil
}

func (t *memTx) SetTotal(_ context.Context, orderID, total int64) (time.Time, error) {
	o, ok := t.s.orders[orderID]
	if !ok {
		return time.Time{}, errors.Errorf("order %d does not exist", orderID)
	}
	o.TotalAmount = total
	o.UpdatedAt = time.Now()
	return o.UpdatedAt, nil
}
