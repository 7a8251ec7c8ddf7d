package order

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/storefront-go/storefront/internal/domain/user"
)

// Service orchestrates the order lifecycle: each operation composes the
// reservation algorithm with the store inside one atomic unit of work.
type Service struct {
	store Store
}

// NewService creates an order Service backed by the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create reserves stock for the cart and persists a new pending order owned
// by the caller. On any validation failure no stock and no rows change.
func (s *Service) Create(ctx context.Context, caller user.Identity, cart Cart) (*Order, error) {
	if len(cart) == 0 {
		return nil, ErrEmptyItems
	}

	var created *Order
	err := s.store.InTx(ctx, func(tx Tx) error {
		res, err := Reserve(ctx, tx, cart)
		if err != nil {
			return err
		}

		for _, d := range res.Deltas {
			if err := tx.AdjustStock(ctx, d.ProductID, -d.Quantity); err != nil {
				return errors.Wrapf(err, "reserve stock for product %d", d.ProductID)
			}
		}

		o := &Order{
			UserID:      caller.ID,
			TotalAmount: res.TotalAmount,
			Status:      StatusPending,
			Items:       itemsFromLines(res.Lines),
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		if err := tx.InsertItems(ctx, o.ID, o.Items); err != nil {
			return errors.Wrap(err, "insert order items")
		}

		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.annotate(ctx, created); err != nil {
		return nil, err
	}
	return created, nil
}

// Get returns the caller's order with items and resolved product names.
// An order owned by someone else is reported as ErrNotFound.
func (s *Service) Get(ctx context.Context, caller user.Identity, orderID int64) (*Order, error) {
	o, err := s.store.GetOrder(ctx, caller.ID, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.annotate(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// ListMine returns all orders owned by the caller, with items and resolved
// product names. A caller with no orders gets an empty slice.
func (s *Service) ListMine(ctx context.Context, caller user.Identity) ([]Order, error) {
	list, err := s.store.ListByOwner(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if err := s.annotate(ctx, &list[i]); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// Update replaces the order's items with new ones reserved from cart. Stock
// held by the existing items is restored first, so the new cart is validated
// against the restored amounts; if that validation fails the transaction is
// discarded and the original items, total, and stock stay fully intact.
// The transient restored stock is never visible outside the transaction.
func (s *Service) Update(ctx context.Context, caller user.Identity, orderID int64, cart Cart) (*Order, error) {
	if len(cart) == 0 {
		return nil, ErrEmptyItems
	}

	var updated *Order
	err := s.store.InTx(ctx, func(tx Tx) error {
		existing, err := tx.OrderForUpdate(ctx, caller.ID, orderID)
		if err != nil {
			return err
		}

		if err := restoreStock(ctx, tx, existing.Items); err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, orderID); err != nil {
			return errors.Wrap(err, "delete old items")
		}

		res, err := Reserve(ctx, tx, cart)
		if err != nil {
			return err
		}
		for _, d := range res.Deltas {
			if err := tx.AdjustStock(ctx, d.ProductID, -d.Quantity); err != nil {
				return errors.Wrapf(err, "reserve stock for product %d", d.ProductID)
			}
		}

		items := itemsFromLines(res.Lines)
		if err := tx.InsertItems(ctx, orderID, items); err != nil {
			return errors.Wrap(err, "insert new items")
		}
		updatedAt, err := tx.SetTotal(ctx, orderID, res.TotalAmount)
		if err != nil {
			return errors.Wrap(err, "set order total")
		}

		existing.Items = items
		existing.TotalAmount = res.TotalAmount
		existing.UpdatedAt = updatedAt
		updated = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.annotate(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete restores stock for every item of the caller's order, then removes
// the items and the order itself.
func (s *Service) Delete(ctx context.Context, caller user.Identity, orderID int64) error {
	return s.store.InTx(ctx, func(tx Tx) error {
		existing, err := tx.OrderForUpdate(ctx, caller.ID, orderID)
		if err != nil {
			return err
		}

		if err := restoreStock(ctx, tx, existing.Items); err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, orderID); err != nil {
			return errors.Wrap(err, "delete items")
		}
		if err := tx.DeleteOrder(ctx, orderID); err != nil {
			return errors.Wrap(err, "delete order")
		}
		return nil
	})
}

// restoreStock adds each item's quantity back onto its product. Products
// deleted since the order was placed are skipped by AdjustStock.
func restoreStock(ctx context.Context, tx Tx, items []Item) error {
	for _, it := range items {
		if err := tx.AdjustStock(ctx, it.ProductID, it.Quantity); err != nil {
			return errors.Wrapf(err, "restore stock for product %d", it.ProductID)
		}
	}
	return nil
}

// annotate fills the derived ProductName on each item, falling back to
// UnknownProductName for products that no longer exist. This is a read-time
// join, not stored state.
func (s *Service) annotate(ctx context.Context, o *Order) error {
	if len(o.Items) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(o.Items))
	seen := make(map[int64]struct{}, len(o.Items))
	for _, it := range o.Items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}

	names, err := s.store.ProductNames(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "resolve product names")
	}

	for i := range o.Items {
		if name, ok := names[o.Items[i].ProductID]; ok {
			o.Items[i].ProductName = name
		} else {
			o.Items[i].ProductName = UnknownProductName
		}
	}
	return nil
}

func itemsFromLines(lines []ReservedLine) []Item {
	items := make([]Item, len(lines))
	for i, l := range lines {
		items[i] = Item{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Price:     l.UnitPrice,
		}
	}
	return items
}
