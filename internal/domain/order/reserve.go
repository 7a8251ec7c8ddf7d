package order

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/storefront-go/storefront/internal/domain/catalog"
)

// ReservedLine is one accepted cart line with the unit price observed at
// evaluation time. The price is never recomputed afterwards.
type ReservedLine struct {
	ProductID int64
	Quantity  int64
	UnitPrice int64
}

// StockDelta is the total decrement to apply to one product's stock for this
// reservation. Duplicate cart lines for the same product collapse into a
// single delta.
type StockDelta struct {
	ProductID int64
	Quantity  int64
}

// Reservation is the accepted outcome of evaluating a cart.
type Reservation struct {
	Lines []ReservedLine
	// Deltas are ordered by first touch of each product in the cart, so a
	// caller applying them acquires row locks in a deterministic order.
	Deltas      []StockDelta
	TotalAmount int64
}

// Reserve evaluates cart against the live catalog view and either accepts it,
// returning the reserved lines, per-product stock decrements, and the exact
// integer total, or rejects it with the first offending cause in cart order.
//
// Lines are processed strictly in submitted order and duplicates are not
// merged: two lines for the same product are validated cumulatively against
// the running remaining stock within this request. No partial reservation is
// ever returned.
func Reserve(ctx context.Context, view CatalogView, cart Cart) (*Reservation, error) {
	res := &Reservation{
		Lines: make([]ReservedLine, 0, len(cart)),
	}

	// Remaining stock per product as seen by this request, populated on
	// first touch via a row-locking read.
	remaining := make(map[int64]int64, len(cart))
	deltaIdx := make(map[int64]int, len(cart))
	prices := make(map[int64]int64, len(cart))

	for _, line := range cart {
		if line.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: line.ProductID}
		}

		avail, ok := remaining[line.ProductID]
		if !ok {
			p, err := view.ProductForUpdate(ctx, line.ProductID)
			if err != nil {
				if errors.Is(err, catalog.ErrProductNotFound) {
					return nil, &ProductNotFoundError{ProductID: line.ProductID}
				}
				return nil, errors.Wrapf(err, "fetch product %d", line.ProductID)
			}
			avail = p.Stock
			remaining[line.ProductID] = avail
			prices[line.ProductID] = p.Price
		}

		if line.Quantity > avail {
			return nil, &InsufficientStockError{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: avail,
			}
		}

		remaining[line.ProductID] = avail - line.Quantity
		price := prices[line.ProductID]

		res.Lines = append(res.Lines, ReservedLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: price,
		})
		res.TotalAmount += price * line.Quantity

		if i, seen := deltaIdx[line.ProductID]; seen {
			res.Deltas[i].Quantity += line.Quantity
		} else {
			deltaIdx[line.ProductID] = len(res.Deltas)
			res.Deltas = append(res.Deltas, StockDelta{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
			})
		}
	}

	return res, nil
}
