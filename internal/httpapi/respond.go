// Package httpapi exposes the storefront over HTTP: JSON request decoding,
// bearer-token authentication, routing, and mapping of domain errors to
// status codes.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/storefront-go/storefront/internal/domain/catalog"
	"github.com/storefront-go/storefront/internal/domain/order"
	"github.com/storefront-go/storefront/internal/domain/user"
)

// errorBody is the JSON error envelope returned for every failed request.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, details any) {
	writeJSON(w, status, errorBody{Code: status, Message: message, Details: details})
}

// retryAfterSeconds is sent with 409 responses for lock contention so
// clients know the retry is expected to succeed shortly.
const retryAfterSeconds = 1

// writeDomainError maps a domain error to its HTTP representation. Unknown
// errors are logged and reported as an opaque 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFoundErr *order.ProductNotFoundError
		stockErr    *order.InsufficientStockError
		quantityErr *order.InvalidQuantityError
	)

	switch {
	case errors.As(err, &notFoundErr):
		writeError(w, http.StatusUnprocessableEntity, "product not found", map[string]any{
			"product_id": notFoundErr.ProductID,
		})
	case errors.As(err, &stockErr):
		writeError(w, http.StatusUnprocessableEntity, "insufficient stock", map[string]any{
			"product_id": stockErr.ProductID,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
	case errors.As(err, &quantityErr):
		writeError(w, http.StatusUnprocessableEntity, "quantity must be positive", map[string]any{
			"product_id": quantityErr.ProductID,
		})
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusUnprocessableEntity, "order must contain at least one item", nil)
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found", nil)
	case errors.Is(err, order.ErrConflict):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeError(w, http.StatusConflict, "order could not be processed due to concurrent activity, retry", nil)
	case errors.Is(err, catalog.ErrProductNotFound):
		writeError(w, http.StatusNotFound, "product not found", nil)
	case errors.Is(err, catalog.ErrCategoryNotFound):
		writeError(w, http.StatusNotFound, "category not found", nil)
	case errors.Is(err, catalog.ErrCategoryExists):
		writeError(w, http.StatusConflict, "category already exists", nil)
	case errors.Is(err, user.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email already registered", nil)
	case errors.Is(err, user.ErrNotFound), errors.Is(err, user.ErrBadPassword):
		writeError(w, http.StatusUnauthorized, "invalid credentials", nil)
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error", nil)
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
