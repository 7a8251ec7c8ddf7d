package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/storefront-go/storefront/internal/auth"
	"github.com/storefront-go/storefront/internal/domain/catalog"
	"github.com/storefront-go/storefront/internal/domain/order"
	"github.com/storefront-go/storefront/internal/domain/user"
)

// Server holds the handler dependencies and builds the API router.
type Server struct {
	users      user.Repository
	products   catalog.ProductRepository
	categories catalog.CategoryRepository
	orders     *order.Service
	tokens     *auth.Tokens
}

// NewServer wires handlers over the given repositories and services.
func NewServer(
	users user.Repository,
	products catalog.ProductRepository,
	categories catalog.CategoryRepository,
	orders *order.Service,
	tokens *auth.Tokens,
) *Server {
	return &Server{
		users:      users,
		products:   products,
		categories: categories,
		orders:     orders,
		tokens:     tokens,
	}
}

// Router returns the chi router with all API routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/me", s.handleMe)
			r.Post("/logout", s.handleLogout)
		})
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", s.handleListProducts)
		r.Get("/{id}", s.handleGetProduct)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth, s.requireAdmin)
			r.Post("/", s.handleCreateProduct)
			r.Put("/{id}", s.handleUpdateProduct)
			r.Delete("/{id}", s.handleDeleteProduct)
		})
	})

	r.Route("/categories", func(r chi.Router) {
		r.Get("/", s.handleListCategories)
		r.Get("/{id}", s.handleGetCategory)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth, s.requireAdmin)
			r.Post("/", s.handleCreateCategory)
			r.Put("/{id}", s.handleUpdateCategory)
			r.Delete("/{id}", s.handleDeleteCategory)
		})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/", s.handleCreateOrder)
		r.Get("/", s.handleListOrders)
		r.Get("/{id}", s.handleGetOrder)
		r.Put("/{id}", s.handleUpdateOrder)
		r.Delete("/{id}", s.handleDeleteOrder)
	})

	return r
}

// pathID parses the {id} URL parameter. A non-numeric value is reported the
// same way as an absent resource by the caller.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}
