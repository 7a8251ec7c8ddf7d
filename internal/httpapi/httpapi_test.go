package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-go/storefront/internal/auth"
	"github.com/storefront-go/storefront/internal/domain/catalog"
	"github.com/storefront-go/storefront/internal/domain/order"
	"github.com/storefront-go/storefront/internal/domain/user"
)

// fakeUsers is an in-memory user.Repository.
type fakeUsers struct {
	nextID  int64
	byID    map[int64]*user.User
	byEmail map[string]*user.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[int64]*user.User{}, byEmail: map[string]*user.User{}}
}

func (f *fakeUsers) Create(_ context.Context, u *user.User) error {
	if _, ok := f.byEmail[u.Email]; ok {
		return user.ErrEmailTaken
	}
	f.nextID++
	u.ID = f.nextID
	u.CreatedAt = time.Now()
	cp := *u
	f.byID[u.ID] = &cp
	f.byEmail[u.Email] = &cp
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*user.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// fakeProducts is an in-memory catalog.ProductRepository shared with the
// order store so stock changes are visible to both.
type fakeProducts struct {
	nextID   int64
	products map[int64]*catalog.Product
}

func newFakeProducts() *fakeProducts {
	return &fakeProducts{products: map[int64]*catalog.Product{}}
}

func (f *fakeProducts) List(_ context.Context) ([]catalog.Product, error) {
	out := make([]catalog.Product, 0, len(f.products))
	for _, p := range f.products {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeProducts) GetByID(_ context.Context, id int64) (*catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProducts) Create(_ context.Context, p *catalog.Product) error {
	f.nextID++
	p.ID = f.nextID
	cp := *p
	f.products[p.ID] = &cp
	return nil
}

func (f *fakeProducts) Update(_ context.Context, id int64, upd catalog.ProductUpdate) (*catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Price != nil {
		p.Price = *upd.Price
	}
	if upd.Stock != nil {
		p.Stock = *upd.Stock
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProducts) Delete(_ context.Context, id int64) error {
	if _, ok := f.products[id]; !ok {
		return catalog.ErrProductNotFound
	}
	delete(f.products, id)
	return nil
}

// fakeCategories is an in-memory catalog.CategoryRepository.
type fakeCategories struct {
	nextID     int64
	categories map[int64]*catalog.Category
}

func newFakeCategories() *fakeCategories {
	return &fakeCategories{categories: map[int64]*catalog.Category{}}
}

func (f *fakeCategories) List(_ context.Context) ([]catalog.Category, error) {
	out := make([]catalog.Category, 0, len(f.categories))
	for _, c := range f.categories {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeCategories) GetByID(_ context.Context, id int64) (*catalog.Category, error) {
	c, ok := f.categories[id]
	if !ok {
		return nil, catalog.ErrCategoryNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCategories) Create(_ context.Context, c *catalog.Category) error {
	for _, existing := range f.categories {
		if existing.Name == c.Name {
			return catalog.ErrCategoryExists
		}
	}
	f.nextID++
	c.ID = f.nextID
	cp := *c
	f.categories[c.ID] = &cp
	return nil
}

func (f *fakeCategories) Update(_ context.Context, id int64, upd catalog.CategoryUpdate) (*catalog.Category, error) {
	c, ok := f.categories[id]
	if !ok {
		return nil, catalog.ErrCategoryNotFound
	}
	if upd.Name != nil {
		c.Name = *upd.Name
	}
	if upd.Description != nil {
		c.Description = *upd.Description
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCategories) Delete(_ context.Context, id int64) error {
	if _, ok := f.categories[id]; !ok {
		return catalog.ErrCategoryNotFound
	}
	delete(f.categories, id)
	return nil
}

// fakeOrderStore implements order.Store over the shared product map. It has
// no rollback fidelity; each test uses a fresh store.
type fakeOrderStore struct {
	products *fakeProducts
	nextID   int64
	orders   map[int64]*order.Order

	// forcedErr, when set, is returned from InTx to simulate storage faults.
	forcedErr error
}

func newFakeOrderStore(products *fakeProducts) *fakeOrderStore {
	return &fakeOrderStore{products: products, orders: map[int64]*order.Order{}}
}

func (f *fakeOrderStore) InTx(_ context.Context, fn func(tx order.Tx) error) error {
	if f.forcedErr != nil {
		return f.forcedErr
	}
	return fn(&fakeOrderTx{store: f})
}

func (f *fakeOrderStore) GetOrder(_ context.Context, ownerID, orderID int64) (*order.Order, error) {
	o, ok := f.orders[orderID]
	if !ok || o.UserID != ownerID {
		return nil, order.ErrNotFound
	}
	cp := *o
	cp.Items = append([]order.Item(nil), o.Items...)
	return &cp, nil
}

func (f *fakeOrderStore) ListByOwner(_ context.Context, ownerID int64) ([]order.Order, error) {
	var out []order.Order
	for _, o := range f.orders {
		if o.UserID == ownerID {
			cp := *o
			cp.Items = append([]order.Item(nil), o.Items...)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) ProductNames(_ context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	for _, id := range ids {
		if p, ok := f.products.products[id]; ok {
			names[id] = p.Name
		}
	}
	return names, nil
}

type fakeOrderTx struct {
	store *fakeOrderStore
}

func (t *fakeOrderTx) ProductForUpdate(ctx context.Context, id int64) (*catalog.Product, error) {
	return t.store.products.GetByID(ctx, id)
}

func (t *fakeOrderTx) AdjustStock(_ context.Context, productID, delta int64) error {
	if p, ok := t.store.products.products[productID]; ok {
		p.Stock += delta
	}
	return nil
}

func (t *fakeOrderTx) InsertOrder(_ context.Context, o *order.Order) error {
	t.store.nextID++
	o.ID = t.store.nextID
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	cp := *o
	cp.Items = nil
	t.store.orders[o.ID] = &cp
	return nil
}

func (t *fakeOrderTx) InsertItems(_ context.Context, orderID int64, items []order.Item) error {
	o := t.store.orders[orderID]
	for i := range items {
		t.store.nextID++
		items[i].ID = t.store.nextID
		o.Items = append(o.Items, items[i])
	}
	return nil
}

func (t *fakeOrderTx) OrderForUpdate(ctx context.Context, ownerID, orderID int64) (*order.Order, error) {
	return t.store.GetOrder(ctx, ownerID, orderID)
}

func (t *fakeOrderTx) DeleteItems(_ context.Context, orderID int64) error {
	if o, ok := t.store.orders[orderID]; ok {
		o.Items = nil
	}
	return nil
}

func (t *fakeOrderTx) DeleteOrder(_ context.Context, orderID int64) error {
	delete(t.store.orders, orderID)
	return nil
}

func (t *fakeOrderTx) SetTotal(_ context.Context, orderID, total int64) (time.Time, error) {
	o := t.store.orders[orderID]
	o.TotalAmount = total
	o.UpdatedAt = time.Now()
	return o.UpdatedAt, nil
}

// testEnv bundles the server with its fakes for direct manipulation.
type testEnv struct {
	server   *Server
	router   http.Handler
	users    *fakeUsers
	products *fakeProducts
	store    *fakeOrderStore
	tokens   *auth.Tokens
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := newFakeUsers()
	products := newFakeProducts()
	store := newFakeOrderStore(products)
	tokens := auth.NewTokens([]byte("test-secret"), time.Hour)
	srv := NewServer(users, products, newFakeCategories(), order.NewService(store), tokens)

	return &testEnv{
		server:   srv,
		router:   srv.Router(),
		users:    users,
		products: products,
		store:    store,
		tokens:   tokens,
	}
}

// signup creates an account directly and returns a valid bearer token.
func (e *testEnv) signup(t *testing.T, email string, admin bool) string {
	t.Helper()

	hash, err := auth.HashPassword("password123")
	require.NoError(t, err)

	u := &user.User{FullName: "Test User", Email: email, HashedPassword: hash, IsAdmin: admin}
	require.NoError(t, e.users.Create(context.Background(), u))

	token, err := e.tokens.Issue(u.ID)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) addProduct(name string, price, stock int64) int64 {
	e.products.nextID++
	id := e.products.nextID
	e.products.products[id] = &catalog.Product{ID: id, Name: name, Price: price, Stock: stock}
	return id
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/auth/register", "", map[string]any{
		"full_name": "Alice",
		"email":     "alice@example.com",
		"password":  "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp userResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "alice@example.com", resp.Email)
	assert.NotZero(t, resp.ID)
	assert.False(t, resp.IsAdmin)

	// Same email again conflicts.
	w = env.do(http.MethodPost, "/auth/register", "", map[string]any{
		"full_name": "Alice Again",
		"email":     "alice@example.com",
		"password":  "password123",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/auth/register", "", map[string]any{
		"email": "not-an-email", "password": "password123",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(http.MethodPost, "/auth/register", "", map[string]any{
		"email": "bob@example.com", "password": "short",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice@example.com", false)

	w := env.do(http.MethodPost, "/auth/login", "", map[string]any{
		"email": "alice@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp loginResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Token)

	// Wrong password and unknown email answer identically.
	w = env.do(http.MethodPost, "/auth/login", "", map[string]any{
		"email": "alice@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/auth/login", "", map[string]any{
		"email": "nobody@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice@example.com", false)

	w := env.do(http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp userResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "alice@example.com", resp.Email)

	w = env.do(http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/auth/me", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminGate(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.signup(t, "user@example.com", false)
	adminToken := env.signup(t, "admin@example.com", true)

	body := map[string]any{"name": "Widget", "price": 100, "stock": 5}

	w := env.do(http.MethodPost, "/products/", userToken, body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodPost, "/products/", adminToken, body)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = env.do(http.MethodPost, "/products/", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListProducts_Public(t *testing.T) {
	env := newTestEnv(t)
	env.addProduct("Widget", 100, 5)

	w := env.do(http.MethodGet, "/products/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp []productResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "Widget", resp[0].Name)
}

func TestCreateOrder(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice@example.com", false)
	productID := env.addProduct("Widget", 100, 5)

	w := env.do(http.MethodPost, "/orders/", token, map[string]any{
		"items": []map[string]any{{"product_id": productID, "quantity": 3}},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp orderResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, int64(300), resp.TotalAmount)
	assert.Equal(t, "pending", resp.Status)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Widget", resp.Items[0].ProductName)
	assert.Equal(t, int64(100), resp.Items[0].Price)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice@example.com", false)
	productID := env.addProduct("Widget", 100, 5)

	w := env.do(http.MethodPost, "/orders/", token, map[string]any{
		"items": []map[string]any{{"product_id": productID, "quantity": 10}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "insufficient stock", resp.Message)

	details, ok := resp.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(productID), details["product_id"])
	assert.Equal(t, float64(10), details["requested"])
	assert.Equal(t, float64(5), details["available"])
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice@example.com", false)

	w := env.do(http.MethodPost, "/orders/", token, map[string]any{
		"items": []map[string]any{{"product_id": 999, "quantity": 1}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "product not found", resp.Message)
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice@example.com", false)

	w := env.do(http.MethodPost, "/orders/", token, map[string]any{"items": []map[string]any{}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGetOrder_NotFound(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice@example.com", false)

	w := env.do(http.MethodGet, "/orders/42", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrder_OtherOwnerLooksAbsent(t *testing.T) {
	env := newTestEnv(t)
	aliceToken := env.signup(t, "alice@example.com", false)
	bobToken := env.signup(t, "bob@example.com", false)
	productID := env.addProduct("Widget", 100, 5)

	w := env.do(http.MethodPost, "/orders/", aliceToken, map[string]any{
		"items": []map[string]any{{"product_id": productID, "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created orderResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))

	w = env.do(http.MethodGet, "/orders/"+strconv.FormatInt(created.ID, 10), bobToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrderConflict(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice@example.com", false)
	productID := env.addProduct("Widget", 100, 5)
	env.store.forcedErr = order.ErrConflict

	w := env.do(http.MethodPost, "/orders/", token, map[string]any{
		"items": []map[string]any{{"product_id": productID, "quantity": 1}},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestStorageFailureIsOpaque(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice@example.com", false)
	productID := env.addProduct("Widget", 100, 5)
	env.store.forcedErr = context.DeadlineExceeded

	w := env.do(http.MethodPost, "/orders/", token, map[string]any{
		"items": []map[string]any{{"product_id": productID, "quantity": 1}},
	})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "internal server error", resp.Message)
}
