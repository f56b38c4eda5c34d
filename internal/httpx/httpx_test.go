package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/astro-motors/internal/apperr"
	"github.com/ariefcatur/astro-motors/internal/auth"
	"github.com/ariefcatur/astro-motors/internal/cart"
	"github.com/ariefcatur/astro-motors/internal/catalog"
	"github.com/ariefcatur/astro-motors/internal/logging"
	"github.com/ariefcatur/astro-motors/internal/metrics"
	"github.com/ariefcatur/astro-motors/internal/notify"
	"github.com/ariefcatur/astro-motors/internal/orders"
	"github.com/ariefcatur/astro-motors/internal/pricing"
	"github.com/ariefcatur/astro-motors/internal/redisx"
	"github.com/ariefcatur/astro-motors/internal/reports"
	"github.com/ariefcatur/astro-motors/internal/users"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	customer = users.User{ID: "u-1", Name: "Ana", Email: "ana@example.com", Role: users.RoleCustomer}
	admin    = users.User{ID: "u-admin", Name: "Admin", Email: "admin@example.com", Role: users.RoleAdmin}
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeCatalog struct {
	products map[string]catalog.Product
	filter   catalog.Filter
	patch    catalog.Patch
}

func (f *fakeCatalog) List(_ context.Context, flt catalog.Filter) ([]catalog.Product, error) {
	f.filter = flt
	var out []catalog.Product
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeCatalog) Get(_ context.Context, id string) (catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, fmt.Errorf("%w: product %s", apperr.ErrNotFound, id)
	}
	return p, nil
}

func (f *fakeCatalog) Create(_ context.Context, p catalog.Product) (catalog.Product, error) {
	if err := p.Validate(); err != nil {
		return catalog.Product{}, err
	}
	p.ID = "p-new"
	f.products[p.ID] = p
	return p, nil
}

func (f *fakeCatalog) Update(ctx context.Context, id string, patch catalog.Patch) (catalog.Product, error) {
	f.patch = patch
	p, err := f.Get(ctx, id)
	if err != nil {
		return p, err
	}
	return patch.Apply(p), nil
}

func (f *fakeCatalog) Delete(_ context.Context, id string) error {
	if _, ok := f.products[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(f.products, id)
	return nil
}

type fakeCarts struct {
	mu       sync.Mutex
	lines    map[string][]cart.Line // user id -> lines
	addQty   int
	addErr   error
	resolves int
	closeOn  int // AddOrIncrement returns cart.ErrClosed while resolves <= closeOn
}

func cartID(userID string) string { return "cart-" + userID }

func (f *fakeCarts) GetOrCreate(_ context.Context, userID string) (cart.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves++
	return cart.Cart{ID: cartID(userID), UserID: userID, State: cart.StateOpen}, nil
}

func (f *fakeCarts) AddOrIncrement(_ context.Context, cid, productID string, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addQty = qty
	if f.addErr != nil {
		return f.addErr
	}
	if f.resolves <= f.closeOn {
		return fmt.Errorf("%w: cart %s", cart.ErrClosed, cid)
	}
	uid := strings.TrimPrefix(cid, "cart-")
	f.lines[uid] = append(f.lines[uid], cart.Line{ID: "l-1", CartID: cid, ProductID: productID, Name: "Mustang", Category: "sports", Quantity: qty, UnitPrice: dec("1000.00")})
	return nil
}

func (f *fakeCarts) UpdateQuantity(_ context.Context, cid, lineID string, qty int) error {
	if lineID != "l-1" {
		return apperr.ErrNotFound
	}
	return nil
}

func (f *fakeCarts) RemoveLine(_ context.Context, cid, lineID string) error { return nil }

func (f *fakeCarts) Clear(_ context.Context, cid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.lines, strings.TrimPrefix(cid, "cart-"))
	return nil
}

func (f *fakeCarts) View(_ context.Context, userID string) (cart.View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ls := f.lines[userID]
	return cart.View{CartID: cartID(userID), Lines: ls, Summary: cart.Summarize(ls)}, nil
}

type fakeOrders struct {
	mu       sync.Mutex
	calls    int
	inputs   []orders.CheckoutInput
	err      error
	byID     map[string]orders.Order
	listUser string
}

func (f *fakeOrders) Checkout(_ context.Context, in orders.CheckoutInput) (orders.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return orders.Receipt{}, f.err
	}
	totals := pricing.DefaultPolicy().Compute([]pricing.Line{{UnitPrice: dec("1000.00"), Quantity: 2}}, in.CountryCode, in.CouponCode)
	o := orders.Order{
		ID:            fmt.Sprintf("o-%d", f.calls),
		UserID:        in.UserID,
		ItemCount:     totals.ItemCount,
		Subtotal:      totals.Subtotal,
		Tax:           totals.Tax,
		Shipping:      totals.Shipping,
		Discount:      totals.Discount,
		GrandTotal:    totals.GrandTotal,
		CouponCode:    totals.CouponCode,
		CountryCode:   totals.CountryCode,
		PaymentMethod: in.PaymentMethod,
		ShipTo:        in.ShipTo,
		CreatedAt:     time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Lines: []orders.Line{{
			Position: 1, ProductID: "p-1", ProductName: "Mustang", Category: "sports",
			UnitPrice: dec("1000.00"), Quantity: 2, Subtotal: dec("2000.00"),
		}},
	}
	f.byID[o.ID] = o
	return orders.Receipt{Order: o, Totals: totals}, nil
}

func (f *fakeOrders) ListAll(context.Context) ([]orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []orders.Order
	for _, o := range f.byID {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeOrders) ListByUser(_ context.Context, userID string) ([]orders.Order, error) {
	f.listUser = userID
	return nil, nil
}

func (f *fakeOrders) Get(_ context.Context, id string) (orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok {
		return orders.Order{}, fmt.Errorf("%w: order %s", apperr.ErrNotFound, id)
	}
	return o, nil
}

type fakeAuth struct {
	loginErr error
	regErr   error
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (users.User, error) {
	switch token {
	case "customer":
		return customer, nil
	case "admin":
		return admin, nil
	}
	return users.User{}, fmt.Errorf("%w: bad token", apperr.ErrUnauthorized)
}

func (f *fakeAuth) Register(_ context.Context, name, email, _ string) (auth.Session, error) {
	if f.regErr != nil {
		return auth.Session{}, f.regErr
	}
	return auth.Session{Token: "t", User: users.User{ID: "u-2", Name: name, Email: email, Role: users.RoleCustomer}}, nil
}

func (f *fakeAuth) IssueCaptcha(context.Context) (auth.Captcha, error) {
	return auth.Captcha{ID: "c-1", Text: "ABC234"}, nil
}

func (f *fakeAuth) Login(context.Context, auth.LoginInput) (auth.Session, error) {
	if f.loginErr != nil {
		return auth.Session{}, f.loginErr
	}
	return auth.Session{Token: "t", User: customer}, nil
}

func (f *fakeAuth) ForgotPassword(context.Context, string) error        { return nil }
func (f *fakeAuth) ResetPassword(context.Context, string, string) error { return nil }
func (f *fakeAuth) Subscribe(context.Context, string) error             { return nil }

type fakeUsers struct{ list []users.User }

func (f fakeUsers) List(context.Context) ([]users.User, error) { return f.list, nil }

type fakeReports struct{}

func (fakeReports) SalesByCategory(context.Context) ([]reports.CategorySales, error) {
	return []reports.CategorySales{{Category: "sports", Units: 3, Revenue: dec("3000")}}, nil
}

func (fakeReports) StockReport(context.Context) ([]reports.StockLine, error) {
	return []reports.StockLine{{ProductID: "p-1", Name: "Mustang", Category: "sports", Stock: 1}}, nil
}

type published struct {
	eventType, key string
	payload        any
}

type fakeEvents struct {
	mu   sync.Mutex
	got  []published
	fail error
}

func (f *fakeEvents) Publish(_ context.Context, eventType, key string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, published{eventType, key, payload})
	return f.fail
}

type fixture struct {
	h      *Handler
	router http.Handler
	carts  *fakeCarts
	orders *fakeOrders
	events *fakeEvents
	auth   *fakeAuth
	cat    *fakeCatalog
	mr     *miniredis.Miniredis
	idem   *redisx.Idempotency
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		carts:  &fakeCarts{lines: map[string][]cart.Line{}},
		orders: &fakeOrders{byID: map[string]orders.Order{}},
		events: &fakeEvents{},
		auth:   &fakeAuth{},
		cat: &fakeCatalog{products: map[string]catalog.Product{
			"p-1": {ID: "p-1", Name: "Mustang", Price: dec("1000"), Category: catalog.CategorySports, Stock: 4,
				OldPrice: decimal.NewNullDecimal(dec("1200"))},
		}},
		mr:   mr,
		idem: redisx.NewIdempotency(rdb, time.Hour),
	}
	f.h = &Handler{
		Catalog:     f.cat,
		Carts:       f.carts,
		Orders:      f.orders,
		Auth:        f.auth,
		Users:       fakeUsers{list: []users.User{customer, {ID: "u-3", Name: "Luis", Email: "l@example.com", Role: users.RoleCustomer, FailedAttempts: 2}}},
		Reports:     fakeReports{},
		Events:      f.events,
		Idempotency: f.idem,
		Metrics:     metrics.New(),
	}
	f.router = NewRouter(f.h, logging.New(io.Discard, "error"), 5*time.Second)
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			rd = strings.NewReader(s)
		} else {
			b, err := json.Marshal(body)
			require.NoError(t, err)
			rd = bytes.NewReader(b)
		}
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	d := json.NewDecoder(rec.Body)
	d.UseNumber()
	require.NoError(t, d.Decode(&m), "body: %s", rec.Body.String())
	return m
}

func validCheckout() map[string]any {
	return map[string]any{
		"countryCode":   "MX",
		"couponCode":    "astro10",
		"paymentMethod": "card",
		"shippingInfo":  map[string]any{"name": "Ana", "address": "Reforma 1", "city": "CDMX", "postalCode": "06600", "phone": "555"},
		"paymentDetails": map[string]any{
			"cardNumber": "4111111111111111",
		},
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestProducts(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/products?category=sports&offer=true", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, catalog.Filter{Category: catalog.CategorySports, OfferOnly: true}, f.cat.filter)
	assert.Contains(t, rec.Body.String(), `"price":1000.00`)
	assert.Contains(t, rec.Body.String(), `"oldPrice":1200.00`)

	rec = f.do(t, http.MethodGet, "/api/products/offers", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.cat.filter.OfferOnly)

	rec = f.do(t, http.MethodGet, "/api/products?category=trucks", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/products/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "not found")
}

func TestAdminProducts(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/admin/products", "customer", map[string]any{"name": "X"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/admin/products", "admin", map[string]any{
		"name": "Beetle", "price": "350.5", "category": "classic", "stock": 2,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, json.Number("350.50"), decode(t, rec)["price"])

	rec = f.do(t, http.MethodPost, "/api/admin/products", "admin", map[string]any{"name": "Bad", "price": -1, "category": "classic"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/admin/products/p-1", "admin", map[string]any{"stock": 9, "oldPrice": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.cat.patch.Stock)
	assert.Nil(t, f.cat.patch.Name)
	body := decode(t, rec)
	assert.Equal(t, json.Number("9"), body["stock"])
	assert.Equal(t, "Mustang", body["name"])
	assert.NotContains(t, body, "oldPrice")

	rec = f.do(t, http.MethodDelete, "/api/admin/products/p-1", "admin", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/admin/products/p-1", "admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCart(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/cart", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/cart/items", "customer", map[string]any{"productId": "p-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, f.carts.addQty, "absent quantity defaults to 1")
	body := decode(t, rec)
	assert.Equal(t, "cart-u-1", body["cartId"])
	assert.Equal(t, json.Number("1000.00"), body["subtotal"])
	assert.Equal(t, json.Number("1"), body["totalItemCount"])

	rec = f.do(t, http.MethodPost, "/api/cart/items", "customer", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/cart/items/l-1", "customer", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPut, "/api/cart/items/other", "customer", map[string]any{"quantity": 2})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/cart", "customer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, json.Number("0"), decode(t, rec)["totalItemCount"])
}

func TestCart_AddAfterConcurrentCheckoutLandsInFreshCart(t *testing.T) {
	f := newFixture(t)
	f.carts.closeOn = 1

	rec := f.do(t, http.MethodPost, "/api/cart/items", "customer", map[string]any{"productId": "p-1", "quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, json.Number("2"), decode(t, rec)["totalItemCount"])
	assert.Equal(t, 2, f.carts.resolves)
}

func TestCart_AddToClosedCartTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	f.carts.closeOn = 2

	rec := f.do(t, http.MethodPost, "/api/cart/items", "customer", map[string]any{"productId": "p-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 2, f.carts.resolves)
}

func TestCart_InsufficientStockDetails(t *testing.T) {
	f := newFixture(t)
	f.carts.addErr = &catalog.StockError{ProductID: "p-1", Requested: 9, Available: 4}

	rec := f.do(t, http.MethodPost, "/api/cart/items", "customer", map[string]any{"productId": "p-1", "quantity": 9})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	details, ok := body["details"].(map[string]any)
	require.True(t, ok, "details: %v", body)
	assert.Equal(t, json.Number("4"), details["available"])
}

func TestCheckout_Success(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/orders/checkout", "customer", validCheckout())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode(t, rec)
	totals := body["totals"].(map[string]any)
	assert.Equal(t, json.Number("2000.00"), totals["subtotal"])
	assert.Equal(t, json.Number("320.00"), totals["tax"])
	assert.Equal(t, json.Number("250.00"), totals["shipping"])
	assert.Equal(t, json.Number("200.00"), totals["discount"])
	assert.Equal(t, json.Number("2370.00"), totals["grandTotal"])
	assert.Equal(t, "ASTRO10", totals["couponCode"])
	assert.Equal(t, "Ana", body["shippingInfo"].(map[string]any)["name"])
	assert.Equal(t, "ana@example.com", body["order"].(map[string]any)["customerEmail"])

	require.Len(t, f.orders.inputs, 1)
	assert.Equal(t, orders.PaymentCard, f.orders.inputs[0].PaymentMethod)
	assert.Equal(t, "u-1", f.orders.inputs[0].UserID)

	require.Len(t, f.events.got, 1)
	assert.Equal(t, notify.EventOrderPlaced, f.events.got[0].eventType)
	placed := f.events.got[0].payload.(notify.OrderPlaced)
	assert.Equal(t, "ana@example.com", placed.Customer.Email)
	assert.True(t, placed.GrandTotal.Equal(dec("2370")))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.h.Metrics.Checkouts.WithLabelValues(metrics.CheckoutOK)))
}

func TestCheckout_ValidationBeforeTransaction(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body any
	}{
		{"bad json", "{"},
		{"missing country", func() map[string]any { b := validCheckout(); delete(b, "countryCode"); return b }()},
		{"missing ship name", func() map[string]any {
			b := validCheckout()
			b["shippingInfo"] = map[string]any{"address": "x"}
			return b
		}()},
		{"unknown payment", func() map[string]any { b := validCheckout(); b["paymentMethod"] = "bitcoin"; return b }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/orders/checkout", "customer", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Zero(t, f.orders.calls)
}

func TestCheckout_Failures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   int
		result string
	}{
		{"empty cart", apperr.ErrEmptyCart, http.StatusBadRequest, metrics.CheckoutEmptyCart},
		{"stock", &catalog.StockError{ProductID: "p-1", Requested: 3, Available: 1}, http.StatusConflict, metrics.CheckoutInsufficientStock},
		{"tx failure", errors.New("commit checkout: connection reset"), http.StatusInternalServerError, metrics.CheckoutFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.orders.err = tt.err

			rec := f.do(t, http.MethodPost, "/api/orders/checkout", "customer", validCheckout(), headerIdempotencyKey, "k-1")
			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusInternalServerError {
				assert.Equal(t, "internal error", decode(t, rec)["error"])
			}
			assert.Empty(t, f.events.got)
			assert.Equal(t, 1.0, testutil.ToFloat64(f.h.Metrics.Checkouts.WithLabelValues(tt.result)))

			// the key is released so the client can retry
			assert.False(t, f.mr.Exists(fmt.Sprintf(redisx.KeyIdemCheckout, "u-1", "k-1")))
		})
	}
}

func TestCheckout_NotificationFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.events.fail = errors.New("kafka down")

	rec := f.do(t, http.MethodPost, "/api/orders/checkout", "customer", validCheckout())
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, f.events.got, 1)
}

func TestCheckout_IdempotentReplay(t *testing.T) {
	f := newFixture(t)

	first := f.do(t, http.MethodPost, "/api/orders/checkout", "customer", validCheckout(), headerIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, first.Code)
	firstID := decode(t, first)["order"].(map[string]any)["id"]

	again := f.do(t, http.MethodPost, "/api/orders/checkout", "customer", validCheckout(), headerIdempotencyKey, "k-1")
	require.Equal(t, http.StatusOK, again.Code, again.Body.String())
	body := decode(t, again)
	assert.Equal(t, firstID, body["order"].(map[string]any)["id"])
	assert.Equal(t, json.Number("2370.00"), body["totals"].(map[string]any)["grandTotal"])

	assert.Equal(t, 1, f.orders.calls)
	assert.Len(t, f.events.got, 1)

	other := f.do(t, http.MethodPost, "/api/orders/checkout", "customer", validCheckout(), headerIdempotencyKey, "k-2")
	assert.Equal(t, http.StatusCreated, other.Code)
	assert.Equal(t, 2, f.orders.calls)
}

func TestCheckout_InFlightKeyConflicts(t *testing.T) {
	f := newFixture(t)
	claimed, _, _, err := f.idem.Claim(context.Background(), "u-1", "k-1")
	require.NoError(t, err)
	require.True(t, claimed)

	rec := f.do(t, http.MethodPost, "/api/orders/checkout", "customer", validCheckout(), headerIdempotencyKey, "k-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, f.orders.calls)
}

func TestCheckout_RedisDownFallsThrough(t *testing.T) {
	f := newFixture(t)
	f.mr.Close()

	rec := f.do(t, http.MethodPost, "/api/orders/checkout", "customer", validCheckout(), headerIdempotencyKey, "k-1")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCheckout_KeyIgnoredWithoutIdempotencyStore(t *testing.T) {
	f := newFixture(t)
	f.h.Idempotency = nil

	rec := f.do(t, http.MethodPost, "/api/orders/checkout", "customer", validCheckout(), headerIdempotencyKey, "k-1")
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, f.orders.calls)
	assert.Len(t, f.events.got, 1)
}

type flakyIdempotency struct {
	*redisx.Idempotency
	failures  int
	completes int
}

func (s *flakyIdempotency) Complete(ctx context.Context, userID, key, orderID string) error {
	s.completes++
	if s.completes <= s.failures {
		return errors.New("redis timeout")
	}
	return s.Idempotency.Complete(ctx, userID, key, orderID)
}

func TestCheckout_CompleteRetriedThenReleased(t *testing.T) {
	idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, "u-1", "k-1")

	t.Run("recovers on retry", func(t *testing.T) {
		f := newFixture(t)
		flaky := &flakyIdempotency{Idempotency: f.idem, failures: 1}
		f.h.Idempotency = flaky

		first := f.do(t, http.MethodPost, "/api/orders/checkout", "customer", validCheckout(), headerIdempotencyKey, "k-1")
		require.Equal(t, http.StatusCreated, first.Code)
		assert.Equal(t, 2, flaky.completes)

		again := f.do(t, http.MethodPost, "/api/orders/checkout", "customer", validCheckout(), headerIdempotencyKey, "k-1")
		assert.Equal(t, http.StatusOK, again.Code, again.Body.String())
		assert.Equal(t, 1, f.orders.calls)
	})

	t.Run("released when it keeps failing", func(t *testing.T) {
		f := newFixture(t)
		flaky := &flakyIdempotency{Idempotency: f.idem, failures: completeAttempts}
		f.h.Idempotency = flaky

		rec := f.do(t, http.MethodPost, "/api/orders/checkout", "customer", validCheckout(), headerIdempotencyKey, "k-1")
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, completeAttempts, flaky.completes)
		assert.False(t, f.mr.Exists(idemKey), "a pending key would answer 409 until it expires")
	})
}

func TestOrders_Access(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/orders/checkout", "customer", validCheckout())
	require.Equal(t, http.StatusCreated, rec.Code)
	f.orders.byID["o-other"] = orders.Order{ID: "o-other", UserID: "u-9"}

	rec = f.do(t, http.MethodGet, "/api/orders/o-1", "customer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	assert.Len(t, items, 1)

	rec = f.do(t, http.MethodGet, "/api/orders/o-other", "customer", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/orders/o-other", "admin", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/orders/mine", "customer", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
	assert.Equal(t, "u-1", f.orders.listUser)

	rec = f.do(t, http.MethodGet, "/api/orders", "customer", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/orders", "admin", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/admin/orders", "admin", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdmin_UsersAndStats(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/admin/users", "customer", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/users", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failedAttempts":2`)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = f.do(t, http.MethodGet, "/api/admin/stats/sales-by-category", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"revenue":3000.00`)

	rec = f.do(t, http.MethodGet, "/api/admin/stats/stock-report", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stock":1`)
}

func TestAuthRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/auth/captcha", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c-1", decode(t, rec)["id"])

	rec = f.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{"name": "Leo", "email": "leo@example.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "leo@example.com", decode(t, rec)["user"].(map[string]any)["email"])

	f.auth.regErr = users.ErrDuplicateEmail
	rec = f.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{"name": "Leo", "email": "leo@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.auth.loginErr = fmt.Errorf("%w: too many failed attempts", apperr.ErrLocked)
	rec = f.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "ana@example.com", "password": "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	f.auth.loginErr = auth.ErrInvalidCredentials
	rec = f.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "ana@example.com", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/auth/me", "customer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", decode(t, rec)["id"])

	for _, path := range []string{"/api/auth/forgot-password", "/api/auth/subscribe"} {
		rec = f.do(t, http.MethodPost, path, "", map[string]any{"email": "ana@example.com"})
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
	rec = f.do(t, http.MethodPost, "/api/auth/reset-password", "", map[string]any{"token": "t", "password": "secret2"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestContact(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/contact", "", map[string]any{"name": "Ana", "email": "ana@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/contact", "", map[string]any{"name": "Ana", "email": "not-an-email", "message": "hola"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.events.got)

	rec = f.do(t, http.MethodPost, "/api/contact", "", map[string]any{"name": "Ana", "email": "Ana@Example.com", "message": " hola "})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.events.got, 1)
	got := f.events.got[0].payload.(notify.ContactReceived)
	assert.Equal(t, "ana@example.com", got.Email)
	assert.Equal(t, "hola", got.Message)

	f.events.fail = errors.New("kafka down")
	rec = f.do(t, http.MethodPost, "/api/contact", "", map[string]any{"name": "Ana", "email": "ana@example.com", "message": "hola"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/products/p-1", "", nil)

	rec := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `astro_http_requests_total{route="/api/products/{id}",status="200"} 1`)
}

func TestRecovererLogsPanics(t *testing.T) {
	var buf bytes.Buffer
	r := NewRouter(&Handler{}, logging.New(&buf, "info"), time.Second)
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
	assert.Contains(t, buf.String(), `"status":500`)
}
