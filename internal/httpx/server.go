package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ariefcatur/astro-motors/internal/auth"
	"github.com/ariefcatur/astro-motors/internal/cart"
	"github.com/ariefcatur/astro-motors/internal/catalog"
	"github.com/ariefcatur/astro-motors/internal/metrics"
	"github.com/ariefcatur/astro-motors/internal/orders"
	"github.com/ariefcatur/astro-motors/internal/reports"
	"github.com/ariefcatur/astro-motors/internal/users"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Catalog interface {
	List(ctx context.Context, f catalog.Filter) ([]catalog.Product, error)
	Get(ctx context.Context, id string) (catalog.Product, error)
	Create(ctx context.Context, p catalog.Product) (catalog.Product, error)
	Update(ctx context.Context, id string, patch catalog.Patch) (catalog.Product, error)
	Delete(ctx context.Context, id string) error
}

type Carts interface {
	GetOrCreate(ctx context.Context, userID string) (cart.Cart, error)
	AddOrIncrement(ctx context.Context, cartID, productID string, qty int) error
	UpdateQuantity(ctx context.Context, cartID, lineID string, qty int) error
	RemoveLine(ctx context.Context, cartID, lineID string) error
	Clear(ctx context.Context, cartID string) error
	View(ctx context.Context, userID string) (cart.View, error)
}

type Orders interface {
	Checkout(ctx context.Context, in orders.CheckoutInput) (orders.Receipt, error)
	ListAll(ctx context.Context) ([]orders.Order, error)
	ListByUser(ctx context.Context, userID string) ([]orders.Order, error)
	Get(ctx context.Context, id string) (orders.Order, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (users.User, error)
}

type Auth interface {
	Authenticator
	Register(ctx context.Context, name, email, password string) (auth.Session, error)
	IssueCaptcha(ctx context.Context) (auth.Captcha, error)
	Login(ctx context.Context, in auth.LoginInput) (auth.Session, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	Subscribe(ctx context.Context, email string) error
}

type UserLister interface {
	List(ctx context.Context) ([]users.User, error)
}

type Reports interface {
	SalesByCategory(ctx context.Context) ([]reports.CategorySales, error)
	StockReport(ctx context.Context) ([]reports.StockLine, error)
}

// Events is the api side of the notification sink.
type Events interface {
	Publish(ctx context.Context, eventType, key string, payload any) error
}

// Idempotency is satisfied by *redisx.Idempotency.
type Idempotency interface {
	Claim(ctx context.Context, userID, key string) (claimed bool, orderID string, inFlight bool, err error)
	Complete(ctx context.Context, userID, key, orderID string) error
	Release(ctx context.Context, userID, key string) error
}

type Handler struct {
	Catalog     Catalog
	Carts       Carts
	Orders      Orders
	Auth        Auth
	Users       UserLister
	Reports     Reports
	Events      Events
	Idempotency Idempotency // optional
	Metrics     *metrics.Metrics

	Timeout         time.Duration // per-request deadline for ordinary handlers
	CheckoutTimeout time.Duration
}

func (h *Handler) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	d := h.Timeout
	if d <= 0 {
		d = 5 * time.Second
	}
	return context.WithTimeout(r.Context(), d)
}

func NewRouter(h *Handler, log *slog.Logger, requestTimeout time.Duration) *chi.Mux {
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, accessLog(log), middleware.Recoverer, instrument(h.Metrics))
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Get("/offers", h.listOffers)
			r.Get("/{id}", h.getProduct)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.register)
			r.Get("/captcha", h.captcha)
			r.Post("/login", h.login)
			r.Post("/forgot-password", h.forgotPassword)
			r.Post("/reset-password", h.resetPassword)
			r.Post("/subscribe", h.subscribe)
			r.With(authenticate(h.Auth)).Get("/me", h.me)
		})

		r.Post("/contact", h.contact)

		r.Group(func(r chi.Router) {
			r.Use(authenticate(h.Auth))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.getCart)
				r.Delete("/", h.clearCart)
				r.Post("/items", h.addCartItem)
				r.Put("/items/{lineId}", h.updateCartItem)
				r.Delete("/items/{lineId}", h.removeCartItem)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/checkout", h.checkout)
				r.Get("/mine", h.myOrders)
				r.Get("/{id}", h.getOrder)
				r.With(requireAdmin).Get("/", h.allOrders)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/products", h.adminListProducts)
				r.Post("/products", h.createProduct)
				r.Put("/products/{id}", h.updateProduct)
				r.Delete("/products/{id}", h.deleteProduct)
				r.Get("/orders", h.allOrders)
				r.Get("/users", h.listUsers)
				r.Get("/stats/sales-by-category", h.salesByCategory)
				r.Get("/stats/stock-report", h.stockReport)
			})
		})
	})
	return r
}
