package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Handlers struct {
	Products      *ProductHandler
	Cart          *CartHandler
	Checkout      *CheckoutHandler
	Notifications *NotificationHandler
	Health        http.HandlerFunc
}

type RouterConfig struct {
	RequestTimeout time.Duration
	SessionTTL     time.Duration
}

// NewRouter mounts the storefront API under /api/v1 and wraps it with
// OpenTelemetry instrumentation.
func NewRouter(h Handlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	if h.Health != nil {
		r.Get("/health", h.Health)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SessionMiddleware(cfg.SessionTTL))

		r.Get("/products", h.Products.ListProducts)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.Cart.GetCart)
			r.Delete("/", h.Cart.ClearCart)
			r.Post("/items", h.Cart.AddItem)
			r.Delete("/items/{product_id}", h.Cart.RemoveItem)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", h.Checkout.State)
			r.Post("/", h.Checkout.Present)
			r.Post("/orders", h.Checkout.CreateOrder)
			r.Post("/orders/{order_id}/capture", h.Checkout.Capture)
			r.Post("/orders/{order_id}/reconcile", h.Checkout.Reconcile)
			r.Post("/error", h.Checkout.ProviderError)
			r.Post("/cancel", h.Checkout.Cancel)
		})

		r.Get("/notifications", h.Notifications.List)
	})

	return otelhttp.NewHandler(r, "storefront")
}
