// Package handler exposes the domain services over HTTP.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/hdcontrol/internal/domain/auth"
	"github.com/xenking/hdcontrol/internal/domain/ledger"
	"github.com/xenking/hdcontrol/internal/domain/order"
	"github.com/xenking/hdcontrol/internal/domain/payment"
	"github.com/xenking/hdcontrol/internal/domain/product"
	"github.com/xenking/hdcontrol/internal/domain/recovery"
	"github.com/xenking/hdcontrol/internal/domain/user"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// RecoveryLifetime is how long a password recovery token stays valid.
	RecoveryLifetime time.Duration
}

// Services are the domain entry points served over HTTP.
type Services struct {
	Products *product.Service
	Orders   *order.Service
	Ledger   *ledger.Ledger
	Payments *payment.Service
	Recovery *recovery.Service
	Users    *user.Service
	Auth     *auth.Authenticator
}

// Handler translates HTTP requests into domain calls.
type Handler struct {
	products *product.Service
	orders   *order.Service
	ledger   *ledger.Ledger
	payments *payment.Service
	recovery *recovery.Service
	users    *user.Service
	auth     *auth.Authenticator

	recoveryLifetime time.Duration
}

// New constructs a Handler.
func New(cfg Config, s Services) *Handler {
	if cfg.RecoveryLifetime <= 0 {
		cfg.RecoveryLifetime = 30 * time.Minute
	}
	return &Handler{
		products:         s.Products,
		orders:           s.Orders,
		ledger:           s.Ledger,
		payments:         s.Payments,
		recovery:         s.Recovery,
		users:            s.Users,
		auth:             s.Auth,
		recoveryLifetime: cfg.RecoveryLifetime,
	}
}

// Mount registers the API routes on r.
//
// Catalog reads and the recovery flow are public. Every other route needs an
// api_key header. Catalog writes and user management need ROLE_ADMIN; order
// writes and payments need staff (admin or operator). Clients only see their
// own orders and their own account.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Get("/{id}", h.findProduct)
		r.Group(func(r chi.Router) {
			r.Use(h.authenticate, requireRole(roleAdmin))
			r.Post("/", h.createProduct)
			r.Put("/{id}", h.updateProduct)
			r.Delete("/{id}", h.deleteProduct)
		})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Use(h.authenticate)
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.findOrder)
		r.Get("/{id}/totals", h.orderTotals)
		r.Group(func(r chi.Router) {
			r.Use(requireRole(roleStaff))
			r.Post("/", h.createOrder)
			r.Put("/{id}", h.updateOrder)
			r.Delete("/{id}", h.deleteOrder)
			r.Post("/{id}/items", h.addOrderItem)
			r.Get("/{id}/payment", h.orderPayment)
		})
	})

	r.Route("/payments", func(r chi.Router) {
		r.Use(h.authenticate, requireRole(roleStaff))
		r.Get("/", h.listPayments)
		r.Get("/{id}", h.findPayment)
		r.Post("/", h.createPayment)
		r.Put("/{id}", h.advancePayment)
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(h.authenticate)
		r.Get("/me", h.me)
		r.Group(func(r chi.Router) {
			r.Use(requireRole(roleAdmin))
			r.Get("/", h.listUsers)
			r.Get("/{id}", h.findUser)
			r.Post("/", h.createUser)
			r.Put("/{id}", h.updateUser)
			r.Delete("/{id}", h.deleteUser)
		})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/recover-token", h.requestRecovery)
		r.Put("/new-password", h.redeemRecovery)
	})
}

// Router returns a standalone router serving the API under prefix.
func (h *Handler) Router(prefix string) chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errMethodNotAllowed)
	})
	r.Route(prefix, h.Mount)
	return r
}
