package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/oauth2"

	"github.com/phenrril/kitehouse/internal/auth"
	"github.com/phenrril/kitehouse/internal/usecase"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

type Deps struct {
	Products *usecase.ProductUC
	Carts    *usecase.CartUC
	Checkout *usecase.CheckoutUC
	Payments *usecase.PaymentUC
	Orders   *usecase.OrderUC
	Auth     *usecase.AuthUC
	Sessions *auth.Dispatcher

	// OAuth is nil when Google login is not configured.
	OAuth       *oauth2.Config
	UserInfoURL string

	RequestTimeout time.Duration
	SecureCookies  bool
}

type Server struct {
	products *usecase.ProductUC
	carts    *usecase.CartUC
	checkout *usecase.CheckoutUC
	payments *usecase.PaymentUC
	orders   *usecase.OrderUC
	auth     *usecase.AuthUC
	sessions *auth.Dispatcher

	oauthCfg    *oauth2.Config
	userInfoURL string
	secure      bool
}

func New(d Deps) http.Handler {
	s := &Server{
		products:    d.Products,
		carts:       d.Carts,
		checkout:    d.Checkout,
		payments:    d.Payments,
		orders:      d.Orders,
		auth:        d.Auth,
		sessions:    d.Sessions,
		oauthCfg:    d.OAuth,
		userInfoURL: d.UserInfoURL,
		secure:      d.SecureCookies,
	}
	if s.userInfoURL == "" {
		s.userInfoURL = googleUserInfoURL
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	if d.RequestTimeout > 0 {
		r.Use(middleware.Timeout(d.RequestTimeout))
	}
	r.Use(s.sessions.Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/auth/google/login", s.handleGoogleLogin)
	r.Get("/auth/google/callback", s.handleGoogleCallback)

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", s.listProducts)
		r.Get("/products/{id}", s.getProduct)
		r.Post("/products/{id}/variants/match", s.matchVariant)
		r.Get("/categories", s.listCategories)

		r.Route("/user", func(r chi.Router) {
			r.Post("/register", s.register)
			r.Post("/login", s.userLogin)
			r.Post("/logout", s.userLogout)
			r.Get("/session", s.userSession)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Require(auth.RoleShopper, http.HandlerFunc(unauthorized)))

			r.Get("/cart", s.getCart)
			r.Post("/cart", s.upsertCart)
			r.Delete("/cart", s.clearCart)
			r.Patch("/cart/{id}", s.updateCartItem)
			r.Delete("/cart/{id}", s.removeCartItem)

			r.Post("/orders", s.createOrder)
			r.Get("/orders", s.listMyOrders)
			r.Get("/orders/{id}", s.getMyOrder)

			r.Post("/payment/verify", s.verifyPayment)
		})

		r.Route("/admin", s.adminRoutes)
	})
	return r
}

func (s *Server) adminRoutes(r chi.Router) {
	r.Use(noCache)
	r.Post("/login", s.adminLogin)
	r.Post("/logout", s.adminLogout)
	r.Get("/session", s.adminSession)

	r.Group(func(r chi.Router) {
		r.Use(auth.Require(auth.RoleAdmin, http.HandlerFunc(unauthorized)))

		r.Get("/products", s.adminListProducts)
		r.Post("/products", s.adminCreateProduct)
		r.Post("/products/import", s.adminImportProducts)
		r.Get("/products/{id}", s.adminGetProduct)
		r.Put("/products/{id}", s.adminUpdateProduct)
		r.Delete("/products/{id}", s.adminDeleteProduct)
		r.Patch("/products/{id}/status", s.adminSetProductStatus)
		r.Post("/products/{id}/variants", s.adminAddVariant)
		r.Put("/products/{id}/variants/{variantId}", s.adminUpdateVariant)
		r.Delete("/products/{id}/variants/{variantId}", s.adminDeleteVariant)

		r.Get("/categories", s.listCategories)
		r.Post("/categories", s.adminCreateCategory)
		r.Delete("/categories/{id}", s.adminDeleteCategory)

		r.Get("/orders", s.adminListOrders)
		r.Get("/orders/export", s.adminExportOrders)
		r.Get("/orders/{id}", s.adminGetOrder)
		r.Patch("/orders/{id}/status", s.adminUpdateOrderStatus)

		r.Delete("/cache/carts", s.adminPurgeCartCache)
	})
}
