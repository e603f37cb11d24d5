package router

import (
	"net/http"

	"mailseller-api/internal/handler"
	"mailseller-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler         *handler.Handler
	PurchaseHandler *handler.PurchaseHandler
	CreditsHandler  *handler.CreditsHandler
	PoolsHandler    *handler.PoolsHandler
	AdminHandler    *handler.AdminHandler
	PaymentHandler  *handler.PaymentHandler
	AuthMiddleware  func(http.Handler) http.Handler
	AdminMiddleware func(http.Handler) http.Handler
	Recovery        func(http.Handler) http.Handler
	Logging         func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(cfg.Recovery)
	r.Use(middleware.RequestID)
	r.Use(cfg.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Token"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth middleware; purchase authenticates from
	// its query string)
	r.Get("/purchase", cfg.PurchaseHandler.Purchase)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", cfg.Handler.Health)
		r.Get("/ready", cfg.Handler.Ready)
		r.Get("/pools", cfg.PoolsHandler.List)

		r.Post("/auth/session", cfg.CreditsHandler.CreateSession)

		if cfg.PaymentHandler != nil {
			r.Post("/payment/webhook", cfg.PaymentHandler.Webhook)
		}

		// AUTHENTICATED routes
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthMiddleware)

			r.Get("/credits", cfg.CreditsHandler.GetBalance)
			r.Get("/credits/tier", cfg.CreditsHandler.GetTier)
			r.Get("/transactions", cfg.CreditsHandler.ListTransactions)
			r.Post("/token/rotate", cfg.CreditsHandler.RotateToken)
			r.Post("/auth/logout", cfg.CreditsHandler.RevokeSession)
		})

		// ADMIN routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(cfg.AdminMiddleware)

			r.Post("/credits", cfg.AdminHandler.AddCredits)
			r.Get("/pools", cfg.AdminHandler.PoolStats)
			r.Post("/pool/{type}", cfg.AdminHandler.AddPoolItems)
			r.Post("/users/{user_id}/discount", cfg.AdminHandler.SetDiscount)
			r.Post("/users/{user_id}/token", cfg.AdminHandler.IssueToken)
		})
	})

	return r
}
