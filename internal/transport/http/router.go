package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/storefront-auth-api/internal/application/otpauth"
	"github.com/storefront-auth-api/internal/application/register"
	"github.com/storefront-auth-api/internal/config"
	"github.com/storefront-auth-api/internal/transport/http/handler"
	appmiddleware "github.com/storefront-auth-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10 — applied to the public OTP endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	registerSvc := register.NewService(register.ServiceDeps{
		Store:        deps.KVStore,
		CustomerRepo: deps.CustomerRepo,
		IdentityRepo: deps.IdentityRepo,
		Notifier:     deps.Notifier,
		JWTProvider:  deps.JWTProvider,
	})
	otpAuthSvc := otpauth.NewService(otpauth.ServiceDeps{
		Store:        deps.KVStore,
		CustomerRepo: deps.CustomerRepo,
		IdentityRepo: deps.IdentityRepo,
		Notifier:     deps.Notifier,
		JWTProvider:  deps.JWTProvider,
	})

	healthH := handler.NewHealthHandler(deps.KVStore)
	registerH := handler.NewRegisterHandler(registerSvc)
	otpAuthH := handler.NewOTPAuthHandler(otpAuthSvc)
	accountH := handler.NewAccountHandler(deps.CustomerRepo)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/register/{action}", registerH.Action)
		r.With(sensitiveRL.Limit).Post("/auth/otp/{action}", otpAuthH.Action)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/customers/me", accountH.Me)
		})
	})

	return r
}
