package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"claim.box/config"
	"claim.box/internal/claim"
)

func SetupRouter(e *claim.Engine, cfg *config.Config) *chi.Mux {
	h := NewHandler(e, cfg)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS
	r.Use(CORS(CORSConfig{
		AllowedOrigins: []string{"127.0.0.1"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	}))

	// Health
	r.Get("/health", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(JSONOnly)

		// Claims get their own tighter limit: each attempt costs a slow
		// password derivation server-side.
		if cfg.RateLimit.Enabled {
			apiLimiter := NewRateLimiter(cfg.RateLimit.RequestsPerMin, time.Minute)
			claimLimiter := NewRateLimiter(cfg.RateLimit.ClaimsPerMin, time.Minute)

			r.Use(apiLimiter.Middleware)

			r.Route("/secrets", func(r chi.Router) {
				r.Post("/", h.CreateSecret)
				r.With(claimLimiter.Middleware).Post("/{id}/claim", h.ClaimSecret)
				r.Get("/{id}/status", h.GetStatus)
			})
		} else {
			r.Route("/secrets", func(r chi.Router) {
				r.Post("/", h.CreateSecret)
				r.Post("/{id}/claim", h.ClaimSecret)
				r.Get("/{id}/status", h.GetStatus)
			})
		}
	})

	return r
}
