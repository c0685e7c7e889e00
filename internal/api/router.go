package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatdigest/internal/api/middleware"
	"github.com/eldtechnologies/chatdigest/internal/config"
	"github.com/eldtechnologies/chatdigest/internal/handlers"
	"github.com/eldtechnologies/chatdigest/internal/store"
)

// NewRouter creates and configures the HTTP router. redisStore may be nil,
// in which case requests are not rate limited.
func NewRouter(logger zerolog.Logger, cfg *config.Config, ds store.DataStore, redisStore *store.RedisStore) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.ReadOnly)
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore.Client(), logger, middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: !cfg.IsDevelopment(),
		})
		r.Use(limiter.Middleware)
	}

	// CORS - the dashboard API is read-only
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(ds, redisStore, logger)
	auth := middleware.NewBasicAuth(cfg.DashboardUser, cfg.DashboardPasswordHash, logger)

	// Public routes
	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	// Dashboard API
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Get("/", h.Root)
		r.Get("/stats", h.Stats)
		r.Get("/messages", h.ListMessages)
		r.Get("/messages/search", h.SearchMessages)
		r.Get("/messages_by_ids", h.MessagesByIDs)
		r.Get("/summaries", h.ListSummaries)
		r.Get("/summaries/{id}", h.GetSummary)
		r.Get("/summaries/{id}/messages", h.SummaryMessages)
	})

	return r
}
