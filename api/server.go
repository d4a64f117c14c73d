/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard frontend
  5. RateLimit:  Per-client throttle on mutating endpoints

ROUTE GROUPS:
  /api/rewards/*      Catalog and eligibility
  /api/users/*        Claims, redemption, progress, triggers
  /api/coupons/*      Point-of-sale coupon validation
  /health             Liveness probe
  /metrics            Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions tunes the router's middleware.
type RouterOptions struct {
	// Requests per second allowed per client on mutating endpoints.
	// Zero disables rate limiting.
	RateLimit float64
	RateBurst int
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	limit := newRateLimiter(opts.RateLimit, opts.RateBurst)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Reward catalog routes
		r.Route("/rewards", func(r chi.Router) {
			r.Get("/", h.ListRewards)
			r.Get("/all", h.ListAllRewards)
			r.Get("/{rewardID}", h.GetReward)
			r.Get("/{rewardID}/eligibility", h.CheckEligibility)
		})

		// User routes
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/claims", h.ListClaims)
			r.With(limit).Post("/claims", h.ClaimReward)
			r.With(limit).Post("/claims/{claimID}/redeem", h.RedeemClaim)
			r.Get("/summary", h.GetSummary)
			r.Get("/progress", h.GetProgress)
			r.With(limit).Put("/progress", h.SetProgress)
			r.With(limit).Post("/triggers", h.ProcessTrigger)
		})

		// Coupon routes
		r.Route("/coupons", func(r chi.Router) {
			r.Post("/validate", h.ValidateCoupon)
		})
	})

	// Operational endpoints
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
