// Package api provides the HTTP server of the stars engine: a thin façade
// over the quota, redemption, and aggregation services. No business logic
// lives here — handlers validate request shape, resolve the caller identity,
// and translate domain errors into HTTP statuses.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/peopledesk/starled/internal/app/stars"
)

// Server is the stars HTTP API server.
type Server struct {
	quota          *stars.Tracker
	redemption     *stars.Redemption
	aggregator     *stars.Aggregator
	identity       IdentityProvider
	metricsEnabled bool
	requestTimeout time.Duration
}

// NewServer creates a new API server over the three services.
func NewServer(quota *stars.Tracker, redemption *stars.Redemption, aggregator *stars.Aggregator, identity IdentityProvider) *Server {
	return &Server{
		quota:          quota,
		redemption:     redemption,
		aggregator:     aggregator,
		identity:       identity,
		requestTimeout: 15 * time.Second,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetRequestTimeout overrides the per-request timeout.
func (s *Server) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		s.requestTimeout = d
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	// Stars endpoints — every route requires a caller identity.
	r.Route("/stars", func(r chi.Router) {
		r.Use(s.requireIdentity)
		r.Get("/", s.handleQuota)
		r.Post("/", s.handleGiveStar)
		r.Get("/received", s.handleReceived)
		r.Get("/leaderboard", s.handleLeaderboard)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response of the form {"error": "..."}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// corsMiddleware adds CORS headers for the presentation layer.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Employee-Id")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
