// Package http exposes the pipeline over HTTP: query endpoints for the
// latest-value cache and the history ring, a login endpoint issuing bearer
// tokens, the live WebSocket feed, health and Prometheus metrics.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/LuisPassosRamos/IoT-Ecosystem/broadcast"
	"github.com/LuisPassosRamos/IoT-Ecosystem/config"
	"github.com/LuisPassosRamos/IoT-Ecosystem/errors"
	"github.com/LuisPassosRamos/IoT-Ecosystem/metric"
	"github.com/LuisPassosRamos/IoT-Ecosystem/store"
	"github.com/LuisPassosRamos/IoT-Ecosystem/weather"
)

// Deps are the pipeline components the gateway reads from. Cache, History
// and Broadcast are required; Weather, Registry and TransportHealthy are
// optional and disable their endpoints when absent.
type Deps struct {
	Cache            *store.LatestCache
	History          *store.History
	Broadcast        *broadcast.Manager
	Weather          *weather.Client
	Registry         *metric.Registry
	TransportHealthy func() bool
	Logger           *slog.Logger
}

// Server is the HTTP gateway.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	auth       *authenticator
	deps       Deps
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer builds the gateway and its route tree.
func NewServer(httpCfg config.HTTPConfig, authCfg config.AuthConfig, deps Deps) (*Server, error) {
	if deps.Cache == nil || deps.History == nil || deps.Broadcast == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Server", "NewServer",
			"cache, history and broadcast manager are required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "gateway")
	}

	auth, err := newAuthenticator(authCfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		auth:      auth,
		deps:      deps,
		logger:    logger,
		startTime: time.Now(),
	}
	s.router = s.routes(httpCfg)
	s.httpServer = &http.Server{
		Addr:         httpCfg.Addr,
		Handler:      s.router,
		ReadTimeout:  httpCfg.ReadTimeout,
		WriteTimeout: httpCfg.WriteTimeout,
	}
	return s, nil
}

func (s *Server) routes(httpCfg config.HTTPConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	if s.deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Registry.Handler())
	}
	r.Get("/ws", s.handleWebSocket(httpCfg.WriteTimeout))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.middleware)

			r.Get("/sensors/latest", s.handleLatest)
			r.Get("/sensors/history", s.handleHistory)
			r.Get("/sensors/anomalies", s.handleAnomalies)
			r.Get("/sensors/stats", s.handleStats)
			r.Get("/sensors/live", s.handleLive)

			if s.deps.Weather != nil {
				r.Get("/external/weather", s.handleWeather)
				r.Get("/compare/weather", s.handleCompareWeather)
			}
		})
	})

	return r
}

// Handler returns the route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
// ErrServerClosed from a graceful shutdown is not an error.
func (s *Server) Start() error {
	s.logger.Info("http gateway listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "Server", "Start", "serve http")
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Server", "Shutdown", "drain http server")
	}
	return nil
}

// corsMiddleware mirrors the permissive policy the dashboard frontend
// expects.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]any{
		"error":  message,
		"status": statusCode,
	})
}
