// Package api implements the engine's public surface: REST endpoints plus
// a WebSocket projection of the event bus, behind request-ID, logging,
// shared-secret auth, CORS, timeout, JSON content-type and Prometheus
// instrumentation middlewares.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/truthfeed/engine/internal/bus"
	"github.com/truthfeed/engine/internal/model"
)

// Config controls the server's network and auth posture.
type Config struct {
	Host           string
	Port           int
	APIKey         string
	CORSOrigins    []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// DefaultConfig is a sane local-dev posture; production overrides via
// internal/config.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		CORSOrigins:    []string{"*"},
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

// Server is the engine's HTTP+WebSocket front door.
type Server struct {
	cfg    Config
	router *mux.Router
	http   *http.Server
}

// NewServer wires routes, auth, CORS, metrics, and the WebSocket upgrader
// against handlers, bus, and logger.
func NewServer(cfg Config, handlers *Handlers, b *bus.Bus, metrics *Metrics, logger zerolog.Logger) *Server {
	router := mux.NewRouter()
	s := &Server{cfg: cfg, router: router}

	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware(logger))
	router.Use(timeoutMiddleware(cfg.RequestTimeout))
	router.Use(instrumentMiddleware(metrics))
	router.Use(authMiddleware(cfg.APIKey))

	api := router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)
	api.HandleFunc("/api/signals/current/{platform}", handlers.SignalsCurrent).Methods(http.MethodGet)
	api.HandleFunc("/api/signals/history", handlers.SignalsHistory).Methods(http.MethodGet)
	api.HandleFunc("/api/backtest", handlers.Backtest).Methods(http.MethodPost)
	api.HandleFunc("/api/alerts/pending", handlers.AlertsPending).Methods(http.MethodGet)
	api.HandleFunc("/api/alerts/{id}/dismiss", handlers.AlertAction(model.AlertDismissed)).Methods(http.MethodPost)
	api.HandleFunc("/api/alerts/{id}/confirm", handlers.AlertAction(model.AlertConfirmed)).Methods(http.MethodPost)
	api.HandleFunc("/api/wallet/{address}/analyze", handlers.WalletAnalyze).Methods(http.MethodGet)
	api.HandleFunc("/api/trends", handlers.Trends).Methods(http.MethodGet)
	api.HandleFunc("/api/cross-signals/strongest", handlers.CrossSignalsStrongest).Methods(http.MethodGet)
	api.HandleFunc("/api/leaderboard/unified", handlers.LeaderboardUnified).Methods(http.MethodGet)
	api.HandleFunc("/api/trader/{address}", handlers.TraderProfile).Methods(http.MethodGet)

	// WebSocket and /metrics bypass the JSON content-type subrouter.
	router.HandleFunc("/api/signals/subscribe", SignalsSubscribe(b, metrics, logger))
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(handlers.NotFound)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-API-Key"},
	})

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Addr returns the server's bound address.
func (s *Server) Addr() string {
	return s.http.Addr
}
