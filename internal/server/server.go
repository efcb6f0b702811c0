// Package server provides the HTTP API for observing the trading system.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/database"
	"github.com/meridianfund/meridian/internal/domain"
	"github.com/meridianfund/meridian/internal/events"
	"github.com/meridianfund/meridian/internal/portfolio"
	"github.com/meridianfund/meridian/internal/scheduler"
	"github.com/meridianfund/meridian/internal/trading"
)

// Config holds server wiring.
type Config struct {
	Log        zerolog.Logger
	Port       int
	DevMode    bool
	Portfolio  *portfolio.Portfolio
	Trades     *trading.TradeRepository
	Scheduler  *scheduler.Scheduler
	Events     *events.Manager
	Clock      domain.MarketClock
	Databases  map[string]*database.DB
	PriceQuote PriceFunc
}

// PriceFunc returns the latest known price for a ticker, used by the
// portfolio handler to mark positions to market.
type PriceFunc func(ctx context.Context, ticker string) (float64, error)

// Server is the HTTP server exposing the read-only API, metrics and the
// event stream. It never mutates trading state beyond kicking the scheduler.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
}

// New creates the server and mounts all routes.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("service", "http_server").Logger(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	if cfg.DevMode {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	api := NewAPIHandlers(cfg.Portfolio, cfg.Trades, cfg.Scheduler, cfg.Clock, cfg.PriceQuote, cfg.Log)
	system := NewSystemHandlers(cfg.Databases, cfg.Log)
	stream := NewEventStreamHandler(cfg.Events, cfg.Log)

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/portfolio", api.GetPortfolio)
			r.Get("/trades", api.GetTrades)
			r.Get("/trades/{ticker}", api.GetTradesForTicker)
			r.Get("/scheduler/status", api.GetSchedulerStatus)
			r.Post("/scheduler/kick", api.KickScheduler)
			r.Get("/market/status", api.GetMarketStatus)
			r.Get("/system/health", system.GetHealth)
		})
		// The event stream stays outside the request timeout; connections
		// are long lived and manage their own write deadlines.
		r.Get("/events/stream", stream.ServeHTTP)
	})
	s.router.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming endpoints manage their own deadlines
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins serving. It blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
