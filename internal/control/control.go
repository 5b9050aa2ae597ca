// Package control implements the inbound control surface (spec.md §4.L):
// an HTTP endpoint that accepts signed interactive commands (stats, set,
// apply, rollback) and the button/modal equivalents the nightly report's
// approve/reject/view-detail controls post back. Every mutation flows
// through internal/paramstore, which owns rate limiting, validation,
// backup and audit.
package control

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/amenzel91/catalyst-bot/internal/domain"
	"github.com/amenzel91/catalyst-bot/internal/events"
)

// ParamStore is the subset of *paramstore.Store the control surface
// drives. Declared narrow here so tests substitute a fake rather than a
// sqlite-backed store, the same pattern internal/cycle uses for its own
// dependencies.
type ParamStore interface {
	Get() *domain.ConfigSnapshot
	Apply(delta map[string]interface{}, author, sourceTag string) (Result, error)
	Rollback(n int) (Result, error)
	History(limit int) ([]domain.AuditRecord, error)
}

// Result mirrors paramstore.Result's two fields without importing the
// concrete package, so a fake ParamStore in tests needs no sqlite.
type Result struct {
	Revision int
	Snapshot *domain.ConfigSnapshot
}

// RateLimitedError is returned by a ParamStore implementation in place of
// paramstore.RateLimitedError, so this package's command handlers can
// switch on it without importing paramstore directly.
type RateLimitedError struct {
	Remaining time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry in %s", e.Remaining.Round(time.Second))
}

// Server is the chi-routed HTTP control surface. Every request that
// mutates config must carry a valid ed25519 signature (Verifier); stats
// reads are signed the same way since the inbound contract requires
// signature verification on every request, not only mutating ones.
type Server struct {
	router   *chi.Mux
	params   ParamStore
	verifier *Verifier
	bus      *events.Bus
	log      zerolog.Logger

	server *http.Server

	mu         sync.Mutex
	lastReport *events.NightlyReportData
}

// Config bundles Server's dependencies.
type Config struct {
	ParamStore ParamStore
	Verifier   *Verifier
	Bus        *events.Bus
	Log        zerolog.Logger
	Port       int
}

// New builds a Server with routes and middleware wired, but does not
// start listening; call ListenAndServe.
func New(cfg Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		params:   cfg.ParamStore,
		verifier: cfg.Verifier,
		bus:      cfg.Bus,
		log:      cfg.Log.With().Str("component", "control").Logger(),
	}

	if s.bus != nil {
		s.bus.Subscribe(events.NightlyReport, s.rememberReport)
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Router exposes the underlying chi.Mux, mainly for tests that drive
// requests through httptest without a listening socket.
func (s *Server) Router() http.Handler { return s.router }

// ListenAndServe starts the HTTP listener; it blocks until Shutdown is
// called or the listener errors.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("control surface listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", SignatureHeader, TimestampHeader},
		MaxAge:         300,
	}))
}

func (s *Server) rememberReport(e events.Event) {
	data, ok := e.Data.(*events.NightlyReportData)
	if !ok {
		return
	}
	s.mu.Lock()
	s.lastReport = data
	s.mu.Unlock()
}
