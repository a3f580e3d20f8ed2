// Package admin serves the operator HTTP surface: health, click counters,
// event bus queue statistics and configured sinks.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"mova-bot/internal/kernel"
	"mova-bot/internal/stats"
	"mova-bot/pkg/mova"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const defaultShutdownTimeout = 5 * time.Second

// CounterLister lists persisted click counters.
type CounterLister interface {
	List(ctx context.Context) ([]stats.Counter, error)
}

// SubscriptionReporter reports event bus queue statistics.
type SubscriptionReporter interface {
	Stats() []kernel.SubscriptionStats
}

// SinkLister lists the outbound sinks the bot can deliver through.
type SinkLister interface {
	ListSinks(ctx context.Context) ([]mova.EventSource, error)
}

// Option mutates server configuration.
type Option func(*Server)

// WithLogger sets the request and lifecycle logger.
func WithLogger(logger *slog.Logger) Option {
	return func(server *Server) {
		if logger != nil {
			server.logger = logger
		}
	}
}

// WithSubscriptions exposes event bus statistics on /subscriptions.
func WithSubscriptions(reporter SubscriptionReporter) Option {
	return func(server *Server) {
		server.subscriptions = reporter
	}
}

// WithSinks exposes configured driver sinks on /sinks.
func WithSinks(lister SinkLister) Option {
	return func(server *Server) {
		server.sinks = lister
	}
}

// WithShutdownTimeout bounds graceful shutdown after Run's context ends.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(server *Server) {
		if timeout > 0 {
			server.shutdownTimeout = timeout
		}
	}
}

// Server is the admin HTTP server.
type Server struct {
	addr            string
	counters        CounterLister
	subscriptions   SubscriptionReporter
	sinks           SinkLister
	logger          *slog.Logger
	shutdownTimeout time.Duration
	handler         http.Handler
}

// NewServer creates an admin server listening on addr.
func NewServer(addr string, counters CounterLister, options ...Option) (*Server, error) {
	if addr == "" {
		return nil, fmt.Errorf("new admin server: empty listen address")
	}
	if counters == nil {
		return nil, fmt.Errorf("new admin server: nil counter lister")
	}

	server := &Server{
		addr:            addr,
		counters:        counters,
		logger:          slog.Default(),
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, option := range options {
		option(server)
	}
	server.handler = server.routes()

	return server, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(s.logRequests)

	router.Get("/healthz", s.handleHealth)
	router.Get("/stats", s.handleStats)
	router.Get("/subscriptions", s.handleSubscriptions)
	router.Get("/sinks", s.handleSinks)

	return router
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("admin listen %s: %w", s.addr, err)
	}

	return s.Serve(ctx, listener)
}

// Serve handles connections from listener until ctx is canceled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()
	s.logger.InfoContext(ctx, "admin server listening", "component", "admin", "addr", listener.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin serve: %w", err)
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counters, err := s.counters.List(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "list click counters failed", "component", "admin", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
		return
	}

	respondJSON(w, http.StatusOK, counters)
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, _ *http.Request) {
	if s.subscriptions == nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "subscriptions not exposed"})
		return
	}

	respondJSON(w, http.StatusOK, s.subscriptions.Stats())
}

type sinkView struct {
	Platform string `json:"platform"`
	ID       string `json:"id"`
}

func (s *Server) handleSinks(w http.ResponseWriter, r *http.Request) {
	if s.sinks == nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "sinks not exposed"})
		return
	}
	sinks, err := s.sinks.ListSinks(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "list sinks failed", "component", "admin", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "sinks unavailable"})
		return
	}

	views := make([]sinkView, 0, len(sinks))
	for _, sink := range sinks {
		views = append(views, sinkView{Platform: string(sink.Platform), ID: sink.ID})
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)

		s.logger.DebugContext(r.Context(), "admin request",
			"component", "admin",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.Status(),
			"duration", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
