// Package server exposes flaneur over HTTP.
//
// Routes:
//
//	GET /healthz
//	GET /metrics
//	GET /instagram/connect, /instagram/authorize
//	GET /facebook/connect, /facebook/authorize
//	GET /instagram/photos
//	GET /facebook/locations, /facebook/events
//	GET /social-location
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gauthierbraillon/flaneur/internal/aggregator"
	"github.com/gauthierbraillon/flaneur/internal/facebook"
	"github.com/gauthierbraillon/flaneur/internal/instagram"
	"github.com/gauthierbraillon/flaneur/internal/logging"
	"github.com/gauthierbraillon/flaneur/pkg/oauth"
)

// Option configures the Server.
type Option func(*Server)

// WithInstagramOAuth enables /instagram/connect and /instagram/authorize.
func WithInstagramOAuth(flow *oauth.Flow) Option {
	return func(s *Server) {
		s.auth[instagram.Name] = flow
	}
}

// WithFacebookOAuth enables /facebook/connect and /facebook/authorize.
func WithFacebookOAuth(flow *oauth.Flow) Option {
	return func(s *Server) {
		s.auth[facebook.Name] = flow
	}
}

// WithTimeouts sets the read header and graceful shutdown timeouts.
func WithTimeouts(readHeader, shutdown time.Duration) Option {
	return func(s *Server) {
		s.readHeaderTimeout = readHeader
		s.shutdownTimeout = shutdown
	}
}

// Server serves the flaneur HTTP API.
type Server struct {
	agg               *aggregator.Aggregator
	auth              map[string]*oauth.Flow
	router            chi.Router
	readHeaderTimeout time.Duration
	shutdownTimeout   time.Duration
}

// New creates a Server running providers through agg.
func New(agg *aggregator.Aggregator, opts ...Option) *Server {
	s := &Server{
		agg:               agg,
		auth:              make(map[string]*oauth.Flow),
		readHeaderTimeout: 10 * time.Second,
		shutdownTimeout:   15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(requestLogging)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/instagram", func(r chi.Router) {
		r.Get("/connect", s.handleConnect(instagram.Name))
		r.Get("/authorize", s.handleAuthorize(instagram.Name))
		r.Get("/photos", s.handleProvider(instagram.Name, "maxID"))
	})

	r.Route("/facebook", func(r chi.Router) {
		r.Get("/connect", s.handleConnect(facebook.Name))
		r.Get("/authorize", s.handleAuthorize(facebook.Name))
		r.Get("/locations", s.handleProvider(facebook.Name, "after"))
		r.Get("/events", s.handleProvider(facebook.EventsName, "after"))
	})

	r.Get("/social-location", s.handleSocialLocation)

	return r
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", ln.Addr().String()).Msg("server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
