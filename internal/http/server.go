// Package http serves the LINE webhook, a health check and an operator status endpoint.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"time"
)

const shutdownTimeout = 10 * time.Second

// Config configures the HTTP server.
type Config struct {
	Addr           string
	WebhookPath    string
	StatusToken    string // bearer token for GET /status (empty = disabled)
	TrustProxy     bool
	RateLimitRPM   int
	RateLimitBurst int
}

// StatusSource reports registry state for GET /status.
type StatusSource interface {
	Ready() bool
	Len() int
}

// Server wires the handlers onto one mux.
type Server struct {
	cfg     Config
	mux     *http.ServeMux
	limiter *RateLimiter
	srv     *http.Server
	version string
}

// NewServer creates the server. Routes are registered immediately so Handler
// can be exercised without listening.
func NewServer(cfg Config, parse ParseFunc, sink EventSink, status StatusSource, version string) *Server {
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/callback"
	}
	s := &Server{
		cfg:     cfg,
		mux:     http.NewServeMux(),
		limiter: NewRateLimiter(cfg.RateLimitRPM, cfg.RateLimitBurst),
		version: version,
	}

	webhook := NewLineWebhookHandler(parse, sink, cfg.TrustProxy)
	if s.limiter.Enabled() {
		webhook.SetRateLimiter(s.limiter.Allow)
	}
	s.mux.Handle(cfg.WebhookPath, webhook)
	s.mux.HandleFunc("GET /status", s.statusHandler(status))
	s.mux.HandleFunc("GET /{$}", handleHealth)
	return s
}

// Handler returns the root handler with panic recovery.
func (s *Server) Handler() http.Handler {
	return recoverMiddleware(s.mux)
}

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("http: listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go s.limiter.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String(), "webhook_path", s.cfg.WebhookPath)
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http: shutdown: %w", err)
	}
	slog.Info("http server stopped")
	return nil
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

type statusResponse struct {
	Ready    bool   `json:"ready"`
	Bindings int    `json:"bindings"`
	Version  string `json:"version,omitempty"`
}

func (s *Server) statusHandler(src StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !tokenMatch(extractBearerToken(r), s.cfg.StatusToken) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(statusResponse{
			Ready:    src.Ready(),
			Bindings: src.Len(),
			Version:  s.version,
		})
	}
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("http handler panic", "path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
