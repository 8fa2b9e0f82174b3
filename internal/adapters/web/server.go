package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Options holds the HTTP server settings.
type Options struct {
	ListenAddress   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// Server serves the classifier JSON API
type Server struct {
	handlers *Handlers
	logger   *zap.Logger
	opts     Options
	server   *http.Server
	addr     string
}

// NewServer creates a new API server
func NewServer(handlers *Handlers, logger *zap.Logger, opts Options) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	handlers.maxBodyBytes = opts.MaxBodyBytes
	return &Server{handlers: handlers, logger: logger, opts: opts}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	h := s.handlers
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/signup", h.HandleSignup)
	mux.HandleFunc("POST /api/login", h.HandleLogin)
	mux.HandleFunc("POST /api/predict", h.HandlePredict)
	mux.Handle("GET /api/history", h.requireAuth(http.HandlerFunc(h.HandleHistory)))
	mux.HandleFunc("GET /api/metrics", h.HandleMetrics)
	mux.HandleFunc("GET /api/models", h.HandleModels)
	mux.Handle("POST /api/reload", h.requireAuth(http.HandlerFunc(h.HandleReload)))
	mux.HandleFunc("GET /healthz", h.HandleHealth)

	return requestLogger(s.logger, securityHeaders(mux))
}

// Start binds the listen address and serves in the background. A bind
// failure is returned to the caller.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.ListenAddress, err)
	}
	s.server = &http.Server{
		Addr:         s.opts.ListenAddress,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}
	s.addr = ln.Addr().String()

	s.logger.Info("API server starting", zap.String("address", s.addr))
	if strings.HasPrefix(s.opts.ListenAddress, ":") || strings.Contains(s.opts.ListenAddress, "0.0.0.0") {
		s.logger.Warn("API server is binding to all interfaces and may be accessible from the network")
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	return s.addr
}

// Stop drains in-flight requests and stops the server
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
