// Package web provides the scanblock HTTP server: the decision engine in front
// of either a reverse proxy or a minimal built-in handler.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/inercia/scanblock/internal/logging"
	"github.com/inercia/scanblock/internal/scanblock"
)

// DefaultShutdownTimeout bounds how long Run waits for in-flight requests.
const DefaultShutdownTimeout = 10 * time.Second

// Config holds the web server configuration.
type Config struct {
	// Listen is the TCP address Run listens on.
	Listen string
	// Upstream is the absolute URL passing requests are proxied to.
	// Empty serves 404 for every path other than /healthz.
	Upstream string
	// AccessLog configures the rotated request log. Empty Path disables it.
	AccessLog AccessLogConfig
	// Logger defaults to logging.Web().
	Logger *slog.Logger
}

// Server serves HTTP through the decision engine.
type Server struct {
	engine       *scanblock.Engine
	httpServer   *http.Server
	accessLogger *AccessLogger
	logger       *slog.Logger
	listen       string

	mu       sync.Mutex
	shutdown bool
}

// NewServer builds the handler chain: access log, request logging, the
// engine middleware and a mux whose catch-all route runs the engine again
// (a no-op for requests the middleware already evaluated) before the
// upstream proxy.
func NewServer(cfg Config, engine *scanblock.Engine) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Web()
	}

	s := &Server{
		engine:       engine,
		accessLogger: NewAccessLogger(cfg.AccessLog),
		logger:       logger,
		listen:       cfg.Listen,
	}

	var upstream http.Handler
	if cfg.Upstream != "" {
		proxy, err := s.newReverseProxy(cfg.Upstream)
		if err != nil {
			return nil, err
		}
		upstream = proxy
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthCheck)
	mux.Handle("/", engine.CatchAll(upstream))

	var handler http.Handler = engine.Middleware(mux)
	handler = s.loggingMiddleware(handler)
	if s.accessLogger != nil {
		handler = s.accessLogger.Middleware(handler)
	}

	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("web_server_initialized",
		"listen", cfg.Listen,
		"upstream", cfg.Upstream,
		"access_log", cfg.AccessLog.Path,
	)
	return s, nil
}

func (s *Server) newReverseProxy(upstream string) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(upstream)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream %q: must be an absolute URL", upstream)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.logger.Warn("upstream_error",
			"upstream", target.Host,
			"path", r.URL.Path,
			"request_id", scanblock.RequestID(r),
			"error", err,
		)
		writeErrorJSON(w, http.StatusBadGateway, "BadGateway", "Upstream unavailable")
	}
	return proxy, nil
}

// Handler returns the HTTP handler for the server.
// This is useful for testing with httptest.Server.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve serves HTTP on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info("web_server_listening", "address", listener.Addr().String())
	err := s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listen, err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
			defer cancel()
			if err := s.Shutdown(shutdownCtx); err != nil {
				logging.Shutdown().Warn("web_server_shutdown_error", "error", err)
			}
		case <-done:
		}
	}()

	return s.Serve(listener)
}

// Shutdown gracefully stops the server and closes the access log.
// The engine is owned by the caller and is not closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	s.mu.Unlock()

	err := s.httpServer.Shutdown(ctx)

	if s.accessLogger != nil {
		if cerr := s.accessLogger.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	logging.Shutdown().Info("web_server_stopped", "tracked_hosts", s.engine.Registry().Len())
	return err
}

// IsShutdown returns whether the server has been shut down.
func (s *Server) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// handleHealthCheck reports liveness for load balancers.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if s.IsShutdown() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "unhealthy",
			"reason":  "server_shutting_down",
			"message": "Server is shutting down",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"tracked_hosts": s.engine.Registry().Len(),
	})
}

// loggingMiddleware logs every request at debug level.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"raw_uri", r.RequestURI,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)
		next.ServeHTTP(w, r)
	})
}
