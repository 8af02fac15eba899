// Package server exposes terminal sessions to browsers over WebSocket
// and serves the health and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"labdash/config"
	"labdash/internal/metrics"
	"labdash/internal/session"
	"labdash/util"
)

const shutdownTimeout = 10 * time.Second

// Server is the HTTP front of the terminal bridge.
type Server struct {
	cfg      *config.Config
	opts     *session.Options
	registry *session.Registry
	metrics  *metrics.Collector
	logger   *util.Logger
	upgrader websocket.Upgrader
}

// New creates a Server.  opts carries the session collaborators; its
// Metrics collector is also served on /metrics.
func New(cfg *config.Config, opts *session.Options, logger *util.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		opts:     opts,
		registry: session.NewRegistry(),
		metrics:  opts.Metrics,
		logger:   logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Registry exposes the session index, mainly for tests.
func (s *Server) Registry() *session.Registry { return s.registry }

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLog)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Get(s.cfg.WSPath, s.handleTerminal)
	return r
}

// ListenAndServe serves until ctx is cancelled, then stops accepting
// requests and closes every remaining session.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Hijacked WebSocket connections are not tracked by Shutdown;
		// deriving every request from ctx lets them see cancellation.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	s.logger.Info("listening on %s (terminal endpoint %s)", ln.Addr(), s.cfg.WSPath)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down, %d session(s) open", s.registry.Len())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if cerr := s.registry.CloseAll(shutdownCtx, "server shutting down"); cerr != nil {
		s.logger.Warn("sessions still open after %s: %v", shutdownTimeout, cerr)
	}
	return err
}

// ── HTTP handlers ────────────────────────────────────────────────────

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Message: "labdash is running"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, s.metrics.JSON()+"\n") //nolint:errcheck
}

func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Verbose("upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	newConn(s, ws, r.RemoteAddr).serve(r.Context())
}

// checkOrigin accepts same-host origins, configured extra origins and
// non-browser clients that send no Origin at all.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, u.Host) || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	s.logger.Warn("rejected WebSocket origin %q", origin)
	return false
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("%s %s from %s [%s]", r.Method, r.URL.Path, r.RemoteAddr, chimw.GetReqID(r.Context()))
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
