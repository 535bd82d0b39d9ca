package server

import (
	"net/http"

	"github.com/peterje/microterm/internal/api"
	"github.com/peterje/microterm/internal/config"
	"github.com/peterje/microterm/internal/events"
	"github.com/peterje/microterm/internal/journal"
	"github.com/peterje/microterm/internal/metrics"
	"github.com/peterje/microterm/internal/models"
	"github.com/peterje/microterm/internal/pty"
	"github.com/peterje/microterm/internal/shepherd"
	"github.com/peterje/microterm/internal/tunnel"
	"github.com/peterje/microterm/internal/ws"
	"go.uber.org/zap"
)

// Options wires the server to its collaborators. Store and Metrics may be nil.
type Options struct {
	Manager  pty.SessionManager
	Events   events.Source
	Store    *journal.Store
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Shell    models.ShellStatus
	PTYReady bool
	Shepherd bool

	Server       config.ServerConfig
	RateLimit    config.RateLimitConfig
	HistoryLimit int
}

type Server struct {
	mux     *http.ServeMux
	handler http.Handler
	opts    Options
	log     *zap.Logger
	tunnel  *shepherd.Server
}

func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		mux:    http.NewServeMux(),
		opts:   opts,
		log:    log,
		tunnel: shepherd.NewServer(opts.Manager, opts.Events, log.Named("tunnel")),
	}
	s.routes()
	s.handler = loggingMiddleware(log.Named("http"), recoveryMiddleware(log.Named("http"), s.mux))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close drops tunneled clients, which outlive http.Server.Shutdown.
func (s *Server) Close() {
	s.tunnel.CloseConnections()
}

func (s *Server) routes() {
	sessions := api.NewSessionsHandler(s.opts.Manager, s.opts.Store, s.opts.HistoryLimit)
	wsHandler := ws.NewHandler(s.opts.Manager, s.opts.Events, s.opts.Server.AllowedOrigins, s.opts.Metrics, s.log.Named("ws"))
	limit := newRateLimiter(s.opts.RateLimit)

	// Health
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Sessions
	s.mux.HandleFunc("GET /api/sessions", sessions.HandleList)
	s.mux.Handle("POST /api/sessions", limit.wrap(http.HandlerFunc(sessions.HandleCreate)))
	s.mux.HandleFunc("DELETE /api/sessions/{id}", sessions.HandleDelete)
	s.mux.HandleFunc("POST /api/sessions/{id}/input", sessions.HandleInput)
	s.mux.HandleFunc("POST /api/sessions/{id}/resize", sessions.HandleResize)
	s.mux.HandleFunc("GET /api/sessions/{id}/cwd", sessions.HandleCwd)
	s.mux.HandleFunc("GET /api/history", sessions.HandleHistory)

	// WebSocket and tunnel
	s.mux.Handle("GET /ws", limit.wrap(wsHandler))
	s.mux.Handle("GET /api/tunnel", limit.wrap(tunnel.Handler(s.opts.Server.TunnelToken, s.tunnel.ServeConn, s.log.Named("tunnel"))))

	// Metrics
	if s.opts.Metrics != nil {
		s.mux.Handle("GET /metrics", s.opts.Metrics.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if !s.opts.PTYReady || !s.opts.Shell.Installed {
		status = "degraded"
	}
	api.WriteJSON(w, http.StatusOK, models.HealthResponse{
		Status:   status,
		Shell:    s.opts.Shell,
		PTY:      s.opts.PTYReady,
		Shepherd: s.opts.Shepherd,
		Sessions: len(s.opts.Manager.List()),
	})
}
