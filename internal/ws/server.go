// Package ws serves the relay endpoint: the websocket event stream, the
// control API and the session and health views.
package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/media-relay/mediarelay/internal/control"
	"github.com/media-relay/mediarelay/internal/health"
	"github.com/media-relay/mediarelay/internal/monitor"
	"github.com/media-relay/mediarelay/internal/session"
)

// TokenHeader carries the relay auth token.
const TokenHeader = "X-Media-Relay-Token"

// Commander sends named transport commands.
type Commander interface {
	SendNamed(name string) error
}

// SessionLister reports the attached sessions.
type SessionLister interface {
	Snapshots() []session.Snapshot
}

// Options configure a Server.
type Options struct {
	AllowedOrigins []string
	AuthToken      string
	WriteTimeout   time.Duration
}

type Server struct {
	transport      *Transport
	commander      Commander
	sessions       SessionLister
	status         func() monitor.SourceStatus
	recorder       *health.Recorder
	logger         *zap.Logger
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
	writeTimeout   time.Duration
}

func NewServer(transport *Transport, commander Commander, sessions SessionLister, status func() monitor.SourceStatus, recorder *health.Recorder, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	s := &Server{
		transport:      transport,
		commander:      commander,
		sessions:       sessions,
		status:         status,
		recorder:       recorder,
		logger:         logger.Named("server"),
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      opts.AuthToken,
		writeTimeout:   opts.WriteTimeout,
	}

	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("POST /api/control/{command}", s.handleControl)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
}

// Handler returns a mux with every relay route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade", zap.Error(err))
		return
	}

	sub := newConnSubscriber(conn, s.writeTimeout, s.logger)
	token := s.transport.StartListening(sub)
	s.logger.Info("listener connected", zap.String("remote", r.RemoteAddr))

	defer func() {
		s.transport.StopListening(token)
		if err := sub.Close(); err != nil {
			s.logger.Debug("close listener", zap.Error(err))
		}
		s.logger.Info("listener disconnected", zap.String("remote", r.RemoteAddr))
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	name := r.PathValue("command")
	err := s.commander.SendNamed(name)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, Response{})
	case errors.Is(err, control.ErrNotImplemented):
		writeJSON(w, http.StatusNotImplemented, Response{Error: errNotImplementedText})
	default:
		s.logger.Warn("control command failed", zap.String("command", name), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, Response{Error: err.Error()})
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, SessionsResponse{Sessions: s.sessions.Snapshots()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	resp := HealthResponse{
		Transport: s.transport.State(),
		Errors:    s.recorder.Snapshot(),
	}
	if s.status != nil {
		resp.Source = s.status()
	}
	if resp.Errors == nil {
		resp.Errors = []health.Counter{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get(TokenHeader) == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Hostname()
	return parsed.Host == r.Host || host == "localhost" || host == "127.0.0.1" || host == "::1"
}
