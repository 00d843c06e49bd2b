// Package server exposes the relay over HTTP: the websocket endpoint the
// observer app connects to, and a small token-guarded API for sibling
// backend services.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/votewatch/realtime/internal/hub"
	"github.com/votewatch/realtime/internal/repositories"
)

const healthTimeout = 2 * time.Second

// Check is a named dependency probe run by the health endpoint.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Options struct {
	Hub         *hub.Hub
	Messages    repositories.MessageRepository
	Users       repositories.UserRepository
	TokenSecret string
	Checks      []Check
	Logger      *slog.Logger
}

type Server struct {
	hub      *hub.Hub
	messages repositories.MessageRepository
	users    repositories.UserRepository
	secret   string
	checks   []Check
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:      opts.Hub,
		messages: opts.Messages,
		users:    opts.Users,
		secret:   opts.TokenSecret,
		checks:   opts.Checks,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin checks happen at the platform gateway in front of this service.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router assembles the HTTP surface: websocket endpoint, health and metrics,
// and the internal API behind service-token auth.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWebsocket)

	r.Route("/api/internal", func(r chi.Router) {
		r.Use(s.requireServiceToken)
		r.Post("/notify", s.handleNotify)
		r.Get("/presence", s.handlePresence)
		r.Get("/messages", s.handleMessages)
		r.Get("/users/{userID}", s.handleUser)
	})

	return r
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.hub.NewConn(ws).Run()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	for _, c := range s.checks {
		if err := c.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "dependency", c.Name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "degraded",
				"failed": c.Name,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.hub.ConnectionCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Client gone mid-response; nothing useful left to do.
		return
	}
}
