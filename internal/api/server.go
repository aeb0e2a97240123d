// Package api exposes the HTTP surface the browser frontend talks to:
// auth, scheduled messages, contacts, connection status and the realtime
// WebSocket endpoint.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ivangillig/whatsapp-scheduler/internal/store"
	"github.com/ivangillig/whatsapp-scheduler/internal/ws"
	"go.uber.org/zap"
)

// Server wires the chi router and the HTTP listener.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer assembles the router.
func NewServer(addr, frontendOrigin string, db *store.DB, conn Connection, auth *Auth, hub *ws.Hub, logger *zap.Logger) *Server {
	h := &handlers{db: db, conn: conn, auth: auth, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(frontendOrigin))

	r.Get("/health", h.health)
	r.Get("/ws", hub.Handle)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.login)
		r.Post("/auth/logout", h.authLogout)
		r.Get("/auth/check", h.authCheck)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)

			r.Get("/whatsapp/status", h.whatsappStatus)
			r.Post("/whatsapp/logout", h.whatsappLogout)

			r.Get("/messages", h.listMessages)
			r.Post("/messages", h.createMessage)
			r.Delete("/messages/{id}", h.deleteMessage)

			r.Get("/contacts", h.listContacts)
			r.Post("/contacts", h.createContact)
			r.Delete("/contacts/{jid}", h.deleteContact)
		})
	})

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: r},
		logger:     logger,
	}
}

// Start begins serving. Blocks until the listener closes.
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("HTTP server stopping")
	_ = s.httpServer.Shutdown(ctx)
}

// corsMiddleware allows the configured frontend origin. chi carries no CORS
// middleware of its own, so this covers the handful of headers we need.
func corsMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
