package httpapi

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires all routes. Public endpoints (webhook, unsubscribe,
// pixel) sit at the root; the admin JSON API lives under /api.
func NewRouter(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Post("/webhooks/mailgun", h.HandleMailgunWebhook)
	r.Get("/unsubscribe", h.HandleUnsubscribe)
	r.Get("/track/open/{taskID}", h.HandleOpenPixel)

	r.Route("/api", func(r chi.Router) {
		r.Post("/groups", h.HandleCreateGroup)
		r.Get("/groups", h.HandleListGroups)
		r.Post("/groups/{groupID}/members", h.HandleAddMembers)
		r.Post("/templates", h.HandleCreateTemplate)
		r.Get("/templates", h.HandleListTemplates)
		r.Post("/expand", h.HandleExpand)
		r.Post("/merge", h.HandleMerge)
		r.Get("/stats", h.HandleStats)
	})

	return r
}

// Server wraps the HTTP listener.
type Server struct {
	srv *http.Server
}

// NewServer creates the HTTP server on the given port.
func NewServer(h *Handlers, port int) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      NewRouter(h),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start blocks serving requests until the listener fails or closes.
func (s *Server) Start() error {
	log.Printf("[Server] Listening on %s", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
