package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/smancode/sman-sub006/internal/logging"
	"github.com/smancode/sman-sub006/pkg/types"
)

// Server is the HTTP server carrying the websocket endpoint.
type Server struct {
	cfg     types.ServerConfig
	router  *chi.Mux
	httpSrv *http.Server
}

// NewServer builds the router around the websocket handler.
func NewServer(cfg types.ServerConfig, handler *Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/ws", handler.ServeWS)
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	s := &Server{cfg: cfg, router: r}
	s.httpSrv = &http.Server{
		Addr:    s.Addr(),
		Handler: r,
		// No write timeout: websocket connections outlive any sane value.
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Hostname, s.cfg.Port)
}

// Router exposes the chi router, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	logging.Info().Str("addr", s.Addr()).Msg("server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen on %s: %w", s.Addr(), err)
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
