// Package web exposes the similarity engine over HTTP.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mbartos/photon/internal/config"
	"github.com/mbartos/photon/internal/database"
	"github.com/mbartos/photon/internal/notify"
	"github.com/mbartos/photon/internal/similarity"
	"github.com/mbartos/photon/internal/web/handlers"
	"github.com/mbartos/photon/internal/web/middleware"
)

// Server wraps the chi router and the underlying HTTP server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
}

// Deps carries everything the routes need.
type Deps struct {
	Similarity  *similarity.Service
	Embeddings  database.EmbeddingWriter
	Faces       database.FaceWriter
	Media       database.MediaWriter
	Blobs       handlers.OriginalStore
	Embedder    similarity.Embedder
	Waker       handlers.Waker
	Broadcaster *notify.Broadcaster
	Thresholds  config.ThresholdsConfig
	Model       string
}

// NewServer builds the router, middleware stack and HTTP server.
func NewServer(port int, deps Deps) *Server {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS())

	s := &Server{router: r}
	s.setupRoutes(deps)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // SSE and uploads
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	slog.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down web server")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the chi mux, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
