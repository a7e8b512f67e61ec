// Package server exposes the resolution pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"bilirelay/internal/cache"
	"bilirelay/internal/logging"
	"bilirelay/internal/media"
)

const (
	apiTimeout      = 60 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Resolver is the pipeline the server drives.
type Resolver interface {
	Resolve(ctx context.Context, text string, quality media.Quality) (*media.Resolution, error)
	ResolveID(ctx context.Context, bvid media.BVID, page int, quality media.Quality) (*media.Resolution, error)
}

// Server routes API, proxy and redirect requests.
type Server struct {
	router   *chi.Mux
	resolver Resolver
	cache    *cache.Cache
	proxy    http.Handler
	quality  media.Quality
}

// New creates a server. quality is the tier used when a request names none.
func New(resolver Resolver, c *cache.Cache, proxy http.Handler, quality media.Quality) *Server {
	if quality <= 0 {
		quality = media.QDefault
	}
	s := &Server{
		router:   chi.NewRouter(),
		resolver: resolver,
		cache:    c,
		proxy:    proxy,
		quality:  quality,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures Chi middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(logging.Middleware)
	s.router.Use(middleware.Recoverer)
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/", s.handleIndex)

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(apiTimeout))
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			MaxAge:         300,
		}))

		r.With(s.cache.Middleware(s.resolveKey)).Get("/resolve", s.handleResolve)
		r.With(s.cache.Middleware(s.jsonKey)).Get("/json/{bvid}", s.handleJSON)
	})

	// Media streams run as long as the client keeps reading.
	s.router.Get("/proxy", s.proxy.ServeHTTP)

	s.router.Get("/*", s.handleRedirect)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully and
// waits for pending cache writes.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", addr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logrus.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("server forced to shutdown")
		return err
	}
	s.cache.Wait()

	logrus.Info("server stopped")
	return nil
}
