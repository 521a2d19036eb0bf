// Package server exposes the controller over a small JSON control API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/s0up4200/seedbrake/controller"
	"github.com/s0up4200/seedbrake/qbittorrent"
	"github.com/s0up4200/seedbrake/store"
)

// Controller is the part of *controller.Controller the API drives.
type Controller interface {
	State() controller.State
	Start() bool
	Stop() bool
	ForceRestore(ctx context.Context, target string) error
	ServiceControlState() (map[string]bool, error)
	SetServiceEnabled(id string, enabled bool) error
	SetServicesEnabled(flags map[string]bool) error
	FailureRecords(limit int) ([]store.FailureRecord, error)
	TargetStatus(ctx context.Context, name string) (*qbittorrent.TransferStatus, error)
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	addr   string
	ctrl   Controller
	logger zerolog.Logger
}

// New creates a new HTTP server instance
func New(addr string, ctrl Controller, logger zerolog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		addr:   addr,
		ctrl:   ctrl,
		logger: logger.With().Str("component", "server").Logger(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, errors.New("the requested resource was not found"))
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, errors.New("the requested method is not allowed for this resource"))
	})

	s.registerRoutes()
	return s
}

// Start listens until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info().Str("addr", s.addr).Msg("Starting control API")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("Shutting down control API")
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		event := s.logger.Debug()
		if ww.Status() >= http.StatusInternalServerError {
			event = s.logger.Warn()
		}
		event.
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
