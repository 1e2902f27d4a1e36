// Package server exposes the fractaliser as an HTTP API.
//
// Two styles of use are supported. One-shot clients POST a multipart upload
// to /api/render and get the PNG back. Interactive clients create a session
// with /api/sessions, adjust its parameters with PATCH requests and download
// the current result; each session keeps its decoded source in memory so
// parameter changes never re-upload the image.
//
// All errors are JSON objects of the form
//
//	{"error": "INVALID_PARAMETER", "message": "slice count must be between 10 and 100, got 5"}
//
// with the status derived from the error code.
package server

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/fractaliser/pkg/pipeline"
	"github.com/matzehuels/fractaliser/pkg/session"
)

const (
	// DefaultMaxUploadBytes is the upload limit used when Config leaves it unset.
	DefaultMaxUploadBytes int64 = 20 << 20

	// multipartMemory is how much of an upload ParseMultipartForm keeps in
	// memory before spilling to a temp file.
	multipartMemory = 8 << 20

	// maxJSONBytes bounds PATCH request bodies.
	maxJSONBytes = 64 << 10

	janitorInterval = time.Minute
	shutdownTimeout = 10 * time.Second
)

// Config configures a Server.
type Config struct {
	// Addr is the listen address for ListenAndServe.
	Addr string

	// MaxUploadBytes limits multipart uploads. Zero means DefaultMaxUploadBytes.
	MaxUploadBytes int64

	// SessionTTL is the idle lifetime of editor sessions.
	SessionTTL time.Duration

	// Options seeds every render: default parameters, viewport and the
	// interpolation, kernel, overflow and compression names.
	Options pipeline.Options
}

// Server handles the HTTP API.
type Server struct {
	runner   *pipeline.Runner
	sessions session.Store
	cfg      Config
	logger   *log.Logger
	router   chi.Router
}

// New creates a server rendering with runner and keeping sessions in store.
// A nil store selects an in-memory store; a nil logger selects log.Default.
func New(runner *pipeline.Runner, store session.Store, cfg Config, logger *log.Logger) *Server {
	if store == nil {
		store = session.NewMemoryStore()
	}
	if logger == nil {
		logger = log.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = session.DefaultTTL
	}
	cfg.Options.Logger = logger

	s := &Server{
		runner:   runner,
		sessions: store,
		cfg:      cfg,
		logger:   logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, errNotFound("no route for %s %s", r.Method, r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{
			Error:   "METHOD_NOT_ALLOWED",
			Message: r.Method + " is not allowed on " + r.URL.Path,
		})
	})

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/defaults", s.handleDefaults)
		r.Post("/render", s.handleRender)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Patch("/params", s.handlePatchParams)
				r.Patch("/viewport", s.handlePatchViewport)
				r.Post("/reset", s.handleReset)
				r.Get("/download", s.handleDownload)
			})
		})
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on cfg.Addr until ctx is cancelled, then shuts down
// gracefully. Expired sessions are swept in the background while serving.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		session.RunJanitor(ctx, s.sessions, janitorInterval, func(err error) {
			s.logger.Warn("session cleanup failed", "err", err)
		})
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
