// Package api serves the query engine, the phase schemas and the reference
// library over HTTP for dashboards and review tooling.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/devbench/internal/pipeline"
	"github.com/leapstack-labs/devbench/internal/reference"
)

// Config holds configuration for the API server.
type Config struct {
	Open       Opener
	References *reference.Library
	// Pipeline is rerun on workbook changes when Watch is set.
	Pipeline *pipeline.Pipeline
	Port     int
	Watch    bool
	Logger   *slog.Logger
}

// Server is the API server.
type Server struct {
	open     Opener
	refs     *reference.Library
	pipeline *pipeline.Pipeline
	port     int
	watch    bool
	logger   *slog.Logger

	mu      sync.RWMutex
	backend *Backend
	closed  bool
}

// ErrServerClosed is returned by Reload after Close.
var ErrServerClosed = errors.New("api server closed")

// NewServer creates a server. The backend is opened by Serve or Reload.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Open == nil {
		return nil, fmt.Errorf("api server needs a backend opener")
	}
	if cfg.Watch && cfg.Pipeline == nil {
		return nil, fmt.Errorf("watch mode needs a pipeline")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		open:     cfg.Open,
		refs:     cfg.References,
		pipeline: cfg.Pipeline,
		port:     cfg.Port,
		watch:    cfg.Watch,
		logger:   logger,
	}, nil
}

// Reload opens a fresh backend and swaps it in. The previous backend is
// closed once the swap is done.
func (s *Server) Reload(ctx context.Context) error {
	b, err := s.open(ctx)
	if err != nil {
		return err
	}
	if b == nil || b.Validator == nil || b.Querier == nil {
		_ = b.close()
		return fmt.Errorf("incomplete backend")
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = b.close()
		return ErrServerClosed
	}
	old := s.backend
	s.backend = b
	s.mu.Unlock()

	if err := old.close(); err != nil {
		s.logger.Warn("failed to close previous backend", slog.String("error", err.Error()))
	}
	s.logger.Debug("backend loaded", slog.Int("phases", len(b.Validator.Phases())))
	return nil
}

func (s *Server) current() (*Backend, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend, s.backend != nil
}

// Close releases the backend. Later reloads fail with ErrServerClosed.
func (s *Server) Close() error {
	s.mu.Lock()
	b := s.backend
	s.backend = nil
	s.closed = true
	s.mu.Unlock()
	return b.close()
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.RequestLogger(&middleware.DefaultLogFormatter{
			Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
			NoColor: true,
		}),
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Get("/healthz", s.handleHealthz)
	r.Route("/api", func(r chi.Router) {
		r.Get("/phases", s.handlePhases)
		r.Get("/schemas/{phase}", s.handleSchema)
		r.Get("/reference/{phase}", s.handleReference)
		r.Post("/query", s.handleQuery)
		r.Post("/compare", s.handleCompare)
		r.Post("/review", s.handleReview)
	})
	return r
}

// Serve opens the backend and serves until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting API server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watch {
		eg.Go(func() error {
			return s.pipeline.Watch(egctx, func(_ *pipeline.Report, err error) {
				if err != nil || egctx.Err() != nil {
					return
				}
				if err := s.Reload(egctx); err != nil && !errors.Is(err, ErrServerClosed) {
					s.logger.Error("reload failed", slog.String("error", err.Error()))
				}
			})
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down API server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
