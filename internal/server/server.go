// Package server exposes the content gateway and ref resolution over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/quantmind-br/docgate/internal/cache"
	"github.com/quantmind-br/docgate/internal/domain"
	"github.com/quantmind-br/docgate/internal/refs"
	"github.com/quantmind-br/docgate/internal/utils"
)

// Content is the part of the gateway the server needs
type Content interface {
	GetMenu(ctx context.Context, repo, ref string) ([]*domain.MenuNode, error)
	GetDoc(ctx context.Context, repo, ref, slug string) (*domain.RenderedDoc, error)
	GetImage(ctx context.Context, repo, ref, slug string) ([]byte, error)
	CacheStats() map[string]cache.Stats
}

// RefCatalog lists refs and resolves request paths against them
type RefCatalog interface {
	Refs(ctx context.Context, repo string) (domain.RefSet, error)
	Resolve(ctx context.Context, repo string, p refs.Params, defaultLang string) (string, bool, error)
}

// Options configures a Server
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// DefaultLang is the language of redirects for paths without one
	DefaultLang string
	// Repo normalizes the "repo" query parameter. An empty input selects
	// the default repository.
	Repo   func(string) (string, error)
	Logger *utils.Logger
}

// Server serves documentation menus, pages and images
type Server struct {
	content Content
	refs    RefCatalog
	opts    Options
	logger  *utils.Logger
	handler http.Handler

	mu         sync.Mutex
	httpServer *http.Server
}

// New creates a new server
func New(content Content, catalog RefCatalog, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.DefaultLang == "" {
		opts.DefaultLang = "en"
	}
	if opts.Repo == nil {
		opts.Repo = func(repo string) (string, error) {
			if repo == "" {
				return "", domain.NewValidationError("repo", "repository is required")
			}
			return repo, nil
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	s := &Server{
		content: content,
		refs:    catalog,
		opts:    opts,
		logger:  logger.WithComponent("server"),
	}
	s.handler = s.addMiddleware(s.routes())
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/refs", s.handleRefs)
	mux.HandleFunc("GET /api/menu/{ref}", s.handleMenu)
	mux.HandleFunc("GET /api/doc/{ref}/{slug...}", s.handleDoc)
	mux.HandleFunc("GET /api/image/{ref}/{slug...}", s.handleImage)
	mux.HandleFunc("GET /docs/{path...}", s.handleDocs)
	return mux
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("Listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
