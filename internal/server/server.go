// Package server exposes the classifier and its stored configuration over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lu-zhengda/mailsweep/internal/decide"
	"github.com/lu-zhengda/mailsweep/internal/junk"
	"github.com/lu-zhengda/mailsweep/internal/store"
)

// Options configures a Server.
type Options struct {
	AccountID              string
	MinConfidence          float64
	RulesOverrideAllowList bool
	Clock                  func() time.Time
	Logger                 *slog.Logger
}

// Server serves the JSON API.
type Server struct {
	store  store.Store
	engine *decide.Engine
	scorer *junk.Scorer
	opts   Options
	log    *slog.Logger
}

// New returns a Server backed by s.
func New(s store.Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		store:  s,
		engine: decide.New(opts.Clock, logger),
		scorer: junk.NewScorer(opts.Clock),
		opts:   opts,
		log:    logger,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", handleHealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/decide", s.wrap(s.handleDecide))
		r.Post("/score", s.wrap(s.handleScore))
		r.Get("/stats", s.wrap(s.handleStats))

		r.Route("/lists/{kind}", func(r chi.Router) {
			r.Get("/", s.wrap(s.handleGetList))
			r.Post("/", s.wrap(s.handleAddListEntry))
			r.Delete("/", s.wrap(s.handleRemoveListEntry))
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.wrap(s.handleGetRules))
			r.Post("/", s.wrap(s.handleSaveRule))
			r.Delete("/{id}", s.wrap(s.handleDeleteRule))
		})
	})
	return r
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
