// Package daemon wires configuration, storage and services into a running server.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ArionMiles/kakeibo/internal/plugins"
	"github.com/ArionMiles/kakeibo/pkg/api"
	"github.com/ArionMiles/kakeibo/pkg/config"
	"github.com/ArionMiles/kakeibo/pkg/export"
	"github.com/ArionMiles/kakeibo/pkg/finance"
	"github.com/ArionMiles/kakeibo/pkg/ingest"
	"github.com/ArionMiles/kakeibo/pkg/logging"
	"github.com/ArionMiles/kakeibo/pkg/parser"
	"github.com/ArionMiles/kakeibo/pkg/server"
	"github.com/ArionMiles/kakeibo/pkg/store"
)

const shutdownTimeout = 10 * time.Second

// Runner manages the kakeibo server lifecycle.
type Runner struct {
	registry *plugins.Registry
	logger   *slog.Logger
}

// New creates a new runner.
func New(registry *plugins.Registry, logger *slog.Logger) *Runner {
	return &Runner{
		registry: registry,
		logger:   logging.OrDefault(logger),
	}
}

// Stores holds an open backend and the two tables served on it.
type Stores struct {
	Backend store.Backend
	Money   *store.Table
	Line    *store.Table
}

// Close closes the backend.
func (s *Stores) Close() error {
	return s.Backend.Close()
}

// Open creates the configured backend and its tables.
func (r *Runner) Open(ctx context.Context, cfg config.Config) (*Stores, error) {
	backend, err := r.registry.CreateBackend(ctx, cfg.Store, cfg,
		r.logger.With("component", "store", "plugin", cfg.Store))
	if err != nil {
		return nil, fmt.Errorf("creating %s backend: %w", cfg.Store, err)
	}

	tableLogger := r.logger.With("component", "table")
	return &Stores{
		Backend: backend,
		Money:   store.NewTable(backend, cfg.MoneyTable, "pk", store.WithLogger(tableLogger)),
		Line:    store.NewTable(backend, cfg.LineTable, "lmn", store.WithLogger(tableLogger)),
	}, nil
}

// Run opens storage, serves HTTP on cfg.Addr and blocks until ctx is canceled.
func (r *Runner) Run(ctx context.Context, cfg config.Config) error {
	r.logger.Info("starting kakeibo",
		"store", cfg.Store,
		"addr", cfg.Addr,
		"money_table", cfg.MoneyTable,
		"line_table", cfg.LineTable,
	)

	stores, err := r.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			r.logger.Error("failed to close store", "error", err)
		}
	}()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Addr, err)
	}

	return r.Serve(ctx, ln, cfg, stores)
}

// Serve serves the API on ln until ctx is canceled, then shuts down gracefully.
func (r *Runner) Serve(ctx context.Context, ln net.Listener, cfg config.Config, stores *Stores) error {
	kw, err := parser.LoadKeywords(cfg.KeywordsFile)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("loading keywords: %w", err)
	}

	srv := server.New(
		finance.New(stores.Money),
		ingest.New(stores.Line, parser.New(kw), r.logger),
		stores.Line,
		r.logger,
	)

	httpServer := &http.Server{
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		r.logger.Info("server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	r.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	r.logger.Info("server stopped")
	return nil
}

// Export streams the records of table into w and returns how many were sent.
func (r *Runner) Export(ctx context.Context, table *store.Table, w api.Writer, includeDeleted bool) (int, error) {
	records, err := table.List(ctx, includeDeleted)
	if err != nil {
		return 0, fmt.Errorf("listing %s: %w", table.Name(), err)
	}

	r.logger.Info("exporting records", "table", table.Name(), "count", len(records))

	if err := w.Write(ctx, export.Feed(ctx, records)); err != nil && !errors.Is(err, context.Canceled) {
		return 0, fmt.Errorf("writing export: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(records), nil
}
