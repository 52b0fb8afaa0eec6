// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notebridge/internal/api"
	"github.com/starford/notebridge/internal/inbox"
	"github.com/starford/notebridge/internal/mcpserver"
	"github.com/starford/notebridge/internal/noteservice"
	"github.com/starford/notebridge/internal/sse"
)

// Run starts the HTTP server and the import inbox watcher, and blocks until
// ctx is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	broker := sse.NewBroker(250 * time.Millisecond)
	defer broker.Close()

	app, rt, err := setup(opts,
		noteservice.WithNoteEvents(broker.PublishNoteEvent),
		noteservice.WithProgress(broker.PublishProgress),
	)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := app.config
	logger := rt.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_path", cfg.Store.Path),
		slog.String("export_dir", cfg.Export.Dir),
		slog.String("import_dir", cfg.Import.Dir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	httpMetrics, err := api.NewHTTPMetrics(rt.registry)
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}
	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, httpMetrics)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := rt.db.ListRows(req.Context(), "", 1); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Import files dropped into the inbox.
	g.Go(func() error {
		return newInboxWatcher(cfg, rt).Run(gCtx)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group once the server is asked to stop, so the
// inbox watcher exits with it.
var errShutdown = errors.New("shutdown")

// ServeMCP runs the MCP server over stdio. Logs go to stderr.
func ServeMCP(_ context.Context, opts ...Option) error {
	app, rt, err := setup(append(opts, WithLogOutput(os.Stderr)))
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.logger.Info("MCP server starting on stdio")
	return mcpserver.New(rt.svc, app.version).ServeStdio()
}

// Watch runs only the import inbox watcher until ctx is cancelled or a
// shutdown signal arrives.
func Watch(ctx context.Context, opts ...Option) error {
	app, rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := interruptible(ctx)
	defer stop()
	return newInboxWatcher(app.config, rt).Run(ctx)
}

func newInboxWatcher(cfg *Config, rt *runtime) *inbox.Watcher {
	return inbox.New(rt.inbox, rt.svc, noteservice.ImportRequest{
		Folder:        cfg.Import.Folder,
		DefaultFolder: cfg.Import.DefaultFolder,
		Strategy:      cfg.Import.Strategy,
	},
		inbox.WithDebounce(cfg.Import.Debounce),
		inbox.WithLogger(rt.logger),
	)
}
