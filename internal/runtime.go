package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/starford/notebridge/internal/bridge"
	"github.com/starford/notebridge/internal/noteservice"
	"github.com/starford/notebridge/internal/storage"
	"github.com/starford/notebridge/internal/store"
	"github.com/starford/notebridge/internal/transfer"
)

// Resolver answers an import conflict; see transfer.Resolver.
type Resolver = transfer.Resolver

// newLogger writes JSON logs, or text logs when out is a terminal.
func newLogger(out *os.File, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	fd := out.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

// runtime holds the wired components shared by every command.
type runtime struct {
	logger   *slog.Logger
	db       *store.DB
	registry *prometheus.Registry
	svc      *noteservice.Service
	inbox    *storage.FS
}

func (rt *runtime) Close() error {
	return rt.db.Close()
}

// newRuntime opens the store and the export and import directories and
// builds the note service over them.
func newRuntime(cfg *Config, logger *slog.Logger, svcOpts ...noteservice.Option) (*runtime, error) {
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	exportFS, err := storage.NewFS(cfg.Export.Dir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init export dir: %w", err)
	}
	importFS, err := storage.NewFS(cfg.Import.Dir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init import dir: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := transfer.NewMetrics(reg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	br := bridge.NewLocal(db)
	orch := transfer.New(db, br, transfer.WithLogger(logger), transfer.WithMetrics(metrics))

	opts := append([]noteservice.Option{noteservice.WithDefaults(noteservice.Defaults{
		Format:          cfg.Export.Format,
		JSONMode:        cfg.Export.JSONMode,
		Frontmatter:     cfg.Export.Frontmatter,
		CopyAttachments: cfg.Export.CopyAttachments,
		Workers:         cfg.Export.Workers,
		Strategy:        cfg.Import.Strategy,
		DefaultFolder:   cfg.Import.DefaultFolder,
	})}, svcOpts...)

	return &runtime{
		logger:   logger,
		db:       db,
		registry: reg,
		svc:      noteservice.NewService(db, br, orch, exportFS, importFS, opts...),
		inbox:    importFS,
	}, nil
}

// setup validates the options and builds the logger and runtime.
func setup(opts []Option, svcOpts ...noteservice.Option) (*application, *runtime, error) {
	app := newApplication(opts)
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	logger := newLogger(app.logOut, app.config.App.LogLevel)
	slog.SetDefault(logger)

	rt, err := newRuntime(app.config, logger, svcOpts...)
	if err != nil {
		return nil, nil, err
	}
	return app, rt, nil
}

// Export runs one export batch with the configured defaults and returns its
// result. A shutdown signal stops the batch after the current item; the
// partial result has Cancelled set.
func Export(ctx context.Context, req noteservice.ExportRequest, opts ...Option) (*transfer.Result, error) {
	_, rt, err := setup(opts)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	ctx, stop := interruptible(ctx)
	defer stop()
	return rt.svc.Export(ctx, req)
}

// Import runs one import batch over the import directory. Signals are
// handled as in Export.
func Import(ctx context.Context, req noteservice.ImportRequest, opts ...Option) (*transfer.Result, error) {
	app, rt, err := setup(opts)
	if err != nil {
		return nil, err
	}
	defer rt.Close()
	if req.Resolve == nil {
		req.Resolve = app.resolve
	}

	ctx, stop := interruptible(ctx)
	defer stop()
	return rt.svc.Import(ctx, req)
}

// interruptible cancels ctx on SIGINT or SIGTERM.
func interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}
