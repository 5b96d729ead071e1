// Package app wires configuration into a runnable mirror.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/bissquit/incident-mirror/internal/config"
	"github.com/bissquit/incident-mirror/internal/discord"
	"github.com/bissquit/incident-mirror/internal/feed"
	"github.com/bissquit/incident-mirror/internal/lock"
	"github.com/bissquit/incident-mirror/internal/mirror"
	"github.com/bissquit/incident-mirror/internal/mirror/filestore"
	mirrorpostgres "github.com/bissquit/incident-mirror/internal/mirror/postgres"
	"github.com/bissquit/incident-mirror/internal/mirror/sqlite"
	"github.com/bissquit/incident-mirror/internal/pkg/metrics"
	"github.com/bissquit/incident-mirror/internal/pkg/postgres"
	"github.com/bissquit/incident-mirror/internal/version"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Importer bulk loads existing mappings. The sqlite and postgres stores
// implement it.
type Importer interface {
	Import(ctx context.Context, entries map[string]string) (int, error)
}

// App represents the application instance.
type App struct {
	config  *config.Config
	logger  *slog.Logger
	store   mirror.Store
	db      *pgxpool.Pool
	poller  *mirror.Poller
	status  *passTracker
	closers []io.Closer

	metricsCancel context.CancelFunc
}

// New creates a new application instance.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)
	metrics.RecordBuildInfo(version.Version, version.GitCommit)

	metricsCtx, metricsCancel := context.WithCancel(context.Background())
	a := &App{
		config:        cfg,
		logger:        logger,
		status:        &passTracker{},
		metricsCancel: metricsCancel,
	}

	if err := a.init(ctx, metricsCtx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx, metricsCtx context.Context) error {
	cfg := a.config

	store, err := a.openStore(ctx, metricsCtx)
	if err != nil {
		return fmt.Errorf("open mapping store: %w", err)
	}
	a.store = store

	messenger, err := discord.NewClient(discord.Config{
		BaseURL:      cfg.Discord.BaseURL,
		WebhookID:    cfg.Discord.WebhookID,
		WebhookToken: cfg.Discord.WebhookToken,
		Username:     cfg.Discord.Username,
		AvatarURL:    cfg.Discord.AvatarURL,
		Timeout:      cfg.Discord.Timeout,
		RateLimit:    cfg.Discord.RateLimit,
		Burst:        cfg.Discord.Burst,
	})
	if err != nil {
		return fmt.Errorf("create discord client: %w", err)
	}

	feedClient := feed.NewClient(feed.Config{
		BaseURL:   cfg.Feed.BaseURL,
		Timeout:   cfg.Feed.Timeout,
		UserAgent: cfg.Feed.UserAgent,
	})

	locker, err := a.openLocker(ctx)
	if err != nil {
		return fmt.Errorf("open run lock: %w", err)
	}

	reconciler := mirror.NewReconciler(mirror.ReconcilerConfig{
		IgnoreWindow: cfg.Mirror.IgnoreWindow(),
		CallTimeout:  cfg.Mirror.CallTimeout,
	}, store, messenger)
	a.poller = mirror.NewPoller(feedClient, reconciler, locker, cfg.Feed.Timeout)

	a.logger.Info("mirror configured",
		"feed", feedClient.URL(),
		"store", cfg.Store.Driver,
		"lock", cfg.Lock.Driver,
		"ignore_days", cfg.Mirror.IgnoreDays,
		"ignore_window", cfg.Mirror.IgnoreWindow(),
	)
	return nil
}

func (a *App) openStore(ctx, metricsCtx context.Context) (mirror.Store, error) {
	cfg := a.config.Store

	switch cfg.Driver {
	case "file":
		return filestore.New(cfg.Path)

	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		return store, nil

	case "postgres":
		if err := mirrorpostgres.Migrate(cfg.Postgres.URL); err != nil {
			return nil, err
		}

		connectCtx, cancel := context.WithTimeout(ctx, cfg.Postgres.ConnectTimeout)
		defer cancel()

		db, err := postgres.Connect(connectCtx, postgres.Config{
			URL:             cfg.Postgres.URL,
			MaxConns:        cfg.Postgres.MaxConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			ConnectAttempts: cfg.Postgres.ConnectAttempts,
		})
		if err != nil {
			return nil, err
		}
		a.db = db
		go metrics.CollectDBPoolMetrics(metricsCtx, db, 15*time.Second)
		return mirrorpostgres.NewStore(db), nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func (a *App) openLocker(ctx context.Context) (mirror.Locker, error) {
	cfg := a.config.Lock

	switch cfg.Driver {
	case "file":
		return lock.NewFile(cfg.Path)
	case "redis":
		l, err := lock.NewRedis(ctx, lock.RedisConfig{
			URL: cfg.Redis.URL,
			Key: cfg.Redis.Key,
			TTL: cfg.TTL,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, l)
		return l, nil
	case "none":
		return mirror.NopLocker{}, nil
	}

	return nil, fmt.Errorf("unknown lock driver %q", cfg.Driver)
}

// RunOnce executes a single pass and records its outcome.
func (a *App) RunOnce(ctx context.Context) (mirror.Summary, error) {
	summary, err := a.poller.Run(ctx)
	if !errors.Is(err, mirror.ErrPassInProgress) {
		a.status.record(summary, err)
	}
	return summary, err
}

// Import copies the mappings of a messages.json file into the configured
// store. It returns the number of new entries.
func (a *App) Import(ctx context.Context, path string) (int, error) {
	importer, ok := a.store.(Importer)
	if !ok {
		return 0, fmt.Errorf("store driver %q does not support import", a.config.Store.Driver)
	}

	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("open import file: %w", err)
	}
	source, err := filestore.New(path)
	if err != nil {
		return 0, err
	}
	entries, err := source.Entries()
	if err != nil {
		return 0, err
	}

	imported, err := importer.Import(ctx, entries)
	if err != nil {
		return 0, fmt.Errorf("import mappings: %w", err)
	}

	a.logger.Info("mappings imported", "path", path, "read", len(entries), "imported", imported)
	return imported, nil
}

// Close releases the store, the lock and the database pool.
func (a *App) Close() error {
	a.metricsCancel()

	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	return errors.Join(errs...)
}

func initLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
