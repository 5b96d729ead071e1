package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bissquit/incident-mirror/internal/mirror"
	"github.com/bissquit/incident-mirror/internal/pkg/ctxlog"
	"github.com/bissquit/incident-mirror/internal/pkg/httputil"
	"github.com/bissquit/incident-mirror/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

// passTracker remembers the outcome of the most recent pass for /readyz.
type passTracker struct {
	mu      sync.RWMutex
	at      time.Time
	summary mirror.Summary
	err     error
}

func (t *passTracker) record(summary mirror.Summary, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.at = time.Now()
	t.summary = summary
	t.err = err
}

func (t *passTracker) last() (time.Time, mirror.Summary, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.at, t.summary, t.err
}

// Serve runs passes on the configured schedule and exposes the ops server
// until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(a.logger.Handler(), slog.LevelInfo))
	scheduler := cron.New(cron.WithLogger(cronLogger))

	// The startup pass shares the wrapper so it never overlaps a tick.
	job := cron.NewChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	).Then(cron.FuncJob(func() { a.scheduledPass(ctx) }))
	if _, err := scheduler.AddJob(a.config.Scheduler.Schedule, job); err != nil {
		return fmt.Errorf("parse schedule %q: %w", a.config.Scheduler.Schedule, err)
	}

	server := &http.Server{
		Addr:              net.JoinHostPort(a.config.Server.Host, a.config.Server.Port),
		Handler:           a.Router(),
		ReadHeaderTimeout: a.config.Server.ReadHeaderTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("starting ops server",
			"host", a.config.Server.Host,
			"port", a.config.Server.Port,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	startupDone := make(chan struct{})
	if a.config.Scheduler.RunOnStart {
		go func() {
			defer close(startupDone)
			job.Run()
		}()
	} else {
		close(startupDone)
	}
	scheduler.Start()
	a.logger.Info("scheduler started", "schedule", a.config.Scheduler.Schedule)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		runErr = fmt.Errorf("ops server: %w", err)
	}

	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()

	// Wait for a running pass to finish.
	stopped := scheduler.Stop()
	for _, done := range []<-chan struct{}{stopped.Done(), startupDone} {
		select {
		case <-done:
		case <-shutdownCtx.Done():
			a.logger.Warn("pass still running at shutdown")
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("shutdown ops server: %w", err))
	}
	return runErr
}

func (a *App) scheduledPass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := a.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, mirror.ErrPassInProgress):
		a.logger.Warn("pass skipped", "error", err)
	default:
		a.logger.Error("pass failed", "error", err)
	}
}

// Router returns the ops HTTP handler.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

// readyzHandler reports ready once the most recent pass succeeded.
func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(r.Context())

	if a.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := a.db.Ping(ctx); err != nil {
			logger.Error("readiness check failed", "error", err)
			httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
			return
		}
	}

	at, summary, err := a.status.last()
	switch {
	case at.IsZero():
		httputil.Text(w, http.StatusServiceUnavailable, "No pass completed yet")
		return
	case err != nil:
		httputil.JSON(w, http.StatusServiceUnavailable, map[string]any{
			"last_pass": at.UTC().Format(time.RFC3339),
			"error":     err.Error(),
		})
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]any{
		"last_pass": at.UTC().Format(time.RFC3339),
		"created":   summary.Created,
		"updated":   summary.Updated,
		"unchanged": summary.Unchanged,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	})
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Info())
}
