// Package server runs the rewrite API until its context is canceled.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"rawsql/internal/api"
	"rawsql/internal/app"
	"rawsql/internal/config"
	"rawsql/internal/history"
	"rawsql/internal/middleware"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// New opens the history store, wires the application and returns an
// http.Server for it. The caller owns the returned App and must Close it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*http.Server, *app.App, error) {
	store, err := history.Open(cfg.HistoryDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open history: %w", err)
	}

	a, err := app.New(app.Deps{Cfg: cfg, Logger: logger, History: store})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	handler := api.NewRouter(ctx, api.RouterConfig{
		Service: a,
		Logger:  logger.With("component", "api"),
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// A rewrite may wait the whole materialization budget.
		WriteTimeout: cfg.MaterializeTimeout + time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return srv, a, nil
}

// Run serves until ctx is canceled, then shuts down gracefully.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	srv, a, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("rewrite API listening", "addr", cfg.ListenAddr, "materializer", cfg.MaterializerURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
