package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shelfline/shelfline/internal/api"
	"github.com/shelfline/shelfline/internal/config"
	"github.com/shelfline/shelfline/internal/connectivity"
	"github.com/shelfline/shelfline/internal/projector"
	"github.com/shelfline/shelfline/internal/reconciler"
	"github.com/shelfline/shelfline/internal/remote"
	"github.com/shelfline/shelfline/internal/store"
	"github.com/shelfline/shelfline/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "shelfline",
	Short: "Shelfline - offline-first product catalog daemon",
	RunE:  run,
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	logger := slog.New(newLogHandler(cfg.Log))
	slog.SetDefault(logger)
	slog.Info("configuration loaded", "offline", cfg.Sync.Offline)

	// 4. Initialize store (migrations, WAL mode)
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	// 5. Initialize remote client
	client := remote.NewHTTPClient(
		cfg.Remote.BaseURL,
		cfg.Remote.Token,
		time.Duration(cfg.Remote.Timeout),
		cfg.Remote.PageSize,
	)
	slog.Info("remote client initialized", "base_url", cfg.Remote.BaseURL)

	// 6. Connectivity source: a prober against the remote service, or a
	// pinned-offline manual source when forced offline.
	var net connectivity.Source
	var prober *connectivity.Prober
	if cfg.Sync.Offline {
		net = connectivity.NewManual(false)
		slog.Info("connectivity pinned offline")
	} else {
		prober = connectivity.NewProber(client, time.Duration(cfg.Sync.ProbeInterval))
		net = prober
	}

	// 7. Reconciler and projector, seeded from the cached catalog so the
	// view is populated before the first remote page arrives.
	rec := reconciler.New(db, client, net)
	proj := projector.New(rec, db)
	proj.Bootstrap(ctx)

	// 8. Initialize HTTP router
	handler := api.NewHandler(proj, rec, db, net, cfg.Auth.APIKey, Version)
	router := api.NewRouter(handler)
	slog.Info("router initialized")

	// 9. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 10. Background workers
	var wg sync.WaitGroup
	if prober != nil {
		startWorker(ctx, &wg, "connectivity-prober", prober.Run)
	}
	if cfg.Sync.Auto && !cfg.Sync.Offline {
		coordinator := worker.NewSyncCoordinator(rec, net, time.Duration(cfg.Sync.Interval))
		startWorker(ctx, &wg, "sync-coordinator", coordinator.Run)
	}

	// 11. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called
		// gracefully. Any other error indicates an actual server failure
		// that should trigger shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 12. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 13. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 13a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 13b. Wait for workers to complete
	wg.Wait()

	// 13c. Close store
	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func newLogHandler(cfg config.LogConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.NewJSONHandler(os.Stdout, opts)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context
// cancellation. Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
