// static-server indexes a directory of static files, serves the index with
// content checksums over HTTP, and pushes live updates to browsers over SSE.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kennedydane/static-server/internal/api"
	"github.com/kennedydane/static-server/internal/cache"
	"github.com/kennedydane/static-server/internal/checksum"
	"github.com/kennedydane/static-server/internal/config"
	"github.com/kennedydane/static-server/internal/events"
	"github.com/kennedydane/static-server/internal/index"
	"github.com/kennedydane/static-server/internal/logging"
	"github.com/kennedydane/static-server/internal/metrics"
	"github.com/kennedydane/static-server/internal/scan"
	"github.com/kennedydane/static-server/internal/watch"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "static-server",
		Short:        "Checksummed static file server with live index updates",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	flags.String("root", "static", "directory to index and serve")
	flags.String("listen_addr", ":8080", "HTTP listen address")
	flags.String("metrics_addr", ":9090", "Prometheus metrics listen address (empty to disable)")
	flags.String("log.level", "info", "log level (debug, info, warn, error)")
	flags.String("log.format", "json", "log format (json, console)")
	flags.String("log.file", "", "rotating log file path (empty for stdout only)")
	flags.String("watch.mode", "auto", "change detection mode (auto, notify, poll)")
	flags.Duration("watch.poll_interval", 5*time.Second, "polling interval in poll mode")
	flags.Duration("watch.debounce", 500*time.Millisecond, "quiet period before a rescan")
	flags.StringSlice("checksums.algorithms", []string{"md5", "sha256"}, "checksum algorithms to compute")
	flags.String("marker", ".description", "reserved per-directory description filename")

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := logging.Init(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Sync()

	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		return fmt.Errorf("create root directory: %w", err)
	}

	logging.L().Info("static-server starting",
		zap.String("root", cfg.Root),
		zap.String("listen", cfg.ListenAddr),
		zap.String("watch_mode", cfg.Watch.Mode),
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	calc, err := checksum.New(checksum.Options{
		Algorithms: cfg.Algorithms(),
		MaxSize:    cfg.Checksums.MaxSize,
	})
	if err != nil {
		return err
	}

	store := index.NewStore()
	broadcaster := events.NewBroadcaster()
	builder := index.NewBuilder(cfg.Root, cfg.Marker, calc, cache.New())

	source, err := watch.New(watch.Mode(cfg.Watch.Mode), cfg.Root, cfg.Watch.PollInterval)
	if err != nil {
		return fmt.Errorf("init change detection: %w", err)
	}

	coordinator := scan.New(builder, store, broadcaster, source, cfg.Watch.Debounce)

	// First scan before serving so the initial request never sees an empty
	// index. Only an inaccessible root fails startup.
	if err := coordinator.Rebuild(ctx, "startup"); err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}

	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		if err := coordinator.Run(ctx); err != nil {
			logging.L().Error("change detector stopped", zap.Error(err))
		}
	}()

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.L().Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewServer(store, broadcaster, coordinator.TriggerRescan, cfg.Root, cfg.Marker).Handler(),
		// Tie request contexts to the process context so open SSE streams
		// end when shutdown begins instead of pinning Shutdown until the
		// timeout.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logging.L().Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logging.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.L().Warn("http shutdown incomplete", zap.Error(err))
	}

	select {
	case <-scanDone:
	case <-shutdownCtx.Done():
		logging.L().Warn("change detector did not stop in time")
	}
	return nil
}
