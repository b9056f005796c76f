package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fystack/explorer-api/internal/feed"
	"github.com/fystack/explorer-api/internal/store"
	"github.com/fystack/explorer-api/internal/tunnel"
	"github.com/fystack/explorer-api/internal/warehouse"
	"github.com/fystack/explorer-api/pkg/common/config"
	"github.com/fystack/explorer-api/pkg/common/logger"
	"github.com/fystack/explorer-api/pkg/ratelimiter"
)

var version = "dev"

func main() {
	var (
		configPath string
		debug      bool
	)

	rootCmd := &cobra.Command{
		Use:   "explorer-api",
		Short: "REST API serving derived blockchain state",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, debug)
		},
	}
	serveCmd.Flags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
	serveCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logs")

	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(configPath string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger.Init(&logger.Options{Level: level, TimeFormat: time.RFC3339})

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Info("Config loaded", "env", cfg.Environment)

	ctx := context.Background()

	// The relational store sits behind the bastion; without the tunnel the
	// connection pool must never start.
	if cfg.Tunnel.Enabled {
		manager := tunnel.NewManager(cfg.Tunnel)
		if err := manager.Establish(ctx); err != nil {
			return err
		}
		defer manager.Close()
		logger.Info("Tunnel established", "forwards", manager.ForwardStates())
	}

	db, err := store.NewConnection(cfg.Database, cfg.Environment)
	if err != nil {
		return err
	}

	pool, err := warehouse.NewPool(cfg.Warehouse)
	if err != nil {
		return err
	}
	logger.Info("Warehouse pool ready", "endpoints", pool.Len())

	var limiter *ratelimiter.KeyedLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = ratelimiter.NewKeyedLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	queryTimeout := cfg.Database.QueryTimeout
	txRepo := store.NewTransactionRepo(db, queryTimeout)
	eventRepo := store.NewEventRepo(db, queryTimeout)

	feedService := feed.NewService(
		warehouse.NewExecutor(pool),
		feed.WithStoreFallback(txRepo, eventRepo),
	)

	handler := NewAPIHandler(
		version,
		feedService,
		txRepo,
		eventRepo,
		store.NewBlockRepo(db, queryTimeout),
		store.NewAccountRepo(db, queryTimeout),
		limiter,
	)

	mux := http.NewServeMux()
	handler.Register(mux)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("Shutting down", "signal", sig.String())
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
