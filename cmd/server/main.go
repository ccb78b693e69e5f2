package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"arena-clash/internal/api"
	"arena-clash/internal/config"
	"arena-clash/internal/game"
	"arena-clash/internal/storage"
)

func main() {
	// .env is optional; a missing file just means the environment is used as is
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn("Could not read .env", zap.Error(envErr))
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Goodbye")
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg config.AppConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := api.NewTokenVerifier(cfg.Auth.SecretKey)
	if err != nil {
		return err
	}

	openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	store, err := storage.Open(openCtx, cfg.Store, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer store.Close()
	logger.Info("Store ready", zap.String("driver", cfg.Store.Driver))

	hub := api.NewHub(cfg.Limits, cfg.Server.AllowedOrigins, logger)
	clock := clockwork.NewRealClock()
	registry := game.NewRegistry(game.Options{
		Config:  cfg.Game,
		Gateway: hub,
		Store:   store,
		Logger:  logger,
		Clock:   clock,
	})

	scheduler, err := game.NewScheduler(registry, cfg.Game, clock, logger)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	var debug *api.DebugServer
	if !cfg.Server.DisableDebug {
		debug = api.NewDebugServer(api.ObservabilityConfig{
			Enabled:       true,
			ListenAddr:    cfg.Server.DebugAddr,
			AllowExternal: os.Getenv("ALLOW_DEBUG_EXTERNAL") == "true",
			BasicAuthUser: cfg.Server.DebugUser,
			BasicAuthPass: cfg.Server.DebugPassword,
		}, registry.Stats, logger)
		debug.Start()
	}

	server := api.NewServer(cfg, registry, hub, verifier, logger)

	scheduler.Start()
	logger.Info("Match engine started",
		zap.Int("tick_rate", cfg.Game.TickRate),
		zap.Duration("waiting_timeout", cfg.Game.WaitingTimeout),
		zap.Duration("active_timeout", cfg.Game.ActiveTimeout),
	)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-serveErr:
		if err != nil {
			logger.Error("API server stopped", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// stop accepting input before the engine goes away
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("API shutdown", zap.Error(err))
	}
	if err := scheduler.Stop(); err != nil {
		logger.Warn("Scheduler shutdown", zap.Error(err))
	}
	if debug != nil {
		if err := debug.Stop(shutdownCtx); err != nil {
			logger.Warn("Debug server shutdown", zap.Error(err))
		}
	}
	// waits for in-flight persistence before the store closes
	registry.Close()
	return nil
}
