// Package main provides the entry point for the video generation API server.
package main

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

	"github.com/maauso/vidgen/internal/bootstrap"
	"github.com/maauso/vidgen/internal/config"
	"github.com/maauso/vidgen/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting video generation API",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("upload_backend", cfg.UploadBackend),
		slog.Duration("poll_interval", cfg.PollInterval),
		slog.Int("max_poll_attempts", cfg.MaxPollAttempts),
		slog.Bool("redis_enabled", cfg.RedisEnabled()),
		slog.Bool("events_enabled", cfg.EventsEnabled()),
		slog.Bool("auth_enabled", cfg.AuthEnabled()),
	)
	logger.Debug("configuration loaded", slog.String("config", cfg.String()))

	// Initialize dependencies using bootstrap
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	deps, err := bootstrap.NewDependencies(initCtx, cfg, logger)
	cancelInit()
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("failed to close dependencies", slog.String("error", err.Error()))
		}
	}()

	// Initialize HTTP handlers and router
	handlers := server.NewHandlers(deps.Service, deps.Temp, deps.Events, logger)
	serverCfg := server.DefaultConfig()
	serverCfg.JWTSecret = cfg.JWTSecret
	router := server.NewRouter(handlers, logger, serverCfg)

	// Create HTTP server. WriteTimeout stays unset: event streams are long-lived.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with timeout
	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelHTTP()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(httpCtx); err != nil {
		// Open event streams keep Shutdown waiting; drop them.
		logger.Warn("HTTP shutdown incomplete", slog.String("error", err.Error()))
		_ = srv.Close()
	}

	genCtx, cancelGen := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelGen()

	logger.Info("waiting for running generations...")
	if err := deps.Service.Shutdown(genCtx); err != nil {
		logger.Warn("generations cancelled at shutdown", slog.String("error", err.Error()))
	}

	logger.Info("server stopped gracefully")
	return nil
}
