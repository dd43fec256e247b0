// Package main is the entry point for the stock portfolio tracker.
// It serves the portfolio pages and JSON API, and runs the nightly refresh
// sweep together with database maintenance and optional snapshot backups.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/stocktracker/internal/config"
	"github.com/aristath/stocktracker/internal/di"
	"github.com/aristath/stocktracker/internal/server"
	"github.com/aristath/stocktracker/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog, _ := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log, logFiles := logger.New(logger.Config{
		Level:     cfg.LogLevel,
		Pretty:    true,
		File:      cfg.LogFile,
		ErrorFile: cfg.LogErrorFile,
	})
	defer logFiles.Close()
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting stock tracker")

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close databases")
		}
	}()

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Container: container,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	container.Scheduler.Start()
	log.Info().
		Str("refresh_mode", jobs.Refresh.Mode()).
		Str("refresh_schedule", cfg.RefreshSchedule).
		Bool("backups", jobs.Backup != nil).
		Msg("Background jobs scheduled")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	// In-flight requests get up to 10 seconds
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Waits for a running sweep or backup before the databases close
	container.Scheduler.Stop()

	log.Info().Msg("Server stopped")
}
