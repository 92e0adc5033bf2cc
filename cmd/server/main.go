// Package main is the entry point for the JS playground server.
//
// The main package stays minimal: read configuration, build the logger,
// make sure the data directory exists, and hand over to internal/server.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/js-playground/internal/config"
	"github.com/sakif/js-playground/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// Every setting comes from the environment; see internal/config for
	// the names and defaults.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	level, _ := config.ParseLevel(cfg.Logging.Level) // validated by Load
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// === 3. RESOLVE FILE PATHS ===
	// Relative paths work when run from the project root, which is where
	// `go run ./cmd/server` leaves the working directory.
	if abs, err := filepath.Abs(cfg.Server.TemplateDir); err == nil {
		cfg.Server.TemplateDir = abs
	}
	if abs, err := filepath.Abs(cfg.Server.StaticDir); err == nil {
		cfg.Server.StaticDir = abs
	}

	// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
	dbDir := filepath.Dir(cfg.Storage.DBPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", dbDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
