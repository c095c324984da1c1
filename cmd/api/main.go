package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/audioscribe/speakerhub/internal/config"
	"github.com/audioscribe/speakerhub/internal/observability"
	"github.com/audioscribe/speakerhub/pkg/database"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

const shutdownTimeout = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)

		return exitFailure
	}

	slog.SetDefault(slog.New(observability.NewLogHandler(cfg.LogLevel, cfg.LogFormat)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Voiceprint embeddings go over the wire as pgvector values, so every
	// connection registers the vector types up front.
	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL,
		database.WithAfterConnect(pgxvec.RegisterTypes),
		database.WithPoolLimits(int32(cfg.DatabaseMaxConns), int32(cfg.DatabaseMinConns), 0),
	)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)

		return exitFailure
	}
	defer db.Close()

	app, err := NewApp(cfg, db)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)

		return exitFailure
	}

	runErr := app.Run(ctx)
	if runErr != nil {
		slog.Error("Component failed, shutting down", "error", runErr)
	} else {
		slog.Info("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown error", "error", err)

		return exitFailure
	}

	slog.Info("Server exited")

	if runErr != nil {
		return exitFailure
	}

	return exitSuccess
}
