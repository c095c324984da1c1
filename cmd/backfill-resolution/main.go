// Package main provides a CLI tool that enqueues resolution jobs for every
// media item that still has pending speakers.
//
// The API server resolves speakers as diarization results arrive and its
// sweeper re-enqueues stragglers. This tool covers the remaining cases:
// seeding a freshly migrated corpus and recovering after the job table was
// lost.
//
// Usage:
//
//	go run cmd/backfill-resolution/main.go
//
// Environment variables:
//   - DATABASE_URL: PostgreSQL connection string (required)
//   - RESOLUTION_MAX_ATTEMPTS: attempts per enqueued job (default: 3)
//   - BACKFILL_BATCH_SIZE: media items fetched per page (default: 500)
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/audioscribe/speakerhub/internal/observability"
	"github.com/audioscribe/speakerhub/internal/repository"
	"github.com/audioscribe/speakerhub/internal/service"
	"github.com/audioscribe/speakerhub/pkg/database"
)

const (
	defaultMaxAttempts = 3
	defaultBatchSize   = 500
	exitSuccess        = 0
	exitFailure        = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env for consistency with the main API server (godotenv.Load() there).
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	slog.SetDefault(slog.New(observability.NewLogHandler(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))))

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		slog.Error("DATABASE_URL is required")

		return exitFailure
	}

	maxAttempts := getEnvAsInt("RESOLUTION_MAX_ATTEMPTS", defaultMaxAttempts)
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	batchSize := getEnvAsInt("BACKFILL_BATCH_SIZE", defaultBatchSize)
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	ctx := context.Background()

	db, err := database.NewPostgresPool(ctx, databaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)

		return exitFailure
	}
	defer db.Close()

	// Insert-only client: no queues or workers, the API server works the jobs.
	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)

		return exitFailure
	}

	repo := repository.NewFileSpeakersRepository(db)

	slog.Info("Enqueueing resolution jobs for media items with pending speakers...")

	var scanned, enqueued, skipped, failed int

	afterID := uuid.Nil

	for {
		ids, err := repo.ListMediaItemIDsWithPending(ctx, afterID, batchSize)
		if err != nil {
			slog.Error("Failed to list media items with pending speakers", "error", err)

			return exitFailure
		}

		if len(ids) == 0 {
			break
		}

		scanned += len(ids)

		for _, id := range ids {
			res, err := riverClient.Insert(ctx,
				service.SpeakerResolutionArgs{MediaItemID: id},
				service.ResolutionInsertOpts(maxAttempts),
			)
			if err != nil {
				slog.Error("Failed to enqueue resolution job", "media_item_id", id, "error", err)
				failed++

				continue
			}

			if res.UniqueSkippedAsDuplicate {
				skipped++

				continue
			}

			enqueued++
		}

		afterID = ids[len(ids)-1]
	}

	fmt.Println()
	fmt.Println("Backfill Summary")
	fmt.Println("================")
	fmt.Printf("Media items with pending speakers: %d\n", scanned)
	fmt.Printf("Jobs enqueued:                     %d\n", enqueued)
	fmt.Printf("Already queued (skipped):          %d\n", skipped)
	fmt.Printf("Errors:                            %d\n", failed)
	fmt.Println()

	switch {
	case scanned == 0:
		slog.Info("No media items need backfilling")
	case failed > 0:
		slog.Error("Backfill finished with errors", "enqueued", enqueued, "failed", failed)

		return exitFailure
	default:
		fmt.Println("Jobs have been enqueued. They will be processed by the running API server.")
	}

	return exitSuccess
}

// getEnvAsInt gets an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
