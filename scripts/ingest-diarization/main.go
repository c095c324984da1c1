// Package main provides a CLI tool to ingest diarization results from JSON
// files into the speaker resolution API. Each file holds one
// DiarizationResultRequest, the format the diarization pipeline posts.
//
// Usage:
//
//	go run ./scripts/ingest-diarization -dir /path/to/results -api-url http://localhost:8080 -api-key YOUR_API_KEY
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/audioscribe/speakerhub/pkg/speakerhub"
)

// Config holds the CLI configuration
type Config struct {
	FilePath   string
	DirPath    string
	APIBaseURL string
	APIKey     string
	Secret     string
	DelayMS    int
	DryRun     bool
}

// Stats tracks ingestion statistics
type Stats struct {
	TotalFiles      int
	SkippedInvalid  int
	SuccessfulPosts int
	QueuedSpeakers  int
	FailedPosts     int
}

func main() {
	cfg := parseFlags()

	if cfg.FilePath == "" && cfg.DirPath == "" {
		fmt.Println("Error: -file or -dir is required")
		flag.Usage()
		os.Exit(1)
	}

	if cfg.APIKey == "" {
		fmt.Println("Error: -api-key is required")
		flag.Usage()
		os.Exit(1)
	}

	fmt.Printf("🚀 Diarization Result Ingestion Tool\n")
	fmt.Printf("   API URL: %s\n", cfg.APIBaseURL)
	if cfg.FilePath != "" {
		fmt.Printf("   File: %s\n", cfg.FilePath)
	} else {
		fmt.Printf("   Directory: %s\n", cfg.DirPath)
	}
	fmt.Printf("   Delay: %dms between requests\n", cfg.DelayMS)
	if cfg.Secret != "" {
		fmt.Printf("   Signing: enabled\n")
	}
	if cfg.DryRun {
		fmt.Printf("   ⚠️  DRY RUN MODE - No actual API calls will be made\n")
	}
	fmt.Println()

	stats := processFiles(cfg)

	fmt.Println()
	fmt.Println("📊 Ingestion Summary")
	fmt.Println("   ─────────────────────")
	fmt.Printf("   Total files processed: %d\n", stats.TotalFiles)
	fmt.Printf("   Skipped (invalid):     %d\n", stats.SkippedInvalid)
	fmt.Printf("   Successfully ingested: %d\n", stats.SuccessfulPosts)
	fmt.Printf("   Speakers queued:       %d\n", stats.QueuedSpeakers)
	fmt.Printf("   Failed:                %d\n", stats.FailedPosts)
	fmt.Println()

	if stats.FailedPosts > 0 {
		os.Exit(1)
	}
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.FilePath, "file", "", "Path to a single diarization result JSON file")
	flag.StringVar(&cfg.DirPath, "dir", "", "Directory of diarization result JSON files (*.json)")
	flag.StringVar(&cfg.APIBaseURL, "api-url", "http://localhost:8080", "API base URL")
	flag.StringVar(&cfg.APIKey, "api-key", "", "API key for authentication (required)")
	flag.StringVar(&cfg.Secret, "secret", "", "Diarizer signing secret; must match DIARIZER_WEBHOOK_SECRET on the server")
	flag.IntVar(&cfg.DelayMS, "delay", 100, "Delay in milliseconds between API calls")
	flag.BoolVar(&cfg.DryRun, "dry-run", false, "Parse files but don't make API calls")

	flag.Parse()
	return cfg
}

func processFiles(cfg Config) Stats {
	stats := Stats{}

	paths, err := collectPaths(cfg)
	if err != nil {
		fmt.Printf("Error listing files: %v\n", err)
		os.Exit(1)
	}

	if len(paths) == 0 {
		fmt.Println("No .json files found")
		return stats
	}

	client := speakerhub.NewClientWithOptions(speakerhub.ClientOptions{
		BaseURL:        cfg.APIBaseURL,
		APIKey:         cfg.APIKey,
		DiarizerSecret: cfg.Secret,
	})
	ctx := context.Background()

	fmt.Println("📥 Ingesting diarization results...")
	fmt.Println()

	for _, path := range paths {
		stats.TotalFiles++
		name := filepath.Base(path)

		result, err := readResult(path)
		if err != nil {
			fmt.Printf("   ⚠ %s: %v\n", name, err)
			stats.SkippedInvalid++
			continue
		}

		if cfg.DryRun {
			fmt.Printf("   [DRY] %s: %s (%d speakers)\n", name, result.MediaExternalRef, len(result.Speakers))
			stats.SuccessfulPosts++
			continue
		}

		accepted, err := client.IngestDiarizationResult(ctx, result)
		if err != nil {
			fmt.Printf("   ✗ %s (%s): %v\n", name, result.MediaExternalRef, err)
			stats.FailedPosts++
		} else {
			fmt.Printf("   ✓ %s: %s (%d speakers, %d queued)\n", name, result.MediaExternalRef, accepted.Speakers, accepted.Queued)
			stats.SuccessfulPosts++
			stats.QueuedSpeakers += accepted.Queued
		}

		time.Sleep(time.Duration(cfg.DelayMS) * time.Millisecond)
	}

	return stats
}

func collectPaths(cfg Config) ([]string, error) {
	if cfg.FilePath != "" {
		return []string{cfg.FilePath}, nil
	}

	paths, err := filepath.Glob(filepath.Join(cfg.DirPath, "*.json"))
	if err != nil {
		return nil, err
	}

	sort.Strings(paths)
	return paths, nil
}

func readResult(path string) (*speakerhub.DiarizationResultRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	var result speakerhub.DiarizationResultRequest
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	if result.MediaExternalRef == "" {
		return nil, fmt.Errorf("missing required field: media_external_ref")
	}
	if len(result.Speakers) == 0 {
		return nil, fmt.Errorf("no speakers in result")
	}
	for i, speaker := range result.Speakers {
		if len(speaker.Embedding) == 0 {
			return nil, fmt.Errorf("speaker %d (%s) has no embedding", i, speaker.Label)
		}
	}

	return &result, nil
}
