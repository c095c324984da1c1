// Package tests provides integration test helpers and utilities.
package tests

import (
	"context"
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/audioscribe/speakerhub/internal/config"
	"github.com/audioscribe/speakerhub/pkg/database"
)

const testAPIKey = "test-api-key-12345"

// testEmbeddingDim matches the vector(256) column in migrations/0001_init.sql.
const testEmbeddingDim = 256

// requireTestDatabase skips the test unless TEST_DATABASE_URL names a Postgres
// database with pgvector installed and the migrations applied, then points the
// config loader at it.
func requireTestDatabase(t *testing.T) {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration test")
	}

	t.Setenv("DATABASE_URL", url)
}

// testEmbedding returns a random embedding. Independent draws in 256
// dimensions are nearly orthogonal, so distinct draws never clear the
// suggestion threshold against each other, even against voiceprints left
// behind by earlier runs. Reuse the same slice to guarantee a match.
func testEmbedding() []float32 {
	emb := make([]float32, testEmbeddingDim)
	for i := range emb {
		emb[i] = rand.Float32()*2 - 1
	}

	return emb
}

// CleanupTestData removes test data from the database.
func CleanupTestData(t *testing.T) {
	ctx := context.Background()

	cfg, err := config.Load()
	require.NoError(t, err)

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	require.NoError(t, err)

	defer db.Close()

	// Child tables first; the speaker tables carry foreign keys into profiles.
	// Be careful with this in production!
	for _, table := range []string{
		"transcript_segments", "voiceprints", "file_speakers",
		"media_items", "profiles", "webhooks",
	} {
		_, err = db.Exec(ctx, "DELETE FROM "+table)
		require.NoError(t, err)
	}
}
