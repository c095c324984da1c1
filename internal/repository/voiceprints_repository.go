package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/audioscribe/speakerhub/internal/apperrors"
	"github.com/audioscribe/speakerhub/internal/models"
)

// VoiceprintsRepository handles data access for voiceprint embeddings.
type VoiceprintsRepository struct {
	db *pgxpool.Pool
}

// NewVoiceprintsRepository creates a new voiceprints repository.
func NewVoiceprintsRepository(db *pgxpool.Pool) *VoiceprintsRepository {
	return &VoiceprintsRepository{db: db}
}

// GetByFileSpeaker retrieves the voiceprint captured for one file speaker.
func (r *VoiceprintsRepository) GetByFileSpeaker(ctx context.Context, fileSpeakerID uuid.UUID) (*models.Voiceprint, error) {
	query := `
		SELECT id, file_speaker_id, media_item_id, profile_id, embedding, created_at
		FROM voiceprints
		WHERE file_speaker_id = $1
	`

	var (
		print models.Voiceprint
		vec   pgvector.Vector
	)

	err := r.db.QueryRow(ctx, query, fileSpeakerID).Scan(
		&print.ID, &print.FileSpeakerID, &print.MediaItemID, &print.ProfileID, &vec, &print.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("voiceprint", "voiceprint not found")
		}

		return nil, fmt.Errorf("get voiceprint: %w", err)
	}

	print.Embedding = vec.Slice()

	return &print, nil
}

// CountProfilesWithVoiceprints returns how many profiles own at least one voiceprint.
// The matcher sizes its scan deadline from this.
func (r *VoiceprintsRepository) CountProfilesWithVoiceprints(ctx context.Context) (int64, error) {
	var count int64

	err := r.db.QueryRow(ctx, `SELECT COUNT(DISTINCT profile_id) FROM voiceprints`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count profiles with voiceprints: %w", err)
	}

	return count, nil
}

// RankProfiles scores one batch of profiles against the query embedding, each
// profile scored as the maximum cosine similarity over the voiceprints it owns.
// Batches page by profile id: pass the last profile id of the previous batch as
// afterProfileID, nil for the first. excludeProfileID drops the query speaker's
// own placeholder from the ranking.
func (r *VoiceprintsRepository) RankProfiles(
	ctx context.Context, embedding []float32, afterProfileID, excludeProfileID *uuid.UUID, limit int,
) ([]models.ProfileSimilarity, error) {
	query := `
		SELECT v.profile_id, p.display_name, MAX(1 - (v.embedding <=> $1)) AS best_score, COUNT(*) AS voiceprint_count
		FROM voiceprints v
		JOIN profiles p ON p.id = v.profile_id
	`

	args := []any{pgvector.NewVector(embedding)}
	argCount := 2

	var conditions []string

	if afterProfileID != nil {
		conditions = append(conditions, fmt.Sprintf("v.profile_id > $%d", argCount))
		args = append(args, *afterProfileID)
		argCount++
	}

	if excludeProfileID != nil {
		conditions = append(conditions, fmt.Sprintf("v.profile_id <> $%d", argCount))
		args = append(args, *excludeProfileID)
		argCount++
	}

	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}

	query += fmt.Sprintf(`
		GROUP BY v.profile_id, p.display_name
		ORDER BY v.profile_id
		LIMIT $%d
	`, argCount)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("rank profiles: %w", err)
	}
	defer rows.Close()

	similarities := []models.ProfileSimilarity{}

	for rows.Next() {
		var sim models.ProfileSimilarity

		err := rows.Scan(&sim.ProfileID, &sim.DisplayName, &sim.BestScore, &sim.VoiceprintCount)
		if err != nil {
			return nil, fmt.Errorf("scan profile similarity: %w", err)
		}

		similarities = append(similarities, sim)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profile similarities: %w", err)
	}

	return similarities, nil
}

// BestScoreAgainstProfile scores the query embedding against a single profile's
// voiceprints. Score is nil when the profile owns none.
func (r *VoiceprintsRepository) BestScoreAgainstProfile(
	ctx context.Context, embedding []float32, profileID uuid.UUID,
) (*float64, int64, error) {
	query := `
		SELECT MAX(1 - (embedding <=> $1)), COUNT(*)
		FROM voiceprints
		WHERE profile_id = $2
	`

	var (
		score *float64
		count int64
	)

	err := r.db.QueryRow(ctx, query, pgvector.NewVector(embedding), profileID).Scan(&score, &count)
	if err != nil {
		return nil, 0, fmt.Errorf("score against profile: %w", err)
	}

	return score, count, nil
}
