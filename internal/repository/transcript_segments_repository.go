package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/audioscribe/speakerhub/internal/models"
)

// TranscriptSegmentsRepository handles data access for transcript segments.
type TranscriptSegmentsRepository struct {
	db *pgxpool.Pool
}

// NewTranscriptSegmentsRepository creates a new transcript segments repository.
func NewTranscriptSegmentsRepository(db *pgxpool.Pool) *TranscriptSegmentsRepository {
	return &TranscriptSegmentsRepository{db: db}
}

// ListByFileSpeaker retrieves a speaker's transcript segments in playback order.
func (r *TranscriptSegmentsRepository) ListByFileSpeaker(ctx context.Context, fileSpeakerID uuid.UUID) ([]models.TranscriptSegment, error) {
	query := `
		SELECT id, media_item_id, file_speaker_id, profile_id, start_seconds, end_seconds, text, created_at
		FROM transcript_segments
		WHERE file_speaker_id = $1
		ORDER BY start_seconds
	`

	rows, err := r.db.Query(ctx, query, fileSpeakerID)
	if err != nil {
		return nil, fmt.Errorf("list transcript segments: %w", err)
	}
	defer rows.Close()

	segments := []models.TranscriptSegment{}

	for rows.Next() {
		var segment models.TranscriptSegment

		err := rows.Scan(
			&segment.ID, &segment.MediaItemID, &segment.FileSpeakerID, &segment.ProfileID,
			&segment.StartSeconds, &segment.EndSeconds, &segment.Text, &segment.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transcript segment: %w", err)
		}

		segments = append(segments, segment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transcript segments: %w", err)
	}

	return segments, nil
}
