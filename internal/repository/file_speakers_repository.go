package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/audioscribe/speakerhub/internal/apperrors"
	"github.com/audioscribe/speakerhub/internal/models"
)

const uniqueViolationCode = "23505"

// FileSpeakersRepository handles data access for per-file speakers and their
// voiceprints and transcript segments.
type FileSpeakersRepository struct {
	db *pgxpool.Pool
}

// NewFileSpeakersRepository creates a new file speakers repository.
func NewFileSpeakersRepository(db *pgxpool.Pool) *FileSpeakersRepository {
	return &FileSpeakersRepository{db: db}
}

const fileSpeakerColumns = `id, media_item_id, label, profile_id, match_state, match_score,
		suggested_profile_id, suggested_score, rationale, verified, created_at, updated_at`

func scanFileSpeaker(row pgx.Row) (*models.FileSpeaker, error) {
	var speaker models.FileSpeaker

	err := row.Scan(
		&speaker.ID, &speaker.MediaItemID, &speaker.Label, &speaker.ProfileID,
		&speaker.MatchState, &speaker.MatchScore, &speaker.SuggestedProfileID,
		&speaker.SuggestedScore, &speaker.Rationale, &speaker.Verified,
		&speaker.CreatedAt, &speaker.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &speaker, nil
}

// CreateWithPlaceholder ingests one diarized speaker: a placeholder profile, the
// file speaker row, its voiceprint, and the transcript segments, all in one
// transaction. Re-posting the same (media item, label) returns the existing row
// untouched, so a replayed diarization result never duplicates or resets anything.
// The created return is false when the speaker already existed.
func (r *FileSpeakersRepository) CreateWithPlaceholder(
	ctx context.Context, mediaItemID uuid.UUID, tenantID *string, speaker *models.DiarizationSpeaker,
) (*models.FileSpeaker, bool, error) {
	existing, err := r.getByMediaItemAndLabel(ctx, r.db, mediaItemID, speaker.Label)
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		return existing, false, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin ingest: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var profileID uuid.UUID

	err = tx.QueryRow(ctx,
		`INSERT INTO profiles (tenant_id, verification) VALUES ($1, 'unverified') RETURNING id`,
		tenantID,
	).Scan(&profileID)
	if err != nil {
		return nil, false, fmt.Errorf("create placeholder profile: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO file_speakers (media_item_id, label, profile_id)
		VALUES ($1, $2, $3)
		RETURNING %s
	`, fileSpeakerColumns)

	created, err := scanFileSpeaker(tx.QueryRow(ctx, query, mediaItemID, speaker.Label, profileID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			// Lost a race against a concurrent ingest of the same payload.
			// The other transaction owns (media_item_id, label) now, so
			// surface its row instead.
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				return nil, false, fmt.Errorf("rollback after duplicate speaker: %w", rbErr)
			}

			winner, getErr := r.getByMediaItemAndLabel(ctx, r.db, mediaItemID, speaker.Label)
			if getErr != nil {
				return nil, false, getErr
			}

			if winner == nil {
				return nil, false, fmt.Errorf("duplicate speaker vanished: %w", err)
			}

			return winner, false, nil
		}

		return nil, false, fmt.Errorf("create file speaker: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO voiceprints (file_speaker_id, media_item_id, profile_id, embedding) VALUES ($1, $2, $3, $4)`,
		created.ID, mediaItemID, profileID, pgvector.NewVector(speaker.Embedding),
	)
	if err != nil {
		return nil, false, fmt.Errorf("create voiceprint: %w", err)
	}

	if len(speaker.Segments) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"transcript_segments"},
			[]string{"media_item_id", "file_speaker_id", "profile_id", "start_seconds", "end_seconds", "text"},
			pgx.CopyFromSlice(len(speaker.Segments), func(i int) ([]any, error) {
				seg := speaker.Segments[i]

				return []any{mediaItemID, created.ID, profileID, seg.StartSeconds, seg.EndSeconds, seg.Text}, nil
			}),
		)
		if err != nil {
			return nil, false, fmt.Errorf("copy transcript segments: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit ingest: %w", err)
	}

	return created, true, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *FileSpeakersRepository) getByMediaItemAndLabel(
	ctx context.Context, q queryRower, mediaItemID uuid.UUID, label string,
) (*models.FileSpeaker, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_speakers WHERE media_item_id = $1 AND label = $2`, fileSpeakerColumns)

	speaker, err := scanFileSpeaker(q.QueryRow(ctx, query, mediaItemID, label))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("get file speaker by label: %w", err)
	}

	return speaker, nil
}

// GetByID retrieves a single file speaker by ID.
func (r *FileSpeakersRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.FileSpeaker, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_speakers WHERE id = $1`, fileSpeakerColumns)

	speaker, err := scanFileSpeaker(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("file speaker", "file speaker not found")
		}

		return nil, fmt.Errorf("get file speaker: %w", err)
	}

	return speaker, nil
}

// ListByMediaItem retrieves every file speaker of a media item, ordered by label.
func (r *FileSpeakersRepository) ListByMediaItem(ctx context.Context, mediaItemID uuid.UUID) ([]models.FileSpeaker, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_speakers WHERE media_item_id = $1 ORDER BY label`, fileSpeakerColumns)

	rows, err := r.db.Query(ctx, query, mediaItemID)
	if err != nil {
		return nil, fmt.Errorf("list file speakers: %w", err)
	}
	defer rows.Close()

	speakers := []models.FileSpeaker{}

	for rows.Next() {
		speaker, err := scanFileSpeaker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file speaker: %w", err)
		}

		speakers = append(speakers, *speaker)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating file speakers: %w", err)
	}

	return speakers, nil
}

// Suggest records a medium-confidence candidate on an unverified speaker.
// Verified speakers are terminal, so the update is conditional on verified = FALSE.
func (r *FileSpeakersRepository) Suggest(
	ctx context.Context, id uuid.UUID, profileID uuid.UUID, score float64, rationale string,
) (*models.FileSpeaker, error) {
	query := fmt.Sprintf(`
		UPDATE file_speakers
		SET match_state = 'suggested', suggested_profile_id = $2, suggested_score = $3,
			rationale = $4, updated_at = now()
		WHERE id = $1 AND verified = FALSE
		RETURNING %s
	`, fileSpeakerColumns)

	speaker, err := scanFileSpeaker(r.db.QueryRow(ctx, query, id, profileID, score, rationale))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyNoRows(ctx, id)
		}

		return nil, fmt.Errorf("suggest profile: %w", err)
	}

	return speaker, nil
}

// MarkUnmatched records that no candidate cleared the suggestion threshold.
func (r *FileSpeakersRepository) MarkUnmatched(ctx context.Context, id uuid.UUID, rationale string) (*models.FileSpeaker, error) {
	query := fmt.Sprintf(`
		UPDATE file_speakers
		SET match_state = 'unmatched', suggested_profile_id = NULL, suggested_score = NULL,
			rationale = $2, updated_at = now()
		WHERE id = $1 AND verified = FALSE
		RETURNING %s
	`, fileSpeakerColumns)

	speaker, err := scanFileSpeaker(r.db.QueryRow(ctx, query, id, rationale))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyNoRows(ctx, id)
		}

		return nil, fmt.Errorf("mark unmatched: %w", err)
	}

	return speaker, nil
}

// classifyNoRows turns a zero-row conditional update into the right error:
// the speaker is gone, or it exists but a human already verified it.
func (r *FileSpeakersRepository) classifyNoRows(ctx context.Context, id uuid.UUID) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}

	return apperrors.NewConflictError("speaker is already verified")
}

// Attach moves a file speaker onto target, carrying its voiceprint and transcript
// segments along. The placeholder profile it leaves behind is deleted when nothing
// else references it. state decides whether the attach counts as verified:
// confirmed attaches come from humans, auto_attached ones from the matcher.
func (r *FileSpeakersRepository) Attach(
	ctx context.Context, id uuid.UUID, targetProfileID uuid.UUID,
	state models.MatchState, score *float64, rationale *string,
) (*models.FileSpeaker, error) {
	speaker, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin attach: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var targetExists bool

	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM profiles WHERE id = $1)`, targetProfileID,
	).Scan(&targetExists)
	if err != nil {
		return nil, fmt.Errorf("check target profile: %w", err)
	}

	if !targetExists {
		return nil, apperrors.NewNotFoundError("profile", "target profile not found")
	}

	verified := state == models.MatchStateConfirmed

	// Conditional on verified = FALSE so a concurrent human verification is
	// never overwritten, not even by another verify request.
	query := fmt.Sprintf(`
		UPDATE file_speakers
		SET profile_id = $2, match_state = $3, match_score = $4, rationale = $5,
			verified = $6, suggested_profile_id = NULL, suggested_score = NULL, updated_at = now()
		WHERE id = $1 AND verified = FALSE
		RETURNING %s
	`, fileSpeakerColumns)

	updated, err := scanFileSpeaker(tx.QueryRow(ctx, query, id, targetProfileID, state, score, rationale, verified))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyNoRows(ctx, id)
		}

		return nil, fmt.Errorf("attach file speaker: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE voiceprints SET profile_id = $1 WHERE file_speaker_id = $2`, targetProfileID, id)
	if err != nil {
		return nil, fmt.Errorf("move voiceprint: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE transcript_segments SET profile_id = $1 WHERE file_speaker_id = $2`, targetProfileID, id)
	if err != nil {
		return nil, fmt.Errorf("move transcript segments: %w", err)
	}

	if speaker.ProfileID != targetProfileID {
		_, err = tx.Exec(ctx, `
			DELETE FROM profiles
			WHERE id = $1 AND display_name IS NULL AND verification = 'unverified'
				AND NOT EXISTS (SELECT 1 FROM voiceprints v WHERE v.profile_id = $1)
				AND NOT EXISTS (SELECT 1 FROM file_speakers fs WHERE fs.profile_id = $1)
		`, speaker.ProfileID)
		if err != nil {
			return nil, fmt.Errorf("delete placeholder profile: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit attach: %w", err)
	}

	return updated, nil
}

// ListPendingOlderThan finds speakers stuck in pending longer than age, oldest
// first. The sweeper re-enqueues them.
func (r *FileSpeakersRepository) ListPendingOlderThan(ctx context.Context, age time.Duration, limit int) ([]models.FileSpeaker, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM file_speakers
		WHERE match_state = 'pending' AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2
	`, fileSpeakerColumns)

	rows, err := r.db.Query(ctx, query, time.Now().Add(-age), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending speakers: %w", err)
	}
	defer rows.Close()

	speakers := []models.FileSpeaker{}

	for rows.Next() {
		speaker, err := scanFileSpeaker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending speaker: %w", err)
		}

		speakers = append(speakers, *speaker)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pending speakers: %w", err)
	}

	return speakers, nil
}

// ListMediaItemIDsWithPending pages through the distinct media items that
// still have pending speakers, regardless of age. Pass uuid.Nil to start from
// the beginning; pass the last returned id to continue.
func (r *FileSpeakersRepository) ListMediaItemIDsWithPending(ctx context.Context, afterID uuid.UUID, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT media_item_id FROM file_speakers
		WHERE match_state = 'pending' AND media_item_id > $1
		ORDER BY media_item_id
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list media items with pending speakers: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan media item id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating media item ids: %w", err)
	}

	return ids, nil
}

const speakerWithEmbeddingColumns = `fs.id, fs.media_item_id, fs.label, fs.profile_id, fs.match_state,
			fs.match_score, fs.suggested_profile_id, fs.suggested_score, fs.rationale, fs.verified,
			fs.created_at, fs.updated_at, v.embedding`

func scanSpeakerWithEmbedding(row pgx.Row) (models.SpeakerWithEmbedding, error) {
	var (
		item models.FileSpeaker
		vec  pgvector.Vector
	)

	err := row.Scan(
		&item.ID, &item.MediaItemID, &item.Label, &item.ProfileID,
		&item.MatchState, &item.MatchScore, &item.SuggestedProfileID,
		&item.SuggestedScore, &item.Rationale, &item.Verified,
		&item.CreatedAt, &item.UpdatedAt, &vec,
	)
	if err != nil {
		return models.SpeakerWithEmbedding{}, err
	}

	return models.SpeakerWithEmbedding{Speaker: item, Embedding: vec.Slice()}, nil
}

// ListByMediaItemWithEmbeddings retrieves every file speaker of a media item
// together with its stored embedding, ordered by label. The resolution worker
// loads the whole item at once and leaves skipping already-classified speakers
// to the resolver, which keeps re-running a job idempotent.
func (r *FileSpeakersRepository) ListByMediaItemWithEmbeddings(
	ctx context.Context, mediaItemID uuid.UUID,
) ([]models.SpeakerWithEmbedding, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM file_speakers fs
		JOIN voiceprints v ON v.file_speaker_id = fs.id
		WHERE fs.media_item_id = $1
		ORDER BY fs.label
	`, speakerWithEmbeddingColumns)

	rows, err := r.db.Query(ctx, query, mediaItemID)
	if err != nil {
		return nil, fmt.Errorf("list speakers with embeddings: %w", err)
	}
	defer rows.Close()

	speakers := []models.SpeakerWithEmbedding{}

	for rows.Next() {
		item, err := scanSpeakerWithEmbedding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan speaker with embedding: %w", err)
		}

		speakers = append(speakers, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating speakers with embeddings: %w", err)
	}

	return speakers, nil
}

// ListOutstandingWithEmbeddings returns one keyset batch of unresolved speakers
// outside excludeProfileID, together with their embeddings. Used by retroactive
// relabeling after a profile gains a name: only speakers that could newly match
// that profile are worth re-scoring. Pass the last speaker id of the previous
// batch as afterID, uuid.Nil for the first.
func (r *FileSpeakersRepository) ListOutstandingWithEmbeddings(
	ctx context.Context, excludeProfileID uuid.UUID, afterID uuid.UUID, limit int,
) ([]models.SpeakerWithEmbedding, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM file_speakers fs
		JOIN voiceprints v ON v.file_speaker_id = fs.id
		WHERE fs.verified = FALSE
			AND fs.match_state IN ('pending', 'suggested', 'unmatched')
			AND fs.profile_id <> $1
			AND fs.id > $2
		ORDER BY fs.id
		LIMIT $3
	`, speakerWithEmbeddingColumns)

	rows, err := r.db.Query(ctx, query, excludeProfileID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list outstanding speakers: %w", err)
	}
	defer rows.Close()

	outstanding := []models.SpeakerWithEmbedding{}

	for rows.Next() {
		item, err := scanSpeakerWithEmbedding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outstanding speaker: %w", err)
		}

		outstanding = append(outstanding, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outstanding speakers: %w", err)
	}

	return outstanding, nil
}

// buildOccurrenceQuery builds the keyset-paged cross-media occurrence query for
// a profile. Rows where the profile is only suggested count as occurrences too,
// so the predicate spans both ownership and pending suggestions.
func buildOccurrenceQuery(profileID uuid.UUID, limit int, afterCreatedAt *time.Time, afterID *uuid.UUID) (query string, args []any) {
	query = `
		SELECT fs.media_item_id, m.title, fs.id, fs.label,
			COALESCE(fs.match_score, fs.suggested_score), fs.verified,
			(fs.suggested_profile_id = $1 AND fs.match_state = 'suggested'), fs.created_at
		FROM file_speakers fs
		JOIN media_items m ON m.id = fs.media_item_id
		WHERE (fs.profile_id = $1 OR (fs.suggested_profile_id = $1 AND fs.match_state = 'suggested'))
	`

	args = append(args, profileID)
	argCount := 2

	if afterCreatedAt != nil && afterID != nil {
		query += fmt.Sprintf(" AND (fs.created_at, fs.id) < ($%d, $%d)", argCount, argCount+1)
		args = append(args, *afterCreatedAt, *afterID)
		argCount += 2
	}

	query += fmt.Sprintf(" ORDER BY fs.created_at DESC, fs.id DESC LIMIT $%d", argCount)
	args = append(args, limit)

	return query, args
}

// ListOccurrences returns one keyset page of a profile's appearances across media items.
func (r *FileSpeakersRepository) ListOccurrences(
	ctx context.Context, profileID uuid.UUID, limit int, afterCreatedAt *time.Time, afterID *uuid.UUID,
) ([]models.CrossMediaOccurrence, error) {
	query, args := buildOccurrenceQuery(profileID, limit, afterCreatedAt, afterID)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	defer rows.Close()

	occurrences := []models.CrossMediaOccurrence{}

	for rows.Next() {
		var occ models.CrossMediaOccurrence

		err := rows.Scan(
			&occ.MediaItemID, &occ.MediaTitle, &occ.FileSpeakerID, &occ.PerFileLabel,
			&occ.Score, &occ.Verified, &occ.Suggested, &occ.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan occurrence: %w", err)
		}

		occurrences = append(occurrences, occ)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating occurrences: %w", err)
	}

	return occurrences, nil
}

// CountOccurrences returns the total occurrence count for a profile.
func (r *FileSpeakersRepository) CountOccurrences(ctx context.Context, profileID uuid.UUID) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM file_speakers fs
		WHERE fs.profile_id = $1 OR (fs.suggested_profile_id = $1 AND fs.match_state = 'suggested')
	`

	var count int64

	err := r.db.QueryRow(ctx, query, profileID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count occurrences: %w", err)
	}

	return count, nil
}
