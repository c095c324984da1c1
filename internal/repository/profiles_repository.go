package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/audioscribe/speakerhub/internal/apperrors"
	"github.com/audioscribe/speakerhub/internal/models"
)

const foreignKeyViolationCode = "23503"

// ProfilesRepository handles data access for speaker profiles.
type ProfilesRepository struct {
	db *pgxpool.Pool
}

// NewProfilesRepository creates a new profiles repository.
func NewProfilesRepository(db *pgxpool.Pool) *ProfilesRepository {
	return &ProfilesRepository{db: db}
}

// Create inserts a new profile. displayName nil creates an unnamed placeholder.
func (r *ProfilesRepository) Create(
	ctx context.Context, tenantID *string, displayName *string, verification models.VerificationState,
) (*models.Profile, error) {
	query := `
		INSERT INTO profiles (tenant_id, display_name, verification)
		VALUES ($1, $2, $3)
		RETURNING id, tenant_id, display_name, verification, version, created_at, updated_at
	`

	var profile models.Profile

	err := r.db.QueryRow(ctx, query, tenantID, displayName, verification).Scan(
		&profile.ID, &profile.TenantID, &profile.DisplayName, &profile.Verification,
		&profile.Version, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	return &profile, nil
}

// GetByID retrieves a single profile by ID.
func (r *ProfilesRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	query := `
		SELECT id, tenant_id, display_name, verification, version, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`

	var profile models.Profile

	err := r.db.QueryRow(ctx, query, id).Scan(
		&profile.ID, &profile.TenantID, &profile.DisplayName, &profile.Verification,
		&profile.Version, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("profile", "profile not found")
		}

		return nil, fmt.Errorf("get profile: %w", err)
	}

	return &profile, nil
}

// GetDisplayName returns only the display name of a profile (nil when unnamed).
func (r *ProfilesRepository) GetDisplayName(ctx context.Context, id uuid.UUID) (*string, error) {
	var name *string

	err := r.db.QueryRow(ctx, `SELECT display_name FROM profiles WHERE id = $1`, id).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("profile", "profile not found")
		}

		return nil, fmt.Errorf("get profile display name: %w", err)
	}

	return name, nil
}

// GetWithStats retrieves a profile together with its on-demand aggregates.
func (r *ProfilesRepository) GetWithStats(ctx context.Context, id uuid.UUID) (*models.ProfileWithStats, error) {
	query := `
		SELECT p.id, p.tenant_id, p.display_name, p.verification, p.version, p.created_at, p.updated_at,
			(SELECT COUNT(*) FROM voiceprints v WHERE v.profile_id = p.id) AS voiceprint_count,
			(SELECT COUNT(*) FROM transcript_segments ts WHERE ts.profile_id = p.id) AS segment_count,
			(SELECT COALESCE(SUM(ts.end_seconds - ts.start_seconds), 0) FROM transcript_segments ts WHERE ts.profile_id = p.id) AS talk_time_seconds,
			(SELECT COUNT(DISTINCT v.media_item_id) FROM voiceprints v WHERE v.profile_id = p.id) AS media_item_count,
			(SELECT COUNT(*) FROM file_speakers fs WHERE fs.suggested_profile_id = p.id AND fs.match_state = 'suggested' AND fs.verified = FALSE) AS pending_suggested
		FROM profiles p
		WHERE p.id = $1
	`

	var result models.ProfileWithStats

	err := r.db.QueryRow(ctx, query, id).Scan(
		&result.ID, &result.TenantID, &result.DisplayName, &result.Verification,
		&result.Version, &result.CreatedAt, &result.UpdatedAt,
		&result.Stats.VoiceprintCount, &result.Stats.SegmentCount, &result.Stats.TalkTimeSeconds,
		&result.Stats.MediaItemCount, &result.Stats.PendingSuggested,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("profile", "profile not found")
		}

		return nil, fmt.Errorf("get profile with stats: %w", err)
	}

	return &result, nil
}

// buildProfileFilterConditions builds WHERE clause conditions and arguments from filters.
func buildProfileFilterConditions(filters *models.ListProfilesFilters) (whereClause string, args []any) {
	var conditions []string

	argCount := 1

	if filters.TenantID != nil {
		conditions = append(conditions, fmt.Sprintf("p.tenant_id = $%d", argCount))
		args = append(args, *filters.TenantID)
		argCount++
	}

	if filters.Verification != nil {
		conditions = append(conditions, fmt.Sprintf("p.verification = $%d", argCount))
		args = append(args, *filters.Verification)
		argCount++
	}

	if filters.Name != nil {
		conditions = append(conditions, fmt.Sprintf("p.display_name ILIKE '%%' || $%d || '%%'", argCount))
		args = append(args, *filters.Name)
	}

	if filters.Named != nil {
		if *filters.Named {
			conditions = append(conditions, "p.display_name IS NOT NULL")
		} else {
			conditions = append(conditions, "p.display_name IS NULL")
		}
	}

	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	return whereClause, args
}

// List retrieves profiles with their aggregates, filtered and paged.
func (r *ProfilesRepository) List(ctx context.Context, filters *models.ListProfilesFilters) ([]models.ProfileWithStats, error) {
	query := `
		SELECT p.id, p.tenant_id, p.display_name, p.verification, p.version, p.created_at, p.updated_at,
			(SELECT COUNT(*) FROM voiceprints v WHERE v.profile_id = p.id) AS voiceprint_count,
			(SELECT COUNT(*) FROM transcript_segments ts WHERE ts.profile_id = p.id) AS segment_count,
			(SELECT COALESCE(SUM(ts.end_seconds - ts.start_seconds), 0) FROM transcript_segments ts WHERE ts.profile_id = p.id) AS talk_time_seconds,
			(SELECT COUNT(DISTINCT v.media_item_id) FROM voiceprints v WHERE v.profile_id = p.id) AS media_item_count,
			(SELECT COUNT(*) FROM file_speakers fs WHERE fs.suggested_profile_id = p.id AND fs.match_state = 'suggested' AND fs.verified = FALSE) AS pending_suggested
		FROM profiles p
	`

	whereClause, args := buildProfileFilterConditions(filters)
	query += whereClause
	argCount := len(args) + 1

	query += " ORDER BY p.created_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)

		args = append(args, filters.Limit)
		argCount++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)

		args = append(args, filters.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	profiles := []models.ProfileWithStats{}

	for rows.Next() {
		var result models.ProfileWithStats

		err := rows.Scan(
			&result.ID, &result.TenantID, &result.DisplayName, &result.Verification,
			&result.Version, &result.CreatedAt, &result.UpdatedAt,
			&result.Stats.VoiceprintCount, &result.Stats.SegmentCount, &result.Stats.TalkTimeSeconds,
			&result.Stats.MediaItemCount, &result.Stats.PendingSuggested,
		)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}

		profiles = append(profiles, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profiles: %w", err)
	}

	return profiles, nil
}

// Count returns the total count of profiles matching the filters.
func (r *ProfilesRepository) Count(ctx context.Context, filters *models.ListProfilesFilters) (int64, error) {
	query := `SELECT COUNT(*) FROM profiles p`

	whereClause, args := buildProfileFilterConditions(filters)
	query += whereClause

	var count int64

	err := r.db.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}

	return count, nil
}

// buildProfileUpdateQuery builds an UPDATE query with SET clause and arguments.
// Every update bumps version; when expectedVersion is set the WHERE clause enforces it,
// so a stale writer matches zero rows instead of clobbering a concurrent change.
func buildProfileUpdateQuery(
	req *models.UpdateProfileRequest, id uuid.UUID, updatedAt time.Time,
) (query string, args []any, hasUpdates bool) {
	var updates []string

	argCount := 1

	if req.DisplayName != nil {
		updates = append(updates, fmt.Sprintf("display_name = $%d", argCount))
		args = append(args, *req.DisplayName)
		argCount++
	}

	if req.Verified != nil {
		state := models.VerificationUnverified
		if *req.Verified {
			state = models.VerificationVerified
		}

		updates = append(updates, fmt.Sprintf("verification = $%d", argCount))
		args = append(args, state)
		argCount++
	}

	if len(updates) == 0 {
		return "", nil, false
	}

	updates = append(updates, "version = version + 1")
	updates = append(updates, fmt.Sprintf("updated_at = $%d", argCount))
	args = append(args, updatedAt)
	argCount++

	args = append(args, id)
	where := fmt.Sprintf("WHERE id = $%d", argCount)
	argCount++

	if req.ExpectedVersion != nil {
		where += fmt.Sprintf(" AND version = $%d", argCount)
		args = append(args, *req.ExpectedVersion)
	}

	query = fmt.Sprintf(`
		UPDATE profiles
		SET %s
		%s
		RETURNING id, tenant_id, display_name, verification, version, created_at, updated_at
	`, strings.Join(updates, ", "), where)

	return query, args, true
}

// Update applies a rename and/or verification change with optimistic concurrency.
// Returns a conflict error when expected_version no longer matches.
func (r *ProfilesRepository) Update(
	ctx context.Context, id uuid.UUID, req *models.UpdateProfileRequest,
) (*models.Profile, error) {
	query, args, hasUpdates := buildProfileUpdateQuery(req, id, time.Now())
	if !hasUpdates {
		return r.GetByID(ctx, id)
	}

	var profile models.Profile

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&profile.ID, &profile.TenantID, &profile.DisplayName, &profile.Verification,
		&profile.Version, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Zero rows means the profile is gone or the version predicate failed.
			// Disambiguate so callers can surface retryable conflicts.
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}

			return nil, apperrors.NewConflictError("profile was modified concurrently, re-read and retry")
		}

		return nil, fmt.Errorf("update profile: %w", err)
	}

	return &profile, nil
}

// MergeSource absorbs one source profile into target inside a single transaction:
// every voiceprint, transcript segment, and file speaker owned by source is re-pointed at
// target, pending suggestions referencing source follow it, and the source row is deleted.
// Each source merges independently so one failure never rolls back a sibling.
func (r *ProfilesRepository) MergeSource(
	ctx context.Context, sourceID, targetID uuid.UUID,
) (*models.MergeSourceCounts, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	// Lock both rows in deterministic order to avoid deadlocks between concurrent merges.
	rows, err := tx.Query(ctx,
		`SELECT id FROM profiles WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		[]uuid.UUID{sourceID, targetID},
	)
	if err != nil {
		return nil, fmt.Errorf("lock profiles: %w", err)
	}

	locked := make(map[uuid.UUID]bool, 2)

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()

			return nil, fmt.Errorf("scan locked profile: %w", err)
		}

		locked[id] = true
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating locked profiles: %w", err)
	}

	if !locked[targetID] {
		return nil, apperrors.NewNotFoundError("profile", "target profile not found")
	}

	if !locked[sourceID] {
		return nil, apperrors.NewNotFoundError("profile", "source profile not found")
	}

	var counts models.MergeSourceCounts

	tag, err := tx.Exec(ctx,
		`UPDATE voiceprints SET profile_id = $1 WHERE profile_id = $2`, targetID, sourceID)
	if err != nil {
		return nil, fmt.Errorf("reassign voiceprints: %w", err)
	}

	counts.Voiceprints = tag.RowsAffected()

	tag, err = tx.Exec(ctx,
		`UPDATE transcript_segments SET profile_id = $1 WHERE profile_id = $2`, targetID, sourceID)
	if err != nil {
		return nil, fmt.Errorf("reassign transcript segments: %w", err)
	}

	counts.Segments = tag.RowsAffected()

	tag, err = tx.Exec(ctx,
		`UPDATE file_speakers SET profile_id = $1, updated_at = now() WHERE profile_id = $2`,
		targetID, sourceID)
	if err != nil {
		return nil, fmt.Errorf("reassign file speakers: %w", err)
	}

	counts.Speakers = tag.RowsAffected()

	tag, err = tx.Exec(ctx,
		`UPDATE file_speakers SET suggested_profile_id = $1, updated_at = now() WHERE suggested_profile_id = $2`,
		targetID, sourceID)
	if err != nil {
		return nil, fmt.Errorf("reassign suggestions: %w", err)
	}

	counts.Suggestions = tag.RowsAffected()

	if _, err := tx.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, sourceID); err != nil {
		return nil, fmt.Errorf("delete source profile: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE profiles SET version = version + 1, updated_at = now() WHERE id = $1`, targetID); err != nil {
		return nil, fmt.Errorf("bump target version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit merge: %w", err)
	}

	return &counts, nil
}

// MarkSuggested promotes an unverified profile to suggested after its first
// auto-attach. Suggested and verified profiles are left alone.
func (r *ProfilesRepository) MarkSuggested(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE profiles
		SET verification = 'suggested', version = version + 1, updated_at = now()
		WHERE id = $1 AND verification = 'unverified'
	`, id)
	if err != nil {
		return fmt.Errorf("mark profile suggested: %w", err)
	}

	return nil
}

// MarkVerified promotes a profile to verified after a human confirmation.
func (r *ProfilesRepository) MarkVerified(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE profiles
		SET verification = 'verified', version = version + 1, updated_at = now()
		WHERE id = $1 AND verification <> 'verified'
	`, id)
	if err != nil {
		return fmt.Errorf("mark profile verified: %w", err)
	}

	return nil
}

// Delete removes a profile. Profiles still referenced by voiceprints, speakers,
// or segments are protected by foreign keys and reported as a validation error.
func (r *ProfilesRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolationCode {
			return apperrors.NewValidationError("profile", "profile still owns voiceprints or speakers")
		}

		return fmt.Errorf("delete profile: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("profile", "profile not found")
	}

	return nil
}
