// Package repository provides PostgreSQL data access for the speaker hub.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/audioscribe/speakerhub/internal/apperrors"
	"github.com/audioscribe/speakerhub/internal/models"
)

// MediaItemsRepository handles data access for media items.
type MediaItemsRepository struct {
	db *pgxpool.Pool
}

// NewMediaItemsRepository creates a new media items repository.
func NewMediaItemsRepository(db *pgxpool.Pool) *MediaItemsRepository {
	return &MediaItemsRepository{db: db}
}

// UpsertByExternalRef inserts the media item or refreshes title and duration on re-delivery.
// The external reference is the diarizer's stable identifier for the file, so posting the
// same result twice lands on the same row.
func (r *MediaItemsRepository) UpsertByExternalRef(
	ctx context.Context, externalRef string, tenantID *string, title *string, durationSeconds *float64,
) (*models.MediaItem, error) {
	query := `
		INSERT INTO media_items (external_ref, tenant_id, title, duration_seconds)
		VALUES ($1, $2, COALESCE($3::text, ''), COALESCE($4::float8, 0))
		ON CONFLICT (external_ref) DO UPDATE SET
			title = COALESCE($3::text, media_items.title),
			duration_seconds = COALESCE($4::float8, media_items.duration_seconds),
			updated_at = now()
		RETURNING id, tenant_id, external_ref, title, duration_seconds, created_at, updated_at
	`

	var item models.MediaItem

	err := r.db.QueryRow(ctx, query, externalRef, tenantID, title, durationSeconds).Scan(
		&item.ID, &item.TenantID, &item.ExternalRef, &item.Title, &item.DurationSeconds,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert media item: %w", err)
	}

	return &item, nil
}

// GetByID retrieves a single media item by ID.
func (r *MediaItemsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MediaItem, error) {
	query := `
		SELECT id, tenant_id, external_ref, title, duration_seconds, created_at, updated_at
		FROM media_items
		WHERE id = $1
	`

	var item models.MediaItem

	err := r.db.QueryRow(ctx, query, id).Scan(
		&item.ID, &item.TenantID, &item.ExternalRef, &item.Title, &item.DurationSeconds,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("media item", "media item not found")
		}

		return nil, fmt.Errorf("get media item: %w", err)
	}

	return &item, nil
}

// buildMediaItemFilterConditions builds WHERE clause conditions and arguments from filters.
func buildMediaItemFilterConditions(filters *models.ListMediaItemsFilters) (whereClause string, args []any) {
	var conditions []string

	argCount := 1

	if filters.TenantID != nil {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argCount))
		args = append(args, *filters.TenantID)
		argCount++
	}

	if filters.ExternalRef != nil {
		conditions = append(conditions, fmt.Sprintf("external_ref = $%d", argCount))
		args = append(args, *filters.ExternalRef)
	}

	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	return whereClause, args
}

// List retrieves media items with optional filters.
func (r *MediaItemsRepository) List(ctx context.Context, filters *models.ListMediaItemsFilters) ([]models.MediaItem, error) {
	query := `
		SELECT id, tenant_id, external_ref, title, duration_seconds, created_at, updated_at
		FROM media_items
	`

	whereClause, args := buildMediaItemFilterConditions(filters)
	query += whereClause
	argCount := len(args) + 1

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("list media items: %w", err)
	}
	defer rows.Close()

	items := []models.MediaItem{}

	for rows.Next() {
		var item models.MediaItem

		err := rows.Scan(
			&item.ID, &item.TenantID, &item.ExternalRef, &item.Title, &item.DurationSeconds,
			&item.CreatedAt, &item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan media item: %w", err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating media items: %w", err)
	}

	return items, nil
}

// Count returns the total count of media items matching the filters.
func (r *MediaItemsRepository) Count(ctx context.Context, filters *models.ListMediaItemsFilters) (int64, error) {
	query := `SELECT COUNT(*) FROM media_items`

	whereClause, args := buildMediaItemFilterConditions(filters)
	query += whereClause

	var count int64

	err := r.db.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count media items: %w", err)
	}

	return count, nil
}
