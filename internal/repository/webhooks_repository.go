package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/audioscribe/speakerhub/internal/apperrors"
	"github.com/audioscribe/speakerhub/internal/datatypes"
	"github.com/audioscribe/speakerhub/internal/models"
)

// WebhooksRepository handles data access for webhook endpoints.
type WebhooksRepository struct {
	db *pgxpool.Pool
}

// NewWebhooksRepository creates a new webhooks repository.
func NewWebhooksRepository(db *pgxpool.Pool) *WebhooksRepository {
	return &WebhooksRepository{db: db}
}

func scanWebhook(row pgx.Row) (*models.Webhook, error) {
	var (
		webhook    models.Webhook
		eventTypes []string
	)

	err := row.Scan(
		&webhook.ID, &webhook.URL, &webhook.SigningKey, &webhook.Enabled,
		&webhook.TenantID, &eventTypes, &webhook.CreatedAt, &webhook.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	types, err := datatypes.ParseEventTypes(eventTypes)
	if err != nil {
		return nil, fmt.Errorf("parse stored event types: %w", err)
	}

	webhook.EventTypes = types

	return &webhook, nil
}

// Create inserts a new webhook. A nil event type list subscribes it to every event.
func (r *WebhooksRepository) Create(ctx context.Context, req *models.CreateWebhookRequest) (*models.Webhook, error) {
	query := `
		INSERT INTO webhooks (url, signing_key, enabled, tenant_id, event_types)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, url, signing_key, enabled, tenant_id, event_types, created_at, updated_at
	`

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	webhook, err := scanWebhook(r.db.QueryRow(ctx, query,
		req.URL, req.SigningKey, enabled, req.TenantID, datatypes.EventTypeStrings(req.EventTypes),
	))
	if err != nil {
		return nil, fmt.Errorf("create webhook: %w", err)
	}

	return webhook, nil
}

// GetByID retrieves a single webhook by ID.
func (r *WebhooksRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Webhook, error) {
	query := `
		SELECT id, url, signing_key, enabled, tenant_id, event_types, created_at, updated_at
		FROM webhooks
		WHERE id = $1
	`

	webhook, err := scanWebhook(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("webhook", "webhook not found")
		}

		return nil, fmt.Errorf("get webhook: %w", err)
	}

	return webhook, nil
}

// buildWebhookFilterConditions builds WHERE clause conditions and arguments from filters.
func buildWebhookFilterConditions(filters *models.ListWebhooksFilters) (whereClause string, args []any) {
	var conditions []string

	argCount := 1

	if filters.Enabled != nil {
		conditions = append(conditions, fmt.Sprintf("enabled = $%d", argCount))
		args = append(args, *filters.Enabled)
		argCount++
	}

	if filters.TenantID != nil {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argCount))
		args = append(args, *filters.TenantID)
	}

	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	return whereClause, args
}

// List retrieves webhooks with optional filters and pagination.
func (r *WebhooksRepository) List(ctx context.Context, filters *models.ListWebhooksFilters) ([]models.Webhook, error) {
	query := `
		SELECT id, url, signing_key, enabled, tenant_id, event_types, created_at, updated_at
		FROM webhooks
	`

	whereClause, args := buildWebhookFilterConditions(filters)
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
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	webhooks := []models.Webhook{}

	for rows.Next() {
		webhook, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}

		webhooks = append(webhooks, *webhook)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating webhooks: %w", err)
	}

	return webhooks, nil
}

// Count returns the total count of webhooks matching the filters.
func (r *WebhooksRepository) Count(ctx context.Context, filters *models.ListWebhooksFilters) (int64, error) {
	query := `SELECT COUNT(*) FROM webhooks`

	whereClause, args := buildWebhookFilterConditions(filters)
	query += whereClause

	var count int64

	err := r.db.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count webhooks: %w", err)
	}

	return count, nil
}

// ListEnabledForEventType retrieves enabled webhooks subscribed to the event type.
// Webhooks with a NULL event type list receive everything.
func (r *WebhooksRepository) ListEnabledForEventType(ctx context.Context, eventType datatypes.EventType) ([]models.Webhook, error) {
	query := `
		SELECT id, url, signing_key, enabled, tenant_id, event_types, created_at, updated_at
		FROM webhooks
		WHERE enabled = TRUE AND (event_types IS NULL OR $1 = ANY(event_types))
		ORDER BY created_at
	`

	rows, err := r.db.Query(ctx, query, eventType.String())
	if err != nil {
		return nil, fmt.Errorf("list webhooks for event type: %w", err)
	}
	defer rows.Close()

	webhooks := []models.Webhook{}

	for rows.Next() {
		webhook, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}

		webhooks = append(webhooks, *webhook)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating webhooks: %w", err)
	}

	return webhooks, nil
}

// buildWebhookUpdateQuery builds an UPDATE query with SET clause and arguments.
func buildWebhookUpdateQuery(
	req *models.UpdateWebhookRequest, id uuid.UUID, updatedAt time.Time,
) (query string, args []any, hasUpdates bool) {
	var updates []string

	argCount := 1

	if req.URL != nil {
		updates = append(updates, fmt.Sprintf("url = $%d", argCount))
		args = append(args, *req.URL)
		argCount++
	}

	if req.SigningKey != nil {
		updates = append(updates, fmt.Sprintf("signing_key = $%d", argCount))
		args = append(args, *req.SigningKey)
		argCount++
	}

	if req.Enabled != nil {
		updates = append(updates, fmt.Sprintf("enabled = $%d", argCount))
		args = append(args, *req.Enabled)
		argCount++
	}

	if req.EventTypes != nil {
		// An empty list clears the column back to NULL (subscribe to all).
		updates = append(updates, fmt.Sprintf("event_types = $%d", argCount))
		args = append(args, datatypes.EventTypeStrings(*req.EventTypes))
		argCount++
	}

	if len(updates) == 0 {
		return "", nil, false
	}

	updates = append(updates, fmt.Sprintf("updated_at = $%d", argCount))
	args = append(args, updatedAt)
	argCount++

	args = append(args, id)
	query = fmt.Sprintf(`
		UPDATE webhooks
		SET %s
		WHERE id = $%d
		RETURNING id, url, signing_key, enabled, tenant_id, event_types, created_at, updated_at
	`, strings.Join(updates, ", "), argCount)

	return query, args, true
}

// Update modifies an existing webhook. Only provided fields change.
func (r *WebhooksRepository) Update(ctx context.Context, id uuid.UUID, req *models.UpdateWebhookRequest) (*models.Webhook, error) {
	query, args, hasUpdates := buildWebhookUpdateQuery(req, id, time.Now())
	if !hasUpdates {
		return r.GetByID(ctx, id)
	}

	webhook, err := scanWebhook(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("webhook", "webhook not found")
		}

		return nil, fmt.Errorf("update webhook: %w", err)
	}

	return webhook, nil
}

// Disable turns a webhook off without deleting it. Used by the dispatcher when an
// endpoint answers 410 Gone or exhausts its delivery attempts.
func (r *WebhooksRepository) Disable(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE webhooks SET enabled = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("disable webhook: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("webhook", "webhook not found")
	}

	return nil
}

// Delete removes a webhook by ID.
func (r *WebhooksRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("webhook", "webhook not found")
	}

	return nil
}
