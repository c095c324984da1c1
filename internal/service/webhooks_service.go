package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/audioscribe/speakerhub/internal/apperrors"
	"github.com/audioscribe/speakerhub/internal/datatypes"
	"github.com/audioscribe/speakerhub/internal/models"
)

// signingKeyPrefix marks a Standard Webhooks signing key.
const signingKeyPrefix = "whsec_"

// WebhooksRepository defines the interface for webhooks data access
type WebhooksRepository interface {
	Create(ctx context.Context, req *models.CreateWebhookRequest) (*models.Webhook, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webhook, error)
	List(ctx context.Context, filters *models.ListWebhooksFilters) ([]models.Webhook, error)
	Count(ctx context.Context, filters *models.ListWebhooksFilters) (int64, error)
	Update(ctx context.Context, id uuid.UUID, req *models.UpdateWebhookRequest) (*models.Webhook, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Disable(ctx context.Context, id uuid.UUID) error
	ListEnabledForEventType(ctx context.Context, eventType datatypes.EventType) ([]models.Webhook, error)
}

// WebhooksService handles business logic for webhooks
type WebhooksService struct {
	repo        WebhooksRepository
	publisher   MessagePublisher
	maxWebhooks int
}

// NewWebhooksService creates a new webhooks service. maxWebhooks caps the total
// number of registered endpoints; 0 disables the cap.
func NewWebhooksService(repo WebhooksRepository, publisher MessagePublisher, maxWebhooks int) *WebhooksService {
	return &WebhooksService{
		repo:        repo,
		publisher:   publisher,
		maxWebhooks: maxWebhooks,
	}
}

// CreateWebhook creates a new webhook. The returned model includes the signing
// key so the caller can store it; event payloads never carry it.
func (s *WebhooksService) CreateWebhook(ctx context.Context, req *models.CreateWebhookRequest) (*models.Webhook, error) {
	if s.maxWebhooks > 0 {
		count, err := s.repo.Count(ctx, &models.ListWebhooksFilters{})
		if err != nil {
			return nil, fmt.Errorf("count webhooks: %w", err)
		}

		if count >= int64(s.maxWebhooks) {
			return nil, apperrors.NewLimitExceededError(
				fmt.Sprintf("webhook limit reached (max %d)", s.maxWebhooks))
		}
	}

	if req.SigningKey == "" {
		key, err := generateSigningKey()
		if err != nil {
			return nil, err
		}

		req.SigningKey = key
	} else if err := validateSigningKey(req.SigningKey); err != nil {
		return nil, err
	}

	webhook, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishEvent(ctx, datatypes.WebhookCreated, webhookEventData(webhook))

	return webhook, nil
}

// generateSigningKey generates a cryptographically secure signing key
// in the format expected by Standard Webhooks: "whsec_" + base64(32 random bytes)
func generateSigningKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}

	return signingKeyPrefix + base64.StdEncoding.EncodeToString(key), nil
}

// validateSigningKey checks a caller-supplied signing key for the Standard Webhooks format.
func validateSigningKey(key string) error {
	if !strings.HasPrefix(key, signingKeyPrefix) {
		return apperrors.NewValidationError("signing_key",
			fmt.Sprintf("signing key must start with %q", signingKeyPrefix))
	}

	return nil
}

// GetWebhook retrieves a single webhook by ID
func (s *WebhooksService) GetWebhook(ctx context.Context, id uuid.UUID) (*models.Webhook, error) {
	return s.repo.GetByID(ctx, id)
}

// ListWebhooks retrieves a list of webhooks with optional filters
func (s *WebhooksService) ListWebhooks(ctx context.Context, filters *models.ListWebhooksFilters) (*models.ListWebhooksResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	}

	webhooks, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.Count(ctx, filters)
	if err != nil {
		return nil, err
	}

	return &models.ListWebhooksResponse{
		Data:   webhooks,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// UpdateWebhook updates an existing webhook and publishes webhook.updated with
// the names of the changed fields.
func (s *WebhooksService) UpdateWebhook(ctx context.Context, id uuid.UUID, req *models.UpdateWebhookRequest) (*models.Webhook, error) {
	if req.SigningKey != nil {
		if err := validateSigningKey(*req.SigningKey); err != nil {
			return nil, err
		}
	}

	webhook, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishEventWithChangedFields(ctx, datatypes.WebhookUpdated,
		webhookEventData(webhook), changedWebhookFields(req))

	return webhook, nil
}

// changedWebhookFields lists the field names an update touches. Only names are
// reported; a rotated signing key shows up as "signing_key" without the value.
func changedWebhookFields(req *models.UpdateWebhookRequest) []string {
	var fields []string

	if req.URL != nil {
		fields = append(fields, "url")
	}

	if req.SigningKey != nil {
		fields = append(fields, "signing_key")
	}

	if req.Enabled != nil {
		fields = append(fields, "enabled")
	}

	if req.EventTypes != nil {
		fields = append(fields, "event_types")
	}

	return fields
}

// DeleteWebhook deletes a webhook by ID and publishes webhook.deleted with the
// endpoint's last known state.
func (s *WebhooksService) DeleteWebhook(ctx context.Context, id uuid.UUID) error {
	webhook, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.publisher.PublishEvent(ctx, datatypes.WebhookDeleted, webhookEventData(webhook))

	return nil
}
