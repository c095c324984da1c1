package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/audioscribe/speakerhub/internal/datatypes"
	"github.com/audioscribe/speakerhub/internal/models"
)

// SpeakerEventData is the payload for speaker.auto_attached, speaker.suggested,
// and speaker.verified events. ProfileName carries the display name of the
// attached or suggested profile at emit time.
type SpeakerEventData struct {
	Speaker     *models.FileSpeaker `json:"speaker"`
	MediaItemID uuid.UUID           `json:"media_item_id"`
	ProfileID   uuid.UUID           `json:"profile_id"`
	ProfileName *string             `json:"profile_name,omitempty"`
	Score       *float64            `json:"score,omitempty"`
	Action      string              `json:"action,omitempty"`
}

// ProfileEventData is the payload for profile.created and profile.renamed events.
type ProfileEventData struct {
	Profile *models.Profile `json:"profile"`
}

// MergeEventData is the payload for profiles.merged events.
type MergeEventData struct {
	TargetProfileID uuid.UUID                  `json:"target_profile_id"`
	Status          models.MergeStatus         `json:"status"`
	Succeeded       []models.MergeSourceResult `json:"succeeded"`
	Failed          []models.MergeSourceResult `json:"failed"`
}

// WebhookEventData is the payload for webhook.* events. It deliberately omits
// the signing key: event payloads fan out to every subscribed endpoint, and one
// endpoint must never learn another's secret.
type WebhookEventData struct {
	ID         uuid.UUID `json:"id"`
	URL        string    `json:"url"`
	Enabled    bool      `json:"enabled"`
	TenantID   *string   `json:"tenant_id,omitempty"`
	EventTypes []string  `json:"event_types,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// webhookEventData strips a webhook down to its event payload form.
func webhookEventData(w *models.Webhook) *WebhookEventData {
	return &WebhookEventData{
		ID:         w.ID,
		URL:        w.URL,
		Enabled:    w.Enabled,
		TenantID:   w.TenantID,
		EventTypes: datatypes.EventTypeStrings(w.EventTypes),
		CreatedAt:  w.CreatedAt,
		UpdatedAt:  w.UpdatedAt,
	}
}
