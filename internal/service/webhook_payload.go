package service

import (
	"time"

	"github.com/google/uuid"
)

// WebhookPayload represents a generic webhook payload structure for all event types.
// The Data field can contain SpeakerEventData, ProfileEventData, or other event data types.
type WebhookPayload struct {
	ID            uuid.UUID `json:"id"`                       // Unique event id (UUID v7)
	Type          string    `json:"type"`                     // Event type as string (e.g., "speaker.verified", "profiles.merged")
	Timestamp     time.Time `json:"timestamp"`                // Event creation timestamp
	Data          any       `json:"data"`                     // Event data (SpeakerEventData, ProfileEventData, etc.)
	ChangedFields []string  `json:"changed_fields,omitempty"` // Only for update events (optional)
}
