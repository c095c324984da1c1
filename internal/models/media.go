package models

import (
	"time"

	"github.com/google/uuid"
)

// MediaItem represents one uploaded media file registered with the resolver.
// Rows are created on the first diarization result for an external_ref.
type MediaItem struct {
	ID              uuid.UUID `json:"id"`
	TenantID        *string   `json:"tenant_id,omitempty"`
	ExternalRef     string    `json:"external_ref"`
	Title           string    `json:"title"`
	DurationSeconds float64   `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ListMediaItemsFilters represents filters for listing media items
type ListMediaItemsFilters struct {
	TenantID    *string `form:"tenant_id" validate:"omitempty,no_null_bytes"`
	ExternalRef *string `form:"external_ref" validate:"omitempty,no_null_bytes"`
	Limit       int     `form:"limit" validate:"omitempty,min=1,max=1000"`
	Offset      int     `form:"offset" validate:"omitempty,min=0"`
}

// ListMediaItemsResponse represents the response for listing media items
type ListMediaItemsResponse struct {
	Data   []MediaItem `json:"data"`
	Total  int64       `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// TranscriptSegment represents one diarized utterance attributed to a speaker.
// profile_id is denormalized from the owning file speaker so per-profile talk
// time and merges do not have to join through file_speakers.
type TranscriptSegment struct {
	ID            uuid.UUID `json:"id"`
	MediaItemID   uuid.UUID `json:"media_item_id"`
	FileSpeakerID uuid.UUID `json:"file_speaker_id"`
	ProfileID     uuid.UUID `json:"profile_id"`
	StartSeconds  float64   `json:"start_seconds"`
	EndSeconds    float64   `json:"end_seconds"`
	Text          *string   `json:"text,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// SpeakerSegmentsResponse is one file speaker's transcript in playback order.
type SpeakerSegmentsResponse struct {
	FileSpeakerID uuid.UUID           `json:"file_speaker_id"`
	MediaItemID   uuid.UUID           `json:"media_item_id"`
	ProfileID     uuid.UUID           `json:"profile_id"`
	Label         string              `json:"label"`
	TalkSeconds   float64             `json:"talk_seconds"`
	Data          []TranscriptSegment `json:"data"`
}
