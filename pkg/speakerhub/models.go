package speakerhub

import (
	"time"

	"github.com/google/uuid"
)

// Webhook event types the service publishes. Pass these in
// CreateWebhookRequest.EventTypes to subscribe to a subset.
const (
	EventSpeakerAutoAttached = "speaker.auto_attached"
	EventSpeakerSuggested    = "speaker.suggested"
	EventSpeakerVerified     = "speaker.verified"
	EventProfileCreated      = "profile.created"
	EventProfileRenamed      = "profile.renamed"
	EventProfilesMerged      = "profiles.merged"
	EventWebhookCreated      = "webhook.created"
	EventWebhookUpdated      = "webhook.updated"
	EventWebhookDeleted      = "webhook.deleted"
)

// MatchState is where a file speaker sits in the resolution pipeline.
type MatchState string

const (
	MatchStatePending      MatchState = "pending"
	MatchStateAutoAttached MatchState = "auto_attached"
	MatchStateSuggested    MatchState = "suggested"
	MatchStateUnmatched    MatchState = "unmatched"
	MatchStateConfirmed    MatchState = "confirmed"
)

// Tier is the confidence classification of a match score.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// VerificationState is how much human confirmation a profile has.
type VerificationState string

const (
	VerificationUnverified VerificationState = "unverified"
	VerificationSuggested  VerificationState = "suggested"
	VerificationVerified   VerificationState = "verified"
)

// VerifyAction is a human decision on a suggestion.
type VerifyAction string

const (
	VerifyActionAccept        VerifyAction = "accept"
	VerifyActionReject        VerifyAction = "reject"
	VerifyActionCreateProfile VerifyAction = "create_profile"
)

// MergeStatus summarizes a merge outcome across all sources.
type MergeStatus string

const (
	MergeAllSucceeded MergeStatus = "all_succeeded"
	MergePartial      MergeStatus = "partial"
	MergeAllFailed    MergeStatus = "all_failed"
)

// MediaItem is one media file registered with the resolver.
type MediaItem struct {
	ID              uuid.UUID `json:"id"`
	TenantID        *string   `json:"tenant_id,omitempty"`
	ExternalRef     string    `json:"external_ref"`
	Title           string    `json:"title"`
	DurationSeconds float64   `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ListMediaItemsResponse is one page of media items.
type ListMediaItemsResponse struct {
	Data   []MediaItem `json:"data"`
	Total  int64       `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// TranscriptSegment is one diarized utterance attributed to a speaker.
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

// Profile is a persistent speaker identity spanning media items.
type Profile struct {
	ID           uuid.UUID         `json:"id"`
	TenantID     *string           `json:"tenant_id,omitempty"`
	DisplayName  *string           `json:"display_name,omitempty"`
	Verification VerificationState `json:"verification"`
	Version      int64             `json:"version"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// ProfileStats carries a profile's on-demand aggregates.
type ProfileStats struct {
	VoiceprintCount  int64   `json:"voiceprint_count"`
	SegmentCount     int64   `json:"segment_count"`
	TalkTimeSeconds  float64 `json:"talk_time_seconds"`
	MediaItemCount   int64   `json:"media_item_count"`
	PendingSuggested int64   `json:"pending_suggested"`
}

// ProfileWithStats is a profile plus its aggregates.
type ProfileWithStats struct {
	Profile
	Stats ProfileStats `json:"stats"`
}

// UpdateProfileRequest renames and/or verifies a profile. ExpectedVersion,
// when set, makes the update conditional on the stored version.
type UpdateProfileRequest struct {
	DisplayName     *string `json:"display_name,omitempty"`
	Verified        *bool   `json:"verified,omitempty"`
	ExpectedVersion *int64  `json:"expected_version,omitempty"`
}

// RelabelSummary reports what one retroactive relabel pass did.
type RelabelSummary struct {
	Scanned   int `json:"scanned"`
	Relabeled int `json:"relabeled"`
	Suggested int `json:"suggested"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// UpdateProfileResponse is the updated profile plus, after a rename, the
// summary of the relabel pass it triggered.
type UpdateProfileResponse struct {
	Profile
	Relabel *RelabelSummary `json:"relabel,omitempty"`
}

// ListProfilesResponse is one page of profiles.
type ListProfilesResponse struct {
	Data   []ProfileWithStats `json:"data"`
	Total  int64              `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// CrossMediaOccurrence is one "appears in" row for a profile.
type CrossMediaOccurrence struct {
	MediaItemID   uuid.UUID `json:"media_item_id"`
	MediaTitle    string    `json:"media_title"`
	FileSpeakerID uuid.UUID `json:"file_speaker_id"`
	PerFileLabel  string    `json:"per_file_label"`
	Score         *float64  `json:"score,omitempty"`
	Verified      bool      `json:"verified"`
	Suggested     bool      `json:"suggested"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ListOccurrencesResponse is one keyset page of occurrences. Pass NextCursor
// back via ListOccurrencesOptions.Cursor to fetch the next page.
type ListOccurrencesResponse struct {
	Data       []CrossMediaOccurrence `json:"data"`
	Total      int64                  `json:"total"`
	Limit      int                    `json:"limit"`
	NextCursor *string                `json:"next_cursor,omitempty"`
}

// MergeProfilesRequest merges source profiles into a target.
type MergeProfilesRequest struct {
	TargetProfileID  uuid.UUID   `json:"target_profile_id"`
	SourceProfileIDs []uuid.UUID `json:"source_profile_ids"`
}

// MergeSourceResult is the per-source outcome of one merge invocation.
type MergeSourceResult struct {
	ProfileID   uuid.UUID `json:"profile_id"`
	DisplayName *string   `json:"display_name,omitempty"`
	Succeeded   bool      `json:"succeeded"`
	Error       *string   `json:"error,omitempty"`
}

// MergeOutcome is the full response for one merge invocation. A merge is not
// atomic across sources: check Status and Failed before assuming every source
// was absorbed.
type MergeOutcome struct {
	TargetProfileID uuid.UUID           `json:"target_profile_id"`
	Status          MergeStatus         `json:"status"`
	Succeeded       []MergeSourceResult `json:"succeeded"`
	Failed          []MergeSourceResult `json:"failed"`
	Target          *ProfileWithStats   `json:"target,omitempty"`
}

// MatchCandidate is one ranked alternative in a suggestion row.
type MatchCandidate struct {
	ProfileID       uuid.UUID `json:"profile_id"`
	DisplayName     *string   `json:"display_name,omitempty"`
	Score           float64   `json:"score"`
	Tier            Tier      `json:"tier"`
	Rationale       string    `json:"rationale"`
	VoiceprintCount int64     `json:"voiceprint_count"`
}

// SpeakerSuggestion is one row of the suggestion/verification view for a
// media item.
type SpeakerSuggestion struct {
	FileSpeakerID uuid.UUID        `json:"file_speaker_id"`
	Label         string           `json:"label"`
	MatchState    MatchState       `json:"match_state"`
	ProfileID     uuid.UUID        `json:"profile_id"`
	ProfileName   *string          `json:"profile_name,omitempty"`
	Score         *float64         `json:"score,omitempty"`
	Tier          *Tier            `json:"tier,omitempty"`
	Rationale     *string          `json:"rationale,omitempty"`
	AutoAccepted  bool             `json:"auto_accepted"`
	Verified      bool             `json:"verified"`
	Alternatives  []MatchCandidate `json:"alternatives,omitempty"`
}

// ListSuggestionsResponse is the suggestion view for one media item.
type ListSuggestionsResponse struct {
	MediaItemID uuid.UUID           `json:"media_item_id"`
	Data        []SpeakerSuggestion `json:"data"`
}

// VerifySpeakerRequest confirms, rejects, or names a file speaker. ProfileID
// is required for accept when it should override the stored suggestion;
// DisplayName is required for create_profile.
type VerifySpeakerRequest struct {
	Action      VerifyAction `json:"action"`
	ProfileID   *uuid.UUID   `json:"profile_id,omitempty"`
	DisplayName *string      `json:"display_name,omitempty"`
}

// DiarizationSegment is one utterance interval in a diarization result.
type DiarizationSegment struct {
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Text         *string `json:"text,omitempty"`
}

// DiarizationSpeaker is one detected speaker in a diarization result.
type DiarizationSpeaker struct {
	Label     string               `json:"label"`
	Embedding []float32            `json:"embedding"`
	Segments  []DiarizationSegment `json:"segments,omitempty"`
}

// DiarizationResultRequest is the payload the diarization pipeline posts when
// it finishes processing one media file.
type DiarizationResultRequest struct {
	MediaExternalRef string               `json:"media_external_ref"`
	TenantID         *string              `json:"tenant_id,omitempty"`
	Title            *string              `json:"title,omitempty"`
	DurationSeconds  *float64             `json:"duration_seconds,omitempty"`
	Speakers         []DiarizationSpeaker `json:"speakers"`
}

// DiarizationAcceptedResponse acknowledges an ingested diarization result
// before resolution has run.
type DiarizationAcceptedResponse struct {
	MediaItemID uuid.UUID `json:"media_item_id"`
	Speakers    int       `json:"speakers"`
	Queued      int       `json:"queued"`
}

// Webhook is a registered webhook endpoint.
type Webhook struct {
	ID         uuid.UUID `json:"id"`
	URL        string    `json:"url"`
	SigningKey string    `json:"signing_key"`
	Enabled    bool      `json:"enabled"`
	TenantID   *string   `json:"tenant_id,omitempty"`
	EventTypes []string  `json:"event_types,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateWebhookRequest registers a webhook endpoint. SigningKey is generated
// by the service when left empty. Empty EventTypes subscribes to all events.
type CreateWebhookRequest struct {
	URL        string   `json:"url"`
	SigningKey string   `json:"signing_key,omitempty"`
	Enabled    *bool    `json:"enabled,omitempty"`
	TenantID   *string  `json:"tenant_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// UpdateWebhookRequest updates a webhook endpoint. Nil fields are left
// unchanged; an empty non-nil EventTypes clears the subscription filter.
type UpdateWebhookRequest struct {
	URL        *string   `json:"url,omitempty"`
	SigningKey *string   `json:"signing_key,omitempty"`
	Enabled    *bool     `json:"enabled,omitempty"`
	EventTypes *[]string `json:"event_types,omitempty"`
}

// ListWebhooksResponse is one page of webhooks.
type ListWebhooksResponse struct {
	Data   []Webhook `json:"data"`
	Total  int64     `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}
