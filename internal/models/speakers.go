package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchState represents where a file speaker sits in the resolution pipeline.
type MatchState string

const (
	// MatchStatePending means the speaker has not been classified yet (or a
	// degraded matcher run left it for the sweeper to retry).
	MatchStatePending MatchState = "pending"
	// MatchStateAutoAttached means a high-confidence match attached the speaker
	// to an existing profile without human review.
	MatchStateAutoAttached MatchState = "auto_attached"
	// MatchStateSuggested means a medium-confidence candidate is waiting for
	// human accept/reject.
	MatchStateSuggested MatchState = "suggested"
	// MatchStateUnmatched means no candidate cleared the suggestion threshold;
	// the speaker keeps its own placeholder profile.
	MatchStateUnmatched MatchState = "unmatched"
	// MatchStateConfirmed means a human verified the assignment. Terminal:
	// never overwritten automatically.
	MatchStateConfirmed MatchState = "confirmed"
)

// Tier is the confidence classification of a match score.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// FileSpeaker represents one anonymous diarization label (e.g. "SPEAKER_00")
// within one media item. profile_id always points at the owning profile; an
// unmatched speaker owns its own placeholder profile.
type FileSpeaker struct {
	ID                 uuid.UUID  `json:"id"`
	MediaItemID        uuid.UUID  `json:"media_item_id"`
	Label              string     `json:"label"`
	ProfileID          uuid.UUID  `json:"profile_id"`
	MatchState         MatchState `json:"match_state"`
	MatchScore         *float64   `json:"match_score,omitempty"`
	SuggestedProfileID *uuid.UUID `json:"suggested_profile_id,omitempty"`
	SuggestedScore     *float64   `json:"suggested_score,omitempty"`
	Rationale          *string    `json:"rationale,omitempty"`
	Verified           bool       `json:"verified"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Outstanding reports whether the speaker is still eligible for automatic
// reclassification (not confirmed by a human, not already auto-attached).
func (s *FileSpeaker) Outstanding() bool {
	if s.Verified {
		return false
	}

	switch s.MatchState {
	case MatchStatePending, MatchStateSuggested, MatchStateUnmatched:
		return true
	case MatchStateAutoAttached, MatchStateConfirmed:
		return false
	}

	return false
}

// SpeakerWithEmbedding pairs a file speaker with its stored embedding, loaded
// together for classification passes: initial resolution of a media item and
// retroactive re-scoring after a profile update.
type SpeakerWithEmbedding struct {
	Speaker   FileSpeaker
	Embedding []float32
}

// Voiceprint represents one immutable speaker embedding. Exactly one row per
// file speaker; deleted only with its media item.
type Voiceprint struct {
	ID            uuid.UUID `json:"id"`
	FileSpeakerID uuid.UUID `json:"file_speaker_id"`
	MediaItemID   uuid.UUID `json:"media_item_id"`
	ProfileID     uuid.UUID `json:"profile_id"`
	Embedding     []float32 `json:"embedding"`
	CreatedAt     time.Time `json:"created_at"`
}

// ProfileSimilarity is one grouped row of a voiceprint similarity scan: a
// profile's best score against the query embedding and how many voiceprints it
// owns. Score uses cosine similarity derived from pgvector distance.
type ProfileSimilarity struct {
	ProfileID       uuid.UUID `json:"profile_id"`
	DisplayName     *string   `json:"display_name,omitempty"`
	BestScore       float64   `json:"best_score"`
	VoiceprintCount int64     `json:"voiceprint_count"`
}

// MatchCandidate is one ranked row of matcher output: a profile, its best-case
// similarity against the query, and the tier that score falls into. Produced
// fresh on every match request and never persisted.
type MatchCandidate struct {
	ProfileID       uuid.UUID `json:"profile_id"`
	DisplayName     *string   `json:"display_name,omitempty"`
	Score           float64   `json:"score"`
	Tier            Tier      `json:"tier"`
	Rationale       string    `json:"rationale"`
	VoiceprintCount int64     `json:"voiceprint_count"`
}

// DiarizationSegment is one utterance interval in a diarization result.
type DiarizationSegment struct {
	StartSeconds float64 `json:"start_seconds" validate:"min=0"`
	EndSeconds   float64 `json:"end_seconds" validate:"min=0,gtecsfield=StartSeconds"`
	Text         *string `json:"text,omitempty" validate:"omitempty,no_null_bytes"`
}

// DiarizationSpeaker is one detected speaker in a diarization result: the
// per-file label, its voiceprint embedding, and the utterances attributed to it.
type DiarizationSpeaker struct {
	Label     string               `json:"label" validate:"required,min=1,max=255,no_null_bytes"`
	Embedding []float32            `json:"embedding" validate:"required"`
	Segments  []DiarizationSegment `json:"segments,omitempty" validate:"omitempty,max=10000,dive"`
}

// DiarizationResultRequest is the payload the diarization subsystem posts when
// it finishes processing one media file.
type DiarizationResultRequest struct {
	MediaExternalRef string               `json:"media_external_ref" validate:"required,min=1,max=512,no_null_bytes"`
	TenantID         *string              `json:"tenant_id,omitempty" validate:"omitempty,max=255,no_null_bytes"`
	Title            *string              `json:"title,omitempty" validate:"omitempty,max=1024,no_null_bytes"`
	DurationSeconds  *float64             `json:"duration_seconds,omitempty" validate:"omitempty,min=0"`
	Speakers         []DiarizationSpeaker `json:"speakers" validate:"required,min=1,max=256,dive"`
}

// DiarizationAcceptedResponse acknowledges an ingested diarization result
// before resolution has run.
type DiarizationAcceptedResponse struct {
	MediaItemID uuid.UUID `json:"media_item_id"`
	Speakers    int       `json:"speakers"`
	Queued      int       `json:"queued"`
}

// SpeakerSuggestion is one row of the suggestion/verification view for a media
// item: the speaker, what happened to it, and the ranked alternatives still
// worth showing.
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

// ListSuggestionsResponse represents the suggestion view for one media item.
type ListSuggestionsResponse struct {
	MediaItemID uuid.UUID           `json:"media_item_id"`
	Data        []SpeakerSuggestion `json:"data"`
}

// VerifyAction is a human decision on a suggestion.
type VerifyAction string

const (
	// VerifyActionAccept attaches the speaker to the given (or suggested) profile.
	VerifyActionAccept VerifyAction = "accept"
	// VerifyActionReject clears the pending suggestion.
	VerifyActionReject VerifyAction = "reject"
	// VerifyActionCreateProfile moves the speaker onto a new named, verified profile.
	VerifyActionCreateProfile VerifyAction = "create_profile"
)

// VerifySpeakerRequest represents the request to confirm, reject, or name a
// file speaker. ProfileID is required for accept when it should override the
// stored suggestion; DisplayName is required for create_profile.
type VerifySpeakerRequest struct {
	Action      VerifyAction `json:"action" validate:"required,oneof=accept reject create_profile"`
	ProfileID   *uuid.UUID   `json:"profile_id,omitempty"`
	DisplayName *string      `json:"display_name,omitempty" validate:"omitempty,min=1,max=255,no_null_bytes"`
}
