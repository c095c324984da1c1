package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidVerificationState is returned when parsing an unknown verification state.
var ErrInvalidVerificationState = errors.New("invalid verification state")

// VerificationState represents how much human confirmation a profile has.
type VerificationState string

const (
	// VerificationUnverified is the initial state of an implicitly created profile.
	VerificationUnverified VerificationState = "unverified"
	// VerificationSuggested means at least one speaker auto-attached without human review.
	VerificationSuggested VerificationState = "suggested"
	// VerificationVerified means a human confirmed or named the profile.
	VerificationVerified VerificationState = "verified"
)

// IsValid reports whether v is a known verification state.
func (v VerificationState) IsValid() bool {
	switch v {
	case VerificationUnverified, VerificationSuggested, VerificationVerified:
		return true
	}

	return false
}

// ParseVerificationState converts a string to a VerificationState.
func ParseVerificationState(s string) (VerificationState, error) {
	v := VerificationState(s)
	if !v.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidVerificationState, s)
	}

	return v, nil
}

// Profile represents a persistent speaker identity spanning media items.
// Version increments on every mutation and backs optimistic-concurrency
// checks on rename, verify, attach, and merge.
type Profile struct {
	ID           uuid.UUID         `json:"id"`
	TenantID     *string           `json:"tenant_id,omitempty"`
	DisplayName  *string           `json:"display_name,omitempty"`
	Verification VerificationState `json:"verification"`
	Version      int64             `json:"version"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Named reports whether the profile has a non-empty display name.
func (p *Profile) Named() bool {
	return p.DisplayName != nil && *p.DisplayName != ""
}

// ProfileStats carries aggregate statistics for a profile, recomputed on
// demand rather than stored.
type ProfileStats struct {
	VoiceprintCount  int64   `json:"voiceprint_count"`
	SegmentCount     int64   `json:"segment_count"`
	TalkTimeSeconds  float64 `json:"talk_time_seconds"`
	MediaItemCount   int64   `json:"media_item_count"`
	PendingSuggested int64   `json:"pending_suggested"`
}

// ProfileWithStats is a profile plus its on-demand aggregates.
type ProfileWithStats struct {
	Profile
	Stats ProfileStats `json:"stats"`
}

// UpdateProfileRequest represents the request to rename and/or verify a profile.
// ExpectedVersion, when set, makes the update conditional on the stored version.
type UpdateProfileRequest struct {
	DisplayName     *string `json:"display_name,omitempty" validate:"omitempty,min=1,max=255,no_null_bytes"`
	Verified        *bool   `json:"verified,omitempty"`
	ExpectedVersion *int64  `json:"expected_version,omitempty" validate:"omitempty,min=1"`
}

// ListProfilesFilters represents filters for listing profiles
type ListProfilesFilters struct {
	TenantID     *string            `form:"tenant_id" validate:"omitempty,no_null_bytes"`
	Verification *VerificationState `form:"verification" validate:"omitempty,verification_state"`
	Name         *string            `form:"name" validate:"omitempty,no_null_bytes,max=255"`
	Named        *bool              `form:"named"`
	Limit        int                `form:"limit" validate:"omitempty,min=1,max=1000"`
	Offset       int                `form:"offset" validate:"omitempty,min=0"`
}

// ListProfilesResponse represents the response for listing profiles
type ListProfilesResponse struct {
	Data   []ProfileWithStats `json:"data"`
	Total  int64              `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// CrossMediaOccurrence is one "appears in" row for a profile: an owned
// voiceprint or a still-pending suggestion pointing at the profile.
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

// ListOccurrencesFilters represents the query parameters for listing occurrences.
type ListOccurrencesFilters struct {
	Limit  int    `form:"limit" validate:"omitempty,min=1"`
	Cursor string `form:"cursor"`
}

// ListOccurrencesResponse represents one keyset page of occurrences.
type ListOccurrencesResponse struct {
	Data       []CrossMediaOccurrence `json:"data"`
	Total      int64                  `json:"total"`
	Limit      int                    `json:"limit"`
	NextCursor *string                `json:"next_cursor,omitempty"`
}

// MergeProfilesRequest represents the request to merge source profiles into a target.
type MergeProfilesRequest struct {
	TargetProfileID  uuid.UUID   `json:"target_profile_id" validate:"required"`
	SourceProfileIDs []uuid.UUID `json:"source_profile_ids" validate:"required,min=1,max=100"`
}

// MergeSourceResult is the per-source outcome of one merge invocation.
type MergeSourceResult struct {
	ProfileID   uuid.UUID `json:"profile_id"`
	DisplayName *string   `json:"display_name,omitempty"`
	Succeeded   bool      `json:"succeeded"`
	Error       *string   `json:"error,omitempty"`
}

// MergeStatus summarizes a merge outcome across all sources.
type MergeStatus string

const (
	MergeAllSucceeded MergeStatus = "all_succeeded"
	MergePartial      MergeStatus = "partial"
	MergeAllFailed    MergeStatus = "all_failed"
)

// MergeOutcome is the full response for one merge invocation. It is built for
// the caller's summary and never persisted.
type MergeOutcome struct {
	TargetProfileID uuid.UUID           `json:"target_profile_id"`
	Status          MergeStatus         `json:"status"`
	Succeeded       []MergeSourceResult `json:"succeeded"`
	Failed          []MergeSourceResult `json:"failed"`
	Target          *ProfileWithStats   `json:"target,omitempty"`
}

// MergeStatusFor returns the MergeStatus for the given success/failure counts.
func MergeStatusFor(succeeded, failed int) MergeStatus {
	switch {
	case failed == 0:
		return MergeAllSucceeded
	case succeeded == 0:
		return MergeAllFailed
	default:
		return MergePartial
	}
}

// RelabelSummary reports what one retroactive relabel pass did. Per-speaker
// failures are counted, never fatal to the pass.
type RelabelSummary struct {
	Scanned   int `json:"scanned"`
	Relabeled int `json:"relabeled"`
	Suggested int `json:"suggested"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// UpdateProfileResponse is the updated profile plus, after a rename, the
// summary of the synchronous relabel pass it triggered.
type UpdateProfileResponse struct {
	Profile
	Relabel *RelabelSummary `json:"relabel,omitempty"`
}

// MergeSourceCounts reports how many rows changed ownership when a source
// profile was absorbed into a merge target.
type MergeSourceCounts struct {
	Voiceprints int64 `json:"voiceprints"`
	Segments    int64 `json:"segments"`
	Speakers    int64 `json:"speakers"`
	Suggestions int64 `json:"suggestions"`
}
