package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/audioscribe/speakerhub/internal/apperrors"
	"github.com/audioscribe/speakerhub/internal/datatypes"
	"github.com/audioscribe/speakerhub/internal/models"
	"github.com/audioscribe/speakerhub/internal/observability"
)

// maxSuggestionAlternatives caps the freshly ranked candidates returned per
// speaker in the suggestions view.
const maxSuggestionAlternatives = 5

// Verify actions as carried in speaker.verified event payloads.
const (
	verifyActionAccepted       = "accepted"
	verifyActionRejected       = "rejected"
	verifyActionCreatedProfile = "created_profile"
)

// VerifierSpeakersRepository is the file speaker surface of the verify and
// suggestions flows.
type VerifierSpeakersRepository interface {
	SpeakerAttacher
	GetByID(ctx context.Context, id uuid.UUID) (*models.FileSpeaker, error)
	ListByMediaItem(ctx context.Context, mediaItemID uuid.UUID) ([]models.FileSpeaker, error)
	MarkUnmatched(ctx context.Context, id uuid.UUID, rationale string) (*models.FileSpeaker, error)
}

// VerifierProfilesRepository is the profile surface of the verify flow.
type VerifierProfilesRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	Create(ctx context.Context, tenantID *string, displayName *string, verification models.VerificationState) (*models.Profile, error)
	MarkVerified(ctx context.Context, id uuid.UUID) error
}

// SpeakerVoiceprintsRepository loads the stored embedding backing a speaker.
type SpeakerVoiceprintsRepository interface {
	GetByFileSpeaker(ctx context.Context, fileSpeakerID uuid.UUID) (*models.Voiceprint, error)
}

// SpeakerSegmentsRepository loads a speaker's transcript segments.
type SpeakerSegmentsRepository interface {
	ListByFileSpeaker(ctx context.Context, fileSpeakerID uuid.UUID) ([]models.TranscriptSegment, error)
}

// MediaItemsGetter checks media item existence for the suggestions view.
type MediaItemsGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.MediaItem, error)
}

// SpeakersService handles human review of file speakers: the suggestions view
// and the verify decision (accept, reject, create_profile).
type SpeakersService struct {
	speakers    VerifierSpeakersRepository
	profiles    VerifierProfilesRepository
	voiceprints SpeakerVoiceprintsRepository
	segments    SpeakerSegmentsRepository
	media       MediaItemsGetter
	matcher     *Matcher
	redirects   *MergeRedirects
	names       *ProfileNames
	publisher   MessagePublisher
	relabelJobs ProfileRelabelInserter
	thresholds  Thresholds
	merges      observability.MergeMetrics
}

// NewSpeakersService creates a new speakers service. names, publisher,
// relabelJobs, and merges may be nil.
func NewSpeakersService(
	speakers VerifierSpeakersRepository, profiles VerifierProfilesRepository,
	voiceprints SpeakerVoiceprintsRepository, segments SpeakerSegmentsRepository,
	media MediaItemsGetter,
	matcher *Matcher, redirects *MergeRedirects, names *ProfileNames,
	publisher MessagePublisher, relabelJobs ProfileRelabelInserter,
	thresholds Thresholds, merges observability.MergeMetrics,
) *SpeakersService {
	return &SpeakersService{
		speakers:    speakers,
		profiles:    profiles,
		voiceprints: voiceprints,
		segments:    segments,
		media:       media,
		matcher:     matcher,
		redirects:   redirects,
		names:       names,
		publisher:   publisher,
		relabelJobs: relabelJobs,
		thresholds:  thresholds,
		merges:      merges,
	}
}

// Verify applies a human decision to a file speaker and returns the profile
// the speaker ends up on. Verification is terminal: once a speaker is
// verified, only an accept of the same profile succeeds (idempotently).
func (s *SpeakersService) Verify(
	ctx context.Context, speakerID uuid.UUID, req *models.VerifySpeakerRequest,
) (*models.Profile, error) {
	speaker, err := s.speakers.GetByID(ctx, speakerID)
	if err != nil {
		return nil, fmt.Errorf("get speaker: %w", err)
	}

	switch req.Action {
	case models.VerifyActionAccept:
		return s.accept(ctx, speaker, req.ProfileID)
	case models.VerifyActionReject:
		return s.reject(ctx, speaker)
	case models.VerifyActionCreateProfile:
		return s.createProfile(ctx, speaker, req.DisplayName)
	default:
		return nil, apperrors.NewValidationError("action", fmt.Sprintf("unknown action: %s", req.Action))
	}
}

// accept confirms the speaker against override (when given), the stored
// suggestion, or the auto-attached profile, in that order.
func (s *SpeakersService) accept(
	ctx context.Context, speaker *models.FileSpeaker, override *uuid.UUID,
) (*models.Profile, error) {
	target, score, rationale, err := acceptTarget(speaker, override)
	if err != nil {
		return nil, err
	}

	if speaker.Verified {
		if speaker.ProfileID == target {
			return s.profiles.GetByID(ctx, target)
		}

		return nil, apperrors.NewConflictError("speaker is already verified against a different profile")
	}

	attached, err := attachWithRedirect(ctx, s.speakers, s.redirects, s.merges,
		speaker.ID, target, models.MatchStateConfirmed, score, &rationale)
	if err != nil {
		return nil, err
	}

	if err := s.profiles.MarkVerified(ctx, attached.ProfileID); err != nil {
		slog.ErrorContext(ctx, "failed to mark profile verified after accept",
			"profile_id", attached.ProfileID,
			"error", err,
		)
	}

	profile, err := s.profiles.GetByID(ctx, attached.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("get profile after accept: %w", err)
	}

	s.publishVerifyEvent(ctx, attached, profile, verifyActionAccepted)

	return profile, nil
}

// acceptTarget resolves which profile an accept confirms. The redirect retry
// may land the speaker on a different survivor than target; callers use the
// attached row's profile id afterwards.
func acceptTarget(speaker *models.FileSpeaker, override *uuid.UUID) (uuid.UUID, *float64, string, error) {
	if override != nil {
		if speaker.SuggestedProfileID != nil && *speaker.SuggestedProfileID == *override {
			return *override, speaker.SuggestedScore, "suggestion accepted by reviewer", nil
		}

		return *override, nil, "manually confirmed by reviewer", nil
	}

	if speaker.SuggestedProfileID != nil {
		return *speaker.SuggestedProfileID, speaker.SuggestedScore, "suggestion accepted by reviewer", nil
	}

	if speaker.MatchState == models.MatchStateAutoAttached {
		return speaker.ProfileID, speaker.MatchScore, "auto-attachment confirmed by reviewer", nil
	}

	return uuid.Nil, nil, "", apperrors.NewValidationError("profile_id",
		"speaker has no stored suggestion, profile_id is required")
}

// reject clears a pending suggestion; the speaker keeps its own placeholder.
func (s *SpeakersService) reject(ctx context.Context, speaker *models.FileSpeaker) (*models.Profile, error) {
	if speaker.Verified {
		return nil, apperrors.NewConflictError("speaker is already verified")
	}

	switch speaker.MatchState {
	case models.MatchStateSuggested:
		updated, err := s.speakers.MarkUnmatched(ctx, speaker.ID, "suggestion rejected by reviewer")
		if err != nil {
			return nil, err
		}

		speaker = updated
	case models.MatchStateUnmatched:
		// Nothing pending; rejecting again is a no-op.
	default:
		return nil, apperrors.NewValidationError("action", "speaker has no pending suggestion to reject")
	}

	profile, err := s.profiles.GetByID(ctx, speaker.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("get profile after reject: %w", err)
	}

	s.publishVerifyEvent(ctx, speaker, profile, verifyActionRejected)

	return profile, nil
}

// createProfile carves the speaker out into a new named, verified profile.
// Works on shared profiles too: only this speaker's voiceprint moves.
func (s *SpeakersService) createProfile(
	ctx context.Context, speaker *models.FileSpeaker, displayName *string,
) (*models.Profile, error) {
	if displayName == nil || *displayName == "" {
		return nil, apperrors.NewValidationError("display_name", "display_name is required for create_profile")
	}

	if speaker.Verified {
		return nil, apperrors.NewConflictError("speaker is already verified")
	}

	// The new identity inherits the tenant of the speaker's current profile.
	current, err := s.profiles.GetByID(ctx, speaker.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("get current profile: %w", err)
	}

	profile, err := s.profiles.Create(ctx, current.TenantID, displayName, models.VerificationVerified)
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	rationale := "new identity created by reviewer"

	attached, err := s.speakers.Attach(ctx, speaker.ID, profile.ID, models.MatchStateConfirmed, nil, &rationale)
	if err != nil {
		return nil, fmt.Errorf("attach speaker to new profile: %w", err)
	}

	if s.publisher != nil {
		s.publisher.PublishEvent(ctx, datatypes.ProfileCreated, &ProfileEventData{Profile: profile})
	}

	s.publishVerifyEvent(ctx, attached, profile, verifyActionCreatedProfile)
	s.enqueueRelabel(ctx, profile.ID)

	return profile, nil
}

func (s *SpeakersService) publishVerifyEvent(
	ctx context.Context, speaker *models.FileSpeaker, profile *models.Profile, action string,
) {
	if s.publisher == nil {
		return
	}

	s.publisher.PublishEvent(ctx, datatypes.SpeakerVerified, &SpeakerEventData{
		Speaker:     speaker,
		MediaItemID: speaker.MediaItemID,
		ProfileID:   profile.ID,
		ProfileName: profile.DisplayName,
		Score:       speaker.MatchScore,
		Action:      action,
	})
}

// enqueueRelabel schedules a pass so the newly named identity can claim
// outstanding speakers elsewhere. Best effort.
func (s *SpeakersService) enqueueRelabel(ctx context.Context, profileID uuid.UUID) {
	if s.relabelJobs == nil {
		return
	}

	_, err := s.relabelJobs.Insert(ctx, ProfileRelabelArgs{ProfileID: profileID}, RelabelInsertOpts())
	if err != nil {
		slog.ErrorContext(ctx, "failed to enqueue relabel after create_profile",
			"profile_id", profileID,
			"error", err,
		)
	}
}

// ListSuggestions builds the review view for one media item: every speaker's
// current state plus freshly ranked alternatives for the ones a human can
// still act on. Ranked candidates are never persisted.
func (s *SpeakersService) ListSuggestions(ctx context.Context, mediaItemID uuid.UUID) (*models.ListSuggestionsResponse, error) {
	if _, err := s.media.GetByID(ctx, mediaItemID); err != nil {
		return nil, fmt.Errorf("get media item: %w", err)
	}

	speakers, err := s.speakers.ListByMediaItem(ctx, mediaItemID)
	if err != nil {
		return nil, fmt.Errorf("list speakers: %w", err)
	}

	resp := &models.ListSuggestionsResponse{
		MediaItemID: mediaItemID,
		Data:        make([]models.SpeakerSuggestion, 0, len(speakers)),
	}

	for i := range speakers {
		resp.Data = append(resp.Data, s.buildSuggestion(ctx, &speakers[i]))
	}

	return resp, nil
}

func (s *SpeakersService) buildSuggestion(ctx context.Context, speaker *models.FileSpeaker) models.SpeakerSuggestion {
	row := models.SpeakerSuggestion{
		FileSpeakerID: speaker.ID,
		Label:         speaker.Label,
		MatchState:    speaker.MatchState,
		ProfileID:     speaker.ProfileID,
		Rationale:     speaker.Rationale,
		AutoAccepted:  speaker.MatchState == models.MatchStateAutoAttached,
		Verified:      speaker.Verified,
	}

	row.Score = speaker.MatchScore

	if speaker.MatchState == models.MatchStateSuggested && speaker.SuggestedProfileID != nil {
		row.ProfileID = *speaker.SuggestedProfileID
		row.Score = speaker.SuggestedScore
	}

	if row.Score != nil {
		tier := s.thresholds.TierFor(*row.Score)
		row.Tier = &tier
	}

	if s.names != nil {
		name, err := s.names.Get(ctx, row.ProfileID)
		if err != nil {
			slog.WarnContext(ctx, "failed to resolve profile name for suggestion",
				"profile_id", row.ProfileID,
				"error", err,
			)
		} else {
			row.ProfileName = name
		}
	}

	if !speaker.Verified {
		row.Alternatives = s.rankAlternatives(ctx, speaker)
	}

	return row
}

// rankAlternatives re-scores the speaker's embedding against the current
// corpus and keeps candidates at or above the suggestion threshold. Failures
// degrade to no alternatives; the view never fails because ranking did.
func (s *SpeakersService) rankAlternatives(ctx context.Context, speaker *models.FileSpeaker) []models.MatchCandidate {
	voiceprint, err := s.voiceprints.GetByFileSpeaker(ctx, speaker.ID)
	if err != nil {
		slog.WarnContext(ctx, "failed to load voiceprint for alternatives",
			"speaker_id", speaker.ID,
			"error", err,
		)

		return nil
	}

	ranked, partial, err := s.matcher.Rank(ctx, voiceprint.Embedding, &speaker.ProfileID)
	if err != nil {
		slog.WarnContext(ctx, "failed to rank alternatives",
			"speaker_id", speaker.ID,
			"error", err,
		)

		return nil
	}

	if partial {
		slog.WarnContext(ctx, "alternatives ranked from a partial scan", "speaker_id", speaker.ID)
	}

	var alternatives []models.MatchCandidate

	for _, candidate := range ranked {
		if candidate.BestScore < s.thresholds.Suggest {
			continue
		}

		alternatives = append(alternatives, models.MatchCandidate{
			ProfileID:   candidate.ProfileID,
			DisplayName: candidate.DisplayName,
			Score:       candidate.BestScore,
			Tier:        s.thresholds.TierFor(candidate.BestScore),
			Rationale: fmt.Sprintf("matched %.3f against %d voiceprints",
				candidate.BestScore, candidate.VoiceprintCount),
			VoiceprintCount: candidate.VoiceprintCount,
		})

		if len(alternatives) == maxSuggestionAlternatives {
			break
		}
	}

	return alternatives
}

// ListSegments returns one speaker's transcript in playback order, with the
// summed talk time.
func (s *SpeakersService) ListSegments(ctx context.Context, speakerID uuid.UUID) (*models.SpeakerSegmentsResponse, error) {
	speaker, err := s.speakers.GetByID(ctx, speakerID)
	if err != nil {
		return nil, fmt.Errorf("get speaker: %w", err)
	}

	segments, err := s.segments.ListByFileSpeaker(ctx, speaker.ID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}

	var talk float64
	for i := range segments {
		talk += segments[i].EndSeconds - segments[i].StartSeconds
	}

	return &models.SpeakerSegmentsResponse{
		FileSpeakerID: speaker.ID,
		MediaItemID:   speaker.MediaItemID,
		ProfileID:     speaker.ProfileID,
		Label:         speaker.Label,
		TalkSeconds:   talk,
		Data:          segments,
	}, nil
}
