package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/audioscribe/speakerhub/internal/apperrors"
	"github.com/audioscribe/speakerhub/internal/datatypes"
	"github.com/audioscribe/speakerhub/internal/models"
	"github.com/audioscribe/speakerhub/internal/observability"
)

// Resolution outcomes as recorded in metrics and job logs.
const (
	OutcomeAutoAttached = "auto_attached"
	OutcomeSuggested    = "suggested"
	OutcomeUnmatched    = "unmatched"
	OutcomeSkipped      = "skipped"
)

// ResolverSpeakersRepository is the file speaker access the resolver needs.
type ResolverSpeakersRepository interface {
	SpeakerAttacher
	Suggest(ctx context.Context, id uuid.UUID, profileID uuid.UUID, score float64, rationale string) (*models.FileSpeaker, error)
	MarkUnmatched(ctx context.Context, id uuid.UUID, rationale string) (*models.FileSpeaker, error)
}

// ResolverProfilesRepository is the profile access the resolver needs.
type ResolverProfilesRepository interface {
	MarkSuggested(ctx context.Context, id uuid.UUID) error
}

// Thresholds are the two confidence boundaries of the tier policy. Both are
// inclusive lower bounds: a score exactly at Accept auto-attaches, a score
// exactly at Suggest surfaces a suggestion.
type Thresholds struct {
	Accept  float64
	Suggest float64
}

// TierFor classifies a similarity score.
func (t Thresholds) TierFor(score float64) models.Tier {
	switch {
	case score >= t.Accept:
		return models.TierHigh
	case score >= t.Suggest:
		return models.TierMedium
	default:
		return models.TierLow
	}
}

// Resolver applies the tier policy to the matcher's ranking for one new file
// speaker: high confidence auto-attaches, medium confidence records a pending
// suggestion, low confidence leaves the speaker unassigned. Only the single
// best candidate is acted on; alternatives are served fresh at read time.
type Resolver struct {
	matcher    *Matcher
	speakers   ResolverSpeakersRepository
	profiles   ResolverProfilesRepository
	redirects  *MergeRedirects
	names      *ProfileNames
	publisher  MessagePublisher
	thresholds Thresholds
	metrics    observability.ResolutionMetrics
	merges     observability.MergeMetrics
}

// NewResolver creates a resolver. metrics and merges may be nil.
func NewResolver(
	matcher *Matcher, speakers ResolverSpeakersRepository, profiles ResolverProfilesRepository,
	redirects *MergeRedirects, names *ProfileNames, publisher MessagePublisher,
	thresholds Thresholds, metrics observability.ResolutionMetrics, merges observability.MergeMetrics,
) *Resolver {
	return &Resolver{
		matcher:    matcher,
		speakers:   speakers,
		profiles:   profiles,
		redirects:  redirects,
		names:      names,
		publisher:  publisher,
		thresholds: thresholds,
		metrics:    metrics,
		merges:     merges,
	}
}

// ClassifySpeaker ranks the corpus against one speaker's embedding and applies
// the tier policy. Returns the outcome recorded for the speaker. Speakers that
// already left the pending state are skipped, so re-running a resolution job is
// a no-op. A partial ranking from a degraded matcher run is still acted on; the
// sweeper will revisit anything left pending by hard failures.
func (r *Resolver) ClassifySpeaker(ctx context.Context, speaker *models.FileSpeaker, embedding []float32) (string, error) {
	if speaker.MatchState != models.MatchStatePending {
		slog.DebugContext(ctx, "speaker already classified, skipping",
			"speaker_id", speaker.ID,
			"match_state", speaker.MatchState,
		)

		return r.recordOutcome(ctx, OutcomeSkipped), nil
	}

	ranked, partial, err := r.matcher.Rank(ctx, embedding, &speaker.ProfileID)
	if err != nil {
		return "", fmt.Errorf("rank speaker %s: %w", speaker.ID, err)
	}

	if partial {
		slog.WarnContext(ctx, "classifying from partial ranking",
			"speaker_id", speaker.ID,
			"scored_profiles", len(ranked),
		)
	}

	if len(ranked) == 0 {
		if _, err := r.speakers.MarkUnmatched(ctx, speaker.ID, "no voiceprint corpus to match against"); err != nil {
			return r.orSkippedOnConflict(ctx, err)
		}

		return r.recordOutcome(ctx, OutcomeUnmatched), nil
	}

	top := ranked[0]

	switch r.thresholds.TierFor(top.BestScore) {
	case models.TierHigh:
		return r.autoAttach(ctx, speaker, top)
	case models.TierMedium:
		return r.suggest(ctx, speaker, top)
	default:
		rationale := fmt.Sprintf("best candidate scored %.3f, below suggestion threshold %.2f",
			top.BestScore, r.thresholds.Suggest)

		if _, err := r.speakers.MarkUnmatched(ctx, speaker.ID, rationale); err != nil {
			return r.orSkippedOnConflict(ctx, err)
		}

		return r.recordOutcome(ctx, OutcomeUnmatched), nil
	}
}

func (r *Resolver) autoAttach(ctx context.Context, speaker *models.FileSpeaker, top models.ProfileSimilarity) (string, error) {
	score := top.BestScore
	rationale := fmt.Sprintf("matched %.3f against %d voiceprints, at or above accept threshold %.2f",
		score, top.VoiceprintCount, r.thresholds.Accept)

	attached, err := attachWithRedirect(ctx, r.speakers, r.redirects, r.merges,
		speaker.ID, top.ProfileID, models.MatchStateAutoAttached, &score, &rationale)
	if err != nil {
		return r.orSkippedOnConflict(ctx, err)
	}

	// First machine evidence for the profile: an unverified one becomes suggested.
	if err := r.profiles.MarkSuggested(ctx, attached.ProfileID); err != nil {
		slog.ErrorContext(ctx, "failed to promote profile after auto-attach",
			"profile_id", attached.ProfileID,
			"error", err,
		)
	}

	r.publishSpeakerEvent(ctx, datatypes.SpeakerAutoAttached, attached, &score, "")

	return r.recordOutcome(ctx, OutcomeAutoAttached), nil
}

func (r *Resolver) suggest(ctx context.Context, speaker *models.FileSpeaker, top models.ProfileSimilarity) (string, error) {
	rationale := fmt.Sprintf("matched %.3f against %d voiceprints, within suggestion band [%.2f, %.2f)",
		top.BestScore, top.VoiceprintCount, r.thresholds.Suggest, r.thresholds.Accept)

	suggested, err := r.speakers.Suggest(ctx, speaker.ID, top.ProfileID, top.BestScore, rationale)
	if err != nil {
		return r.orSkippedOnConflict(ctx, err)
	}

	score := top.BestScore
	r.publishSpeakerEvent(ctx, datatypes.SpeakerSuggested, suggested, &score, "")

	return r.recordOutcome(ctx, OutcomeSuggested), nil
}

// orSkippedOnConflict turns "already verified" conflicts into a skip: a human
// got there first and their decision stands.
func (r *Resolver) orSkippedOnConflict(ctx context.Context, err error) (string, error) {
	var conflict *apperrors.ConflictError
	if errors.As(err, &conflict) {
		return r.recordOutcome(ctx, OutcomeSkipped), nil
	}

	return "", err
}

func (r *Resolver) recordOutcome(ctx context.Context, outcome string) string {
	if r.metrics != nil {
		r.metrics.RecordResolutionOutcome(ctx, outcome)
	}

	return outcome
}

// publishSpeakerEvent emits a speaker.* event enriched with the profile's
// display name. Name lookup failures degrade to a nameless payload.
func (r *Resolver) publishSpeakerEvent(
	ctx context.Context, eventType datatypes.EventType, speaker *models.FileSpeaker, score *float64, action string,
) {
	if r.publisher == nil {
		return
	}

	profileID := speaker.ProfileID
	if eventType == datatypes.SpeakerSuggested && speaker.SuggestedProfileID != nil {
		profileID = *speaker.SuggestedProfileID
	}

	var name *string

	if r.names != nil {
		n, err := r.names.Get(ctx, profileID)
		if err != nil {
			slog.WarnContext(ctx, "failed to resolve profile name for event",
				"profile_id", profileID,
				"error", err,
			)
		} else {
			name = n
		}
	}

	r.publisher.PublishEvent(ctx, eventType, &SpeakerEventData{
		Speaker:     speaker,
		MediaItemID: speaker.MediaItemID,
		ProfileID:   profileID,
		ProfileName: name,
		Score:       score,
		Action:      action,
	})
}
