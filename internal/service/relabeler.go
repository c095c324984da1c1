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

// Relabel outcomes as recorded in metrics.
const (
	relabelOutcomeAutoAttached = "auto_attached"
	relabelOutcomeSuggested    = "suggested"
	relabelOutcomeUnchanged    = "unchanged"
)

// RelabelerSpeakersRepository is the file speaker access the relabeler needs.
type RelabelerSpeakersRepository interface {
	SpeakerAttacher
	ListOutstandingWithEmbeddings(ctx context.Context, excludeProfileID uuid.UUID, afterID uuid.UUID, limit int) ([]models.SpeakerWithEmbedding, error)
	Suggest(ctx context.Context, id uuid.UUID, profileID uuid.UUID, score float64, rationale string) (*models.FileSpeaker, error)
}

// Relabeler re-scores outstanding speakers against a single profile after that
// profile gained a name or new voiceprints. It never touches confirmed or
// verified speakers, and it only upgrades suggestions: an existing suggestion
// survives unless the renamed profile scores strictly higher.
type Relabeler struct {
	matcher    *Matcher
	speakers   RelabelerSpeakersRepository
	profiles   ResolverProfilesRepository
	redirects  *MergeRedirects
	names      *ProfileNames
	publisher  MessagePublisher
	thresholds Thresholds
	batchSize  int
	metrics    observability.ResolutionMetrics
	merges     observability.MergeMetrics
}

// NewRelabeler creates a relabeler scanning outstanding speakers in batches of
// batchSize. metrics and merges may be nil.
func NewRelabeler(
	matcher *Matcher, speakers RelabelerSpeakersRepository, profiles ResolverProfilesRepository,
	redirects *MergeRedirects, names *ProfileNames, publisher MessagePublisher,
	thresholds Thresholds, batchSize int,
	metrics observability.ResolutionMetrics, merges observability.MergeMetrics,
) *Relabeler {
	if batchSize <= 0 {
		batchSize = 100
	}

	return &Relabeler{
		matcher:    matcher,
		speakers:   speakers,
		profiles:   profiles,
		redirects:  redirects,
		names:      names,
		publisher:  publisher,
		thresholds: thresholds,
		batchSize:  batchSize,
		metrics:    metrics,
		merges:     merges,
	}
}

// RelabelOutstanding scores every outstanding speaker against profile and
// applies the tier policy against that one profile only. Per-speaker failures
// are counted in the summary and never abort the pass. The returned summary is
// non-nil even when the pass ends early on a scan error.
func (r *Relabeler) RelabelOutstanding(ctx context.Context, profile *models.Profile) (*models.RelabelSummary, error) {
	summary := &models.RelabelSummary{}

	afterID := uuid.Nil

	for {
		batch, err := r.speakers.ListOutstandingWithEmbeddings(ctx, profile.ID, afterID, r.batchSize)
		if err != nil {
			return summary, fmt.Errorf("list outstanding speakers: %w", err)
		}

		for i := range batch {
			summary.Scanned++
			r.relabelOne(ctx, profile, &batch[i], summary)
		}

		if len(batch) < r.batchSize {
			break
		}

		afterID = batch[len(batch)-1].Speaker.ID
	}

	slog.InfoContext(ctx, "relabel pass finished",
		"profile_id", profile.ID,
		"scanned", summary.Scanned,
		"relabeled", summary.Relabeled,
		"suggested", summary.Suggested,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)

	return summary, nil
}

func (r *Relabeler) relabelOne(ctx context.Context, profile *models.Profile, outstanding *models.SpeakerWithEmbedding, summary *models.RelabelSummary) {
	speaker := &outstanding.Speaker

	score, voiceprintCount, err := r.matcher.RankAgainst(ctx, outstanding.Embedding, profile.ID)
	if err != nil {
		summary.Failed++

		slog.WarnContext(ctx, "failed to score speaker during relabel",
			"speaker_id", speaker.ID,
			"profile_id", profile.ID,
			"error", err,
		)

		return
	}

	switch r.thresholds.TierFor(score) {
	case models.TierHigh:
		rationale := fmt.Sprintf("re-scored %.3f against %d voiceprints after profile update",
			score, voiceprintCount)

		attached, err := attachWithRedirect(ctx, r.speakers, r.redirects, r.merges,
			speaker.ID, profile.ID, models.MatchStateAutoAttached, &score, &rationale)
		if err != nil {
			r.countFailure(ctx, summary, speaker.ID, err)

			return
		}

		if err := r.profiles.MarkSuggested(ctx, attached.ProfileID); err != nil {
			slog.ErrorContext(ctx, "failed to promote profile after relabel attach",
				"profile_id", attached.ProfileID,
				"error", err,
			)
		}

		summary.Relabeled++
		r.recordOutcome(ctx, relabelOutcomeAutoAttached)
		r.publishRelabelEvent(ctx, datatypes.SpeakerAutoAttached, attached, profile, score)
	case models.TierMedium:
		// Only displace a weaker suggestion; ties keep the incumbent.
		if speaker.SuggestedScore != nil && score <= *speaker.SuggestedScore {
			summary.Skipped++
			r.recordOutcome(ctx, relabelOutcomeUnchanged)

			return
		}

		rationale := fmt.Sprintf("re-scored %.3f against %d voiceprints after profile update",
			score, voiceprintCount)

		suggested, err := r.speakers.Suggest(ctx, speaker.ID, profile.ID, score, rationale)
		if err != nil {
			r.countFailure(ctx, summary, speaker.ID, err)

			return
		}

		summary.Suggested++
		r.recordOutcome(ctx, relabelOutcomeSuggested)
		r.publishRelabelEvent(ctx, datatypes.SpeakerSuggested, suggested, profile, score)
	default:
		summary.Skipped++
		r.recordOutcome(ctx, relabelOutcomeUnchanged)
	}
}

// countFailure records one per-speaker failure; verification conflicts count as
// skips because a concurrent human decision is not a failure.
func (r *Relabeler) countFailure(ctx context.Context, summary *models.RelabelSummary, speakerID uuid.UUID, err error) {
	var conflict *apperrors.ConflictError
	if errors.As(err, &conflict) {
		summary.Skipped++
		r.recordOutcome(ctx, relabelOutcomeUnchanged)

		return
	}

	summary.Failed++

	slog.WarnContext(ctx, "failed to relabel speaker",
		"speaker_id", speakerID,
		"error", err,
	)
}

func (r *Relabeler) recordOutcome(ctx context.Context, outcome string) {
	if r.metrics != nil {
		r.metrics.RecordRelabelOutcome(ctx, outcome)
	}
}

func (r *Relabeler) publishRelabelEvent(
	ctx context.Context, eventType datatypes.EventType, speaker *models.FileSpeaker,
	profile *models.Profile, score float64,
) {
	if r.publisher == nil {
		return
	}

	r.publisher.PublishEvent(ctx, eventType, &SpeakerEventData{
		Speaker:     speaker,
		MediaItemID: speaker.MediaItemID,
		ProfileID:   profile.ID,
		ProfileName: profile.DisplayName,
		Score:       &score,
	})
}
