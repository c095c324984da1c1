package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"golang.org/x/time/rate"

	"github.com/audioscribe/speakerhub/internal/models"
	"github.com/audioscribe/speakerhub/internal/observability"
	"github.com/audioscribe/speakerhub/internal/service"
)

// SpeakerResolutionWorker classifies every speaker of one diarized media item
// against the voiceprint corpus.
type SpeakerResolutionWorker struct {
	river.WorkerDefaults[service.SpeakerResolutionArgs]

	repo     resolutionSpeakersRepo
	resolver speakerClassifier
	limiter  *rate.Limiter
	metrics  observability.ResolutionMetrics
}

// resolutionSpeakersRepo is the minimal repo interface needed by the worker.
type resolutionSpeakersRepo interface {
	ListByMediaItemWithEmbeddings(ctx context.Context, mediaItemID uuid.UUID) ([]models.SpeakerWithEmbedding, error)
}

// speakerClassifier applies the tier policy to one speaker's embedding.
type speakerClassifier interface {
	ClassifySpeaker(ctx context.Context, speaker *models.FileSpeaker, embedding []float32) (string, error)
}

// NewSpeakerResolutionWorker creates a worker that loads a media item's
// speakers and classifies them one at a time. limiter throttles corpus scans
// across all concurrently running resolution jobs; nil runs unthrottled.
// metrics may be nil when metrics are disabled.
func NewSpeakerResolutionWorker(
	repo resolutionSpeakersRepo, resolver speakerClassifier,
	limiter *rate.Limiter, metrics observability.ResolutionMetrics,
) *SpeakerResolutionWorker {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}

	return &SpeakerResolutionWorker{repo: repo, resolver: resolver, limiter: limiter, metrics: metrics}
}

// SpeakerResolutionTimeout caps one resolution job. A media item can carry
// hundreds of speakers and each corpus scan has its own budget, so this is a
// whole-item bound rather than a per-speaker one.
const SpeakerResolutionTimeout = 5 * time.Minute

// Timeout limits how long classifying one media item can run.
func (w *SpeakerResolutionWorker) Timeout(*river.Job[service.SpeakerResolutionArgs]) time.Duration {
	return SpeakerResolutionTimeout
}

// Work loads the item's speakers with their embeddings and classifies each
// one. Per-speaker failures do not stop the pass; the job returns an error at
// the end so River retries it, and the retry skips whatever already resolved.
func (w *SpeakerResolutionWorker) Work(ctx context.Context, job *river.Job[service.SpeakerResolutionArgs]) error {
	args := job.Args
	start := time.Now()

	speakers, err := w.repo.ListByMediaItemWithEmbeddings(ctx, args.MediaItemID)
	if err != nil {
		if w.metrics != nil {
			w.metrics.RecordWorkerError(ctx, "load_query_failed")
		}

		slog.Error("resolution: load speakers failed",
			"media_item_id", args.MediaItemID,
			"error", err,
		)

		return fmt.Errorf("load speakers for media item %s: %w", args.MediaItemID, err)
	}

	if len(speakers) == 0 {
		slog.Info("resolution: media item has no speakers",
			"media_item_id", args.MediaItemID,
		)

		return nil
	}

	outcomes := map[string]int{}
	failed := 0

	for i := range speakers {
		if err := w.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("resolution rate limit: %w", err)
		}

		outcome, err := w.resolver.ClassifySpeaker(ctx, &speakers[i].Speaker, speakers[i].Embedding)
		if err != nil {
			failed++

			if w.metrics != nil {
				w.metrics.RecordWorkerError(ctx, "classify_failed")
			}

			slog.Error("resolution: classify speaker failed",
				"media_item_id", args.MediaItemID,
				"speaker_id", speakers[i].Speaker.ID,
				"label", speakers[i].Speaker.Label,
				"error", err,
			)

			continue
		}

		outcomes[outcome]++
	}

	slog.Info("resolution: media item classified",
		"media_item_id", args.MediaItemID,
		"speakers", len(speakers),
		"auto_attached", outcomes[service.OutcomeAutoAttached],
		"suggested", outcomes[service.OutcomeSuggested],
		"unmatched", outcomes[service.OutcomeUnmatched],
		"skipped", outcomes[service.OutcomeSkipped],
		"failed", failed,
		"duration", time.Since(start),
	)

	if failed > 0 {
		return fmt.Errorf("media item %s: %d of %d speakers failed classification",
			args.MediaItemID, failed, len(speakers))
	}

	return nil
}
