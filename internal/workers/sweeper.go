package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/audioscribe/speakerhub/internal/models"
	"github.com/audioscribe/speakerhub/internal/observability"
	"github.com/audioscribe/speakerhub/internal/service"
)

// PendingSweeper is a background loop that finds speakers stuck in pending
// longer than a cutoff and re-enqueues a resolution job for their media item.
// Speakers end up stuck when a resolution job exhausted its attempts or a
// degraded matcher run could not score them.
type PendingSweeper struct {
	repo         sweeperSpeakersRepo
	jobs         service.SpeakerResolutionInserter
	interval     time.Duration
	pendingAfter time.Duration
	batchSize    int
	maxAttempts  int
	metrics      observability.ResolutionMetrics
}

// sweeperSpeakersRepo is the minimal repo interface needed by the sweeper.
type sweeperSpeakersRepo interface {
	ListPendingOlderThan(ctx context.Context, age time.Duration, limit int) ([]models.FileSpeaker, error)
}

// NewPendingSweeper creates a sweeper that checks every interval for speakers
// pending longer than pendingAfter, at most batchSize per sweep. metrics may
// be nil when metrics are disabled.
func NewPendingSweeper(
	repo sweeperSpeakersRepo, jobs service.SpeakerResolutionInserter,
	interval, pendingAfter time.Duration, batchSize, maxAttempts int,
	metrics observability.ResolutionMetrics,
) *PendingSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	if pendingAfter <= 0 {
		pendingAfter = 10 * time.Minute
	}

	if batchSize <= 0 {
		batchSize = 100
	}

	return &PendingSweeper{
		repo:         repo,
		jobs:         jobs,
		interval:     interval,
		pendingAfter: pendingAfter,
		batchSize:    batchSize,
		maxAttempts:  maxAttempts,
		metrics:      metrics,
	}
}

// Start begins the sweep loop. It runs until the context is cancelled.
func (s *PendingSweeper) Start(ctx context.Context) {
	slog.Info("pending sweeper started",
		"interval", s.interval,
		"pending_after", s.pendingAfter,
		"batch_size", s.batchSize,
	)

	// Run immediately on startup
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("pending sweeper stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce finds stuck speakers and re-enqueues their media items. Uniqueness
// on the job args keeps a sweep from duplicating a job that is still queued or
// running for the same media item.
func (s *PendingSweeper) runOnce(ctx context.Context) {
	speakers, err := s.repo.ListPendingOlderThan(ctx, s.pendingAfter, s.batchSize)
	if err != nil {
		slog.Error("sweep: list pending speakers failed", "error", err)
		return
	}

	if len(speakers) == 0 {
		slog.Debug("sweep: no stuck pending speakers")
		return
	}

	items := map[uuid.UUID]int{}
	for i := range speakers {
		items[speakers[i].MediaItemID]++
	}

	enqueued := 0

	for mediaItemID := range items {
		res, err := s.jobs.Insert(ctx, service.SpeakerResolutionArgs{MediaItemID: mediaItemID}, service.ResolutionInsertOpts(s.maxAttempts))
		if err != nil {
			slog.Error("sweep: enqueue resolution failed",
				"media_item_id", mediaItemID,
				"error", err,
			)

			continue
		}

		if res.UniqueSkippedAsDuplicate {
			continue
		}

		enqueued++
	}

	if s.metrics != nil && enqueued > 0 {
		s.metrics.RecordJobsEnqueued(ctx, int64(enqueued))
	}

	slog.Info("sweep: re-enqueued stuck media items",
		"stuck_speakers", len(speakers),
		"media_items", len(items),
		"enqueued", enqueued,
	)
}
