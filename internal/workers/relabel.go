package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/audioscribe/speakerhub/internal/apperrors"
	"github.com/audioscribe/speakerhub/internal/models"
	"github.com/audioscribe/speakerhub/internal/observability"
	"github.com/audioscribe/speakerhub/internal/service"
)

// ProfileRelabelWorker re-scores outstanding speakers against one profile
// after it gained a name or absorbed new voiceprints in a merge.
type ProfileRelabelWorker struct {
	river.WorkerDefaults[service.ProfileRelabelArgs]

	profiles  relabelProfilesRepo
	relabeler outstandingRelabeler
	metrics   observability.ResolutionMetrics
}

// relabelProfilesRepo is the minimal profile access needed by the worker.
type relabelProfilesRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// outstandingRelabeler runs one retroactive relabel pass.
type outstandingRelabeler interface {
	RelabelOutstanding(ctx context.Context, profile *models.Profile) (*models.RelabelSummary, error)
}

// NewProfileRelabelWorker creates a worker that loads the profile and hands it
// to the relabeler. metrics may be nil when metrics are disabled.
func NewProfileRelabelWorker(
	profiles relabelProfilesRepo, relabeler outstandingRelabeler, metrics observability.ResolutionMetrics,
) *ProfileRelabelWorker {
	return &ProfileRelabelWorker{profiles: profiles, relabeler: relabeler, metrics: metrics}
}

// ProfileRelabelTimeout caps one relabel pass. The pass walks every
// outstanding speaker in the corpus, scoring each against a single profile.
const ProfileRelabelTimeout = 15 * time.Minute

// Timeout limits how long one relabel pass can run.
func (w *ProfileRelabelWorker) Timeout(*river.Job[service.ProfileRelabelArgs]) time.Duration {
	return ProfileRelabelTimeout
}

// Work loads the profile and runs the relabel pass over all outstanding
// speakers. A profile that vanished between enqueue and run (deleted, or
// merged away and its relabel superseded by the target's) is not an error.
// Per-speaker failures are summarized by the pass and do not fail the job;
// only a scan abort is retried.
func (w *ProfileRelabelWorker) Work(ctx context.Context, job *river.Job[service.ProfileRelabelArgs]) error {
	args := job.Args

	profile, err := w.profiles.GetByID(ctx, args.ProfileID)
	if err != nil {
		var notFound *apperrors.NotFoundError
		if errors.As(err, &notFound) {
			slog.Info("relabel: profile gone, nothing to re-score",
				"profile_id", args.ProfileID,
			)

			return nil
		}

		if w.metrics != nil {
			w.metrics.RecordWorkerError(ctx, "get_profile_failed")
		}

		slog.Error("relabel: get profile failed",
			"profile_id", args.ProfileID,
			"error", err,
		)

		return fmt.Errorf("get profile %s: %w", args.ProfileID, err)
	}

	if _, err := w.relabeler.RelabelOutstanding(ctx, profile); err != nil {
		if w.metrics != nil {
			w.metrics.RecordWorkerError(ctx, "scan_failed")
		}

		slog.Error("relabel: pass aborted",
			"profile_id", args.ProfileID,
			"error", err,
		)

		return fmt.Errorf("relabel profile %s: %w", args.ProfileID, err)
	}

	return nil
}
