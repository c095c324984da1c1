package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/audioscribe/speakerhub/internal/apperrors"
	"github.com/audioscribe/speakerhub/internal/datatypes"
	"github.com/audioscribe/speakerhub/internal/models"
	"github.com/audioscribe/speakerhub/internal/observability"
)

// Postgres error codes that mark a lost lock race worth retrying.
const (
	serializationFailureCode = "40001"
	deadlockDetectedCode     = "40P01"
)

const (
	mergeSourceStatusSucceeded = "succeeded"
	mergeSourceStatusFailed    = "failed"

	defaultMergeInitialBackoff = 100 * time.Millisecond
	defaultMergeMaxBackoff     = 2 * time.Second
)

// MergeProfilesRepository is the profile storage surface the merge engine needs.
type MergeProfilesRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetDisplayName(ctx context.Context, id uuid.UUID) (*string, error)
	GetWithStats(ctx context.Context, id uuid.UUID) (*models.ProfileWithStats, error)
	MergeSource(ctx context.Context, sourceID, targetID uuid.UUID) (*models.MergeSourceCounts, error)
}

// MergeConfig bounds the per-source conflict retry loop.
type MergeConfig struct {
	ConflictRetries int           // Retries after the first attempt per source.
	InitialBackoff  time.Duration // Backoff after the first conflict; doubles up to MaxBackoff.
	MaxBackoff      time.Duration
}

// MergeService absorbs source profiles into a target, one source per
// transaction. A failure mid-list leaves earlier absorptions committed: the
// outcome reports per-source results instead of rolling the whole merge back.
type MergeService struct {
	profiles    MergeProfilesRepository
	redirects   *MergeRedirects
	names       *ProfileNames
	publisher   MessagePublisher
	relabelJobs ProfileRelabelInserter
	cfg         MergeConfig
	metrics     observability.MergeMetrics
}

// NewMergeService creates a merge service. publisher, relabelJobs, and metrics
// may be nil.
func NewMergeService(
	profiles MergeProfilesRepository, redirects *MergeRedirects, names *ProfileNames,
	publisher MessagePublisher, relabelJobs ProfileRelabelInserter,
	cfg MergeConfig, metrics observability.MergeMetrics,
) *MergeService {
	if cfg.ConflictRetries < 0 {
		cfg.ConflictRetries = 0
	}

	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultMergeInitialBackoff
	}

	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = defaultMergeMaxBackoff
	}

	return &MergeService{
		profiles:    profiles,
		redirects:   redirects,
		names:       names,
		publisher:   publisher,
		relabelJobs: relabelJobs,
		cfg:         cfg,
		metrics:     metrics,
	}
}

// Merge absorbs every source profile into the target. Sources are processed
// independently in request order; the returned outcome lists which succeeded
// and which failed and why. The target keeps its own name and verification.
func (s *MergeService) Merge(ctx context.Context, req *models.MergeProfilesRequest) (*models.MergeOutcome, error) {
	if err := validateMergeRequest(req); err != nil {
		return nil, err
	}

	if _, err := s.profiles.GetByID(ctx, req.TargetProfileID); err != nil {
		return nil, fmt.Errorf("get merge target: %w", err)
	}

	start := time.Now()

	outcome := &models.MergeOutcome{
		TargetProfileID: req.TargetProfileID,
		Succeeded:       []models.MergeSourceResult{},
		Failed:          []models.MergeSourceResult{},
	}

	for _, sourceID := range req.SourceProfileIDs {
		result := s.mergeOne(ctx, sourceID, req.TargetProfileID)
		if result.Succeeded {
			outcome.Succeeded = append(outcome.Succeeded, result)
		} else {
			outcome.Failed = append(outcome.Failed, result)
		}
	}

	outcome.Status = models.MergeStatusFor(len(outcome.Succeeded), len(outcome.Failed))

	s.recordOutcome(ctx, outcome, time.Since(start))

	// Stats are summary info for the caller; a read failure does not undo the merge.
	target, err := s.profiles.GetWithStats(ctx, req.TargetProfileID)
	if err != nil {
		slog.WarnContext(ctx, "failed to load merge target stats",
			"target_profile_id", req.TargetProfileID,
			"error", err,
		)
	} else {
		outcome.Target = target
	}

	if len(outcome.Succeeded) > 0 {
		if s.publisher != nil {
			s.publisher.PublishEvent(ctx, datatypes.ProfilesMerged, &MergeEventData{
				TargetProfileID: outcome.TargetProfileID,
				Status:          outcome.Status,
				Succeeded:       outcome.Succeeded,
				Failed:          outcome.Failed,
			})
		}

		s.enqueueRelabel(ctx, req.TargetProfileID)
	}

	return outcome, nil
}

// mergeOne absorbs one source with bounded retries on lock races. Never
// returns an error: the caller reports per-source results.
func (s *MergeService) mergeOne(ctx context.Context, sourceID, targetID uuid.UUID) models.MergeSourceResult {
	result := models.MergeSourceResult{ProfileID: sourceID}

	// Read the name first; after the absorb commits the row is gone.
	displayName, err := s.profiles.GetDisplayName(ctx, sourceID)
	if err != nil {
		return s.failSource(ctx, result, err)
	}

	result.DisplayName = displayName

	backoff := s.cfg.InitialBackoff

	for attempt := 0; ; attempt++ {
		counts, err := s.profiles.MergeSource(ctx, sourceID, targetID)
		if err == nil {
			s.redirects.Record(sourceID, targetID)
			s.names.Invalidate(sourceID)

			slog.InfoContext(ctx, "merged source profile",
				"source_profile_id", sourceID,
				"target_profile_id", targetID,
				"voiceprints", counts.Voiceprints,
				"segments", counts.Segments,
				"speakers", counts.Speakers,
				"suggestions", counts.Suggestions,
			)

			result.Succeeded = true

			return result
		}

		if !isRetryableMergeError(err) || attempt == s.cfg.ConflictRetries {
			return s.failSource(ctx, result, err)
		}

		sleep := jitteredBackoff(backoff)
		slog.WarnContext(ctx, "merge source lost a lock race, retrying after backoff",
			"source_profile_id", sourceID,
			"attempt", attempt+1,
			"max_attempts", s.cfg.ConflictRetries+1,
			"backoff", sleep,
			"error", err,
		)

		if err := sleepContext(ctx, sleep); err != nil {
			return s.failSource(ctx, result, err)
		}

		backoff = min(backoff*backoffMultiplier, s.cfg.MaxBackoff)
	}
}

func (s *MergeService) failSource(ctx context.Context, result models.MergeSourceResult, err error) models.MergeSourceResult {
	slog.WarnContext(ctx, "failed to merge source profile",
		"source_profile_id", result.ProfileID,
		"error", err,
	)

	msg := err.Error()
	result.Error = &msg

	return result
}

func (s *MergeService) recordOutcome(ctx context.Context, outcome *models.MergeOutcome, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	if n := len(outcome.Succeeded); n > 0 {
		s.metrics.RecordMergeSources(ctx, mergeSourceStatusSucceeded, int64(n))
	}

	if n := len(outcome.Failed); n > 0 {
		s.metrics.RecordMergeSources(ctx, mergeSourceStatusFailed, int64(n))
	}

	s.metrics.RecordMergeDuration(ctx, elapsed, string(outcome.Status))
}

// enqueueRelabel schedules a background pass so absorbed voiceprints can claim
// outstanding speakers elsewhere in the corpus. Best effort: the merge already
// committed.
func (s *MergeService) enqueueRelabel(ctx context.Context, targetID uuid.UUID) {
	if s.relabelJobs == nil {
		return
	}

	_, err := s.relabelJobs.Insert(ctx, ProfileRelabelArgs{ProfileID: targetID}, RelabelInsertOpts())
	if err != nil {
		slog.ErrorContext(ctx, "failed to enqueue relabel after merge",
			"target_profile_id", targetID,
			"error", err,
		)
	}
}

func validateMergeRequest(req *models.MergeProfilesRequest) error {
	if len(req.SourceProfileIDs) == 0 {
		return apperrors.NewInvalidMergeRequestError("at least one source profile is required")
	}

	seen := make(map[uuid.UUID]bool, len(req.SourceProfileIDs))

	for _, id := range req.SourceProfileIDs {
		if id == req.TargetProfileID {
			return apperrors.NewInvalidMergeRequestError("target profile cannot be one of the sources")
		}

		if seen[id] {
			return apperrors.NewInvalidMergeRequestError(fmt.Sprintf("duplicate source profile: %s", id))
		}

		seen[id] = true
	}

	return nil
}

// isRetryableMergeError reports whether another attempt can win: lock ordering
// races surface as serialization or deadlock errors, concurrent version bumps
// as ConflictError.
func isRetryableMergeError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == serializationFailureCode || pgErr.Code == deadlockDetectedCode
	}

	var conflict *apperrors.ConflictError

	return errors.As(err, &conflict)
}

// backoffMultiplier is the geometric growth factor shared by the merge
// conflict loop and the webhook enqueue retry loop.
const backoffMultiplier = 2

// jitteredBackoff returns a duration between 50% and 100% of base to spread
// competing retries apart.
func jitteredBackoff(base time.Duration) time.Duration {
	const jitterHalf = 2

	half := base / jitterHalf
	if half <= 0 {
		return base
	}

	var buf [8]byte

	if _, err := rand.Read(buf[:]); err != nil {
		return half
	}

	randVal := binary.BigEndian.Uint64(buf[:])

	halfNanos := half.Nanoseconds()
	if halfNanos <= 0 {
		return half
	}

	//nolint:gosec // G115: modulo result is in [0, halfNanos), safe to convert to int64
	jitterNanos := int64(randVal % uint64(halfNanos))

	return half + time.Duration(jitterNanos)
}

// sleepContext blocks for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
