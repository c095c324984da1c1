package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/audioscribe/speakerhub/internal/models"
	"github.com/audioscribe/speakerhub/internal/observability"
)

// MediaItemsServiceRepository is the media registry surface of the media API.
type MediaItemsServiceRepository interface {
	UpsertByExternalRef(ctx context.Context, externalRef string, tenantID *string, title *string, durationSeconds *float64) (*models.MediaItem, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.MediaItem, error)
	List(ctx context.Context, filters *models.ListMediaItemsFilters) ([]models.MediaItem, error)
	Count(ctx context.Context, filters *models.ListMediaItemsFilters) (int64, error)
}

// IngestSpeakersRepository persists one diarized speaker with its placeholder
// profile, voiceprint, and segments.
type IngestSpeakersRepository interface {
	CreateWithPlaceholder(ctx context.Context, mediaItemID uuid.UUID, tenantID *string, speaker *models.DiarizationSpeaker) (*models.FileSpeaker, bool, error)
}

// MediaService ingests diarization results and serves the media registry.
type MediaService struct {
	media          MediaItemsServiceRepository
	speakers       IngestSpeakersRepository
	resolutionJobs SpeakerResolutionInserter
	embeddingDim   int
	maxAttempts    int
	metrics        observability.ResolutionMetrics
}

// NewMediaService creates a new media service. resolutionJobs and metrics may
// be nil (ingest then persists without queueing).
func NewMediaService(
	media MediaItemsServiceRepository, speakers IngestSpeakersRepository,
	resolutionJobs SpeakerResolutionInserter, embeddingDim int, maxAttempts int,
	metrics observability.ResolutionMetrics,
) *MediaService {
	return &MediaService{
		media:          media,
		speakers:       speakers,
		resolutionJobs: resolutionJobs,
		embeddingDim:   embeddingDim,
		maxAttempts:    maxAttempts,
		metrics:        metrics,
	}
}

// IngestDiarizationResult persists one diarization result and queues the
// speakers for resolution. Idempotent per (external ref, label): replaying a
// result re-creates nothing and queues nothing. Fails before any write when
// any embedding is invalid; fails on the first persistence error, where a
// replay resumes cleanly from what already committed.
func (s *MediaService) IngestDiarizationResult(
	ctx context.Context, req *models.DiarizationResultRequest,
) (*models.DiarizationAcceptedResponse, error) {
	for i := range req.Speakers {
		if err := ValidateEmbedding(req.Speakers[i].Embedding, s.embeddingDim); err != nil {
			return nil, fmt.Errorf("speaker %q: %w", req.Speakers[i].Label, err)
		}
	}

	media, err := s.media.UpsertByExternalRef(ctx, req.MediaExternalRef, req.TenantID, req.Title, req.DurationSeconds)
	if err != nil {
		return nil, fmt.Errorf("upsert media item: %w", err)
	}

	created := 0

	for i := range req.Speakers {
		_, isNew, err := s.speakers.CreateWithPlaceholder(ctx, media.ID, media.TenantID, &req.Speakers[i])
		if err != nil {
			return nil, fmt.Errorf("persist speaker %q: %w", req.Speakers[i].Label, err)
		}

		if isNew {
			created++
		}
	}

	if created > 0 {
		if err := s.enqueueResolution(ctx, media.ID); err != nil {
			return nil, err
		}
	}

	slog.InfoContext(ctx, "diarization result ingested",
		"media_item_id", media.ID,
		"external_ref", media.ExternalRef,
		"speakers", len(req.Speakers),
		"new_speakers", created,
	)

	return &models.DiarizationAcceptedResponse{
		MediaItemID: media.ID,
		Speakers:    len(req.Speakers),
		Queued:      created,
	}, nil
}

func (s *MediaService) enqueueResolution(ctx context.Context, mediaItemID uuid.UUID) error {
	if s.resolutionJobs == nil {
		return nil
	}

	_, err := s.resolutionJobs.Insert(ctx, SpeakerResolutionArgs{MediaItemID: mediaItemID}, ResolutionInsertOpts(s.maxAttempts))
	if err != nil {
		return fmt.Errorf("enqueue resolution: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordJobsEnqueued(ctx, 1)
	}

	return nil
}

// GetMediaItem retrieves a single media item by ID.
func (s *MediaService) GetMediaItem(ctx context.Context, id uuid.UUID) (*models.MediaItem, error) {
	return s.media.GetByID(ctx, id)
}

// ListMediaItems retrieves a list of media items with optional filters.
func (s *MediaService) ListMediaItems(ctx context.Context, filters *models.ListMediaItemsFilters) (*models.ListMediaItemsResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	}

	items, err := s.media.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	total, err := s.media.Count(ctx, filters)
	if err != nil {
		return nil, err
	}

	return &models.ListMediaItemsResponse{
		Data:   items,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}
