package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/audioscribe/speakerhub/internal/datatypes"
	"github.com/audioscribe/speakerhub/internal/models"
)

const (
	defaultListLimit        = 100
	defaultOccurrencesLimit = 50
	maxOccurrencesLimit     = 200
)

// ProfilesServiceRepository is the profile storage surface of the profiles API.
type ProfilesServiceRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetWithStats(ctx context.Context, id uuid.UUID) (*models.ProfileWithStats, error)
	List(ctx context.Context, filters *models.ListProfilesFilters) ([]models.ProfileWithStats, error)
	Count(ctx context.Context, filters *models.ListProfilesFilters) (int64, error)
	Update(ctx context.Context, id uuid.UUID, req *models.UpdateProfileRequest) (*models.Profile, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// OccurrencesRepository pages through a profile's cross-media appearances.
type OccurrencesRepository interface {
	ListOccurrences(ctx context.Context, profileID uuid.UUID, limit int, afterCreatedAt *time.Time, afterID *uuid.UUID) ([]models.CrossMediaOccurrence, error)
	CountOccurrences(ctx context.Context, profileID uuid.UUID) (int64, error)
}

// ProfilesService handles business logic for profiles.
type ProfilesService struct {
	profiles    ProfilesServiceRepository
	occurrences OccurrencesRepository
	relabeler   *Relabeler
	names       *ProfileNames
	publisher   MessagePublisher
}

// NewProfilesService creates a new profiles service. relabeler, names, and
// publisher may be nil.
func NewProfilesService(
	profiles ProfilesServiceRepository, occurrences OccurrencesRepository,
	relabeler *Relabeler, names *ProfileNames, publisher MessagePublisher,
) *ProfilesService {
	return &ProfilesService{
		profiles:    profiles,
		occurrences: occurrences,
		relabeler:   relabeler,
		names:       names,
		publisher:   publisher,
	}
}

// GetProfile retrieves a single profile with its aggregates. A merged-away
// profile is simply gone here; only write paths chase merge redirects.
func (s *ProfilesService) GetProfile(ctx context.Context, id uuid.UUID) (*models.ProfileWithStats, error) {
	return s.profiles.GetWithStats(ctx, id)
}

// ListProfiles retrieves a list of profiles with optional filters.
func (s *ProfilesService) ListProfiles(ctx context.Context, filters *models.ListProfilesFilters) (*models.ListProfilesResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	}

	profiles, err := s.profiles.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	total, err := s.profiles.Count(ctx, filters)
	if err != nil {
		return nil, err
	}

	return &models.ListProfilesResponse{
		Data:   profiles,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// UpdateProfile renames and/or verifies a profile. A rename publishes
// profile.renamed and runs the retroactive relabel pass synchronously; the
// response carries the pass summary so the caller sees what the new name
// claimed elsewhere in the corpus.
func (s *ProfilesService) UpdateProfile(
	ctx context.Context, id uuid.UUID, req *models.UpdateProfileRequest,
) (*models.UpdateProfileResponse, error) {
	current, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	updated, err := s.profiles.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}

	if s.names != nil {
		s.names.Invalidate(id)
	}

	changed := changedProfileFields(current, updated)
	resp := &models.UpdateProfileResponse{Profile: *updated}

	if !slices.Contains(changed, "display_name") {
		return resp, nil
	}

	if s.publisher != nil {
		s.publisher.PublishEventWithChangedFields(ctx, datatypes.ProfileRenamed,
			&ProfileEventData{Profile: updated}, changed)
	}

	if s.relabeler != nil && updated.Named() {
		summary, err := s.relabeler.RelabelOutstanding(ctx, updated)
		if err != nil {
			slog.WarnContext(ctx, "relabel pass after rename ended early",
				"profile_id", id,
				"error", err,
			)
		}

		// Partial summaries still tell the caller what was claimed before the error.
		resp.Relabel = summary
	}

	return resp, nil
}

// DeleteProfile deletes a profile. Profiles that still own voiceprints or
// speakers are protected by foreign keys and fail validation.
func (s *ProfilesService) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	if err := s.profiles.Delete(ctx, id); err != nil {
		return err
	}

	if s.names != nil {
		s.names.Invalidate(id)
	}

	return nil
}

// ListOccurrences pages through every media item a profile appears in, owned
// voiceprints and still-pending suggestions alike, newest first.
func (s *ProfilesService) ListOccurrences(
	ctx context.Context, profileID uuid.UUID, limit int, cursor string,
) (*models.ListOccurrencesResponse, error) {
	if _, err := s.profiles.GetByID(ctx, profileID); err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	if limit <= 0 {
		limit = defaultOccurrencesLimit
	}

	if limit > maxOccurrencesLimit {
		limit = maxOccurrencesLimit
	}

	var (
		afterCreatedAt *time.Time
		afterID        *uuid.UUID
	)

	if cursor != "" {
		occurredAt, fileSpeakerID, err := DecodeOccurrenceCursor(cursor)
		if err != nil {
			return nil, err
		}

		afterCreatedAt, afterID = &occurredAt, &fileSpeakerID
	}

	items, err := s.occurrences.ListOccurrences(ctx, profileID, limit, afterCreatedAt, afterID)
	if err != nil {
		return nil, err
	}

	total, err := s.occurrences.CountOccurrences(ctx, profileID)
	if err != nil {
		return nil, err
	}

	resp := &models.ListOccurrencesResponse{
		Data:  items,
		Total: total,
		Limit: limit,
	}

	if len(items) == limit {
		last := items[len(items)-1]
		next := EncodeOccurrenceCursor(last.OccurredAt, last.FileSpeakerID)
		resp.NextCursor = &next
	}

	return resp, nil
}

// changedProfileFields compares the profile before and after an update and
// names the fields that differ, for event payloads.
func changedProfileFields(before, after *models.Profile) []string {
	var changed []string

	if !equalStringPtr(before.DisplayName, after.DisplayName) {
		changed = append(changed, "display_name")
	}

	if before.Verification != after.Verification {
		changed = append(changed, "verification")
	}

	return changed
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}
