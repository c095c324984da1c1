package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audioscribe/speakerhub/internal/apperrors"
	"github.com/audioscribe/speakerhub/internal/datatypes"
	"github.com/audioscribe/speakerhub/internal/models"
)

// mockVerifierSpeakers serves one speaker under review. Attach and
// MarkUnmatched return the speaker with the transition applied, the way the
// real repository returns the updated row.
type mockVerifierSpeakers struct {
	speaker *models.FileSpeaker
	getErr  error
	list    []models.FileSpeaker
	listErr error

	attachFunc func(
		ctx context.Context, id, targetProfileID uuid.UUID,
		state models.MatchState, score *float64, rationale *string,
	) (*models.FileSpeaker, error)
	unmatchedFunc func(ctx context.Context, id uuid.UUID, rationale string) (*models.FileSpeaker, error)

	attaches  []attachCall
	unmatches []unmatchCall
}

func (m *mockVerifierSpeakers) GetByID(_ context.Context, _ uuid.UUID) (*models.FileSpeaker, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}

	cp := *m.speaker

	return &cp, nil
}

func (m *mockVerifierSpeakers) ListByMediaItem(_ context.Context, _ uuid.UUID) ([]models.FileSpeaker, error) {
	return m.list, m.listErr
}

func (m *mockVerifierSpeakers) Attach(
	ctx context.Context, id uuid.UUID, targetProfileID uuid.UUID,
	state models.MatchState, score *float64, rationale *string,
) (*models.FileSpeaker, error) {
	m.attaches = append(m.attaches, attachCall{id, targetProfileID, state, score, rationale})
	if m.attachFunc != nil {
		return m.attachFunc(ctx, id, targetProfileID, state, score, rationale)
	}

	cp := *m.speaker
	cp.ProfileID = targetProfileID
	cp.MatchState = state
	cp.MatchScore = score
	cp.Rationale = rationale
	cp.Verified = true
	cp.SuggestedProfileID = nil
	cp.SuggestedScore = nil

	return &cp, nil
}

func (m *mockVerifierSpeakers) MarkUnmatched(
	ctx context.Context, id uuid.UUID, rationale string,
) (*models.FileSpeaker, error) {
	m.unmatches = append(m.unmatches, unmatchCall{id, rationale})
	if m.unmatchedFunc != nil {
		return m.unmatchedFunc(ctx, id, rationale)
	}

	cp := *m.speaker
	cp.MatchState = models.MatchStateUnmatched
	cp.SuggestedProfileID = nil
	cp.SuggestedScore = nil
	cp.Rationale = &rationale

	return &cp, nil
}

type createProfileCall struct {
	tenantID     *string
	displayName  *string
	verification models.VerificationState
}

type mockVerifierProfiles struct {
	profiles  map[uuid.UUID]*models.Profile
	getErr    error
	createErr error
	verifyErr error

	created  []createProfileCall
	verified []uuid.UUID
}

func (m *mockVerifierProfiles) GetByID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}

	if p, ok := m.profiles[id]; ok {
		cp := *p

		return &cp, nil
	}

	return &models.Profile{ID: id}, nil
}

func (m *mockVerifierProfiles) Create(
	_ context.Context, tenantID *string, displayName *string, verification models.VerificationState,
) (*models.Profile, error) {
	m.created = append(m.created, createProfileCall{tenantID, displayName, verification})
	if m.createErr != nil {
		return nil, m.createErr
	}

	return &models.Profile{
		ID:           uuid.Must(uuid.NewV7()),
		TenantID:     tenantID,
		DisplayName:  displayName,
		Verification: verification,
	}, nil
}

func (m *mockVerifierProfiles) MarkVerified(_ context.Context, id uuid.UUID) error {
	m.verified = append(m.verified, id)

	return m.verifyErr
}

type mockVoiceprints struct {
	embedding []float32
	err       error
	calls     int
}

func (m *mockVoiceprints) GetByFileSpeaker(_ context.Context, fileSpeakerID uuid.UUID) (*models.Voiceprint, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}

	return &models.Voiceprint{FileSpeakerID: fileSpeakerID, Embedding: m.embedding}, nil
}

type mockMediaGetter struct {
	err error
}

func (m *mockMediaGetter) GetByID(_ context.Context, id uuid.UUID) (*models.MediaItem, error) {
	if m.err != nil {
		return nil, m.err
	}

	return &models.MediaItem{ID: id, Title: "standup.mp3"}, nil
}

type mockSpeakerSegments struct {
	segments []models.TranscriptSegment
	err      error
}

func (m *mockSpeakerSegments) ListByFileSpeaker(_ context.Context, _ uuid.UUID) ([]models.TranscriptSegment, error) {
	if m.err != nil {
		return nil, m.err
	}

	return m.segments, nil
}

type speakersHarness struct {
	svc         *SpeakersService
	speakers    *mockVerifierSpeakers
	profiles    *mockVerifierProfiles
	voiceprints *mockVoiceprints
	segments    *mockSpeakerSegments
	media       *mockMediaGetter
	publisher   *recordingPublisher
	redirects   *MergeRedirects
	jobs        *mockRelabelJobs
}

// newSpeakersHarness builds a speakers service around one speaker under
// review, with a matcher that always returns ranking.
func newSpeakersHarness(speaker *models.FileSpeaker, ranking []models.ProfileSimilarity) *speakersHarness {
	h := &speakersHarness{
		speakers:    &mockVerifierSpeakers{speaker: speaker},
		profiles:    &mockVerifierProfiles{},
		voiceprints: &mockVoiceprints{embedding: testQuery()},
		segments:    &mockSpeakerSegments{},
		media:       &mockMediaGetter{},
		publisher:   &recordingPublisher{},
		redirects:   NewMergeRedirects(time.Minute),
		jobs:        &mockRelabelJobs{},
	}

	repo := &mockMatcherRepo{
		countFunc: func(context.Context) (int64, error) { return int64(len(ranking)), nil },
		rankFunc: func(
			context.Context, []float32, *uuid.UUID, *uuid.UUID, int,
		) ([]models.ProfileSimilarity, error) {
			return ranking, nil
		},
	}

	h.svc = NewSpeakersService(
		h.speakers, h.profiles, h.voiceprints, h.segments, h.media,
		NewMatcher(repo, testMatcherConfig(), nil), h.redirects, nil,
		h.publisher, h.jobs,
		Thresholds{Accept: 0.75, Suggest: 0.50}, nil,
	)

	return h
}

func suggestedSpeaker(suggested uuid.UUID, score float64) *models.FileSpeaker {
	speaker := pendingTestSpeaker()
	speaker.MatchState = models.MatchStateSuggested
	speaker.SuggestedProfileID = &suggested
	speaker.SuggestedScore = &score

	return speaker
}

func TestSpeakersService_Verify_Accept(t *testing.T) {
	ctx := context.Background()

	t.Run("confirms the stored suggestion", func(t *testing.T) {
		suggested := uuid.Must(uuid.NewV7())
		speaker := suggestedSpeaker(suggested, 0.6)
		h := newSpeakersHarness(speaker, nil)

		profile, err := h.svc.Verify(ctx, speaker.ID, &models.VerifySpeakerRequest{Action: models.VerifyActionAccept})
		require.NoError(t, err)
		assert.Equal(t, suggested, profile.ID)

		require.Len(t, h.speakers.attaches, 1)
		call := h.speakers.attaches[0]
		assert.Equal(t, suggested, call.profileID)
		assert.Equal(t, models.MatchStateConfirmed, call.state)
		require.NotNil(t, call.score)
		assert.InDelta(t, 0.6, *call.score, 1e-9)
		require.NotNil(t, call.rationale)
		assert.Equal(t, "suggestion accepted by reviewer", *call.rationale)

		assert.Equal(t, []uuid.UUID{suggested}, h.profiles.verified)

		require.Len(t, h.publisher.events, 1)
		assert.Equal(t, datatypes.SpeakerVerified, h.publisher.events[0].eventType)
		data, ok := h.publisher.events[0].data.(*SpeakerEventData)
		require.True(t, ok)
		assert.Equal(t, verifyActionAccepted, data.Action)
		assert.Equal(t, suggested, data.ProfileID)
	})

	t.Run("an override beats the stored suggestion", func(t *testing.T) {
		suggested := uuid.Must(uuid.NewV7())
		override := uuid.Must(uuid.NewV7())
		speaker := suggestedSpeaker(suggested, 0.6)
		h := newSpeakersHarness(speaker, nil)

		profile, err := h.svc.Verify(ctx, speaker.ID, &models.VerifySpeakerRequest{
			Action: models.VerifyActionAccept, ProfileID: &override,
		})
		require.NoError(t, err)
		assert.Equal(t, override, profile.ID)

		require.Len(t, h.speakers.attaches, 1)
		call := h.speakers.attaches[0]
		assert.Equal(t, override, call.profileID)
		assert.Nil(t, call.score)
		require.NotNil(t, call.rationale)
		assert.Equal(t, "manually confirmed by reviewer", *call.rationale)
	})

	t.Run("an override matching the suggestion keeps its score", func(t *testing.T) {
		suggested := uuid.Must(uuid.NewV7())
		speaker := suggestedSpeaker(suggested, 0.6)
		h := newSpeakersHarness(speaker, nil)

		_, err := h.svc.Verify(ctx, speaker.ID, &models.VerifySpeakerRequest{
			Action: models.VerifyActionAccept, ProfileID: &suggested,
		})
		require.NoError(t, err)

		require.Len(t, h.speakers.attaches, 1)
		require.NotNil(t, h.speakers.attaches[0].score)
		assert.InDelta(t, 0.6, *h.speakers.attaches[0].score, 1e-9)
	})

	t.Run("confirms an auto-attachment in place", func(t *testing.T) {
		score := 0.8
		speaker := pendingTestSpeaker()
		speaker.MatchState = models.MatchStateAutoAttached
		speaker.MatchScore = &score
		h := newSpeakersHarness(speaker, nil)

		profile, err := h.svc.Verify(ctx, speaker.ID, &models.VerifySpeakerRequest{Action: models.VerifyActionAccept})
		require.NoError(t, err)
		assert.Equal(t, speaker.ProfileID, profile.ID)

		require.Len(t, h.speakers.attaches, 1)
		call := h.speakers.attaches[0]
		assert.Equal(t, speaker.ProfileID, call.profileID)
		require.NotNil(t, call.score)
		assert.InDelta(t, 0.8, *call.score, 1e-9)
		assert.Equal(t, "auto-attachment confirmed by reviewer", *call.rationale)
	})

	t.Run("no stored target and no override is a validation error", func(t *testing.T) {
		speaker := pendingTestSpeaker()
		speaker.MatchState = models.MatchStateUnmatched
		h := newSpeakersHarness(speaker, nil)

		_, err := h.svc.Verify(ctx, speaker.ID, &models.VerifySpeakerRequest{Action: models.VerifyActionAccept})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		assert.Empty(t, h.speakers.attaches)
	})

	t.Run("re-accepting the same profile is idempotent", func(t *testing.T) {
		speaker := pendingTestSpeaker()
		speaker.MatchState = models.MatchStateConfirmed
		speaker.Verified = true
		h := newSpeakersHarness(speaker, nil)

		profile, err := h.svc.Verify(ctx, speaker.ID, &models.VerifySpeakerRequest{
			Action: models.VerifyActionAccept, ProfileID: &speaker.ProfileID,
		})
		require.NoError(t, err)
		assert.Equal(t, speaker.ProfileID, profile.ID)
		assert.Empty(t, h.speakers.attaches)
		assert.Empty(t, h.publisher.events)
	})

	t.Run("accepting a different profile after verification conflicts", func(t *testing.T) {
		other := uuid.Must(uuid.NewV7())
		speaker := pendingTestSpeaker()
		speaker.MatchState = models.MatchStateConfirmed
		speaker.Verified = true
		h := newSpeakersHarness(speaker, nil)

		_, err := h.svc.Verify(ctx, speaker.ID, &models.VerifySpeakerRequest{
			Action: models.VerifyActionAccept, ProfileID: &other,
		})
		assert.ErrorIs(t, err, apperrors.ErrConflict)
		assert.Empty(t, h.speakers.attaches)
	})

	t.Run("follows the merge redirect when the accepted profile vanished", func(t *testing.T) {
		suggested := uuid.Must(uuid.NewV7())
		survivor := uuid.Must(uuid.NewV7())
		speaker := suggestedSpeaker(suggested, 0.6)
		h := newSpeakersHarness(speaker, nil)
		h.redirects.Record(suggested, survivor)
		h.speakers.attachFunc = func(
			_ context.Context, id, profileID uuid.UUID, state models.MatchState, score *float64, rationale *string,
		) (*models.FileSpeaker, error) {
			if profileID == suggested {
				return nil, apperrors.NewNotFoundError("profile", "profile not found")
			}

			cp := *h.speakers.speaker
			cp.ProfileID = profileID
			cp.MatchState = state
			cp.Verified = true

			return &cp, nil
		}

		profile, err := h.svc.Verify(ctx, speaker.ID, &models.VerifySpeakerRequest{Action: models.VerifyActionAccept})
		require.NoError(t, err)
		assert.Equal(t, survivor, profile.ID)
		assert.Equal(t, []uuid.UUID{survivor}, h.profiles.verified)
	})
}

func TestSpeakersService_Verify_Reject(t *testing.T) {
	ctx := context.Background()

	t.Run("clears a pending suggestion", func(t *testing.T) {
		suggested := uuid.Must(uuid.NewV7())
		speaker := suggestedSpeaker(suggested, 0.6)
		h := newSpeakersHarness(speaker, nil)

		profile, err := h.svc.Verify(ctx, speaker.ID, &models.VerifySpeakerRequest{Action: models.VerifyActionReject})
		require.NoError(t, err)
		assert.Equal(t, speaker.ProfileID, profile.ID)

		require.Len(t, h.speakers.unmatches, 1)
		assert.Equal(t, "suggestion rejected by reviewer", h.speakers.unmatches[0].rationale)

		require.Len(t, h.publisher.events, 1)
		data, ok := h.publisher.events[0].data.(*SpeakerEventData)
		require.True(t, ok)
		assert.Equal(t, verifyActionRejected, data.Action)
	})

	t.Run("rejecting an unmatched speaker is a no-op", func(t *testing.T) {
		speaker := pendingTestSpeaker()
		speaker.MatchState = models.MatchStateUnmatched
		h := newSpeakersHarness(speaker, nil)

		profile, err := h.svc.Verify(ctx, speaker.ID, &models.VerifySpeakerRequest{Action: models.VerifyActionReject})
		require.NoError(t, err)
		assert.Equal(t, speaker.ProfileID, profile.ID)
		assert.Empty(t, h.speakers.unmatches)
	})

	t.Run("rejecting a speaker without a suggestion is a validation error", func(t *testing.T) {
		speaker := pendingTestSpeaker()
		h := newSpeakersHarness(speaker, nil)

		_, err := h.svc.Verify(ctx, speaker.ID, &models.VerifySpeakerRequest{Action: models.VerifyActionReject})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("rejecting a verified speaker conflicts", func(t *testing.T) {
		speaker := pendingTestSpeaker()
		speaker.MatchState = models.MatchStateConfirmed
		speaker.Verified = true
		h := newSpeakersHarness(speaker, nil)

		_, err := h.svc.Verify(ctx, speaker.ID, &models.VerifySpeakerRequest{Action: models.VerifyActionReject})
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})
}

func TestSpeakersService_Verify_CreateProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("carves the speaker onto a new named, verified profile", func(t *testing.T) {
		tenant := "acme"
		name := "Dana Given"
		speaker := pendingTestSpeaker()
		speaker.MatchState = models.MatchStateUnmatched
		h := newSpeakersHarness(speaker, nil)
		h.profiles.profiles = map[uuid.UUID]*models.Profile{
			speaker.ProfileID: {ID: speaker.ProfileID, TenantID: &tenant},
		}

		profile, err := h.svc.Verify(ctx, speaker.ID, &models.VerifySpeakerRequest{
			Action: models.VerifyActionCreateProfile, DisplayName: &name,
		})
		require.NoError(t, err)
		require.NotNil(t, profile.DisplayName)
		assert.Equal(t, name, *profile.DisplayName)
		assert.Equal(t, models.VerificationVerified, profile.Verification)

		require.Len(t, h.profiles.created, 1)
		created := h.profiles.created[0]
		require.NotNil(t, created.tenantID)
		assert.Equal(t, tenant, *created.tenantID)
		assert.Equal(t, models.VerificationVerified, created.verification)

		require.Len(t, h.speakers.attaches, 1)
		call := h.speakers.attaches[0]
		assert.Equal(t, profile.ID, call.profileID)
		assert.Equal(t, models.MatchStateConfirmed, call.state)
		assert.Nil(t, call.score)
		assert.Equal(t, "new identity created by reviewer", *call.rationale)

		require.Len(t, h.publisher.events, 2)
		assert.Equal(t, datatypes.ProfileCreated, h.publisher.events[0].eventType)
		assert.Equal(t, datatypes.SpeakerVerified, h.publisher.events[1].eventType)
		verifyData, ok := h.publisher.events[1].data.(*SpeakerEventData)
		require.True(t, ok)
		assert.Equal(t, verifyActionCreatedProfile, verifyData.Action)

		require.Len(t, h.jobs.args, 1)
		relabelArgs, okArgs := h.jobs.args[0].(ProfileRelabelArgs)
		require.True(t, okArgs)
		assert.Equal(t, profile.ID, relabelArgs.ProfileID)
	})

	t.Run("requires a display name", func(t *testing.T) {
		speaker := pendingTestSpeaker()
		h := newSpeakersHarness(speaker, nil)

		_, err := h.svc.Verify(ctx, speaker.ID, &models.VerifySpeakerRequest{Action: models.VerifyActionCreateProfile})
		assert.ErrorIs(t, err, apperrors.ErrValidation)

		empty := ""
		_, err = h.svc.Verify(ctx, speaker.ID, &models.VerifySpeakerRequest{
			Action: models.VerifyActionCreateProfile, DisplayName: &empty,
		})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		assert.Empty(t, h.profiles.created)
	})

	t.Run("a verified speaker conflicts", func(t *testing.T) {
		name := "Dana Given"
		speaker := pendingTestSpeaker()
		speaker.Verified = true
		h := newSpeakersHarness(speaker, nil)

		_, err := h.svc.Verify(ctx, speaker.ID, &models.VerifySpeakerRequest{
			Action: models.VerifyActionCreateProfile, DisplayName: &name,
		})
		assert.ErrorIs(t, err, apperrors.ErrConflict)
		assert.Empty(t, h.profiles.created)
	})
}

func TestSpeakersService_Verify(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown action is a validation error", func(t *testing.T) {
		speaker := pendingTestSpeaker()
		h := newSpeakersHarness(speaker, nil)

		_, err := h.svc.Verify(ctx, speaker.ID, &models.VerifySpeakerRequest{Action: "promote"})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("missing speaker surfaces as an error", func(t *testing.T) {
		h := newSpeakersHarness(pendingTestSpeaker(), nil)
		h.speakers.getErr = apperrors.NewNotFoundError("file_speaker", "file speaker not found")

		_, err := h.svc.Verify(ctx, uuid.Must(uuid.NewV7()), &models.VerifySpeakerRequest{
			Action: models.VerifyActionAccept,
		})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestSpeakersService_ListSuggestions(t *testing.T) {
	ctx := context.Background()

	t.Run("missing media item surfaces as an error", func(t *testing.T) {
		h := newSpeakersHarness(pendingTestSpeaker(), nil)
		h.media.err = apperrors.NewNotFoundError("media_item", "media item not found")

		_, err := h.svc.ListSuggestions(ctx, uuid.Must(uuid.NewV7()))
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("builds suggestion rows with fresh alternatives", func(t *testing.T) {
		mediaItemID := uuid.Must(uuid.NewV7())
		suggested := uuid.Must(uuid.NewV7())
		strong := uuid.Must(uuid.NewV7())
		weak := uuid.Must(uuid.NewV7())

		speaker := suggestedSpeaker(suggested, 0.6)
		speaker.MediaItemID = mediaItemID

		h := newSpeakersHarness(speaker, []models.ProfileSimilarity{
			{ProfileID: strong, BestScore: 0.9, VoiceprintCount: 4},
			{ProfileID: suggested, BestScore: 0.55, VoiceprintCount: 1},
			{ProfileID: weak, BestScore: 0.4, VoiceprintCount: 1},
		})
		h.speakers.list = []models.FileSpeaker{*speaker}

		resp, err := h.svc.ListSuggestions(ctx, mediaItemID)
		require.NoError(t, err)
		assert.Equal(t, mediaItemID, resp.MediaItemID)
		require.Len(t, resp.Data, 1)

		row := resp.Data[0]
		assert.Equal(t, speaker.ID, row.FileSpeakerID)
		assert.Equal(t, models.MatchStateSuggested, row.MatchState)
		assert.Equal(t, suggested, row.ProfileID)
		require.NotNil(t, row.Score)
		assert.InDelta(t, 0.6, *row.Score, 1e-9)
		require.NotNil(t, row.Tier)
		assert.Equal(t, models.TierMedium, *row.Tier)
		assert.False(t, row.AutoAccepted)
		assert.False(t, row.Verified)

		require.Len(t, row.Alternatives, 2)
		assert.Equal(t, strong, row.Alternatives[0].ProfileID)
		assert.Equal(t, models.TierHigh, row.Alternatives[0].Tier)
		assert.Contains(t, row.Alternatives[0].Rationale, "matched 0.900 against 4 voiceprints")
		assert.Equal(t, suggested, row.Alternatives[1].ProfileID)
		assert.Equal(t, models.TierMedium, row.Alternatives[1].Tier)
	})

	t.Run("an auto-attached speaker reads as auto accepted", func(t *testing.T) {
		score := 0.8
		speaker := pendingTestSpeaker()
		speaker.MatchState = models.MatchStateAutoAttached
		speaker.MatchScore = &score

		h := newSpeakersHarness(speaker, nil)
		h.speakers.list = []models.FileSpeaker{*speaker}

		resp, err := h.svc.ListSuggestions(ctx, speaker.MediaItemID)
		require.NoError(t, err)
		require.Len(t, resp.Data, 1)

		row := resp.Data[0]
		assert.True(t, row.AutoAccepted)
		assert.Equal(t, speaker.ProfileID, row.ProfileID)
		require.NotNil(t, row.Tier)
		assert.Equal(t, models.TierHigh, *row.Tier)
	})

	t.Run("verified speakers get no alternatives", func(t *testing.T) {
		speaker := pendingTestSpeaker()
		speaker.MatchState = models.MatchStateConfirmed
		speaker.Verified = true

		h := newSpeakersHarness(speaker, []models.ProfileSimilarity{
			{ProfileID: uuid.Must(uuid.NewV7()), BestScore: 0.9, VoiceprintCount: 1},
		})
		h.speakers.list = []models.FileSpeaker{*speaker}

		resp, err := h.svc.ListSuggestions(ctx, speaker.MediaItemID)
		require.NoError(t, err)
		require.Len(t, resp.Data, 1)
		assert.Empty(t, resp.Data[0].Alternatives)
		assert.Zero(t, h.voiceprints.calls)
	})

	t.Run("caps alternatives at five", func(t *testing.T) {
		ranking := make([]models.ProfileSimilarity, 0, 7)
		for i := 0; i < 7; i++ {
			ranking = append(ranking, models.ProfileSimilarity{
				ProfileID: uuid.Must(uuid.NewV7()), BestScore: 0.9 - float64(i)*0.01, VoiceprintCount: 1,
			})
		}

		speaker := pendingTestSpeaker()
		speaker.MatchState = models.MatchStateUnmatched
		h := newSpeakersHarness(speaker, ranking)
		h.speakers.list = []models.FileSpeaker{*speaker}

		resp, err := h.svc.ListSuggestions(ctx, speaker.MediaItemID)
		require.NoError(t, err)
		require.Len(t, resp.Data, 1)
		assert.Len(t, resp.Data[0].Alternatives, 5)
	})

	t.Run("ranking failures degrade to no alternatives", func(t *testing.T) {
		speaker := pendingTestSpeaker()
		speaker.MatchState = models.MatchStateUnmatched

		h := newSpeakersHarness(speaker, nil)
		h.voiceprints.err = errors.New("db down")
		h.speakers.list = []models.FileSpeaker{*speaker}

		resp, err := h.svc.ListSuggestions(ctx, speaker.MediaItemID)
		require.NoError(t, err)
		require.Len(t, resp.Data, 1)
		assert.Empty(t, resp.Data[0].Alternatives)
	})
}

func TestSpeakersService_ListSegments(t *testing.T) {
	ctx := context.Background()

	t.Run("returns segments with summed talk time", func(t *testing.T) {
		speaker := pendingTestSpeaker()
		text := "good morning everyone"

		h := newSpeakersHarness(speaker, nil)
		h.segments.segments = []models.TranscriptSegment{
			{FileSpeakerID: speaker.ID, StartSeconds: 0, EndSeconds: 4.5, Text: &text},
			{FileSpeakerID: speaker.ID, StartSeconds: 10, EndSeconds: 12.5},
		}

		resp, err := h.svc.ListSegments(ctx, speaker.ID)
		require.NoError(t, err)
		assert.Equal(t, speaker.ID, resp.FileSpeakerID)
		assert.Equal(t, speaker.MediaItemID, resp.MediaItemID)
		assert.Equal(t, speaker.ProfileID, resp.ProfileID)
		assert.Equal(t, "SPEAKER_00", resp.Label)
		assert.InDelta(t, 7.0, resp.TalkSeconds, 1e-9)
		require.Len(t, resp.Data, 2)
		assert.Equal(t, &text, resp.Data[0].Text)
	})

	t.Run("speaker without segments yields an empty list", func(t *testing.T) {
		speaker := pendingTestSpeaker()
		h := newSpeakersHarness(speaker, nil)
		h.segments.segments = []models.TranscriptSegment{}

		resp, err := h.svc.ListSegments(ctx, speaker.ID)
		require.NoError(t, err)
		assert.Zero(t, resp.TalkSeconds)
		assert.Empty(t, resp.Data)
	})

	t.Run("missing speaker surfaces as not found", func(t *testing.T) {
		h := newSpeakersHarness(pendingTestSpeaker(), nil)
		h.speakers.getErr = apperrors.NewNotFoundError("file_speaker", "file speaker not found")

		_, err := h.svc.ListSegments(ctx, uuid.Must(uuid.NewV7()))
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}
