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

type attachCall struct {
	speakerID uuid.UUID
	profileID uuid.UUID
	state     models.MatchState
	score     *float64
	rationale *string
}

type suggestCall struct {
	speakerID uuid.UUID
	profileID uuid.UUID
	score     float64
	rationale string
}

type unmatchCall struct {
	speakerID uuid.UUID
	rationale string
}

type mockResolverSpeakers struct {
	attachFunc func(
		ctx context.Context, id, targetProfileID uuid.UUID,
		state models.MatchState, score *float64, rationale *string,
	) (*models.FileSpeaker, error)
	suggestFunc   func(ctx context.Context, id, profileID uuid.UUID, score float64, rationale string) (*models.FileSpeaker, error)
	unmatchedFunc func(ctx context.Context, id uuid.UUID, rationale string) (*models.FileSpeaker, error)

	attaches  []attachCall
	suggests  []suggestCall
	unmatches []unmatchCall
}

func (m *mockResolverSpeakers) Attach(
	ctx context.Context, id uuid.UUID, targetProfileID uuid.UUID,
	state models.MatchState, score *float64, rationale *string,
) (*models.FileSpeaker, error) {
	m.attaches = append(m.attaches, attachCall{id, targetProfileID, state, score, rationale})
	if m.attachFunc != nil {
		return m.attachFunc(ctx, id, targetProfileID, state, score, rationale)
	}

	return &models.FileSpeaker{
		ID: id, ProfileID: targetProfileID, MatchState: state, MatchScore: score, Rationale: rationale,
	}, nil
}

func (m *mockResolverSpeakers) Suggest(
	ctx context.Context, id uuid.UUID, profileID uuid.UUID, score float64, rationale string,
) (*models.FileSpeaker, error) {
	m.suggests = append(m.suggests, suggestCall{id, profileID, score, rationale})
	if m.suggestFunc != nil {
		return m.suggestFunc(ctx, id, profileID, score, rationale)
	}

	return &models.FileSpeaker{
		ID: id, MatchState: models.MatchStateSuggested,
		SuggestedProfileID: &profileID, SuggestedScore: &score, Rationale: &rationale,
	}, nil
}

func (m *mockResolverSpeakers) MarkUnmatched(
	ctx context.Context, id uuid.UUID, rationale string,
) (*models.FileSpeaker, error) {
	m.unmatches = append(m.unmatches, unmatchCall{id, rationale})
	if m.unmatchedFunc != nil {
		return m.unmatchedFunc(ctx, id, rationale)
	}

	return &models.FileSpeaker{ID: id, MatchState: models.MatchStateUnmatched, Rationale: &rationale}, nil
}

type mockResolverProfiles struct {
	markSuggestedErr error
	promoted         []uuid.UUID
}

func (m *mockResolverProfiles) MarkSuggested(_ context.Context, id uuid.UUID) error {
	m.promoted = append(m.promoted, id)

	return m.markSuggestedErr
}

type recordedEvent struct {
	eventType datatypes.EventType
	data      any
}

type recordingPublisher struct {
	events []recordedEvent
}

func (p *recordingPublisher) PublishEvent(_ context.Context, eventType datatypes.EventType, data any) {
	p.events = append(p.events, recordedEvent{eventType: eventType, data: data})
}

func (p *recordingPublisher) PublishEventWithChangedFields(
	_ context.Context, eventType datatypes.EventType, data any, _ []string,
) {
	p.events = append(p.events, recordedEvent{eventType: eventType, data: data})
}

type resolverHarness struct {
	resolver  *Resolver
	speakers  *mockResolverSpeakers
	profiles  *mockResolverProfiles
	publisher *recordingPublisher
	redirects *MergeRedirects
	metrics   *stubResolutionMetrics
	excludes  []*uuid.UUID
}

// newResolverHarness builds a resolver whose matcher always returns ranking,
// with thresholds Accept 0.75 / Suggest 0.50.
func newResolverHarness(ranking []models.ProfileSimilarity) *resolverHarness {
	h := &resolverHarness{
		speakers:  &mockResolverSpeakers{},
		profiles:  &mockResolverProfiles{},
		publisher: &recordingPublisher{},
		redirects: NewMergeRedirects(time.Minute),
		metrics:   &stubResolutionMetrics{},
	}

	repo := &mockMatcherRepo{
		countFunc: func(context.Context) (int64, error) { return int64(len(ranking)), nil },
		rankFunc: func(
			_ context.Context, _ []float32, _, exclude *uuid.UUID, _ int,
		) ([]models.ProfileSimilarity, error) {
			h.excludes = append(h.excludes, exclude)

			return ranking, nil
		},
	}

	h.resolver = NewResolver(
		NewMatcher(repo, testMatcherConfig(), nil),
		h.speakers, h.profiles, h.redirects, nil, h.publisher,
		Thresholds{Accept: 0.75, Suggest: 0.50}, h.metrics, nil,
	)

	return h
}

func pendingTestSpeaker() *models.FileSpeaker {
	return &models.FileSpeaker{
		ID:          uuid.Must(uuid.NewV7()),
		MediaItemID: uuid.Must(uuid.NewV7()),
		Label:       "SPEAKER_00",
		ProfileID:   uuid.Must(uuid.NewV7()),
		MatchState:  models.MatchStatePending,
	}
}

func TestThresholds_TierFor(t *testing.T) {
	th := Thresholds{Accept: 0.75, Suggest: 0.50}

	assert.Equal(t, models.TierHigh, th.TierFor(1.0))
	assert.Equal(t, models.TierHigh, th.TierFor(0.75))
	assert.Equal(t, models.TierMedium, th.TierFor(0.74))
	assert.Equal(t, models.TierMedium, th.TierFor(0.50))
	assert.Equal(t, models.TierLow, th.TierFor(0.49))
	assert.Equal(t, models.TierLow, th.TierFor(0))
}

func TestResolver_ClassifySpeaker(t *testing.T) {
	ctx := context.Background()

	t.Run("already classified speaker is skipped", func(t *testing.T) {
		h := newResolverHarness(nil)
		speaker := pendingTestSpeaker()
		speaker.MatchState = models.MatchStateSuggested

		outcome, err := h.resolver.ClassifySpeaker(ctx, speaker, testQuery())
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkipped, outcome)
		assert.Empty(t, h.speakers.attaches)
		assert.Empty(t, h.speakers.suggests)
		assert.Empty(t, h.speakers.unmatches)
		assert.Empty(t, h.excludes)
		assert.Equal(t, []string{OutcomeSkipped}, h.metrics.outcomes)
	})

	t.Run("auto-attaches at or above the accept threshold", func(t *testing.T) {
		target := uuid.Must(uuid.NewV7())
		h := newResolverHarness([]models.ProfileSimilarity{
			{ProfileID: target, BestScore: 0.9, VoiceprintCount: 2},
		})
		speaker := pendingTestSpeaker()

		outcome, err := h.resolver.ClassifySpeaker(ctx, speaker, testQuery())
		require.NoError(t, err)
		assert.Equal(t, OutcomeAutoAttached, outcome)

		require.Len(t, h.speakers.attaches, 1)
		call := h.speakers.attaches[0]
		assert.Equal(t, speaker.ID, call.speakerID)
		assert.Equal(t, target, call.profileID)
		assert.Equal(t, models.MatchStateAutoAttached, call.state)
		require.NotNil(t, call.score)
		assert.InDelta(t, 0.9, *call.score, 1e-9)
		require.NotNil(t, call.rationale)
		assert.Contains(t, *call.rationale, "accept threshold")

		assert.Equal(t, []uuid.UUID{target}, h.profiles.promoted)

		require.Len(t, h.publisher.events, 1)
		assert.Equal(t, datatypes.SpeakerAutoAttached, h.publisher.events[0].eventType)
		data, ok := h.publisher.events[0].data.(*SpeakerEventData)
		require.True(t, ok)
		assert.Equal(t, target, data.ProfileID)
		assert.Equal(t, speaker.MediaItemID, data.MediaItemID)
		require.NotNil(t, data.Score)
		assert.InDelta(t, 0.9, *data.Score, 1e-9)

		assert.Equal(t, []string{OutcomeAutoAttached}, h.metrics.outcomes)
	})

	t.Run("suggests within the suggestion band", func(t *testing.T) {
		target := uuid.Must(uuid.NewV7())
		h := newResolverHarness([]models.ProfileSimilarity{
			{ProfileID: target, BestScore: 0.6, VoiceprintCount: 1},
		})
		speaker := pendingTestSpeaker()

		outcome, err := h.resolver.ClassifySpeaker(ctx, speaker, testQuery())
		require.NoError(t, err)
		assert.Equal(t, OutcomeSuggested, outcome)

		require.Len(t, h.speakers.suggests, 1)
		call := h.speakers.suggests[0]
		assert.Equal(t, speaker.ID, call.speakerID)
		assert.Equal(t, target, call.profileID)
		assert.InDelta(t, 0.6, call.score, 1e-9)
		assert.Contains(t, call.rationale, "suggestion band")

		assert.Empty(t, h.speakers.attaches)
		assert.Empty(t, h.profiles.promoted)

		require.Len(t, h.publisher.events, 1)
		assert.Equal(t, datatypes.SpeakerSuggested, h.publisher.events[0].eventType)
		data, ok := h.publisher.events[0].data.(*SpeakerEventData)
		require.True(t, ok)
		assert.Equal(t, target, data.ProfileID)
	})

	t.Run("marks unmatched below the suggest threshold", func(t *testing.T) {
		h := newResolverHarness([]models.ProfileSimilarity{
			{ProfileID: uuid.Must(uuid.NewV7()), BestScore: 0.3, VoiceprintCount: 1},
		})
		speaker := pendingTestSpeaker()

		outcome, err := h.resolver.ClassifySpeaker(ctx, speaker, testQuery())
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnmatched, outcome)

		require.Len(t, h.speakers.unmatches, 1)
		assert.Equal(t, speaker.ID, h.speakers.unmatches[0].speakerID)
		assert.Contains(t, h.speakers.unmatches[0].rationale, "below suggestion threshold")
		assert.Empty(t, h.publisher.events)
	})

	t.Run("threshold boundaries are inclusive", func(t *testing.T) {
		cases := []struct {
			score   float64
			outcome string
		}{
			{0.75, OutcomeAutoAttached},
			{0.74, OutcomeSuggested},
			{0.50, OutcomeSuggested},
			{0.49, OutcomeUnmatched},
		}
		for _, tc := range cases {
			h := newResolverHarness([]models.ProfileSimilarity{
				{ProfileID: uuid.Must(uuid.NewV7()), BestScore: tc.score, VoiceprintCount: 1},
			})

			outcome, err := h.resolver.ClassifySpeaker(ctx, pendingTestSpeaker(), testQuery())
			require.NoError(t, err)
			assert.Equalf(t, tc.outcome, outcome, "score %v", tc.score)
		}
	})

	t.Run("empty corpus marks the speaker unmatched", func(t *testing.T) {
		h := newResolverHarness(nil)
		speaker := pendingTestSpeaker()

		outcome, err := h.resolver.ClassifySpeaker(ctx, speaker, testQuery())
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnmatched, outcome)
		require.Len(t, h.speakers.unmatches, 1)
		assert.Equal(t, "no voiceprint corpus to match against", h.speakers.unmatches[0].rationale)
	})

	t.Run("excludes the speaker's own placeholder from the ranking", func(t *testing.T) {
		h := newResolverHarness(nil)
		speaker := pendingTestSpeaker()

		_, err := h.resolver.ClassifySpeaker(ctx, speaker, testQuery())
		require.NoError(t, err)
		require.Len(t, h.excludes, 1)
		require.NotNil(t, h.excludes[0])
		assert.Equal(t, speaker.ProfileID, *h.excludes[0])
	})

	t.Run("verified conflict on attach becomes a skip", func(t *testing.T) {
		h := newResolverHarness([]models.ProfileSimilarity{
			{ProfileID: uuid.Must(uuid.NewV7()), BestScore: 0.9, VoiceprintCount: 1},
		})
		h.speakers.attachFunc = func(
			context.Context, uuid.UUID, uuid.UUID, models.MatchState, *float64, *string,
		) (*models.FileSpeaker, error) {
			return nil, apperrors.NewConflictError("speaker already verified")
		}

		outcome, err := h.resolver.ClassifySpeaker(ctx, pendingTestSpeaker(), testQuery())
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkipped, outcome)
		assert.Empty(t, h.profiles.promoted)
		assert.Empty(t, h.publisher.events)
		assert.Equal(t, []string{OutcomeSkipped}, h.metrics.outcomes)
	})

	t.Run("verified conflict on unmatch becomes a skip", func(t *testing.T) {
		h := newResolverHarness([]models.ProfileSimilarity{
			{ProfileID: uuid.Must(uuid.NewV7()), BestScore: 0.2, VoiceprintCount: 1},
		})
		h.speakers.unmatchedFunc = func(context.Context, uuid.UUID, string) (*models.FileSpeaker, error) {
			return nil, apperrors.NewConflictError("speaker already verified")
		}

		outcome, err := h.resolver.ClassifySpeaker(ctx, pendingTestSpeaker(), testQuery())
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkipped, outcome)
	})

	t.Run("attach follows the merge redirect when the target vanished", func(t *testing.T) {
		target := uuid.Must(uuid.NewV7())
		survivor := uuid.Must(uuid.NewV7())
		h := newResolverHarness([]models.ProfileSimilarity{
			{ProfileID: target, BestScore: 0.9, VoiceprintCount: 1},
		})
		h.redirects.Record(target, survivor)
		h.speakers.attachFunc = func(
			_ context.Context, id, profileID uuid.UUID, state models.MatchState, score *float64, _ *string,
		) (*models.FileSpeaker, error) {
			if profileID == target {
				return nil, apperrors.NewNotFoundError("profile", "profile not found")
			}

			return &models.FileSpeaker{ID: id, ProfileID: profileID, MatchState: state, MatchScore: score}, nil
		}

		outcome, err := h.resolver.ClassifySpeaker(ctx, pendingTestSpeaker(), testQuery())
		require.NoError(t, err)
		assert.Equal(t, OutcomeAutoAttached, outcome)

		require.Len(t, h.speakers.attaches, 2)
		assert.Equal(t, target, h.speakers.attaches[0].profileID)
		assert.Equal(t, survivor, h.speakers.attaches[1].profileID)
		assert.Equal(t, []uuid.UUID{survivor}, h.profiles.promoted)

		require.Len(t, h.publisher.events, 1)
		data, ok := h.publisher.events[0].data.(*SpeakerEventData)
		require.True(t, ok)
		assert.Equal(t, survivor, data.ProfileID)
	})

	t.Run("missing speaker surfaces as an error", func(t *testing.T) {
		h := newResolverHarness([]models.ProfileSimilarity{
			{ProfileID: uuid.Must(uuid.NewV7()), BestScore: 0.9, VoiceprintCount: 1},
		})
		h.speakers.attachFunc = func(
			context.Context, uuid.UUID, uuid.UUID, models.MatchState, *float64, *string,
		) (*models.FileSpeaker, error) {
			return nil, apperrors.NewNotFoundError("file_speaker", "file speaker not found")
		}

		outcome, err := h.resolver.ClassifySpeaker(ctx, pendingTestSpeaker(), testQuery())
		assert.Empty(t, outcome)

		var notFound *apperrors.NotFoundError

		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "file_speaker", notFound.Resource)
	})

	t.Run("profile promotion failure does not undo the attach", func(t *testing.T) {
		target := uuid.Must(uuid.NewV7())
		h := newResolverHarness([]models.ProfileSimilarity{
			{ProfileID: target, BestScore: 0.9, VoiceprintCount: 1},
		})
		h.profiles.markSuggestedErr = errors.New("db down")

		outcome, err := h.resolver.ClassifySpeaker(ctx, pendingTestSpeaker(), testQuery())
		require.NoError(t, err)
		assert.Equal(t, OutcomeAutoAttached, outcome)
		require.Len(t, h.publisher.events, 1)
	})

	t.Run("matcher failure aborts classification", func(t *testing.T) {
		repo := &mockMatcherRepo{
			countFunc: func(context.Context) (int64, error) { return 0, errors.New("db down") },
		}
		speakers := &mockResolverSpeakers{}
		r := NewResolver(
			NewMatcher(repo, testMatcherConfig(), nil),
			speakers, &mockResolverProfiles{}, NewMergeRedirects(time.Minute), nil, nil,
			Thresholds{Accept: 0.75, Suggest: 0.50}, nil, nil,
		)

		outcome, err := r.ClassifySpeaker(ctx, pendingTestSpeaker(), testQuery())
		assert.Empty(t, outcome)
		assert.ErrorContains(t, err, "rank speaker")
		assert.Empty(t, speakers.attaches)
		assert.Empty(t, speakers.unmatches)
	})

	t.Run("acts on a partial ranking from a degraded matcher run", func(t *testing.T) {
		target := uuid.Must(uuid.NewV7())

		cfg := testMatcherConfig()
		cfg.BaseTimeout = 20 * time.Millisecond
		cfg.PerProfileTimeout = 0
		cfg.BatchSize = 1
		repo := &mockMatcherRepo{
			countFunc: func(context.Context) (int64, error) { return 3, nil },
			rankFunc: func(
				scanCtx context.Context, _ []float32, after, _ *uuid.UUID, _ int,
			) ([]models.ProfileSimilarity, error) {
				if after == nil {
					return []models.ProfileSimilarity{{ProfileID: target, BestScore: 0.9, VoiceprintCount: 1}}, nil
				}

				<-scanCtx.Done()

				return nil, scanCtx.Err()
			},
		}

		speakers := &mockResolverSpeakers{}
		r := NewResolver(
			NewMatcher(repo, cfg, nil),
			speakers, &mockResolverProfiles{}, NewMergeRedirects(time.Minute), nil, nil,
			Thresholds{Accept: 0.75, Suggest: 0.50}, nil, nil,
		)

		outcome, err := r.ClassifySpeaker(ctx, pendingTestSpeaker(), testQuery())
		require.NoError(t, err)
		assert.Equal(t, OutcomeAutoAttached, outcome)
		require.Len(t, speakers.attaches, 1)
		assert.Equal(t, target, speakers.attaches[0].profileID)
	})

	t.Run("events carry the resolved profile display name", func(t *testing.T) {
		target := uuid.Must(uuid.NewV7())
		name := "Dana Given"

		h := newResolverHarness([]models.ProfileSimilarity{
			{ProfileID: target, BestScore: 0.6, VoiceprintCount: 1},
		})
		h.resolver.names = newTestProfileNames(t, map[uuid.UUID]*string{target: &name})

		_, err := h.resolver.ClassifySpeaker(ctx, pendingTestSpeaker(), testQuery())
		require.NoError(t, err)
		require.Len(t, h.publisher.events, 1)
		data, ok := h.publisher.events[0].data.(*SpeakerEventData)
		require.True(t, ok)
		require.NotNil(t, data.ProfileName)
		assert.Equal(t, name, *data.ProfileName)
	})
}
