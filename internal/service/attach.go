package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/audioscribe/speakerhub/internal/apperrors"
	"github.com/audioscribe/speakerhub/internal/models"
	"github.com/audioscribe/speakerhub/internal/observability"
)

// SpeakerAttacher moves a file speaker (and its voiceprint and segments) onto a
// target profile.
type SpeakerAttacher interface {
	Attach(ctx context.Context, id uuid.UUID, targetProfileID uuid.UUID, state models.MatchState, score *float64, rationale *string) (*models.FileSpeaker, error)
}

// attachWithRedirect attaches a speaker to targetProfileID, and when the target
// was deleted by a concurrent merge, follows the redirect cache to the
// surviving profile and retries once. Returns ProfileGoneError when the
// redirect is known but the retry also finds no profile; plain NotFound when no
// redirect exists. Writes never silently land on a deleted profile.
func attachWithRedirect(
	ctx context.Context, speakers SpeakerAttacher, redirects *MergeRedirects,
	metrics observability.MergeMetrics, speakerID, targetProfileID uuid.UUID,
	state models.MatchState, score *float64, rationale *string,
) (*models.FileSpeaker, error) {
	speaker, err := speakers.Attach(ctx, speakerID, targetProfileID, state, score, rationale)
	if err == nil {
		return speaker, nil
	}

	if !isProfileNotFound(err) {
		return nil, err
	}

	survivor, ok := redirects.Resolve(targetProfileID)
	if !ok {
		return nil, err
	}

	if metrics != nil {
		metrics.RecordRedirectServed(ctx)
	}

	slog.InfoContext(ctx, "attach target was merged away, retrying against survivor",
		"speaker_id", speakerID,
		"profile_id", targetProfileID,
		"merged_into", survivor,
	)

	speaker, retryErr := speakers.Attach(ctx, speakerID, survivor, state, score, rationale)
	if retryErr != nil {
		if isProfileNotFound(retryErr) {
			return nil, apperrors.NewProfileGoneError(targetProfileID, survivor)
		}

		return nil, retryErr
	}

	return speaker, nil
}

// isProfileNotFound reports whether err is a NotFound for a profile, as opposed
// to one for the speaker itself.
func isProfileNotFound(err error) bool {
	var notFound *apperrors.NotFoundError

	return errors.As(err, &notFound) && notFound.Resource == "profile"
}
