package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/audioscribe/speakerhub/internal/apperrors"
	"github.com/audioscribe/speakerhub/internal/models"
	"github.com/audioscribe/speakerhub/internal/observability"
)

// MatcherRepository defines the data access the matcher needs.
type MatcherRepository interface {
	RankProfiles(ctx context.Context, embedding []float32, afterProfileID, excludeProfileID *uuid.UUID, limit int) ([]models.ProfileSimilarity, error)
	BestScoreAgainstProfile(ctx context.Context, embedding []float32, profileID uuid.UUID) (*float64, int64, error)
	CountProfilesWithVoiceprints(ctx context.Context) (int64, error)
}

// MatcherConfig holds the matcher's scan budget and embedding contract.
type MatcherConfig struct {
	// EmbeddingDim is the required query vector dimensionality.
	EmbeddingDim int
	// BaseTimeout plus PerProfileTimeout per stored profile bounds one Rank call.
	BaseTimeout       time.Duration
	PerProfileTimeout time.Duration
	// BatchSize is how many profiles one keyset scan batch covers.
	BatchSize int
}

// Matcher scores stored profiles against a query embedding. A profile's score
// is the maximum cosine similarity over all voiceprints it owns, so adding a
// weak voiceprint never lowers a profile's score. The matcher itself applies
// no thresholds; tier policy lives in the Resolver.
type Matcher struct {
	repo    MatcherRepository
	cfg     MatcherConfig
	metrics observability.ResolutionMetrics
}

// NewMatcher creates a matcher. metrics may be nil when metrics are disabled.
func NewMatcher(repo MatcherRepository, cfg MatcherConfig, metrics observability.ResolutionMetrics) *Matcher {
	return &Matcher{repo: repo, cfg: cfg, metrics: metrics}
}

// ValidateEmbedding rejects vectors the matcher cannot score: empty, wrong
// dimensionality, non-finite values, or all zeros (undefined cosine direction).
func ValidateEmbedding(embedding []float32, dim int) error {
	if len(embedding) == 0 {
		return apperrors.NewInvalidEmbeddingError("embedding must not be empty")
	}

	if len(embedding) != dim {
		return apperrors.NewInvalidEmbeddingError(
			fmt.Sprintf("embedding has %d dimensions, expected %d", len(embedding), dim))
	}

	allZero := true

	for _, v := range embedding {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return apperrors.NewInvalidEmbeddingError("embedding contains non-finite values")
		}

		if v != 0 {
			allZero = false
		}
	}

	if allZero {
		return apperrors.NewInvalidEmbeddingError("embedding must not be all zeros")
	}

	return nil
}

// clampScore maps a raw similarity (1 - cosine distance, so [-1, 1]) into [0, 1].
func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}

	if score > 1 {
		return 1
	}

	return score
}

// Rank scores every profile owning at least one voiceprint against the query
// and returns them sorted by descending score (profile id ascending as
// tie-break). excludeProfileID drops one profile from the ranking, typically
// the query speaker's own placeholder.
//
// The scan deadline is proportional to the corpus: BaseTimeout +
// PerProfileTimeout per profile. When the deadline fires mid-scan, the
// accumulated partial ranking is returned with partial=true instead of an
// error, so the caller can still act on the best candidates seen so far.
func (m *Matcher) Rank(ctx context.Context, query []float32, excludeProfileID *uuid.UUID) ([]models.ProfileSimilarity, bool, error) {
	if err := ValidateEmbedding(query, m.cfg.EmbeddingDim); err != nil {
		return nil, false, err
	}

	profileCount, err := m.repo.CountProfilesWithVoiceprints(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("count profiles: %w", err)
	}

	deadline := m.cfg.BaseTimeout + time.Duration(profileCount)*m.cfg.PerProfileTimeout

	scanCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	ranked := []models.ProfileSimilarity{}
	partial := false

	var afterProfileID *uuid.UUID

	for {
		batch, err := m.repo.RankProfiles(scanCtx, query, afterProfileID, excludeProfileID, m.cfg.BatchSize)
		if err != nil {
			if errors.Is(scanCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				partial = true

				slog.WarnContext(ctx, "matcher deadline exceeded, returning partial ranking",
					"scored_profiles", len(ranked),
					"total_profiles", profileCount,
					"deadline", deadline,
				)

				break
			}

			return nil, false, fmt.Errorf("rank profiles: %w", err)
		}

		for i := range batch {
			batch[i].BestScore = clampScore(batch[i].BestScore)
		}

		ranked = append(ranked, batch...)

		if len(batch) < m.cfg.BatchSize {
			break
		}

		last := batch[len(batch)-1].ProfileID
		afterProfileID = &last
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].BestScore != ranked[j].BestScore {
			return ranked[i].BestScore > ranked[j].BestScore
		}

		return ranked[i].ProfileID.String() < ranked[j].ProfileID.String()
	})

	if m.metrics != nil {
		status := "complete"
		if partial {
			status = "partial"
		}

		m.metrics.RecordMatchDuration(ctx, time.Since(start), status)
	}

	return ranked, partial, nil
}

// RankAgainst scores the query against a single profile's voiceprints. The
// Retroactive Labeler uses this to re-check outstanding speakers against one
// renamed profile without scanning the whole corpus. voiceprintCount is zero
// when the profile owns nothing, in which case the score is zero.
func (m *Matcher) RankAgainst(ctx context.Context, query []float32, profileID uuid.UUID) (float64, int64, error) {
	if err := ValidateEmbedding(query, m.cfg.EmbeddingDim); err != nil {
		return 0, 0, err
	}

	score, count, err := m.repo.BestScoreAgainstProfile(ctx, query, profileID)
	if err != nil {
		return 0, 0, fmt.Errorf("rank against profile: %w", err)
	}

	if score == nil || count == 0 {
		return 0, count, nil
	}

	return clampScore(*score), count, nil
}
