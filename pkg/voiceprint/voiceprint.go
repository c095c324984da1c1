// Package voiceprint provides utilities for speaker embedding vectors
// (validation, L2 normalization, cosine scoring).
package voiceprint

import (
	"errors"
	"fmt"
	"math"
)

// Validation errors for incoming voiceprint vectors.
var (
	ErrEmpty        = errors.New("voiceprint: vector is empty")
	ErrDimension    = errors.New("voiceprint: wrong dimension")
	ErrZeroVector   = errors.New("voiceprint: all components are zero")
	ErrNotFinite    = errors.New("voiceprint: vector contains NaN or Inf")
)

// Validate checks that vec is a usable voiceprint of the expected dimension.
// A vector that fails here must be rejected before any matching occurs.
func Validate(vec []float32, dim int) error {
	if len(vec) == 0 {
		return ErrEmpty
	}

	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vec), dim)
	}

	allZero := true

	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrNotFinite
		}

		if v != 0 {
			allZero = false
		}
	}

	if allZero {
		return ErrZeroVector
	}

	return nil
}

// NormalizeL2 takes a raw voiceprint vector and normalizes it to a length of 1.
// It modifies the slice in-place to save memory allocations during high-volume
// diarization ingestion.
func NormalizeL2(vector []float32) {
	var sumSquares float64

	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}

	// Avoid division by zero (a validated voiceprint is never all zeros)
	if sumSquares == 0 {
		return
	}

	magnitude := math.Sqrt(sumSquares)

	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}
}

// CosineSimilarity returns the cosine of the angle between a and b, in [-1, 1].
// Returns 0 when either vector has zero magnitude or lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ClampScore maps a raw similarity (cosine similarity, or 1 - cosine distance
// as computed in SQL) into the [0, 1] score range used by the tier policy.
// Negative cosine similarity means "less alike than orthogonal" and clamps to 0.
func ClampScore(raw float64) float64 {
	if math.IsNaN(raw) {
		return 0
	}

	if raw < 0 {
		return 0
	}

	if raw > 1 {
		return 1
	}

	return raw
}

// Score returns the clamped [0, 1] similarity score between a and b.
func Score(a, b []float32) float64 {
	return ClampScore(CosineSimilarity(a, b))
}
