package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/audioscribe/speakerhub/internal/observability"
	"github.com/audioscribe/speakerhub/pkg/cache"
)

const cacheNameProfileName = "profile_name"

// ProfileNameSource loads a profile's display name (nil for unnamed profiles).
type ProfileNameSource interface {
	GetDisplayName(ctx context.Context, id uuid.UUID) (*string, error)
}

// ProfileNames caches profile display names for suggestion listings and event
// payloads, where the same handful of profiles is resolved over and over.
// Invalidate on rename and merge.
type ProfileNames struct {
	source  ProfileNameSource
	cache   *cache.LoaderCache[uuid.UUID, *string]
	metrics observability.CacheMetrics
}

// NewProfileNames creates a name cache over source. metrics may be nil.
func NewProfileNames(
	source ProfileNameSource, names *cache.LoaderCache[uuid.UUID, *string], metrics observability.CacheMetrics,
) *ProfileNames {
	return &ProfileNames{source: source, cache: names, metrics: metrics}
}

// Get returns the display name for a profile, nil when unnamed.
func (n *ProfileNames) Get(ctx context.Context, id uuid.UUID) (*string, error) {
	name, hit, err := n.cache.GetWithStats(ctx, id, n.source.GetDisplayName)
	if err != nil {
		return nil, fmt.Errorf("get profile name: %w", err)
	}

	if n.metrics != nil {
		n.metrics.RecordLookup(ctx, cacheNameProfileName, hit)
	}

	return name, nil
}

// Invalidate drops one profile's cached name.
func (n *ProfileNames) Invalidate(id uuid.UUID) {
	n.cache.Invalidate(id)
}
