package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audioscribe/speakerhub/pkg/cache"
)

type stubNameSource struct {
	names map[uuid.UUID]*string
	err   error
	calls int
}

func (s *stubNameSource) GetDisplayName(_ context.Context, id uuid.UUID) (*string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}

	return s.names[id], nil
}

type stubCacheMetrics struct {
	hits   []string
	misses []string
}

func (s *stubCacheMetrics) RecordLookup(_ context.Context, cacheName string, hit bool) {
	if hit {
		s.hits = append(s.hits, cacheName)
		return
	}

	s.misses = append(s.misses, cacheName)
}

func newNameCache(t *testing.T) *cache.LoaderCache[uuid.UUID, *string] {
	t.Helper()

	c, err := cache.NewLoaderCache[uuid.UUID, *string](
		128, func(id uuid.UUID) string { return id.String() })
	require.NoError(t, err)

	return c
}

func newTestProfileNames(t *testing.T, names map[uuid.UUID]*string) *ProfileNames {
	t.Helper()

	return NewProfileNames(&stubNameSource{names: names}, newNameCache(t), nil)
}

func TestProfileNames_Get(t *testing.T) {
	ctx := context.Background()
	id := uuid.Must(uuid.NewV7())
	name := "Sam Weaver"

	t.Run("loads once and serves repeats from cache", func(t *testing.T) {
		source := &stubNameSource{names: map[uuid.UUID]*string{id: &name}}
		names := NewProfileNames(source, newNameCache(t), nil)

		for i := 0; i < 3; i++ {
			got, err := names.Get(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, name, *got)
		}

		assert.Equal(t, 1, source.calls)
	})

	t.Run("unnamed profile resolves to nil", func(t *testing.T) {
		names := newTestProfileNames(t, nil)

		got, err := names.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("source failure surfaces as an error", func(t *testing.T) {
		source := &stubNameSource{err: errors.New("db down")}
		names := NewProfileNames(source, newNameCache(t), nil)

		_, err := names.Get(ctx, id)
		assert.ErrorContains(t, err, "get profile name")
	})

	t.Run("invalidate forces a reload", func(t *testing.T) {
		source := &stubNameSource{names: map[uuid.UUID]*string{id: &name}}
		names := NewProfileNames(source, newNameCache(t), nil)

		_, err := names.Get(ctx, id)
		require.NoError(t, err)
		names.Invalidate(id)
		_, err = names.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 2, source.calls)
	})

	t.Run("records hits and misses when metrics are wired", func(t *testing.T) {
		source := &stubNameSource{names: map[uuid.UUID]*string{id: &name}}
		metrics := &stubCacheMetrics{}
		names := NewProfileNames(source, newNameCache(t), metrics)

		_, err := names.Get(ctx, id)
		require.NoError(t, err)
		_, err = names.Get(ctx, id)
		require.NoError(t, err)

		assert.Equal(t, []string{"profile_name"}, metrics.misses)
		assert.Equal(t, []string{"profile_name"}, metrics.hits)
	})
}
