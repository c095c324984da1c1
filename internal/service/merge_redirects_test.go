package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeRedirects_Resolve(t *testing.T) {
	a := uuid.MustParse("018f0003-0000-7000-8000-00000000000a")
	b := uuid.MustParse("018f0003-0000-7000-8000-00000000000b")
	c := uuid.MustParse("018f0003-0000-7000-8000-00000000000c")

	t.Run("unknown id has no redirect", func(t *testing.T) {
		redirects := NewMergeRedirects(time.Minute)

		_, ok := redirects.Resolve(a)
		assert.False(t, ok)
	})

	t.Run("resolves a recorded merge", func(t *testing.T) {
		redirects := NewMergeRedirects(time.Minute)
		redirects.Record(a, b)

		got, ok := redirects.Resolve(a)
		require.True(t, ok)
		assert.Equal(t, b, got)
	})

	t.Run("follows chains to the final survivor", func(t *testing.T) {
		redirects := NewMergeRedirects(time.Minute)
		redirects.Record(a, b)
		redirects.Record(b, c)

		got, ok := redirects.Resolve(a)
		require.True(t, ok)
		assert.Equal(t, c, got)
	})

	t.Run("caps pathological cycles instead of spinning", func(t *testing.T) {
		redirects := NewMergeRedirects(time.Minute)
		redirects.Record(a, b)
		redirects.Record(b, a)

		_, ok := redirects.Resolve(a)
		assert.True(t, ok)
	})

	t.Run("entries expire after the ttl", func(t *testing.T) {
		redirects := NewMergeRedirects(30 * time.Millisecond)
		redirects.Record(a, b)

		time.Sleep(100 * time.Millisecond)

		_, ok := redirects.Resolve(a)
		assert.False(t, ok)
	})
}
