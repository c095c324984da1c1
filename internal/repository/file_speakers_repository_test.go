package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOccurrenceQuery(t *testing.T) {
	profileID := uuid.New()

	t.Run("first page has no keyset predicate", func(t *testing.T) {
		query, args := buildOccurrenceQuery(profileID, 50, nil, nil)

		assert.Contains(t, query, "fs.profile_id = $1")
		assert.Contains(t, query, "fs.suggested_profile_id = $1")
		assert.Contains(t, query, "ORDER BY fs.created_at DESC, fs.id DESC LIMIT $2")
		assert.NotContains(t, query, "(fs.created_at, fs.id) <")
		require.Len(t, args, 2)
		assert.Equal(t, profileID, args[0])
		assert.Equal(t, 50, args[1])
	})

	t.Run("cursor page adds row comparison", func(t *testing.T) {
		after := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		afterID := uuid.New()

		query, args := buildOccurrenceQuery(profileID, 20, &after, &afterID)

		assert.Contains(t, query, "(fs.created_at, fs.id) < ($2, $3)")
		assert.Contains(t, query, "LIMIT $4")
		require.Len(t, args, 4)
		assert.Equal(t, profileID, args[0])
		assert.Equal(t, after, args[1])
		assert.Equal(t, afterID, args[2])
		assert.Equal(t, 20, args[3])
	})

	t.Run("pending suggestions count as occurrences", func(t *testing.T) {
		query, _ := buildOccurrenceQuery(profileID, 10, nil, nil)

		assert.Contains(t, query, "fs.suggested_profile_id = $1 AND fs.match_state = 'suggested'")
		assert.Contains(t, query, "COALESCE(fs.match_score, fs.suggested_score)")
	})
}
