package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audioscribe/speakerhub/internal/datatypes"
	"github.com/audioscribe/speakerhub/internal/models"
)

// mockWebhookInserter records every InsertMany batch; fails all calls when
// err is set.
type mockWebhookInserter struct {
	batches [][]river.InsertManyParams
	err     error
}

func (m *mockWebhookInserter) InsertMany(_ context.Context, params []river.InsertManyParams) ([]*rivertype.JobInsertResult, error) {
	batch := make([]river.InsertManyParams, len(params))
	copy(batch, params)
	m.batches = append(m.batches, batch)

	if m.err != nil {
		return nil, m.err
	}

	results := make([]*rivertype.JobInsertResult, len(params))
	for i := range results {
		results[i] = &rivertype.JobInsertResult{Job: &rivertype.JobRow{ID: int64(i + 1)}}
	}

	return results, nil
}

type mockSubscriberSource struct {
	subscribers []models.Webhook
	err         error
}

func (m *mockSubscriberSource) ListEnabledForEventType(_ context.Context, _ datatypes.EventType) ([]models.Webhook, error) {
	return m.subscribers, m.err
}

func subscriberHooks(n int) []models.Webhook {
	hooks := make([]models.Webhook, n)
	for i := range hooks {
		hooks[i] = models.Webhook{ID: uuid.Must(uuid.NewV7())}
	}

	return hooks
}

func TestWebhookProviderPublishEvent(t *testing.T) {
	event := Event{
		ID:        uuid.Must(uuid.NewV7()),
		Type:      datatypes.SpeakerSuggested,
		Timestamp: time.Now().Unix(),
		Data:      map[string]string{"id": "123"},
	}

	t.Run("enqueues one dispatch job per subscriber", func(t *testing.T) {
		inserter := &mockWebhookInserter{}
		source := &mockSubscriberSource{subscribers: subscriberHooks(2)}

		provider := NewWebhookProvider(inserter, source, 3, 500, nil)
		provider.PublishEvent(context.Background(), event)

		require.Len(t, inserter.batches, 1)
		require.Len(t, inserter.batches[0], 2)

		for i, param := range inserter.batches[0] {
			args, ok := param.Args.(WebhookDispatchArgs)
			require.True(t, ok, "batch entry %d is not WebhookDispatchArgs", i)

			assert.Equal(t, event.ID, args.EventID)
			assert.Equal(t, event.Type.String(), args.EventType)
			assert.Equal(t, event.Timestamp, args.Timestamp)
			assert.Equal(t, source.subscribers[i].ID, args.WebhookID)

			require.NotNil(t, param.InsertOpts)
			assert.Equal(t, 3, param.InsertOpts.MaxAttempts)
			assert.True(t, param.InsertOpts.UniqueOpts.ByArgs)
			assert.Equal(t, 24*time.Hour, param.InsertOpts.UniqueOpts.ByPeriod)
		}
	})

	t.Run("no subscribers means no insert", func(t *testing.T) {
		inserter := &mockWebhookInserter{}
		provider := NewWebhookProvider(inserter, &mockSubscriberSource{}, 3, 500, nil)

		provider.PublishEvent(context.Background(), event)

		assert.Empty(t, inserter.batches)
	})

	t.Run("list failure skips the insert entirely", func(t *testing.T) {
		inserter := &mockWebhookInserter{}
		source := &mockSubscriberSource{err: errors.New("db down")}

		provider := NewWebhookProvider(inserter, source, 3, 500, nil)
		provider.PublishEvent(context.Background(), event)

		assert.Empty(t, inserter.batches)
	})

	t.Run("insert failure abandons the remaining chunks", func(t *testing.T) {
		inserter := &mockWebhookInserter{err: errors.New("river down")}
		source := &mockSubscriberSource{subscribers: subscriberHooks(7)}

		provider := NewWebhookProvider(inserter, source, 5, 3, nil)
		provider.PublishEvent(context.Background(), event)

		// The first chunk of 3 was attempted and failed; chunks two and three
		// were never sent.
		require.Len(t, inserter.batches, 1)
		assert.Len(t, inserter.batches[0], 3)
		assert.Equal(t, 5, inserter.batches[0][0].InsertOpts.MaxAttempts)
	})

	t.Run("chunks a large fan-out by maxFanOut", func(t *testing.T) {
		inserter := &mockWebhookInserter{}
		source := &mockSubscriberSource{subscribers: subscriberHooks(501)}

		provider := NewWebhookProvider(inserter, source, 3, 500, nil)
		provider.PublishEvent(context.Background(), event)

		require.Len(t, inserter.batches, 2)
		assert.Len(t, inserter.batches[0], 500)
		assert.Len(t, inserter.batches[1], 1)
	})
}
