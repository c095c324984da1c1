package service

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/audioscribe/speakerhub/internal/datatypes"
	"github.com/audioscribe/speakerhub/internal/models"
	"github.com/audioscribe/speakerhub/internal/observability"
)

// WebhookDispatchInserter batch-inserts dispatch jobs (e.g. a River client,
// or the retrying wrapper around one).
type WebhookDispatchInserter interface {
	InsertMany(ctx context.Context, params []river.InsertManyParams) ([]*rivertype.JobInsertResult, error)
}

// WebhookSubscriberSource lists the enabled webhooks subscribed to an event
// type. Satisfied by the webhooks repository and its caching layer.
type WebhookSubscriberSource interface {
	ListEnabledForEventType(ctx context.Context, eventType datatypes.EventType) ([]models.Webhook, error)
}

// WebhookProvider fans a published event out to every enabled webhook
// subscribed to its type, one dispatch job per endpoint. It runs on the
// message publisher's worker goroutine and only enqueues; delivery happens in
// WebhookDispatchWorker.
type WebhookProvider struct {
	inserter    WebhookDispatchInserter
	repo        WebhookSubscriberSource
	maxAttempts int
	maxFanOut   int
	metrics     observability.WebhookMetrics
}

// NewWebhookProvider creates the provider. maxFanOut caps the size of one
// InsertMany statement; a popular event type is enqueued in chunks of that
// size. metrics may be nil when metrics are disabled.
func NewWebhookProvider(
	inserter WebhookDispatchInserter, repo WebhookSubscriberSource, maxAttempts, maxFanOut int,
	metrics observability.WebhookMetrics,
) *WebhookProvider {
	return &WebhookProvider{
		inserter:    inserter,
		repo:        repo,
		maxAttempts: maxAttempts,
		maxFanOut:   maxFanOut,
		metrics:     metrics,
	}
}

var _ eventPublisher = (*WebhookProvider)(nil)

// PublishEvent enqueues one dispatch job per subscribed endpoint. An insert
// failure abandons the remaining chunks; River's unique opts make the next
// publish of the same event safe to retry without double-delivering to the
// endpoints that were already enqueued.
func (p *WebhookProvider) PublishEvent(ctx context.Context, event Event) {
	subscribers, err := p.repo.ListEnabledForEventType(ctx, event.Type)
	if err != nil {
		p.recordError(ctx, "list_failed")
		slog.Error("webhook fan-out: list subscribers failed",
			"event_id", event.ID, "event_type", event.Type, "error", err)

		return
	}

	if len(subscribers) == 0 {
		return
	}

	opts := WebhookDispatchInsertOpts(p.maxAttempts)
	enqueued := 0

	for len(subscribers) > 0 {
		chunk := subscribers
		if len(chunk) > p.maxFanOut {
			chunk = chunk[:p.maxFanOut]
		}

		subscribers = subscribers[len(chunk):]

		batch := make([]river.InsertManyParams, len(chunk))
		for i, hook := range chunk {
			batch[i] = river.InsertManyParams{
				Args: WebhookDispatchArgs{
					EventID:       event.ID,
					EventType:     event.Type.String(),
					Timestamp:     event.Timestamp,
					Data:          event.Data,
					ChangedFields: event.ChangedFields,
					WebhookID:     hook.ID,
				},
				InsertOpts: opts,
			}
		}

		if _, err := p.inserter.InsertMany(ctx, batch); err != nil {
			p.recordError(ctx, "enqueue_failed")
			slog.Error("webhook fan-out: enqueue failed",
				"event_id", event.ID, "event_type", event.Type,
				"enqueued", enqueued, "remaining", len(chunk)+len(subscribers), "error", err)

			return
		}

		enqueued += len(chunk)
	}

	if p.metrics != nil {
		p.metrics.RecordJobsEnqueued(ctx, event.Type.String(), int64(enqueued))
	}
}

func (p *WebhookProvider) recordError(ctx context.Context, reason string) {
	if p.metrics != nil {
		p.metrics.RecordProviderError(ctx, reason)
	}
}
