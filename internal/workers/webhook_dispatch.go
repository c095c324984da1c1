// Package workers provides River job workers (speaker resolution, profile
// relabeling, webhook delivery).
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/audioscribe/speakerhub/internal/models"
	"github.com/audioscribe/speakerhub/internal/observability"
	"github.com/audioscribe/speakerhub/internal/service"
)

// Delivery outcome labels shared by the delivery counter and the latency
// histogram. Kept in sync with the allowed statuses in observability.
const (
	deliverySucceeded   = "success"
	deliveryRetried     = "retry"
	deliveryFailedFinal = "failed_final"
)

// WebhookDispatchWorker delivers one event to one webhook endpoint. Retry
// scheduling belongs to River: the worker returns the send error and lets the
// queue back off. Once the job is out of attempts the endpoint is disabled so
// a dead receiver stops consuming delivery attempts for every later event.
type WebhookDispatchWorker struct {
	river.WorkerDefaults[service.WebhookDispatchArgs]

	repo    webhookDispatchRepo
	sender  service.WebhookSender
	metrics observability.WebhookMetrics
}

// webhookDispatchRepo is the minimal repo interface needed by the worker.
type webhookDispatchRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webhook, error)
	Disable(ctx context.Context, id uuid.UUID) error
}

// NewWebhookDispatchWorker creates a worker that uses the given repo and sender.
// metrics may be nil when metrics are disabled.
func NewWebhookDispatchWorker(
	repo webhookDispatchRepo, sender service.WebhookSender, metrics observability.WebhookMetrics,
) *WebhookDispatchWorker {
	return &WebhookDispatchWorker{repo: repo, sender: sender, metrics: metrics}
}

// WebhookDeliveryTimeout is the max duration for a single webhook delivery (align with HTTP client timeout).
const WebhookDeliveryTimeout = 25 * time.Second

// Timeout limits how long a single delivery can run.
func (w *WebhookDispatchWorker) Timeout(*river.Job[service.WebhookDispatchArgs]) time.Duration {
	return WebhookDeliveryTimeout
}

// Work loads the webhook, rebuilds the payload from the job args, and sends
// once.
func (w *WebhookDispatchWorker) Work(ctx context.Context, job *river.Job[service.WebhookDispatchArgs]) error {
	args := job.Args
	start := time.Now()

	webhook, err := w.repo.GetByID(ctx, args.WebhookID)
	if err != nil {
		// A deleted webhook is not worth a retry; any queued jobs for it
		// drain the same way.
		if w.metrics != nil {
			w.metrics.RecordDispatchError(ctx, "get_webhook_failed")
		}
		w.recordOutcome(ctx, start, args.EventType, deliveryFailedFinal)

		slog.Error("webhook dispatch: load webhook failed",
			"event_id", args.EventID,
			"webhook_id", args.WebhookID,
			"error", err,
		)

		return nil
	}

	if !webhook.Enabled {
		slog.Debug("webhook dispatch: endpoint disabled, dropping event",
			"event_id", args.EventID,
			"webhook_id", args.WebhookID,
		)

		return nil
	}

	payload := &service.WebhookPayload{
		ID:            args.EventID,
		Type:          args.EventType,
		Timestamp:     time.Unix(args.Timestamp, 0),
		Data:          args.Data,
		ChangedFields: args.ChangedFields,
	}

	if err := w.sender.Send(ctx, webhook, payload); err != nil {
		return w.sendFailed(ctx, job, webhook, start, err)
	}

	w.recordOutcome(ctx, start, args.EventType, deliverySucceeded)

	return nil
}

// sendFailed decides between handing the job back to River for another
// attempt and, on the last one, disabling the endpoint.
func (w *WebhookDispatchWorker) sendFailed(
	ctx context.Context, job *river.Job[service.WebhookDispatchArgs],
	webhook *models.Webhook, start time.Time, sendErr error,
) error {
	args := job.Args

	if job.Attempt < job.MaxAttempts {
		w.recordOutcome(ctx, start, args.EventType, deliveryRetried)

		slog.Warn("webhook dispatch: send failed, leaving job for retry",
			"event_id", args.EventID,
			"webhook_id", webhook.ID,
			"url", webhook.URL,
			"event_type", args.EventType,
			"attempt", job.Attempt,
			"max_attempts", job.MaxAttempts,
			"error", sendErr,
		)

		return fmt.Errorf("webhook send: %w", sendErr)
	}

	if w.metrics != nil {
		w.metrics.RecordWebhookDisabled(ctx, "max_attempts")
	}
	w.recordOutcome(ctx, start, args.EventType, deliveryFailedFinal)

	if disableErr := w.repo.Disable(ctx, webhook.ID); disableErr != nil {
		slog.Error("webhook dispatch: failed to disable webhook after max attempts",
			"webhook_id", webhook.ID,
			"event_id", args.EventID,
			"error", disableErr,
		)
	} else {
		slog.Error("webhook dispatch: endpoint disabled after exhausting attempts",
			"webhook_id", webhook.ID,
			"event_id", args.EventID,
			"url", webhook.URL,
			"error", sendErr,
		)
	}

	return fmt.Errorf("webhook send (final attempt): %w", sendErr)
}

// recordOutcome feeds one delivery attempt into the outcome counter and the
// latency histogram. Safe on a nil metrics sink.
func (w *WebhookDispatchWorker) recordOutcome(ctx context.Context, start time.Time, eventType, outcome string) {
	if w.metrics == nil {
		return
	}

	w.metrics.RecordDelivery(ctx, eventType, outcome)
	w.metrics.RecordDeliveryDuration(ctx, time.Since(start), eventType, outcome)
}
