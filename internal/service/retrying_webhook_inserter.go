package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/audioscribe/speakerhub/internal/observability"
)

const fallbackEnqueueBackoff = 500 * time.Millisecond

// RetryingWebhookDispatchInserterConfig bounds the retry behavior.
type RetryingWebhookDispatchInserterConfig struct {
	MaxRetries     int           // Retries after the first attempt; total attempts = 1 + MaxRetries.
	InitialBackoff time.Duration // Sleep after the first failure; grows geometrically per attempt.
	MaxBackoff     time.Duration // Ceiling for the grown backoff.
	Metrics        observability.WebhookMetrics
}

// RetryingWebhookDispatchInserter retries InsertMany through a wrapped
// inserter with jittered geometric backoff. Fan-out enqueues run on the
// publisher goroutine where a failed event is lost for good, so transient
// River errors are absorbed here instead of surfacing.
type RetryingWebhookDispatchInserter struct {
	next WebhookDispatchInserter
	cfg  RetryingWebhookDispatchInserterConfig
}

// NewRetryingWebhookDispatchInserter wraps inner. Zero config values are
// normalized: negative MaxRetries means no retries, a missing backoff gets a
// default, and MaxBackoff is raised to at least InitialBackoff.
func NewRetryingWebhookDispatchInserter(
	inner WebhookDispatchInserter, cfg RetryingWebhookDispatchInserterConfig,
) *RetryingWebhookDispatchInserter {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = fallbackEnqueueBackoff
	}

	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	return &RetryingWebhookDispatchInserter{next: inner, cfg: cfg}
}

var _ WebhookDispatchInserter = (*RetryingWebhookDispatchInserter)(nil)

// InsertMany delegates to the wrapped inserter, sleeping between failed
// attempts. A context cancellation during the sleep ends the retry loop.
func (r *RetryingWebhookDispatchInserter) InsertMany(
	ctx context.Context, params []river.InsertManyParams,
) ([]*rivertype.JobInsertResult, error) {
	backoff := r.cfg.InitialBackoff

	for attempt := 0; ; attempt++ {
		results, err := r.next.InsertMany(ctx, params)
		if err == nil {
			return results, nil
		}

		if attempt == r.cfg.MaxRetries {
			return nil, err
		}

		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordEnqueueRetry(ctx)
		}

		sleep := jitteredBackoff(backoff)
		slog.Warn("webhook enqueue failed, retrying after backoff",
			"attempt", attempt+1,
			"max_attempts", r.cfg.MaxRetries+1,
			"backoff", sleep,
			"error", err,
		)

		if sleepErr := sleepContext(ctx, sleep); sleepErr != nil {
			return nil, sleepErr
		}

		backoff = min(backoff*backoffMultiplier, r.cfg.MaxBackoff)
	}
}
