package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ResolutionMetrics records speaker resolution pipeline metrics (ingest, matcher, worker, relabel).
// Methods accept ctx for future exemplar support.
type ResolutionMetrics interface {
	RecordJobsEnqueued(ctx context.Context, count int64)
	RecordResolutionOutcome(ctx context.Context, outcome string)
	RecordMatchDuration(ctx context.Context, duration time.Duration, status string)
	RecordRelabelOutcome(ctx context.Context, outcome string)
	RecordWorkerError(ctx context.Context, reason string)
}

// resolutionMetrics implements ResolutionMetrics.
type resolutionMetrics struct {
	jobsEnqueued    metric.Int64Counter
	outcomes        metric.Int64Counter
	matchDuration   metric.Float64Histogram
	relabelOutcomes metric.Int64Counter
	workerErrors    metric.Int64Counter
}

// NewResolutionMetrics creates ResolutionMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewResolutionMetrics(meter metric.Meter) (ResolutionMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	jobsEnqueued, err := meter.Int64Counter(
		MetricNameResolutionJobsEnqueued,
		metric.WithDescription("Total speaker resolution jobs enqueued"),
	)
	if err != nil {
		return nil, fmt.Errorf("create resolution jobs enqueued counter: %w", err)
	}

	outcomes, err := meter.Int64Counter(
		MetricNameResolutionOutcomes,
		metric.WithDescription("Total speaker resolution outcomes (auto_attached, suggested, unmatched, skipped)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create resolution outcomes counter: %w", err)
	}

	matchDuration, err := meter.Float64Histogram(
		MetricNameMatchDuration,
		metric.WithDescription("Voiceprint ranking duration in seconds, by status (complete, partial)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create match duration histogram: %w", err)
	}

	relabelOutcomes, err := meter.Int64Counter(
		MetricNameRelabelOutcomes,
		metric.WithDescription("Total re-match outcomes for outstanding speakers after a profile rename"),
	)
	if err != nil {
		return nil, fmt.Errorf("create relabel outcomes counter: %w", err)
	}

	workerErrors, err := meter.Int64Counter(
		MetricNameResolutionWorkerErrors,
		metric.WithDescription("Total resolution and relabel worker errors, by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("create resolution worker errors counter: %w", err)
	}

	return &resolutionMetrics{
		jobsEnqueued:    jobsEnqueued,
		outcomes:        outcomes,
		matchDuration:   matchDuration,
		relabelOutcomes: relabelOutcomes,
		workerErrors:    workerErrors,
	}, nil
}

func (r *resolutionMetrics) RecordJobsEnqueued(ctx context.Context, count int64) {
	r.jobsEnqueued.Add(ctx, count)
}

func (r *resolutionMetrics) RecordResolutionOutcome(ctx context.Context, outcome string) {
	outcome = NormalizeReason(outcome, AllowedResolutionOutcomes)
	r.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrOutcome, outcome)))
}

func (r *resolutionMetrics) RecordMatchDuration(ctx context.Context, duration time.Duration, status string) {
	status = normalizeMatchStatus(status)
	r.matchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(AttrStatus, status)))
}

func (r *resolutionMetrics) RecordRelabelOutcome(ctx context.Context, outcome string) {
	outcome = NormalizeReason(outcome, AllowedRelabelOutcomes)
	r.relabelOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrOutcome, outcome)))
}

func (r *resolutionMetrics) RecordWorkerError(ctx context.Context, reason string) {
	reason = NormalizeReason(reason, AllowedResolutionWorkerReasons)
	r.workerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}

func normalizeMatchStatus(status string) string {
	if AllowedMatchStatuses[status] {
		return status
	}

	return "other"
}
