package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MergeMetrics records profile merge metrics.
// Methods accept ctx for future exemplar support.
type MergeMetrics interface {
	RecordMergeSources(ctx context.Context, status string, count int64)
	RecordMergeDuration(ctx context.Context, duration time.Duration, status string)
	RecordRedirectServed(ctx context.Context)
}

// mergeMetrics implements MergeMetrics.
type mergeMetrics struct {
	sources   metric.Int64Counter
	duration  metric.Float64Histogram
	redirects metric.Int64Counter
}

// NewMergeMetrics creates MergeMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewMergeMetrics(meter metric.Meter) (MergeMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	sources, err := meter.Int64Counter(
		MetricNameMergeSources,
		metric.WithDescription("Total merge source profiles processed, by status (succeeded, failed)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create merge sources counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameMergeDuration,
		metric.WithDescription("Merge request duration in seconds, by status (all_succeeded, partial, all_failed)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create merge duration histogram: %w", err)
	}

	redirects, err := meter.Int64Counter(
		MetricNameMergeRedirects,
		metric.WithDescription("Total lookups of absorbed profiles answered with a redirect to the surviving profile"),
	)
	if err != nil {
		return nil, fmt.Errorf("create merge redirects counter: %w", err)
	}

	return &mergeMetrics{sources: sources, duration: duration, redirects: redirects}, nil
}

func (m *mergeMetrics) RecordMergeSources(ctx context.Context, status string, count int64) {
	status = NormalizeReason(status, AllowedMergeSourceStatuses)
	m.sources.Add(ctx, count, metric.WithAttributes(attribute.String(AttrStatus, status)))
}

func (m *mergeMetrics) RecordMergeDuration(ctx context.Context, duration time.Duration, status string) {
	status = NormalizeReason(status, AllowedMergeStatuses)
	m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(AttrStatus, status)))
}

func (m *mergeMetrics) RecordRedirectServed(ctx context.Context) {
	m.redirects.Add(ctx, 1)
}
