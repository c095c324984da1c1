package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// APIMetrics records HTTP edge metrics: requests rejected before any handler
// runs (oversized bodies, failed authentication).
type APIMetrics interface {
	RecordRequestBodyTooLarge(ctx context.Context)
	RecordAuthFailure(ctx context.Context, reason string)
}

type apiMetrics struct {
	requestBodyTooLarge metric.Int64Counter
	authFailures        metric.Int64Counter
}

// NewAPIMetrics creates APIMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewAPIMetrics(meter metric.Meter) (APIMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	tooLarge, err := meter.Int64Counter(
		MetricNameRequestBodyTooLarge,
		metric.WithDescription("Total requests rejected because the body exceeded the configured limit (413)."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create request body too large counter: %w", err)
	}

	authFailures, err := meter.Int64Counter(
		MetricNameAuthFailures,
		metric.WithDescription("Total requests rejected by API key authentication (401), by reason."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create auth failures counter: %w", err)
	}

	return &apiMetrics{requestBodyTooLarge: tooLarge, authFailures: authFailures}, nil
}

func (a *apiMetrics) RecordRequestBodyTooLarge(ctx context.Context) {
	a.requestBodyTooLarge.Add(ctx, 1)
}

func (a *apiMetrics) RecordAuthFailure(ctx context.Context, reason string) {
	reason = NormalizeReason(reason, AllowedAuthFailureReasons)
	a.authFailures.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}
