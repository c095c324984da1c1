package observability

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EventMetrics covers the publisher side of the event pipeline: drops, fan-out
// latency, and the depth gauges. Methods accept ctx for future exemplar
// support (linking metric samples to trace IDs).
type EventMetrics interface {
	RecordEventDiscarded(ctx context.Context, eventType string)
	RecordFanOutDuration(ctx context.Context, duration time.Duration, eventType string)
	SetChannelDepth(depth int)
	SetRiverQueueDepth(queue string, depth int)
}

type eventMetrics struct {
	eventsDiscarded metric.Int64Counter
	fanOutDuration  metric.Float64Histogram

	// Gauge state read by the observable callbacks. queueDepths maps a
	// normalized queue name to its *atomic.Int64 depth.
	channelDepth atomic.Int64
	queueDepths  sync.Map

	channelDepthGauge metric.Float64ObservableGauge
	riverQueueGauge   metric.Float64ObservableGauge
}

// NewEventMetrics creates EventMetrics and registers gauges. Returns (nil, nil) when meter is nil (metrics disabled).
func NewEventMetrics(meter metric.Meter) (EventMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	em := &eventMetrics{}

	var err error

	em.eventsDiscarded, err = meter.Int64Counter(
		MetricNameEventsDiscarded,
		metric.WithDescription("Events dropped because the publish channel was full"),
	)
	if err != nil {
		return nil, fmt.Errorf("create events discarded counter: %w", err)
	}

	em.fanOutDuration, err = meter.Float64Histogram(
		MetricNameFanOutDuration,
		metric.WithDescription("Per-event fan-out time across all providers (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create fan-out duration histogram: %w", err)
	}

	em.channelDepthGauge, err = meter.Float64ObservableGauge(
		MetricNameEventChannelDepth,
		metric.WithDescription("Events waiting in the publish channel"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(float64(em.channelDepth.Load()))

			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create channel depth gauge: %w", err)
	}

	em.riverQueueGauge, err = meter.Float64ObservableGauge(
		MetricNameRiverQueueDepth,
		metric.WithDescription("River jobs waiting to run (available/ready/scheduled), per queue"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			em.queueDepths.Range(func(k, v any) bool {
				queue, ok := k.(string)
				if !ok {
					return true
				}

				depth, ok := v.(*atomic.Int64)
				if !ok {
					return true
				}

				o.Observe(float64(depth.Load()), metric.WithAttributes(attribute.String(AttrQueue, queue)))

				return true
			})

			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create river queue depth gauge: %w", err)
	}

	return em, nil
}

func attrEventType(v string) attribute.KeyValue {
	return attribute.String(AttrEventType, v)
}

func (e *eventMetrics) RecordEventDiscarded(ctx context.Context, eventType string) {
	e.eventsDiscarded.Add(ctx, 1, metric.WithAttributes(attrEventType(NormalizeEventType(eventType))))
}

func (e *eventMetrics) RecordFanOutDuration(ctx context.Context, duration time.Duration, eventType string) {
	e.fanOutDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attrEventType(NormalizeEventType(eventType))))
}

func (e *eventMetrics) SetChannelDepth(depth int) {
	e.channelDepth.Store(int64(depth))
}

// SetRiverQueueDepth records the depth for one queue. Unknown queue names
// collapse onto "other" so the label set stays bounded.
func (e *eventMetrics) SetRiverQueueDepth(queue string, depth int) {
	v, _ := e.queueDepths.LoadOrStore(NormalizeQueueName(queue), new(atomic.Int64))
	if counter, ok := v.(*atomic.Int64); ok {
		counter.Store(int64(depth))
	}
}
