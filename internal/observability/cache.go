package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheMetrics records one lookup against a named cache. The name is bounded
// by AllowedCacheNames so cardinality stays fixed.
type CacheMetrics interface {
	RecordLookup(ctx context.Context, cacheName string, hit bool)
}

// cacheMetrics keeps hits and misses as separate counters so the hit ratio is
// a plain rate(hits) / (rate(hits) + rate(misses)) per cache.
type cacheMetrics struct {
	hits   metric.Int64Counter
	misses metric.Int64Counter
}

// NewCacheMetrics creates CacheMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewCacheMetrics(meter metric.Meter) (CacheMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	hits, err := meter.Int64Counter(
		MetricNameCacheHits,
		metric.WithDescription("Lookups served from cache, by cache name."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache hits counter: %w", err)
	}

	misses, err := meter.Int64Counter(
		MetricNameCacheMisses,
		metric.WithDescription("Lookups that fell through to the backing store, by cache name."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache misses counter: %w", err)
	}

	return &cacheMetrics{hits: hits, misses: misses}, nil
}

func (c *cacheMetrics) RecordLookup(ctx context.Context, cacheName string, hit bool) {
	attrs := metric.WithAttributes(attribute.String("cache", NormalizeCacheName(cacheName)))
	if hit {
		c.hits.Add(ctx, 1, attrs)
		return
	}

	c.misses.Add(ctx, 1, attrs)
}
