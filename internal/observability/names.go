// Package observability provides OpenTelemetry metrics and tracing for the speaker hub API.
package observability

import (
	"github.com/audioscribe/speakerhub/internal/datatypes"
)

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameEventsDiscarded         = "speakerhub_events_discarded_total"
	MetricNameFanOutDuration          = "speakerhub_message_publisher_fan_out_duration_seconds"
	MetricNameEventChannelDepth       = "speakerhub_event_channel_depth"
	MetricNameRiverQueueDepth         = "speakerhub_river_queue_depth"
	MetricNameWebhookJobsEnqueued     = "speakerhub_webhook_jobs_enqueued_total"
	MetricNameWebhookEnqueueRetries   = "speakerhub_webhook_enqueue_retries_total"
	MetricNameWebhookProviderErrors   = "speakerhub_webhook_provider_errors_total"
	MetricNameWebhookDeliveries       = "speakerhub_webhook_deliveries_total"
	MetricNameWebhookDisabled         = "speakerhub_webhook_disabled_total"
	MetricNameWebhookDispatchErrors   = "speakerhub_webhook_dispatch_errors_total"
	MetricNameWebhookDeliveryDuration = "speakerhub_webhook_delivery_duration_seconds"
	MetricNameCacheHits               = "speakerhub_cache_hits_total"
	MetricNameCacheMisses             = "speakerhub_cache_misses_total"
	MetricNameRequestBodyTooLarge     = "speakerhub_request_body_too_large_total"
	MetricNameAuthFailures            = "speakerhub_auth_failures_total"
	MetricNameResolutionJobsEnqueued  = "speakerhub_resolution_jobs_enqueued_total"
	MetricNameResolutionOutcomes      = "speakerhub_resolution_outcomes_total"
	MetricNameResolutionWorkerErrors  = "speakerhub_resolution_worker_errors_total"
	MetricNameMatchDuration           = "speakerhub_match_duration_seconds"
	MetricNameRelabelOutcomes         = "speakerhub_relabel_outcomes_total"
	MetricNameMergeSources            = "speakerhub_merge_sources_total"
	MetricNameMergeDuration           = "speakerhub_merge_duration_seconds"
	MetricNameMergeRedirects          = "speakerhub_merge_redirects_total"
)

// Attribute keys.
const (
	AttrEventType = "event_type"
	AttrReason    = "reason"
	AttrStatus    = "status"
	AttrOutcome   = "outcome"
	AttrQueue     = "queue"
)

// AllowedEventTypes returns event type strings allowed for metric attributes (bounded cardinality).
func AllowedEventTypes() []string {
	return datatypes.GetAllEventTypes()
}

// AllowedProviderReasons for speakerhub_webhook_provider_errors_total.
var AllowedProviderReasons = map[string]bool{
	"list_failed":    true,
	"enqueue_failed": true,
}

// AllowedDeliveryStatuses for speakerhub_webhook_deliveries_total and speakerhub_webhook_delivery_duration_seconds.
var AllowedDeliveryStatuses = map[string]bool{
	"success":      true,
	"retry":        true,
	"failed_final": true,
}

// AllowedDisabledReasons for speakerhub_webhook_disabled_total.
var AllowedDisabledReasons = map[string]bool{
	"410_gone":     true,
	"max_attempts": true,
}

// AllowedDispatchReasons for speakerhub_webhook_dispatch_errors_total.
var AllowedDispatchReasons = map[string]bool{
	"get_webhook_failed": true,
}

// AllowedAuthFailureReasons for speakerhub_auth_failures_total.
var AllowedAuthFailureReasons = map[string]bool{
	"missing_header":   true,
	"malformed_header": true,
	"invalid_key":      true,
}

// AllowedResolutionOutcomes for speakerhub_resolution_outcomes_total. Mirrors the speaker match
// states a resolution job can land in, plus "skipped" for speakers already resolved or verified
// by the time the job ran.
var AllowedResolutionOutcomes = map[string]bool{
	"auto_attached": true,
	"suggested":     true,
	"unmatched":     true,
	"skipped":       true,
}

// AllowedResolutionWorkerReasons for speakerhub_resolution_worker_errors_total. Shared by the
// resolution worker (load, classify) and the relabel worker (get profile, scan).
var AllowedResolutionWorkerReasons = map[string]bool{
	"load_query_failed":  true,
	"classify_failed":    true,
	"get_profile_failed": true,
	"scan_failed":        true,
}

// AllowedMatchStatuses for speakerhub_match_duration_seconds. "partial" means the ranking
// deadline expired before every candidate profile was scored.
var AllowedMatchStatuses = map[string]bool{
	"complete": true,
	"partial":  true,
}

// AllowedRelabelOutcomes for speakerhub_relabel_outcomes_total.
var AllowedRelabelOutcomes = map[string]bool{
	"auto_attached": true,
	"suggested":     true,
	"unchanged":     true,
}

// AllowedMergeSourceStatuses for speakerhub_merge_sources_total.
var AllowedMergeSourceStatuses = map[string]bool{
	"succeeded": true,
	"failed":    true,
}

// AllowedMergeStatuses for speakerhub_merge_duration_seconds.
var AllowedMergeStatuses = map[string]bool{
	"all_succeeded": true,
	"partial":       true,
	"all_failed":    true,
}

// AllowedCacheNames bounds the cache label on speakerhub_cache_hits_total / _misses_total.
var AllowedCacheNames = map[string]bool{
	"webhook_list":      true,
	"webhook_get_by_id": true,
	"profile_name":      true,
}

// AllowedQueueNames bounds the queue label on speakerhub_river_queue_depth.
var AllowedQueueNames = map[string]bool{
	"default":    true,
	"resolution": true,
	"relabel":    true,
}

// NormalizeEventType returns eventType if allowed, otherwise "unknown".
func NormalizeEventType(eventType string) string {
	if datatypes.IsValidEventType(eventType) {
		return eventType
	}

	return "unknown"
}

// NormalizeReason returns reason if in allowed, otherwise "other".
func NormalizeReason(reason string, allowed map[string]bool) string {
	if allowed[reason] {
		return reason
	}

	return "other"
}

// NormalizeStatus returns status if in AllowedDeliveryStatuses, otherwise "other".
func NormalizeStatus(status string) string {
	if AllowedDeliveryStatuses[status] {
		return status
	}

	return "other"
}

// NormalizeCacheName returns name if in AllowedCacheNames, otherwise "other".
func NormalizeCacheName(name string) string {
	if AllowedCacheNames[name] {
		return name
	}

	return "other"
}

// NormalizeQueueName returns queue if in AllowedQueueNames, otherwise "other".
func NormalizeQueueName(queue string) string {
	if AllowedQueueNames[queue] {
		return queue
	}

	return "other"
}
