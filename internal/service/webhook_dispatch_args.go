package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

const webhookDispatchKind = "webhook_dispatch"

// webhookDedupWindow bounds how long one (event, webhook) pair stays unique.
// Within the window a duplicate enqueue collapses onto the existing job;
// after it, republishing the event delivers again.
const webhookDedupWindow = 24 * time.Hour

// WebhookDispatchArgs is the job payload for delivering one event to one
// webhook endpoint. The event is inlined so the worker never looks it back
// up. Only the two ids carry river:"unique" so the dedup hash stays
// independent of payload size.
type WebhookDispatchArgs struct {
	EventID       uuid.UUID `json:"event_id"                 river:"unique"`
	EventType     string    `json:"event_type"`
	Timestamp     int64     `json:"timestamp"`
	Data          any       `json:"data"`
	ChangedFields []string  `json:"changed_fields,omitempty"`
	WebhookID     uuid.UUID `json:"webhook_id"               river:"unique"`
}

// Kind returns the River job kind.
func (WebhookDispatchArgs) Kind() string { return webhookDispatchKind }

var _ river.JobArgs = WebhookDispatchArgs{}

// WebhookDispatchInsertOpts returns the insert options shared by every
// producer of dispatch jobs: bounded delivery attempts and one job per
// (event, webhook) inside the dedup window. Dispatch runs on the default
// queue; resolution and relabel have their own.
func WebhookDispatchInsertOpts(maxAttempts int) *river.InsertOpts {
	return &river.InsertOpts{
		MaxAttempts: maxAttempts,
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: webhookDedupWindow,
		},
	}
}
