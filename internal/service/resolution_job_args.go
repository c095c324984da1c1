package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

const (
	speakerResolutionKind = "speaker_resolution"
	// ResolutionQueueName is the River queue used for speaker resolution jobs.
	ResolutionQueueName = "resolution"
)

// SpeakerResolutionInserter inserts resolution jobs (e.g. River client). Used by
// the ingest flow, the pending sweeper, and the backfill command.
type SpeakerResolutionInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// SpeakerResolutionArgs is the job payload for classifying every pending
// speaker of one media item. Uniqueness is by MediaItemID so re-ingesting a
// media item while a job is still queued or running does not create a
// duplicate; a fresh job can be enqueued once the previous one finished.
type SpeakerResolutionArgs struct {
	MediaItemID uuid.UUID `json:"media_item_id" river:"unique"`
}

// Kind returns the River job kind.
func (SpeakerResolutionArgs) Kind() string { return speakerResolutionKind }

var _ river.JobArgs = SpeakerResolutionArgs{}

// inFlightJobStates dedupes inserts against jobs that have not finished yet.
// This is the minimum state set River accepts for ByState; leaving completed
// jobs out means a later trigger for the same args queues a fresh job instead
// of being swallowed for the retention period of the old one.
var inFlightJobStates = []rivertype.JobState{
	rivertype.JobStatePending,
	rivertype.JobStateAvailable,
	rivertype.JobStateRunning,
	rivertype.JobStateRetryable,
	rivertype.JobStateScheduled,
}

// ResolutionInsertOpts returns the insert options shared by every producer of
// resolution jobs: the resolution queue, bounded attempts, and one in-flight
// job per media item.
func ResolutionInsertOpts(maxAttempts int) *river.InsertOpts {
	return &river.InsertOpts{
		Queue:       ResolutionQueueName,
		MaxAttempts: maxAttempts,
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByState: inFlightJobStates,
		},
	}
}
