package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

const (
	profileRelabelKind = "profile_relabel"
	// RelabelQueueName is the River queue used for retroactive relabel jobs.
	RelabelQueueName = "relabel"
)

// ProfileRelabelInserter inserts relabel jobs (e.g. River client). Used after a
// merge or a newly named profile, where the pass should not block the request.
type ProfileRelabelInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// ProfileRelabelArgs is the job payload for one retroactive relabel pass over
// all outstanding speakers, scored against a single profile. Uniqueness is by
// ProfileID so overlapping triggers (merge plus rename in quick succession)
// collapse into one queued pass.
type ProfileRelabelArgs struct {
	ProfileID uuid.UUID `json:"profile_id" river:"unique"`
}

// Kind returns the River job kind.
func (ProfileRelabelArgs) Kind() string { return profileRelabelKind }

var _ river.JobArgs = ProfileRelabelArgs{}

// RelabelInsertOpts returns the insert options shared by every producer of
// relabel jobs: the relabel queue and one in-flight pass per profile.
func RelabelInsertOpts() *river.InsertOpts {
	return &river.InsertOpts{
		Queue: RelabelQueueName,
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByState: inFlightJobStates,
		},
	}
}
