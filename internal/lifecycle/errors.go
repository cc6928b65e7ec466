package lifecycle

import (
	"errors"
	"fmt"

	"github.com/fridgechef/api/internal/model"
)

var (
	ErrInvalidState   = errors.New("invalid job state")
	ErrRetryExhausted = errors.New("max retries exceeded")
	ErrJobProcessing  = errors.New("job is processing")
	ErrNotFound       = errors.New("job not found")
)

// TransitionError reports an operation that the job's current status does
// not allow. Conflict is set when the status changed between read and write,
// Stale when the writing run was superseded by a later start.
type TransitionError struct {
	Op       string
	From     model.JobStatus
	Conflict bool
	Stale    bool
}

func (e *TransitionError) Error() string {
	if e.Stale {
		return fmt.Sprintf("cannot %s job: the run was superseded (now %s)", e.Op, e.From)
	}
	if e.Conflict {
		return fmt.Sprintf("cannot %s job: status changed concurrently (was %s)", e.Op, e.From)
	}
	return fmt.Sprintf("cannot %s job in status %s", e.Op, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidState }
