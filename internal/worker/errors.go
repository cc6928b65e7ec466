package worker

import (
	"errors"
	"fmt"

	"github.com/fridgechef/api/internal/client"
	"github.com/fridgechef/api/internal/model"
)

// JobError is a job failure with a machine readable code. Permanent errors
// fail the job on the first attempt.
type JobError struct {
	Code      string
	Message   string
	Permanent bool
	Err       error
}

func (e *JobError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *JobError) Unwrap() error { return e.Err }

func permanent(code, message string) error {
	return &JobError{Code: code, Message: message, Permanent: true}
}

func transient(code, message string, err error) error {
	return &JobError{Code: code, Message: message, Err: err}
}

// classify returns the code and user facing message of err.
func classify(err error) (code, message string, isPermanent bool) {
	var je *JobError
	if errors.As(err, &je) {
		return je.Code, je.Message, je.Permanent
	}
	return model.ErrCodeUnknown, "unexpected error while processing the job", false
}

func storageError(key string, err error) error {
	if errors.Is(err, client.ErrObjectNotFound) {
		return &JobError{Code: model.ErrCodeStorage, Message: "uploaded image is missing", Permanent: true, Err: err}
	}
	return transient(model.ErrCodeStorage, "failed to read uploaded image "+key, err)
}

func searchError(err error) error {
	var pse *client.ProductSearchError
	if errors.As(err, &pse) && !pse.Temporary() {
		return &JobError{Code: model.ErrCodeSearchFailed, Message: "product search rejected the request", Permanent: true, Err: err}
	}
	return transient(model.ErrCodeSearchFailed, "product search failed", err)
}
