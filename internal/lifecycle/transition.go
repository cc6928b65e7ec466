// Package lifecycle is the job state machine shared by scan, match and
// product lookup jobs.
//
//	pending -> processing -> completed | failed | pending_review
//	pending_review -> completed
//	failed -> pending (retry)
//	processing -> pending (release between queue attempts)
//
// The transition functions are pure: they validate the current state and
// return the next one. Manager persists them with a compare-and-swap on the
// status the transition was computed from.
package lifecycle

import (
	"time"

	"github.com/fridgechef/api/internal/model"
)

// NewJobState returns the lifecycle columns of a freshly created job.
func NewJobState(id, userID string, maxRetries int, now time.Time) model.JobState {
	return model.JobState{
		ID:         id,
		UserID:     userID,
		Status:     model.JobStatusPending,
		RetryCount: 0,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Start claims a pending job for a new run and gives it a lease.
func Start(s model.JobState, now time.Time, lease time.Duration) (model.JobState, error) {
	if s.Status != model.JobStatusPending {
		return s, &TransitionError{Op: "start", From: s.Status}
	}
	s.Status = model.JobStatusProcessing
	s.RunSeq++
	s.StartedAt = &now
	s.UpdatedAt = now
	s.LeaseExpiresAt = leaseUntil(now, lease)
	return s, nil
}

// Heartbeat renews the lease of a processing job.
func Heartbeat(s model.JobState, now time.Time, lease time.Duration) (model.JobState, error) {
	if s.Status != model.JobStatusProcessing {
		return s, &TransitionError{Op: "heartbeat", From: s.Status}
	}
	s.UpdatedAt = now
	s.LeaseExpiresAt = leaseUntil(now, lease)
	return s, nil
}

func Complete(s model.JobState, result model.JSON, now time.Time) (model.JobState, error) {
	if s.Status != model.JobStatusProcessing {
		return s, &TransitionError{Op: "complete", From: s.Status}
	}
	s = finish(s, now)
	s.Status = model.JobStatusCompleted
	s.Result = result
	return s, nil
}

func Fail(s model.JobState, code, message string, now time.Time) (model.JobState, error) {
	if s.Status != model.JobStatusProcessing {
		return s, &TransitionError{Op: "fail", From: s.Status}
	}
	s = finish(s, now)
	s.Status = model.JobStatusFailed
	s.ErrorCode = &code
	s.ErrorMessage = &message
	return s, nil
}

// AwaitReview parks a processing job until a user resolves it. Processing
// time is recorded here; CompletedAt is set by Resolve.
func AwaitReview(s model.JobState, now time.Time) (model.JobState, error) {
	if s.Status != model.JobStatusProcessing {
		return s, &TransitionError{Op: "await review", From: s.Status}
	}
	s = finish(s, now)
	s.CompletedAt = nil
	s.Status = model.JobStatusPendingReview
	return s, nil
}

// Resolve completes a job that was waiting for review.
func Resolve(s model.JobState, result model.JSON, now time.Time) (model.JobState, error) {
	if s.Status != model.JobStatusPendingReview {
		return s, &TransitionError{Op: "resolve", From: s.Status}
	}
	s.Status = model.JobStatusCompleted
	s.Result = result
	s.CompletedAt = &now
	s.UpdatedAt = now
	return s, nil
}

// Release hands a processing job back to pending so the next queue attempt
// can start it again. The retry count is untouched.
func Release(s model.JobState, now time.Time) (model.JobState, error) {
	if s.Status != model.JobStatusProcessing {
		return s, &TransitionError{Op: "release", From: s.Status}
	}
	s.Status = model.JobStatusPending
	s.StartedAt = nil
	s.LeaseExpiresAt = nil
	s.UpdatedAt = now
	return s, nil
}

// Retry moves a failed job back to pending and counts the attempt.
func Retry(s model.JobState, now time.Time) (model.JobState, error) {
	if s.Status != model.JobStatusFailed {
		return s, &TransitionError{Op: "retry", From: s.Status}
	}
	if s.RetryCount >= s.MaxRetries {
		return s, ErrRetryExhausted
	}
	s.Status = model.JobStatusPending
	s.RetryCount++
	s.ErrorCode = nil
	s.ErrorMessage = nil
	s.StartedAt = nil
	s.CompletedAt = nil
	s.ProcessingTimeMs = nil
	s.LeaseExpiresAt = nil
	s.Result = nil
	s.UpdatedAt = now
	return s, nil
}

// CheckDelete refuses to delete a job a worker is mutating.
func CheckDelete(s model.JobState) error {
	if s.Status == model.JobStatusProcessing {
		return ErrJobProcessing
	}
	return nil
}

func finish(s model.JobState, now time.Time) model.JobState {
	s.CompletedAt = &now
	s.UpdatedAt = now
	s.LeaseExpiresAt = nil
	var ms int64
	if s.StartedAt != nil {
		ms = now.Sub(*s.StartedAt).Milliseconds()
	}
	s.ProcessingTimeMs = &ms
	return s
}

func leaseUntil(now time.Time, lease time.Duration) *time.Time {
	if lease <= 0 {
		return nil
	}
	t := now.Add(lease)
	return &t
}
