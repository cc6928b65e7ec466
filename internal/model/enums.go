package model

// Job status
type JobStatus string

const (
	JobStatusPending       JobStatus = "pending"
	JobStatusProcessing    JobStatus = "processing"
	JobStatusCompleted     JobStatus = "completed"
	JobStatusFailed        JobStatus = "failed"
	JobStatusPendingReview JobStatus = "pending_review"
)

var ValidJobStatuses = []JobStatus{
	JobStatusPending, JobStatusProcessing, JobStatusCompleted,
	JobStatusFailed, JobStatusPendingReview,
}

// IsTerminal reports whether no worker will touch the job again without an
// explicit retry.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job kinds, one table each
type JobKind string

const (
	JobKindScan   JobKind = "scan"
	JobKindMatch  JobKind = "match"
	JobKindLookup JobKind = "lookup"
)

// Scan kinds
type ScanKind string

const (
	ScanKindCookbook ScanKind = "cookbook"
	ScanKindFridge   ScanKind = "fridge"
)

// Product match outcome of a lookup job
type MatchStatus string

const (
	MatchStatusPendingReview MatchStatus = "pending_review"
	MatchStatusAutoMatched   MatchStatus = "auto_matched"
	MatchStatusNoMatch       MatchStatus = "no_match"
	MatchStatusUserSelected  MatchStatus = "user_selected"
	MatchStatusFailed        MatchStatus = "failed"
)

// Machine readable job failure codes
const (
	ErrCodeInvalidImage     = "INVALID_IMAGE"
	ErrCodeExtractionFailed = "EXTRACTION_FAILED"
	ErrCodeStorage          = "STORAGE_ERROR"
	ErrCodeSearchFailed     = "SEARCH_FAILED"
	ErrCodeNoInventory      = "NO_INVENTORY"
	ErrCodeLeaseExpired     = "LEASE_EXPIRED"
	ErrCodeInvalidPayload   = "INVALID_PAYLOAD"
	ErrCodeUnknown          = "UNKNOWN_ERROR"
)
