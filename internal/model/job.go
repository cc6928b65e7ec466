package model

import "time"

// JobState holds the lifecycle columns shared by every job table. Only the
// lifecycle package changes Status, and only through a conditional update.
type JobState struct {
	ID               string     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           string     `gorm:"type:text;not null;index" json:"-"`
	Status           JobStatus  `gorm:"type:varchar(20);not null;index" json:"status"`
	RetryCount       int        `gorm:"not null;default:0" json:"retryCount"`
	MaxRetries       int        `gorm:"not null;default:3" json:"maxRetries"`
	ErrorMessage     *string    `json:"errorMessage,omitempty"`
	ErrorCode        *string    `gorm:"type:varchar(50)" json:"errorCode,omitempty"`
	Payload          JSON       `gorm:"type:jsonb" json:"-"`
	Result           JSON       `gorm:"type:jsonb" json:"result,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	ProcessingTimeMs *int64     `json:"processingTimeMs,omitempty"`
	LeaseExpiresAt   *time.Time `gorm:"index" json:"-"`
	// RunSeq counts starts. Writes made by a worker carry the RunSeq it
	// started and fail once the job was started again.
	RunSeq int `gorm:"not null;default:0" json:"-"`
}

// CanRetry reports whether retry would be accepted right now.
func (s *JobState) CanRetry() bool {
	return s.Status == JobStatusFailed && s.RetryCount < s.MaxRetries
}

// ScanJob extracts recipes from cookbook pages or inventory from a fridge photo.
type ScanJob struct {
	JobState
	Kind           ScanKind `gorm:"type:varchar(20);not null;index" json:"kind"`
	CookbookName   *string  `json:"cookbookName,omitempty"`
	TotalUnits     int      `gorm:"not null" json:"totalUnits"`
	ProcessedUnits int      `gorm:"not null;default:0" json:"processedUnits"`
	CookbookID     *string  `gorm:"type:uuid" json:"cookbookId,omitempty"`
}

func (ScanJob) TableName() string { return "scan_jobs" }

// Progress is processed units as a 0-100 percentage.
func (j *ScanJob) Progress() int {
	if j.TotalUnits == 0 {
		return 0
	}
	return j.ProcessedUnits * 100 / j.TotalUnits
}

// MatchJob scores every recipe of a cookbook against a fridge scan.
type MatchJob struct {
	JobState
	CookbookID     string `gorm:"type:uuid;not null;index" json:"cookbookId"`
	FridgeScanID   string `gorm:"type:uuid;not null" json:"fridgeScanId"`
	TotalRecipes   int    `gorm:"not null;default:0" json:"totalRecipes"`
	MatchedRecipes int    `gorm:"not null;default:0" json:"matchedRecipes"`

	Results []RecipeMatch `gorm:"foreignKey:MatchJobID;constraint:OnDelete:CASCADE" json:"-"`
}

func (MatchJob) TableName() string { return "match_jobs" }

// ProductLookupJob finds the retail product for a cookbook title.
// Suggestions is only populated while MatchStatus is pending_review.
type ProductLookupJob struct {
	JobState
	CookbookID      string            `gorm:"type:uuid;not null;index" json:"cookbookId"`
	SubjectTitle    string            `gorm:"not null" json:"subjectTitle"`
	MatchStatus     *MatchStatus      `gorm:"type:varchar(20)" json:"matchStatus,omitempty"`
	MatchConfidence *int              `json:"matchConfidence,omitempty"`
	Suggestions     ProductCandidates `gorm:"type:jsonb" json:"suggestions,omitempty"`
	SelectedID      *string           `json:"selectedId,omitempty"`
}

func (ProductLookupJob) TableName() string { return "product_lookup_jobs" }

// Job types
const (
	TaskTypeCookbookScan = "scan:cookbook"
	TaskTypeFridgeScan   = "scan:fridge"
	TaskTypeMatch        = "match:process"
	TaskTypeLookup       = "lookup:process"
)

// ScanJobPayload is what a scan worker needs to (re)process a job.
type ScanJobPayload struct {
	UserID          string   `json:"userId"`
	Kind            ScanKind `json:"kind"`
	CookbookName    string   `json:"cookbookName,omitempty"`
	ImageKeys       []string `json:"imageKeys"`
	ReplaceExisting bool     `json:"replaceExisting,omitempty"`
}

// MatchJobPayload contains the data for a match job
type MatchJobPayload struct {
	UserID       string `json:"userId"`
	CookbookID   string `json:"cookbookId"`
	FridgeScanID string `json:"fridgeScanId"`
}

// LookupJobPayload contains the data for a product lookup job
type LookupJobPayload struct {
	UserID     string `json:"userId"`
	CookbookID string `json:"cookbookId"`
	Title      string `json:"title"`
}

// CookbookScanResult is stored on a completed cookbook scan.
type CookbookScanResult struct {
	RecipesFound int    `json:"recipesFound"`
	CookbookID   string `json:"cookbookId,omitempty"`
}

// FridgeScanResult is stored on a completed fridge scan.
type FridgeScanResult struct {
	ItemsFound       int  `json:"itemsFound"`
	ReplacedExisting bool `json:"replacedExisting"`
}

// MatchJobResult is stored on a completed match job.
type MatchJobResult struct {
	TotalRecipes   int `json:"totalRecipes"`
	MatchedRecipes int `json:"matchedRecipes"`
}

// LookupResult is stored on a resolved lookup job.
type LookupResult struct {
	MatchStatus MatchStatus `json:"matchStatus"`
	SelectedID  string      `json:"selectedId,omitempty"`
	Confidence  int         `json:"confidence"`
}
