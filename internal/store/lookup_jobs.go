package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/fridgechef/api/internal/model"
)

type LookupJobRepository struct {
	db *gorm.DB
}

var activeLookupStatuses = []model.JobStatus{
	model.JobStatusPending,
	model.JobStatusProcessing,
	model.JobStatusPendingReview,
}

func (r *LookupJobRepository) Create(ctx context.Context, job *model.ProductLookupJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *LookupJobRepository) GetByID(ctx context.Context, id string) (*model.ProductLookupJob, error) {
	return takeByID[model.ProductLookupJob](r.db.WithContext(ctx), id)
}

// Active returns the cookbook's lookup that has not finished yet, if any.
func (r *LookupJobRepository) Active(ctx context.Context, cookbookID string) (*model.ProductLookupJob, error) {
	var job model.ProductLookupJob
	err := r.db.WithContext(ctx).
		Where("cookbook_id = ? AND status IN ?", cookbookID, activeLookupStatuses).
		Order("created_at DESC").
		Take(&job).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

func (r *LookupJobRepository) Latest(ctx context.Context, userID, cookbookID string) (*model.ProductLookupJob, error) {
	var job model.ProductLookupJob
	err := r.db.WithContext(ctx).
		Where("cookbook_id = ? AND user_id = ?", cookbookID, userID).
		Order("created_at DESC").
		Take(&job).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}
