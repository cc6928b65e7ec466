package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/fridgechef/api/internal/model"
)

type ScanJobRepository struct {
	db *gorm.DB
}

type ScanJobFilter struct {
	Kind   model.ScanKind
	Status model.JobStatus
	Limit  int
	Offset int
}

func (r *ScanJobRepository) Create(ctx context.Context, job *model.ScanJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *ScanJobRepository) Get(ctx context.Context, userID, id string) (*model.ScanJob, error) {
	return takeOwned[model.ScanJob](r.db.WithContext(ctx), userID, id)
}

// GetByID loads a job without an owner check, for workers.
func (r *ScanJobRepository) GetByID(ctx context.Context, id string) (*model.ScanJob, error) {
	return takeByID[model.ScanJob](r.db.WithContext(ctx), id)
}

// List returns a page of the user's scan jobs, newest first, and the total
// matching the filter.
func (r *ScanJobRepository) List(ctx context.Context, userID string, f ScanJobFilter) ([]model.ScanJob, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.ScanJob{}).Where("user_id = ?", userID)
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []model.ScanJob
	err := q.Order("created_at DESC").Limit(f.Limit).Offset(f.Offset).Find(&jobs).Error
	return jobs, total, err
}

// StatusCounts counts the user's scan jobs per status, optionally for one kind.
func (r *ScanJobRepository) StatusCounts(ctx context.Context, userID string, kind model.ScanKind) (map[model.JobStatus]int64, error) {
	q := r.db.WithContext(ctx).Model(&model.ScanJob{}).
		Select("status, COUNT(*) AS count").
		Where("user_id = ?", userID)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}

	var rows []struct {
		Status model.JobStatus
		Count  int64
	}
	if err := q.Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[model.JobStatus]int64, len(model.ValidJobStatuses))
	for _, s := range model.ValidJobStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
