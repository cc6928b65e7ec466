package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fridgechef/api/internal/lifecycle"
	"github.com/fridgechef/api/internal/model"
)

// JobStore implements lifecycle.Store over the job tables.
type JobStore struct {
	db *gorm.DB
}

var _ lifecycle.Store = (*JobStore)(nil)

func jobTable(kind model.JobKind) (string, error) {
	switch kind {
	case model.JobKindScan:
		return model.ScanJob{}.TableName(), nil
	case model.JobKindMatch:
		return model.MatchJob{}.TableName(), nil
	case model.JobKindLookup:
		return model.ProductLookupJob{}.TableName(), nil
	}
	return "", fmt.Errorf("unknown job kind %q", kind)
}

func (s *JobStore) Load(ctx context.Context, kind model.JobKind, id string) (*model.JobState, error) {
	table, err := jobTable(kind)
	if err != nil {
		return nil, err
	}

	var state model.JobState
	err = s.db.WithContext(ctx).Table(table).Where("id = ?", id).Take(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, lifecycle.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s job: %w", kind, err)
	}
	return &state, nil
}

// Swap is UPDATE ... WHERE id = ? AND status = ? AND run_seq = ?, reporting
// whether a row changed.
func (s *JobStore) Swap(ctx context.Context, kind model.JobKind, id string, expected model.JobStatus, run int, next *model.JobState, extra lifecycle.Fields) (bool, error) {
	table, err := jobTable(kind)
	if err != nil {
		return false, err
	}

	cols := lifecycleColumns(next)
	for k, v := range extra {
		cols[k] = v
	}

	res := s.db.WithContext(ctx).Table(table).
		Where("id = ? AND status = ? AND run_seq = ?", id, expected, run).
		Updates(cols)
	if res.Error != nil {
		return false, fmt.Errorf("update %s job: %w", kind, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *JobStore) Delete(ctx context.Context, kind model.JobKind, id string, expected model.JobStatus) (bool, error) {
	table, err := jobTable(kind)
	if err != nil {
		return false, err
	}

	res := s.db.WithContext(ctx).
		Exec("DELETE FROM "+table+" WHERE id = ? AND status = ?", id, expected)
	if res.Error != nil {
		return false, fmt.Errorf("delete %s job: %w", kind, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *JobStore) Expired(ctx context.Context, kind model.JobKind, before time.Time) ([]model.JobState, error) {
	table, err := jobTable(kind)
	if err != nil {
		return nil, err
	}

	var states []model.JobState
	err = s.db.WithContext(ctx).Table(table).
		Where("status = ? AND lease_expires_at < ?", model.JobStatusProcessing, before).
		Order("lease_expires_at").
		Limit(100).
		Find(&states).Error
	if err != nil {
		return nil, fmt.Errorf("list expired %s jobs: %w", kind, err)
	}
	return states, nil
}

func lifecycleColumns(s *model.JobState) map[string]any {
	return map[string]any{
		"status":             s.Status,
		"retry_count":        s.RetryCount,
		"error_message":      s.ErrorMessage,
		"error_code":         s.ErrorCode,
		"result":             s.Result,
		"started_at":         s.StartedAt,
		"completed_at":       s.CompletedAt,
		"processing_time_ms": s.ProcessingTimeMs,
		"lease_expires_at":   s.LeaseExpiresAt,
		"updated_at":         s.UpdatedAt,
		"run_seq":            s.RunSeq,
	}
}
