package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/lifecycle"
	"github.com/fridgechef/api/internal/metrics"
	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/selection"
	"github.com/fridgechef/api/internal/store"
)

// LookupService finds the retail product of a cookbook and lets the user
// settle lookups the confidence gate could not decide.
type LookupService struct {
	jobs
}

func NewLookupService(db *store.DB, lc *lifecycle.Manager, q JobQueue, maxRetries int, log *zap.Logger) *LookupService {
	return &LookupService{jobs: jobs{db: db, lifecycle: lc, queue: q, maxRetries: maxRetries, log: log}}
}

// Start queues a lookup for the cookbook's title. Only one unfinished
// lookup may exist per cookbook.
func (s *LookupService) Start(ctx context.Context, userID, cookbookID string) (*model.ProductLookupJob, error) {
	cb, err := s.db.Repos().Cookbooks.GetOwned(ctx, userID, cookbookID)
	if err != nil {
		return nil, err
	}

	payload := model.LookupJobPayload{UserID: userID, CookbookID: cookbookID, Title: cb.Name}
	state, err := s.newState(uuid.NewString(), userID, payload)
	if err != nil {
		return nil, err
	}
	job := &model.ProductLookupJob{
		JobState:     state,
		CookbookID:   cookbookID,
		SubjectTitle: cb.Name,
	}

	err = s.create(ctx, model.TaskTypeLookup, &job.JobState, func(r *store.Repos) error {
		if _, err := r.Lookups.Active(ctx, cookbookID); err == nil {
			return ErrLookupInProgress
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return r.Lookups.Create(ctx, job)
	})
	if store.IsUniqueViolation(err) {
		return nil, ErrLookupInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup job: %w", err)
	}

	s.log.Info("product lookup queued", zap.String("job_id", job.ID), zap.String("cookbook_id", cookbookID))
	return job, nil
}

// Latest returns the newest lookup of the cookbook.
func (s *LookupService) Latest(ctx context.Context, userID, cookbookID string) (*model.ProductLookupJob, error) {
	return s.db.Repos().Lookups.Latest(ctx, userID, cookbookID)
}

// Select settles a pending review with one of its suggestions.
func (s *LookupService) Select(ctx context.Context, userID, cookbookID, productID string) (*model.ProductLookupJob, error) {
	job, err := s.pendingReview(ctx, userID, cookbookID)
	if err != nil {
		return nil, err
	}

	picked, err := selection.Select(job.Suggestions, productID)
	if err != nil {
		return nil, err
	}

	update := store.ProductUpdate{
		ProductID:  &picked.ID,
		ImageURL:   nonEmpty(picked.ImageURL),
		ProductURL: nonEmpty(picked.ProductURL),
		Confidence: &picked.Confidence,
		Status:     model.MatchStatusUserSelected,
	}
	result := model.LookupResult{
		MatchStatus: model.MatchStatusUserSelected,
		SelectedID:  picked.ID,
		Confidence:  picked.Confidence,
	}
	return s.resolve(ctx, job, result, update)
}

// Skip settles a pending review without choosing a product.
func (s *LookupService) Skip(ctx context.Context, userID, cookbookID string) (*model.ProductLookupJob, error) {
	job, err := s.pendingReview(ctx, userID, cookbookID)
	if err != nil {
		return nil, err
	}
	result := model.LookupResult{MatchStatus: model.MatchStatusNoMatch}
	return s.resolve(ctx, job, result, store.ProductUpdate{Status: model.MatchStatusNoMatch})
}

func (s *LookupService) pendingReview(ctx context.Context, userID, cookbookID string) (*model.ProductLookupJob, error) {
	job, err := s.Latest(ctx, userID, cookbookID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoPendingReview
	}
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusPendingReview {
		return nil, ErrNoPendingReview
	}
	return job, nil
}

func (s *LookupService) resolve(ctx context.Context, job *model.ProductLookupJob, result model.LookupResult, update store.ProductUpdate) (*model.ProductLookupJob, error) {
	extra := lifecycle.Fields{
		"match_status": result.MatchStatus,
		"suggestions":  nil,
	}
	if result.SelectedID != "" {
		extra["selected_id"] = result.SelectedID
		extra["match_confidence"] = result.Confidence
	}

	err := s.db.Transact(ctx, func(r *store.Repos) error {
		if _, err := s.lifecycle.WithStore(r.Jobs).Resolve(ctx, model.JobKindLookup, job.ID, result, extra); err != nil {
			return err
		}
		return r.Cookbooks.UpdateProduct(ctx, job.CookbookID, update)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordLookupDecision(result.MatchStatus)

	return s.db.Repos().Lookups.GetByID(ctx, job.ID)
}

func (s *LookupService) Retry(ctx context.Context, userID, cookbookID string) (*model.ProductLookupJob, error) {
	job, err := s.Latest(ctx, userID, cookbookID)
	if err != nil {
		return nil, err
	}
	if _, err := s.retry(ctx, model.JobKindLookup, model.TaskTypeLookup, job.ID); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, ErrLookupInProgress
		}
		return nil, err
	}
	return s.db.Repos().Lookups.GetByID(ctx, job.ID)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
