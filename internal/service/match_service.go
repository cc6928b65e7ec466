package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/lifecycle"
	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/store"
)

// MatchJobList is one page of match jobs.
type MatchJobList struct {
	Jobs   []model.MatchJob `json:"jobs"`
	Total  int64            `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// MatchService scores a cookbook against a fridge scan in the background
type MatchService struct {
	jobs
}

func NewMatchService(db *store.DB, lc *lifecycle.Manager, q JobQueue, maxRetries int, log *zap.Logger) *MatchService {
	return &MatchService{jobs: jobs{db: db, lifecycle: lc, queue: q, maxRetries: maxRetries, log: log}}
}

// Create queues a match of cookbookID against the inventory found by a
// completed fridge scan. Both must belong to userID.
func (s *MatchService) Create(ctx context.Context, userID, cookbookID, fridgeScanID string) (*model.MatchJob, error) {
	repos := s.db.Repos()

	if _, err := repos.Cookbooks.GetOwned(ctx, userID, cookbookID); err != nil {
		return nil, err
	}

	scan, err := repos.Scans.Get(ctx, userID, fridgeScanID)
	if err != nil {
		return nil, err
	}
	if scan.Kind != model.ScanKindFridge {
		return nil, ErrWrongScanKind
	}
	if scan.Status != model.JobStatusCompleted {
		return nil, ErrScanNotCompleted
	}

	n, err := repos.Cookbooks.CountRecipes(ctx, cookbookID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNoRecipes
	}

	payload := model.MatchJobPayload{UserID: userID, CookbookID: cookbookID, FridgeScanID: fridgeScanID}
	state, err := s.newState(uuid.NewString(), userID, payload)
	if err != nil {
		return nil, err
	}
	job := &model.MatchJob{
		JobState:     state,
		CookbookID:   cookbookID,
		FridgeScanID: fridgeScanID,
		TotalRecipes: int(n),
	}

	err = s.create(ctx, model.TaskTypeMatch, &job.JobState, func(r *store.Repos) error {
		return r.Matches.Create(ctx, job)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create match job: %w", err)
	}

	s.log.Info("match job queued", zap.String("job_id", job.ID), zap.String("cookbook_id", cookbookID))
	return job, nil
}

func (s *MatchService) Get(ctx context.Context, userID, id string) (*model.MatchJob, error) {
	return s.db.Repos().Matches.Get(ctx, userID, id)
}

func (s *MatchService) List(ctx context.Context, userID string, limit, offset int) (*MatchJobList, error) {
	list, total, err := s.db.Repos().Matches.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.MatchJob{}
	}
	return &MatchJobList{Jobs: list, Total: total, Limit: limit, Offset: offset}, nil
}

// Results returns the recipe matches of a completed job, best first.
func (s *MatchService) Results(ctx context.Context, userID, id string) ([]model.RecipeMatch, error) {
	job, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, ErrJobNotCompleted
	}
	results, err := s.db.Repos().Matches.Results(ctx, id)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []model.RecipeMatch{}
	}
	return results, nil
}

func (s *MatchService) Retry(ctx context.Context, userID, id string) (*model.MatchJob, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	if _, err := s.retry(ctx, model.JobKindMatch, model.TaskTypeMatch, id); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, id)
}

func (s *MatchService) Delete(ctx context.Context, userID, id string) error {
	job, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	return s.remove(ctx, model.JobKindMatch, model.TaskTypeMatch, &job.JobState)
}
