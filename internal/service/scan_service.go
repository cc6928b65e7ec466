package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/cache"
	"github.com/fridgechef/api/internal/client"
	"github.com/fridgechef/api/internal/lifecycle"
	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/store"
)

// MaxCookbookPages is the most pages one cookbook scan accepts.
const MaxCookbookPages = 20

// Image is one uploaded photo.
type Image struct {
	Body        io.Reader
	ContentType string
	Filename    string
}

// ScanItems is what a completed scan produced.
type ScanItems struct {
	Kind      model.ScanKind        `json:"kind"`
	Cookbook  *model.Cookbook       `json:"cookbook,omitempty"`
	Inventory []model.InventoryItem `json:"inventory,omitempty"`
}

// ScanJobList is one page of scan jobs with per status counts.
type ScanJobList struct {
	Jobs         []model.ScanJob           `json:"jobs"`
	Total        int64                     `json:"total"`
	Limit        int                       `json:"limit"`
	Offset       int                       `json:"offset"`
	StatusCounts map[model.JobStatus]int64 `json:"statusCounts"`
}

// ScanService accepts cookbook and fridge photos and manages scan jobs
type ScanService struct {
	jobs
	storage client.StorageClient
	cache   *cache.Cache
}

func NewScanService(db *store.DB, lc *lifecycle.Manager, q JobQueue, storage client.StorageClient, c *cache.Cache, maxRetries int, log *zap.Logger) *ScanService {
	return &ScanService{
		jobs:    jobs{db: db, lifecycle: lc, queue: q, maxRetries: maxRetries, log: log},
		storage: storage,
		cache:   c,
	}
}

// StartCookbookScan stores the page images and queues a scan job. Pages are
// processed in the order given.
func (s *ScanService) StartCookbookScan(ctx context.Context, userID, cookbookName string, images []Image) (*model.ScanJob, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	if len(images) > MaxCookbookPages {
		return nil, fmt.Errorf("%w: at most %d pages", ErrTooManyImages, MaxCookbookPages)
	}

	jobID := uuid.NewString()
	keys, err := s.upload(ctx, userID, jobID, images)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(cookbookName)
	payload := model.ScanJobPayload{
		UserID:       userID,
		Kind:         model.ScanKindCookbook,
		CookbookName: name,
		ImageKeys:    keys,
	}
	job, err := s.create(ctx, jobID, payload, len(keys))
	if err != nil {
		return nil, err
	}
	job.CookbookName = &name

	s.log.Info("cookbook scan queued", zap.String("job_id", jobID), zap.Int("pages", len(keys)))
	return job, nil
}

// StartFridgeScan stores the photo and queues a fridge scan job.
func (s *ScanService) StartFridgeScan(ctx context.Context, userID string, image Image, replaceExisting bool) (*model.ScanJob, error) {
	jobID := uuid.NewString()
	keys, err := s.upload(ctx, userID, jobID, []Image{image})
	if err != nil {
		return nil, err
	}

	payload := model.ScanJobPayload{
		UserID:          userID,
		Kind:            model.ScanKindFridge,
		ImageKeys:       keys,
		ReplaceExisting: replaceExisting,
	}
	job, err := s.create(ctx, jobID, payload, 1)
	if err != nil {
		return nil, err
	}

	s.log.Info("fridge scan queued", zap.String("job_id", jobID), zap.Bool("replace_existing", replaceExisting))
	return job, nil
}

func (s *ScanService) create(ctx context.Context, jobID string, payload model.ScanJobPayload, units int) (*model.ScanJob, error) {
	state, err := s.newState(jobID, payload.UserID, payload)
	if err != nil {
		return nil, err
	}

	job := &model.ScanJob{
		JobState:   state,
		Kind:       payload.Kind,
		TotalUnits: units,
	}
	if payload.CookbookName != "" {
		job.CookbookName = &payload.CookbookName
	}

	err = s.jobs.create(ctx, scanTaskType(payload.Kind), &job.JobState, func(r *store.Repos) error {
		return r.Scans.Create(ctx, job)
	})
	if err != nil {
		s.removeImages(payload.ImageKeys)
		return nil, fmt.Errorf("failed to create scan job: %w", err)
	}
	return job, nil
}

func (s *ScanService) upload(ctx context.Context, userID, jobID string, images []Image) ([]string, error) {
	keys := make([]string, 0, len(images))
	for i, img := range images {
		key := ImageKey(userID, jobID, i, img.Filename)
		if _, err := s.storage.Upload(ctx, key, img.Body, img.ContentType); err != nil {
			s.removeImages(keys)
			return nil, fmt.Errorf("failed to store image %d: %w", i+1, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// removeImages is best effort; orphaned objects are harmless.
func (s *ScanService) removeImages(keys []string) {
	for _, key := range keys {
		if err := s.storage.Delete(context.Background(), key); err != nil {
			s.log.Warn("failed to delete scan image", zap.String("key", key), zap.Error(err))
		}
	}
}

// ImageKey is where page n of a scan is stored.
func ImageKey(userID, jobID string, n int, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = ".jpg"
	}
	return fmt.Sprintf("scans/%s/%s/%d%s", userID, jobID, n, ext)
}

func (s *ScanService) Get(ctx context.Context, userID, id string) (*model.ScanJob, error) {
	return s.db.Repos().Scans.Get(ctx, userID, id)
}

func (s *ScanService) List(ctx context.Context, userID string, f store.ScanJobFilter) (*ScanJobList, error) {
	repos := s.db.Repos()
	list, total, err := repos.Scans.List(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	counts, err := repos.Scans.StatusCounts(ctx, userID, f.Kind)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.ScanJob{}
	}
	return &ScanJobList{Jobs: list, Total: total, Limit: f.Limit, Offset: f.Offset, StatusCounts: counts}, nil
}

// Items returns the cookbook or inventory a completed scan produced.
func (s *ScanService) Items(ctx context.Context, userID, id string) (*ScanItems, error) {
	job, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, ErrJobNotCompleted
	}

	repos := s.db.Repos()
	items := &ScanItems{Kind: job.Kind}
	switch job.Kind {
	case model.ScanKindCookbook:
		if job.CookbookID == nil {
			return items, nil
		}
		cb, err := repos.Cookbooks.Get(ctx, userID, *job.CookbookID)
		if errors.Is(err, store.ErrNotFound) {
			return items, nil
		}
		if err != nil {
			return nil, err
		}
		items.Cookbook = cb
	case model.ScanKindFridge:
		inv, err := repos.Inventory.ListByScan(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		items.Inventory = inv
	}
	return items, nil
}

func (s *ScanService) Retry(ctx context.Context, userID, id string) (*model.ScanJob, error) {
	job, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.retry(ctx, model.JobKindScan, scanTaskType(job.Kind), id); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, id)
}

// Delete removes a scan job and its images. Recipes and inventory it
// produced are kept.
func (s *ScanService) Delete(ctx context.Context, userID, id string) error {
	job, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.remove(ctx, model.JobKindScan, scanTaskType(job.Kind), &job.JobState); err != nil {
		return err
	}

	var payload model.ScanJobPayload
	if err := job.Payload.Decode(&payload); err == nil && job.Kind == model.ScanKindFridge {
		s.removeImages(payload.ImageKeys)
	}
	s.cache.InvalidateUser(ctx, userID)
	return nil
}

func scanTaskType(kind model.ScanKind) string {
	if kind == model.ScanKindFridge {
		return model.TaskTypeFridgeScan
	}
	return model.TaskTypeCookbookScan
}
