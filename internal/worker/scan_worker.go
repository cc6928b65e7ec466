package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/cache"
	"github.com/fridgechef/api/internal/client"
	"github.com/fridgechef/api/internal/lifecycle"
	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/queue"
	"github.com/fridgechef/api/internal/store"
	"github.com/fridgechef/api/internal/websocket"
)

const untitledCookbook = "Untitled Cookbook"

// ScanWorker processes cookbook and fridge scans
type ScanWorker struct {
	db      *store.DB
	jobs    *lifecycle.Manager
	runner  *Runner
	storage client.StorageClient
	vision  client.Vision
	cache   *cache.Cache
	events  websocket.Publisher
	log     *zap.Logger
}

func NewScanWorker(db *store.DB, jobs *lifecycle.Manager, runner *Runner, storage client.StorageClient, vision client.Vision, c *cache.Cache, events websocket.Publisher, log *zap.Logger) *ScanWorker {
	return &ScanWorker{
		db:      db,
		jobs:    jobs,
		runner:  runner,
		storage: storage,
		vision:  vision,
		cache:   c,
		events:  events,
		log:     log.Named("worker.scan"),
	}
}

// ProcessCookbookTask handles model.TaskTypeCookbookScan
func (w *ScanWorker) ProcessCookbookTask(ctx context.Context, t *asynq.Task) error {
	tp, err := queue.DecodeTask(t)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return w.runner.Execute(ctx, Run{Kind: model.JobKindScan, JobID: tp.JobID, Work: w.scanCookbook})
}

// ProcessFridgeTask handles model.TaskTypeFridgeScan
func (w *ScanWorker) ProcessFridgeTask(ctx context.Context, t *asynq.Task) error {
	tp, err := queue.DecodeTask(t)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return w.runner.Execute(ctx, Run{Kind: model.JobKindScan, JobID: tp.JobID, Work: w.scanFridge})
}

func decodePayload(job *model.JobState, dst any) error {
	if err := job.Payload.Decode(dst); err != nil {
		return &JobError{Code: model.ErrCodeInvalidPayload, Message: "job payload is unreadable", Permanent: true, Err: err}
	}
	return nil
}

// scanCookbook reads pages strictly in order. Each page commits on its
// own, so a retried job resumes after the last committed page.
func (w *ScanWorker) scanCookbook(ctx context.Context, job *model.JobState) error {
	var p model.ScanJobPayload
	if err := decodePayload(job, &p); err != nil {
		return err
	}

	scan, err := w.db.Repos().Scans.GetByID(ctx, job.ID)
	if err != nil {
		return jobRowError(err)
	}

	cookbookID := ""
	if scan.CookbookID != nil {
		cookbookID = *scan.CookbookID
	}
	total := len(p.ImageKeys)

	for i := scan.ProcessedUnits; i < total; i++ {
		key := p.ImageKeys[i]
		w.events.Progress(model.JobKindScan, job.ID, i*100/total, model.JobStatusProcessing,
			fmt.Sprintf("Reading page %d of %d", i+1, total))

		image, err := w.storage.Download(ctx, key)
		if err != nil {
			return storageError(key, err)
		}

		extraction, err := w.vision.ExtractRecipes(ctx, image)
		if err != nil {
			return transient(model.ErrCodeExtractionFailed, fmt.Sprintf("could not read page %d", i+1), err)
		}
		if !extraction.IsValidCookbook {
			return permanent(model.ErrCodeInvalidImage, fmt.Sprintf("page %d does not look like a cookbook page", i+1))
		}

		recipes := BuildRecipes(extraction, i+1, key)
		pageCookbookID := cookbookID

		err = w.db.Transact(ctx, func(r *store.Repos) error {
			if len(recipes) > 0 {
				if pageCookbookID == "" {
					cb, err := r.Cookbooks.GetOrCreate(ctx, p.UserID, CookbookName(p.CookbookName, extraction.BookTitle))
					if err != nil {
						return err
					}
					pageCookbookID = cb.ID
				}
				if err := r.Cookbooks.AddRecipes(ctx, pageCookbookID, recipes); err != nil {
					return err
				}
				if err := r.Cookbooks.PageScanned(ctx, pageCookbookID, key); err != nil {
					return err
				}
			}

			progress := lifecycle.Fields{"processed_units": i + 1}
			if pageCookbookID != "" {
				progress["cookbook_id"] = pageCookbookID
			}
			_, err := w.jobs.WithStore(r.Jobs).Heartbeat(ctx, model.JobKindScan, lifecycle.ClaimOf(job), progress)
			return err
		})
		if err != nil {
			return saveError(err, fmt.Sprintf("failed to save page %d", i+1))
		}
		cookbookID = pageCookbookID

		w.log.Debug("page scanned",
			zap.String("job_id", job.ID),
			zap.Int("page", i+1),
			zap.Int("recipes", len(recipes)),
		)
	}

	var result model.CookbookScanResult
	err = w.db.Transact(ctx, func(r *store.Repos) error {
		if cookbookID != "" {
			n, err := r.Cookbooks.CountRecipesFromImages(ctx, cookbookID, p.ImageKeys)
			if err != nil {
				return err
			}
			result = model.CookbookScanResult{RecipesFound: int(n), CookbookID: cookbookID}
		}
		_, err := w.jobs.WithStore(r.Jobs).Complete(ctx, model.JobKindScan, lifecycle.ClaimOf(job), result, nil)
		return err
	})
	if err != nil {
		return saveError(err, "failed to complete scan")
	}

	w.cache.InvalidateUser(ctx, p.UserID)
	w.events.Complete(model.JobKindScan, job.ID, model.JobStatusCompleted, result)
	w.log.Info("cookbook scan completed", zap.String("job_id", job.ID), zap.Int("recipes", result.RecipesFound))
	return nil
}

func (w *ScanWorker) scanFridge(ctx context.Context, job *model.JobState) error {
	var p model.ScanJobPayload
	if err := decodePayload(job, &p); err != nil {
		return err
	}
	if len(p.ImageKeys) == 0 {
		return permanent(model.ErrCodeInvalidPayload, "fridge scan has no image")
	}
	key := p.ImageKeys[0]

	w.events.Progress(model.JobKindScan, job.ID, 10, model.JobStatusProcessing, "Reading fridge photo")

	image, err := w.storage.Download(ctx, key)
	if err != nil {
		return storageError(key, err)
	}

	extraction, err := w.vision.ExtractFridgeItems(ctx, image)
	if err != nil {
		return transient(model.ErrCodeExtractionFailed, "could not read the fridge photo", err)
	}
	if !extraction.IsValidFridge {
		return permanent(model.ErrCodeInvalidImage, "the photo does not show a fridge")
	}

	items := BuildInventory(p.UserID, job.ID, extraction)
	result := model.FridgeScanResult{ItemsFound: len(items), ReplacedExisting: p.ReplaceExisting}

	err = w.db.Transact(ctx, func(r *store.Repos) error {
		if p.ReplaceExisting {
			if _, err := r.Inventory.Clear(ctx, p.UserID); err != nil {
				return err
			}
		}
		if err := r.Inventory.Create(ctx, items); err != nil {
			return err
		}
		_, err := w.jobs.WithStore(r.Jobs).Complete(ctx, model.JobKindScan, lifecycle.ClaimOf(job), result, lifecycle.Fields{"processed_units": 1})
		return err
	})
	if err != nil {
		return saveError(err, "failed to save inventory")
	}

	w.cache.InvalidateUser(ctx, p.UserID)
	w.events.Complete(model.JobKindScan, job.ID, model.JobStatusCompleted, result)
	w.log.Info("fridge scan completed", zap.String("job_id", job.ID), zap.Int("items", len(items)))
	return nil
}

// saveError keeps lifecycle errors intact for the runner and marks anything
// else as a transient storage failure.
func saveError(err error, message string) error {
	if errors.Is(err, lifecycle.ErrInvalidState) || errors.Is(err, lifecycle.ErrNotFound) {
		return err
	}
	return transient(model.ErrCodeStorage, message, err)
}

func jobRowError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return lifecycle.ErrNotFound
	}
	return err
}

// CookbookName picks the name recipes are filed under: what the user typed,
// else the title printed on the page.
func CookbookName(given, printed string) string {
	if name := strings.TrimSpace(given); name != "" {
		return name
	}
	if name := strings.TrimSpace(printed); name != "" {
		return name
	}
	return untitledCookbook
}

// BuildRecipes converts one page extraction into recipe rows. Recipes
// without a name are dropped; ingredients keep their printed order.
func BuildRecipes(e *client.RecipeExtraction, page int, imageKey string) []model.Recipe {
	pageNumber := page
	if n, err := strconv.Atoi(strings.TrimSpace(e.PageNumber)); err == nil && n > 0 {
		pageNumber = n
	}

	recipes := make([]model.Recipe, 0, len(e.Recipes))
	for _, er := range e.Recipes {
		name := strings.TrimSpace(er.Name)
		if name == "" {
			continue
		}
		rec := model.Recipe{
			Name:       name,
			PrepTime:   optional(er.PrepTime),
			CookTime:   optional(er.CookTime),
			TotalTime:  optional(er.TotalTime),
			Cuisine:    optional(er.Cuisine),
			Notes:      optional(er.Notes),
			PageNumber: pageNumber,
			ImageKey:   &imageKey,
		}
		if er.Servings > 0 {
			servings := er.Servings
			rec.Servings = &servings
		}
		for _, ing := range er.Ingredients {
			ingName := strings.TrimSpace(ing.Name)
			if ingName == "" {
				continue
			}
			rec.Ingredients = append(rec.Ingredients, model.Ingredient{
				Name:     ingName,
				Quantity: optional(ing.Quantity),
				Unit:     optional(ing.Unit),
				Notes:    optional(ing.Notes),
			})
		}
		for _, step := range er.Instructions {
			if step = strings.TrimSpace(step); step != "" {
				rec.Instructions = append(rec.Instructions, model.Instruction{Description: step})
			}
		}
		recipes = append(recipes, rec)
	}
	return recipes
}

// BuildInventory converts a fridge extraction into inventory rows.
func BuildInventory(userID, scanJobID string, e *client.FridgeExtraction) []model.InventoryItem {
	items := make([]model.InventoryItem, 0, len(e.Items))
	for _, it := range e.Items {
		name := strings.TrimSpace(it.Name)
		if name == "" {
			continue
		}
		items = append(items, model.InventoryItem{
			UserID:     userID,
			Name:       name,
			Quantity:   optional(it.Quantity),
			Category:   optional(strings.ToLower(it.Category)),
			Confidence: optional(strings.ToLower(it.Confidence)),
			ScanJobID:  &scanJobID,
		})
	}
	return items
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
