package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/lifecycle"
	"github.com/fridgechef/api/internal/matching"
	"github.com/fridgechef/api/internal/metrics"
	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/queue"
	"github.com/fridgechef/api/internal/store"
	"github.com/fridgechef/api/internal/websocket"
)

// MatchWorker scores every recipe of a cookbook against a fridge scan
type MatchWorker struct {
	db      *store.DB
	jobs    *lifecycle.Manager
	runner  *Runner
	matcher *matching.Matcher
	events  websocket.Publisher
	log     *zap.Logger
}

func NewMatchWorker(db *store.DB, jobs *lifecycle.Manager, runner *Runner, matcher *matching.Matcher, events websocket.Publisher, log *zap.Logger) *MatchWorker {
	return &MatchWorker{
		db:      db,
		jobs:    jobs,
		runner:  runner,
		matcher: matcher,
		events:  events,
		log:     log.Named("worker.match"),
	}
}

// ProcessTask handles model.TaskTypeMatch
func (w *MatchWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	tp, err := queue.DecodeTask(t)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return w.runner.Execute(ctx, Run{Kind: model.JobKindMatch, JobID: tp.JobID, Work: w.match})
}

func (w *MatchWorker) match(ctx context.Context, job *model.JobState) error {
	var p model.MatchJobPayload
	if err := decodePayload(job, &p); err != nil {
		return err
	}

	repos := w.db.Repos()
	recipes, err := repos.Cookbooks.RecipesWithIngredients(ctx, p.CookbookID)
	if err != nil {
		return transient(model.ErrCodeStorage, "failed to load recipes", err)
	}
	inventory, err := repos.Inventory.ListByScan(ctx, p.UserID, p.FridgeScanID)
	if err != nil {
		return transient(model.ErrCodeStorage, "failed to load inventory", err)
	}
	if len(inventory) == 0 {
		return permanent(model.ErrCodeNoInventory, "the fridge scan found no items to match against")
	}

	w.events.Progress(model.JobKindMatch, job.ID, 10, model.JobStatusProcessing,
		fmt.Sprintf("Matching %d recipes", len(recipes)))

	results, summary := MatchRecipes(w.matcher, job.ID, recipes, inventory)
	for i := range results {
		metrics.RecordMatchPercentage(results[i].MatchPercentage)
	}

	err = w.db.Transact(ctx, func(r *store.Repos) error {
		if err := r.Matches.SaveResults(ctx, results); err != nil {
			return err
		}
		_, err := w.jobs.WithStore(r.Jobs).Complete(ctx, model.JobKindMatch, lifecycle.ClaimOf(job), summary, lifecycle.Fields{
			"total_recipes":   summary.TotalRecipes,
			"matched_recipes": summary.MatchedRecipes,
		})
		return err
	})
	if err != nil {
		return saveError(err, "failed to save match results")
	}

	w.events.Complete(model.JobKindMatch, job.ID, model.JobStatusCompleted, summary)
	w.log.Info("match job completed",
		zap.String("job_id", job.ID),
		zap.Int("recipes", summary.TotalRecipes),
		zap.Int("matched", summary.MatchedRecipes),
	)
	return nil
}

// MatchRecipes builds one result row per recipe with ingredients. The
// summary counts every recipe of the cookbook and those with at least one
// available ingredient.
func MatchRecipes(m *matching.Matcher, jobID string, recipes []model.Recipe, inventory []model.InventoryItem) ([]model.RecipeMatch, model.MatchJobResult) {
	results := make([]model.RecipeMatch, 0, len(recipes))
	summary := model.MatchJobResult{TotalRecipes: len(recipes)}
	for i := range recipes {
		refs := recipes[i].Refs()
		if len(refs) == 0 {
			continue
		}
		out := m.Calculate(refs, inventory)
		if out.MatchPercentage > 0 {
			summary.MatchedRecipes++
		}
		results = append(results, model.RecipeMatch{
			ID:                   uuid.NewString(),
			MatchJobID:           jobID,
			RecipeID:             recipes[i].ID,
			RecipeName:           recipes[i].Name,
			MatchPercentage:      out.MatchPercentage,
			TotalIngredients:     len(refs),
			AvailableCount:       len(out.AvailableIngredients),
			MissingCount:         len(out.MissingIngredients),
			AvailableIngredients: out.AvailableIngredients,
			MissingIngredients:   out.MissingIngredients,
			CanMakeNow:           out.CanMakeNow,
		})
	}
	return results, summary
}
