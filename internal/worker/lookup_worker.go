package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/client"
	"github.com/fridgechef/api/internal/lifecycle"
	"github.com/fridgechef/api/internal/metrics"
	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/queue"
	"github.com/fridgechef/api/internal/selection"
	"github.com/fridgechef/api/internal/store"
	"github.com/fridgechef/api/internal/websocket"
)

// LookupWorker searches the retail product of a cookbook and gates the
// result on title confidence
type LookupWorker struct {
	db       *store.DB
	jobs     *lifecycle.Manager
	runner   *Runner
	searcher client.ProductSearcher
	gate     *selection.Gate
	events   websocket.Publisher
	log      *zap.Logger
}

func NewLookupWorker(db *store.DB, jobs *lifecycle.Manager, runner *Runner, searcher client.ProductSearcher, gate *selection.Gate, events websocket.Publisher, log *zap.Logger) *LookupWorker {
	return &LookupWorker{
		db:       db,
		jobs:     jobs,
		runner:   runner,
		searcher: searcher,
		gate:     gate,
		events:   events,
		log:      log.Named("worker.lookup"),
	}
}

// ProcessTask handles model.TaskTypeLookup
func (w *LookupWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	tp, err := queue.DecodeTask(t)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	var p model.LookupJobPayload
	if err := model.JSON(tp.Payload).Decode(&p); err != nil {
		w.log.Warn("unreadable lookup task payload", zap.String("job_id", tp.JobID), zap.Error(err))
	}

	return w.runner.Execute(ctx, Run{
		Kind:       model.JobKindLookup,
		JobID:      tp.JobID,
		Work:       w.lookup,
		FailFields: lifecycle.Fields{"match_status": model.MatchStatusFailed},
		OnFailed: func(ctx context.Context) {
			if p.CookbookID == "" {
				return
			}
			err := w.db.Repos().Cookbooks.UpdateProduct(ctx, p.CookbookID, store.ProductUpdate{Status: model.MatchStatusFailed})
			if err != nil {
				w.log.Error("failed to mark cookbook lookup failed", zap.String("cookbook_id", p.CookbookID), zap.Error(err))
			}
		},
	})
}

func (w *LookupWorker) lookup(ctx context.Context, job *model.JobState) error {
	var p model.LookupJobPayload
	if err := decodePayload(job, &p); err != nil {
		return err
	}

	w.events.Progress(model.JobKindLookup, job.ID, 20, model.JobStatusProcessing, "Searching products")

	candidates, err := w.searcher.SearchProducts(ctx, p.Title)
	if err != nil {
		return searchError(err)
	}

	decision := w.gate.Decide(selection.Score(p.Title, candidates))
	metrics.RecordLookupDecision(decision.MatchStatus)

	status, err := w.record(ctx, lifecycle.ClaimOf(job), p.CookbookID, decision)
	if err != nil {
		return saveError(err, "failed to save lookup result")
	}

	w.events.Complete(model.JobKindLookup, job.ID, status, LookupEvent(decision))
	w.log.Info("product lookup decided",
		zap.String("job_id", job.ID),
		zap.String("match_status", string(decision.MatchStatus)),
		zap.Int("confidence", decision.Confidence),
		zap.Int("candidates", len(candidates)),
	)
	return nil
}

// record writes the decision to the job and the cookbook in one
// transaction and returns the job's new status.
func (w *LookupWorker) record(ctx context.Context, claim lifecycle.Claim, cookbookID string, d selection.Decision) (model.JobStatus, error) {
	status := model.JobStatusCompleted
	err := w.db.Transact(ctx, func(r *store.Repos) error {
		jobs := w.jobs.WithStore(r.Jobs)
		extra := lifecycle.Fields{
			"match_status":     d.MatchStatus,
			"match_confidence": d.Confidence,
		}
		update := store.ProductUpdate{Status: d.MatchStatus, Confidence: &d.Confidence}

		var err error
		switch d.MatchStatus {
		case model.MatchStatusAutoMatched:
			extra["selected_id"] = d.Selected.ID
			update.ProductID = &d.Selected.ID
			update.ImageURL = nonEmpty(d.Selected.ImageURL)
			update.ProductURL = nonEmpty(d.Selected.ProductURL)
			result := model.LookupResult{MatchStatus: d.MatchStatus, SelectedID: d.Selected.ID, Confidence: d.Confidence}
			_, err = jobs.Complete(ctx, model.JobKindLookup, claim, result, extra)
		case model.MatchStatusPendingReview:
			status = model.JobStatusPendingReview
			extra["suggestions"] = model.ProductCandidates(d.Suggestions)
			_, err = jobs.AwaitReview(ctx, model.JobKindLookup, claim, extra)
		default:
			update.Confidence = nil
			result := model.LookupResult{MatchStatus: d.MatchStatus}
			_, err = jobs.Complete(ctx, model.JobKindLookup, claim, result, extra)
		}
		if err != nil {
			return err
		}
		return r.Cookbooks.UpdateProduct(ctx, cookbookID, update)
	})
	return status, err
}

// LookupEvent is the websocket payload announcing a decision.
func LookupEvent(d selection.Decision) map[string]any {
	ev := map[string]any{
		"matchStatus": d.MatchStatus,
		"confidence":  d.Confidence,
	}
	if d.Selected != nil {
		ev["selected"] = d.Selected
	}
	if len(d.Suggestions) > 0 {
		ev["suggestions"] = d.Suggestions
	}
	return ev
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
