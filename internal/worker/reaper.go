package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/lifecycle"
	"github.com/fridgechef/api/internal/model"
)

// Reaper fails processing jobs whose worker stopped renewing the lease, so
// they become retryable instead of hanging in processing.
type Reaper struct {
	jobs     *lifecycle.Manager
	interval time.Duration
	log      *zap.Logger
}

func NewReaper(jobs *lifecycle.Manager, interval time.Duration, log *zap.Logger) *Reaper {
	return &Reaper{jobs: jobs, interval: interval, log: log.Named("worker.reaper")}
}

// Run sweeps every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep reclaims expired jobs of every kind once and returns how many it
// failed.
func (r *Reaper) Sweep(ctx context.Context) int {
	total := 0
	for _, kind := range []model.JobKind{model.JobKindScan, model.JobKindMatch, model.JobKindLookup} {
		n, err := r.jobs.ReclaimExpired(ctx, kind)
		if err != nil {
			r.log.Error("lease sweep failed", zap.String("kind", string(kind)), zap.Error(err))
		}
		if n > 0 {
			r.log.Warn("reclaimed jobs with expired leases", zap.String("kind", string(kind)), zap.Int("count", n))
		}
		total += n
	}
	return total
}
