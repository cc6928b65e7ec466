package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fridgechef/api/internal/model"
)

var (
	// JobTransitionsTotal counts persisted status changes by job kind
	JobTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fridgechef_job_transitions_total",
		Help: "Total number of job status transitions",
	}, []string{"kind", "from", "to"})

	// JobDurationSeconds observes processing time of finished runs
	JobDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fridgechef_job_duration_seconds",
		Help:    "Processing time from start to completion, failure or review",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"kind", "status"})

	// JobConflictsTotal counts lost compare-and-swap writes
	JobConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fridgechef_job_conflicts_total",
		Help: "Total number of job transitions rejected because the status changed concurrently",
	}, []string{"kind", "op"})

	// RecipeMatchPercentage observes scores written by match jobs
	RecipeMatchPercentage = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fridgechef_recipe_match_percentage",
		Help:    "Distribution of recipe match percentages",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	// LookupDecisionsTotal counts product lookup gate outcomes
	LookupDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fridgechef_lookup_decisions_total",
		Help: "Total number of product lookup decisions by match status",
	}, []string{"match_status"})

	// HTTPRequestsTotal tracks HTTP requests by route and status code
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fridgechef_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"route", "code"})
)

// JobObserver records lifecycle transitions.
type JobObserver struct{}

func (JobObserver) Transition(kind model.JobKind, from, to model.JobStatus) {
	JobTransitionsTotal.WithLabelValues(string(kind), string(from), string(to)).Inc()
}

func (JobObserver) Finished(kind model.JobKind, status model.JobStatus, d time.Duration) {
	JobDurationSeconds.WithLabelValues(string(kind), string(status)).Observe(d.Seconds())
}

func (JobObserver) Conflict(kind model.JobKind, op string) {
	JobConflictsTotal.WithLabelValues(string(kind), op).Inc()
}

// RecordMatchPercentage observes one recipe score
func RecordMatchPercentage(pct int) {
	RecipeMatchPercentage.Observe(float64(pct))
}

// RecordLookupDecision increments the decision counter
func RecordLookupDecision(status model.MatchStatus) {
	LookupDecisionsTotal.WithLabelValues(string(status)).Inc()
}

// HTTPMiddleware counts requests by matched route, not raw path, so ids do
// not explode the label space.
func HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		code := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			}
		}
		HTTPRequestsTotal.WithLabelValues(c.Route().Path, strconv.Itoa(code)).Inc()
		return err
	}
}
