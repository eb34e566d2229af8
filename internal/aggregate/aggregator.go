// Package aggregate runs the batched, rate-limited aggregation over the
// tracked repositories and accumulates the cross-repository open-issues
// total.
package aggregate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/NikkuNoShori/RepoMonitor/internal/domain"
	apperrors "github.com/NikkuNoShori/RepoMonitor/internal/errors"
	"github.com/NikkuNoShori/RepoMonitor/internal/logging"
)

// Prometheus metrics for aggregation runs.
var (
	aggregateRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repomonitor_aggregate_runs_total",
		Help: "Total aggregation runs by outcome",
	}, []string{"outcome"})

	aggregateItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repomonitor_aggregate_items_total",
		Help: "Total aggregated work items by result",
	}, []string{"result"})

	aggregateRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "repomonitor_aggregate_run_duration_seconds",
		Help:    "Aggregation run duration in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})
)

// Counter issues one remote call per work item. Failures must already be
// classified into the UNAUTHORIZED / RATE_LIMITED / TRANSIENT / CANCELLED
// taxonomy.
type Counter interface {
	OpenIssueCount(ctx context.Context, item domain.WorkItem) (int, error)
}

// Options controls a single run.
type Options struct {
	// BatchSize is the maximum number of items per batch.
	BatchSize int

	// InterBatchDelay is applied after every batch except the last.
	InterBatchDelay time.Duration

	// OnItem, when set, is invoked for every successful item with its
	// count. Used for progress reporting and per-repository persistence.
	OnItem func(item domain.WorkItem, count int)
}

// Runner partitions a work list into batches and accumulates totals and
// per-item failures.
type Runner struct {
	counter Counter
	pacer   Pacer
	logger  zerolog.Logger
}

// NewRunner creates a runner. A nil pacer defaults to SleepPacer.
func NewRunner(counter Counter, pacer Pacer) *Runner {
	if pacer == nil {
		pacer = SleepPacer{}
	}
	return &Runner{
		counter: counter,
		pacer:   pacer,
		logger:  logging.NewLogger("aggregate"),
	}
}

// Run processes items in contiguous batches of at most opts.BatchSize,
// sequentially within each batch, pausing opts.InterBatchDelay between
// batches.
//
// TRANSIENT and RATE_LIMITED failures are recorded in the failed list in
// first-failure order and the run continues. UNAUTHORIZED aborts the run
// immediately and discards all partial state. Cancellation aborts with a
// CANCELLED error and no result.
func (r *Runner) Run(ctx context.Context, items []domain.WorkItem, opts Options) (domain.AggregateResult, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 2
	}

	runID := uuid.New().String()
	start := time.Now()
	logger := r.logger.With().Str("run_id", runID).Logger()

	logger.Info().
		Int("items", len(items)).
		Int("batch_size", opts.BatchSize).
		Dur("inter_batch_delay", opts.InterBatchDelay).
		Msg("starting aggregation run")

	total := 0
	processed := 0
	var failed []string

	for batchStart := 0; batchStart < len(items); batchStart += opts.BatchSize {
		if batchStart > 0 {
			if err := r.pacer.Pause(ctx, opts.InterBatchDelay); err != nil {
				aggregateRunsTotal.WithLabelValues("cancelled").Inc()
				return domain.AggregateResult{}, apperrors.NewCancelledError("run abandoned during pacing delay", err)
			}
		}

		batchEnd := batchStart + opts.BatchSize
		if batchEnd > len(items) {
			batchEnd = len(items)
		}

		for _, item := range items[batchStart:batchEnd] {
			if err := ctx.Err(); err != nil {
				aggregateRunsTotal.WithLabelValues("cancelled").Inc()
				return domain.AggregateResult{}, apperrors.NewCancelledError("run abandoned", err)
			}

			count, err := r.counter.OpenIssueCount(ctx, item)
			if err != nil {
				switch {
				case apperrors.IsUnauthorized(err):
					// Fatal to the run: discard partial state, no commit.
					aggregateRunsTotal.WithLabelValues("unauthorized").Inc()
					logger.Error().
						Str("repo", item.FullName()).
						Msg("aggregation aborted, credential rejected")
					return domain.AggregateResult{}, err
				case apperrors.IsCancelled(err):
					aggregateRunsTotal.WithLabelValues("cancelled").Inc()
					return domain.AggregateResult{}, err
				default:
					// Per-item failure: record and continue.
					aggregateItemsTotal.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
					failed = append(failed, item.FullName())
					processed++
					continue
				}
			}

			aggregateItemsTotal.WithLabelValues("success").Inc()
			total += count
			processed++

			if opts.OnItem != nil {
				opts.OnItem(item, count)
			}
		}
	}

	result := domain.AggregateResult{
		RunID:       runID,
		Total:       total,
		Processed:   processed,
		Failed:      failed,
		CompletedAt: time.Now(),
	}

	aggregateRunsTotal.WithLabelValues("completed").Inc()
	aggregateRunDuration.Observe(time.Since(start).Seconds())

	logger.Info().
		Int("total", result.Total).
		Int("processed", result.Processed).
		Int("failed", len(result.Failed)).
		Dur("duration", time.Since(start)).
		Msg("aggregation run complete")

	return result, nil
}
