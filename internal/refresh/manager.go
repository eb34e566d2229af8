// Package refresh orchestrates aggregation runs over the tracked
// repositories: work list lookup, job bookkeeping, the batched fetch and
// the final commit into shared view state.
package refresh

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/NikkuNoShori/RepoMonitor/internal/aggregate"
	"github.com/NikkuNoShori/RepoMonitor/internal/dashboard"
	"github.com/NikkuNoShori/RepoMonitor/internal/domain"
	apperrors "github.com/NikkuNoShori/RepoMonitor/internal/errors"
	"github.com/NikkuNoShori/RepoMonitor/internal/logging"
	"github.com/NikkuNoShori/RepoMonitor/internal/storage"
)

// Manager triggers and paces aggregation runs. Concurrent triggers for
// the same scope (periodic refresh racing a manual one) collapse into a
// single run through singleflight; both callers observe its result.
type Manager struct {
	store    storage.Storage
	runner   *aggregate.Runner
	reporter *dashboard.Reporter
	view     *dashboard.Store
	opts     aggregate.Options
	interval time.Duration
	group    singleflight.Group
	logger   zerolog.Logger
}

// Config holds manager configuration.
type Config struct {
	BatchSize       int
	InterBatchDelay time.Duration
	Interval        time.Duration
}

// NewManager creates a refresh manager.
func NewManager(store storage.Storage, runner *aggregate.Runner, reporter *dashboard.Reporter, view *dashboard.Store, cfg Config) *Manager {
	return &Manager{
		store:    store,
		runner:   runner,
		reporter: reporter,
		view:     view,
		opts: aggregate.Options{
			BatchSize:       cfg.BatchSize,
			InterBatchDelay: cfg.InterBatchDelay,
		},
		interval: cfg.Interval,
		logger:   logging.NewLogger("refresh"),
	}
}

// Refresh runs one aggregation over all tracked repositories and commits
// the result. An UNAUTHORIZED abort discards partial state, marks the job
// failed and propagates the distinct re-authentication condition to the
// caller; the previously committed total stays visible to observers.
func (m *Manager) Refresh(ctx context.Context) (domain.AggregateResult, error) {
	v, err, _ := m.group.Do("open-issues", func() (interface{}, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return domain.AggregateResult{}, err
	}
	return v.(domain.AggregateResult), nil
}

func (m *Manager) refresh(ctx context.Context) (domain.AggregateResult, error) {
	repos, err := m.store.ListRepositories(ctx)
	if err != nil {
		return domain.AggregateResult{}, apperrors.NewInternalError("list tracked repositories", err)
	}

	items := make([]domain.WorkItem, 0, len(repos))
	for _, repo := range repos {
		items = append(items, repo.WorkItem())
	}

	job := m.startJob(ctx)
	defer m.syncActiveJobs(ctx)

	opts := m.opts
	opts.OnItem = func(item domain.WorkItem, count int) {
		if err := m.store.MarkAnalyzed(ctx, item, count, time.Now()); err != nil {
			m.logger.Warn().Err(err).Str("repo", item.FullName()).Msg("failed to persist repository count")
		}
	}

	result, err := m.runner.Run(ctx, items, opts)
	if err != nil {
		m.finishJob(ctx, job, domain.JobStatusFailed, err.Error())
		return domain.AggregateResult{}, err
	}

	if err := m.reporter.Commit(ctx, result); err != nil {
		m.finishJob(ctx, job, domain.JobStatusFailed, err.Error())
		return domain.AggregateResult{}, err
	}

	m.finishJob(ctx, job, domain.JobStatusCompleted, "")
	m.syncRepoCounts(ctx)

	return result, nil
}

// Start runs the periodic refresh loop until the context is cancelled.
// The first run fires immediately.
func (m *Manager) Start(ctx context.Context) {
	m.syncRepoCounts(ctx)
	m.syncActiveJobs(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if _, err := m.Refresh(ctx); err != nil && !apperrors.IsCancelled(err) {
			m.logger.Error().
				Str("error_class", string(apperrors.CodeOf(err))).
				Err(err).
				Msg("periodic refresh failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SyncCounts re-derives the repository counts into the view state.
// Exposed for realtime event handlers.
func (m *Manager) SyncCounts(ctx context.Context) {
	m.syncRepoCounts(ctx)
}

func (m *Manager) startJob(ctx context.Context) *domain.RefreshJob {
	now := time.Now()
	job := &domain.RefreshJob{
		ID:        uuid.New().String(),
		Status:    domain.JobStatusRunning,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.CreateJob(ctx, job); err != nil {
		m.logger.Warn().Err(err).Msg("failed to record refresh job")
		return nil
	}
	m.syncActiveJobs(ctx)
	return job
}

func (m *Manager) finishJob(ctx context.Context, job *domain.RefreshJob, status domain.JobStatus, jobErr string) {
	if job == nil {
		return
	}
	// Job bookkeeping must survive run cancellation.
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := m.store.UpdateJobStatus(ctx, job.ID, status, jobErr); err != nil {
		m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to update refresh job")
	}
}

func (m *Manager) syncRepoCounts(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	tracked, analyzed, err := m.store.CountRepositories(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to count repositories")
		return
	}
	m.view.SetRepoCounts(tracked, analyzed)
}

func (m *Manager) syncActiveJobs(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	active, err := m.store.CountActiveJobs(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to count active jobs")
		return
	}
	m.view.SetActiveJobs(active)
}
