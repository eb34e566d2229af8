package storage

import (
	"context"
	"time"

	"github.com/NikkuNoShori/RepoMonitor/internal/domain"
)

// Storage is the abstract interface for the persistence layer
type Storage interface {
	// Tracked repository operations
	SaveRepository(ctx context.Context, repo *domain.Repository) error
	DeleteRepository(ctx context.Context, owner, name string) error
	GetRepository(ctx context.Context, owner, name string) (*domain.Repository, error)
	ListRepositories(ctx context.Context) ([]*domain.Repository, error)

	// CountRepositories returns the tracked total and how many of those
	// have been analyzed at least once.
	CountRepositories(ctx context.Context) (tracked int, analyzed int, err error)

	// MarkAnalyzed records a successful per-repository fetch.
	MarkAnalyzed(ctx context.Context, item domain.WorkItem, openIssues int, at time.Time) error

	// Refresh job bookkeeping
	CreateJob(ctx context.Context, job *domain.RefreshJob) error
	UpdateJobStatus(ctx context.Context, id string, status domain.JobStatus, jobErr string) error
	CountActiveJobs(ctx context.Context) (int, error)

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
