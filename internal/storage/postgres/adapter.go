package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/NikkuNoShori/RepoMonitor/internal/domain"
	apperrors "github.com/NikkuNoShori/RepoMonitor/internal/errors"
	"github.com/NikkuNoShori/RepoMonitor/internal/storage"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connURL string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &postgresStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS repositories (
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		full_name TEXT NOT NULL,
		is_private BOOLEAN NOT NULL DEFAULT FALSE,
		open_issues INTEGER NOT NULL DEFAULT 0,
		last_analyzed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (owner, name)
	);

	CREATE INDEX IF NOT EXISTS idx_repositories_analyzed ON repositories(last_analyzed_at);

	CREATE TABLE IF NOT EXISTS refresh_jobs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_refresh_jobs_status ON refresh_jobs(status);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRepository inserts or updates a tracked repository
func (s *postgresStorage) SaveRepository(ctx context.Context, repo *domain.Repository) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repositories (owner, name, full_name, is_private, open_issues, last_analyzed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (owner, name) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			is_private = EXCLUDED.is_private,
			updated_at = EXCLUDED.updated_at
	`, repo.Owner, repo.Name, repo.FullName, repo.IsPrivate, repo.OpenIssues,
		repo.LastAnalyzedAt, repo.CreatedAt, repo.UpdatedAt)
	return err
}

// DeleteRepository removes a tracked repository
func (s *postgresStorage) DeleteRepository(ctx context.Context, owner, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE owner = $1 AND name = $2`, owner, name)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError("repository " + owner + "/" + name)
	}
	return nil
}

// GetRepository returns a single tracked repository
func (s *postgresStorage) GetRepository(ctx context.Context, owner, name string) (*domain.Repository, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT owner, name, full_name, is_private, open_issues, last_analyzed_at, created_at, updated_at
		FROM repositories WHERE owner = $1 AND name = $2
	`, owner, name)

	repo, err := scanRepository(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("repository " + owner + "/" + name)
	}
	return repo, err
}

// ListRepositories returns all tracked repositories ordered by full name
func (s *postgresStorage) ListRepositories(ctx context.Context) ([]*domain.Repository, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner, name, full_name, is_private, open_issues, last_analyzed_at, created_at, updated_at
		FROM repositories ORDER BY full_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []*domain.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

// CountRepositories returns tracked and analyzed repository counts
func (s *postgresStorage) CountRepositories(ctx context.Context) (int, int, error) {
	var tracked, analyzed int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(last_analyzed_at) FROM repositories
	`).Scan(&tracked, &analyzed)
	return tracked, analyzed, err
}

// MarkAnalyzed records a successful per-repository fetch
func (s *postgresStorage) MarkAnalyzed(ctx context.Context, item domain.WorkItem, openIssues int, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE repositories
		SET open_issues = $1, last_analyzed_at = $2, updated_at = $2
		WHERE owner = $3 AND name = $4
	`, openIssues, at, item.Owner, item.Name)
	return err
}

// CreateJob records a new refresh job
func (s *postgresStorage) CreateJob(ctx context.Context, job *domain.RefreshJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_jobs (id, status, started_at, finished_at, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, job.ID, string(job.Status), job.StartedAt, job.FinishedAt, job.Error, job.CreatedAt, job.UpdatedAt)
	return err
}

// UpdateJobStatus transitions a job to a new status
func (s *postgresStorage) UpdateJobStatus(ctx context.Context, id string, status domain.JobStatus, jobErr string) error {
	now := time.Now()
	var finishedAt *time.Time
	if status == domain.JobStatusCompleted || status == domain.JobStatusFailed {
		finishedAt = &now
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE refresh_jobs SET status = $1, finished_at = $2, error = $3, updated_at = $4 WHERE id = $5
	`, string(status), finishedAt, jobErr, now, id)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError("refresh job " + id)
	}
	return nil
}

// CountActiveJobs returns the number of pending or running jobs
func (s *postgresStorage) CountActiveJobs(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM refresh_jobs WHERE status IN ('pending', 'running')
	`).Scan(&count)
	return count, err
}

// Close closes the database connection
func (s *postgresStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRepository(row rowScanner) (*domain.Repository, error) {
	var repo domain.Repository
	var lastAnalyzedAt sql.NullTime

	err := row.Scan(&repo.Owner, &repo.Name, &repo.FullName, &repo.IsPrivate, &repo.OpenIssues,
		&lastAnalyzedAt, &repo.CreatedAt, &repo.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if lastAnalyzedAt.Valid {
		t := lastAnalyzedAt.Time
		repo.LastAnalyzedAt = &t
	}
	return &repo, nil
}
