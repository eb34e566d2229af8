package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/NikkuNoShori/RepoMonitor/internal/domain"
	apperrors "github.com/NikkuNoShori/RepoMonitor/internal/errors"
	"github.com/NikkuNoShori/RepoMonitor/internal/storage"
)

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS repositories (
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		full_name TEXT NOT NULL,
		is_private INTEGER NOT NULL DEFAULT 0,
		open_issues INTEGER NOT NULL DEFAULT 0,
		last_analyzed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (owner, name)
	);

	CREATE INDEX IF NOT EXISTS idx_repositories_analyzed ON repositories(last_analyzed_at);

	CREATE TABLE IF NOT EXISTS refresh_jobs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_refresh_jobs_status ON refresh_jobs(status);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRepository inserts or updates a tracked repository
func (s *sqliteStorage) SaveRepository(ctx context.Context, repo *domain.Repository) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repositories (owner, name, full_name, is_private, open_issues, last_analyzed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner, name) DO UPDATE SET
			full_name = excluded.full_name,
			is_private = excluded.is_private,
			updated_at = excluded.updated_at
	`, repo.Owner, repo.Name, repo.FullName, boolToInt(repo.IsPrivate), repo.OpenIssues,
		repo.LastAnalyzedAt, repo.CreatedAt, repo.UpdatedAt)
	return err
}

// DeleteRepository removes a tracked repository
func (s *sqliteStorage) DeleteRepository(ctx context.Context, owner, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE owner = ? AND name = ?`, owner, name)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError("repository " + owner + "/" + name)
	}
	return nil
}

// GetRepository returns a single tracked repository
func (s *sqliteStorage) GetRepository(ctx context.Context, owner, name string) (*domain.Repository, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT owner, name, full_name, is_private, open_issues, last_analyzed_at, created_at, updated_at
		FROM repositories WHERE owner = ? AND name = ?
	`, owner, name)

	repo, err := scanRepository(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("repository " + owner + "/" + name)
	}
	return repo, err
}

// ListRepositories returns all tracked repositories ordered by full name
func (s *sqliteStorage) ListRepositories(ctx context.Context) ([]*domain.Repository, error) {
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
func (s *sqliteStorage) CountRepositories(ctx context.Context) (int, int, error) {
	var tracked, analyzed int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(last_analyzed_at) FROM repositories
	`).Scan(&tracked, &analyzed)
	return tracked, analyzed, err
}

// MarkAnalyzed records a successful per-repository fetch
func (s *sqliteStorage) MarkAnalyzed(ctx context.Context, item domain.WorkItem, openIssues int, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE repositories
		SET open_issues = ?, last_analyzed_at = ?, updated_at = ?
		WHERE owner = ? AND name = ?
	`, openIssues, at, at, item.Owner, item.Name)
	return err
}

// CreateJob records a new refresh job
func (s *sqliteStorage) CreateJob(ctx context.Context, job *domain.RefreshJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_jobs (id, status, started_at, finished_at, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, job.ID, string(job.Status), job.StartedAt, job.FinishedAt, job.Error, job.CreatedAt, job.UpdatedAt)
	return err
}

// UpdateJobStatus transitions a job to a new status
func (s *sqliteStorage) UpdateJobStatus(ctx context.Context, id string, status domain.JobStatus, jobErr string) error {
	now := time.Now()
	var finishedAt *time.Time
	if status == domain.JobStatusCompleted || status == domain.JobStatusFailed {
		finishedAt = &now
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE refresh_jobs SET status = ?, finished_at = ?, error = ?, updated_at = ? WHERE id = ?
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
func (s *sqliteStorage) CountActiveJobs(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM refresh_jobs WHERE status IN ('pending', 'running')
	`).Scan(&count)
	return count, err
}

// Close closes the database connection
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRepository(row rowScanner) (*domain.Repository, error) {
	var repo domain.Repository
	var isPrivate int
	var lastAnalyzedAt sql.NullTime

	err := row.Scan(&repo.Owner, &repo.Name, &repo.FullName, &isPrivate, &repo.OpenIssues,
		&lastAnalyzedAt, &repo.CreatedAt, &repo.UpdatedAt)
	if err != nil {
		return nil, err
	}

	repo.IsPrivate = isPrivate != 0
	if lastAnalyzedAt.Valid {
		t := lastAnalyzedAt.Time
		repo.LastAnalyzedAt = &t
	}
	return &repo, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
