package domain

import "time"

// AggregateResult is the terminal output of a single aggregation run.
// Failed holds "owner/name" identifiers in first-failure order.
type AggregateResult struct {
	RunID       string    `json:"run_id"`
	Total       int       `json:"total"`
	Processed   int       `json:"processed"`
	Failed      []string  `json:"failed,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// DashboardStats is the shared view state read by dashboard observers.
type DashboardStats struct {
	OpenIssues          int       `json:"open_issues"`
	OpenIssuesUpdatedAt time.Time `json:"open_issues_updated_at"`
	TrackedRepos        int       `json:"tracked_repos"`
	AnalyzedRepos       int       `json:"analyzed_repos"`
	ActiveJobs          int       `json:"active_jobs"`
	Warning             string    `json:"warning,omitempty"`
}
