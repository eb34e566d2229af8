package domain

import "time"

// Repository represents a tracked GitHub repository
type Repository struct {
	Owner          string     `json:"owner"`
	Name           string     `json:"name"`
	FullName       string     `json:"full_name"`
	IsPrivate      bool       `json:"is_private"`
	OpenIssues     int        `json:"open_issues"`
	LastAnalyzedAt *time.Time `json:"last_analyzed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// WorkItem identifies one repository to query during an aggregation run.
// Immutable once enqueued.
type WorkItem struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// FullName returns the "owner/name" identifier used in failure reports.
func (w WorkItem) FullName() string {
	return w.Owner + "/" + w.Name
}

// WorkItem returns the work item identifying a repository.
func (r *Repository) WorkItem() WorkItem {
	return WorkItem{Owner: r.Owner, Name: r.Name}
}
