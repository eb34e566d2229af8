package dashboard

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/NikkuNoShori/RepoMonitor/internal/domain"
	apperrors "github.com/NikkuNoShori/RepoMonitor/internal/errors"
)

func TestReporter_CommitSuccess(t *testing.T) {
	store := NewStore()
	reporter := NewReporter(store)

	result := domain.AggregateResult{
		RunID:       "run-1",
		Total:       8,
		Processed:   3,
		CompletedAt: time.Now(),
	}

	if err := reporter.Commit(context.Background(), result); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	stats := store.Snapshot()
	if stats.OpenIssues != 8 {
		t.Errorf("OpenIssues = %d, want 8", stats.OpenIssues)
	}
	if stats.Warning != "" {
		t.Errorf("Warning = %q, want empty", stats.Warning)
	}
}

func TestReporter_SingleConsolidatedWarning(t *testing.T) {
	store := NewStore()
	reporter := NewReporter(store)

	result := domain.AggregateResult{
		RunID:       "run-2",
		Total:       8,
		Processed:   3,
		Failed:      []string{"a/r2", "b/r9"},
		CompletedAt: time.Now(),
	}

	if err := reporter.Commit(context.Background(), result); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	warning := store.Snapshot().Warning
	if !strings.Contains(warning, "a/r2") || !strings.Contains(warning, "b/r9") {
		t.Errorf("Warning = %q, want both failed items named", warning)
	}
	if strings.Count(warning, "a/r2") != 1 {
		t.Errorf("Warning names a/r2 %d times, want once", strings.Count(warning, "a/r2"))
	}
}

func TestReporter_CommitIdempotent(t *testing.T) {
	store := NewStore()
	reporter := NewReporter(store)

	result := domain.AggregateResult{
		RunID:       "run-3",
		Total:       5,
		Processed:   2,
		Failed:      []string{"a/r2"},
		CompletedAt: time.Now(),
	}

	if err := reporter.Commit(context.Background(), result); err != nil {
		t.Fatalf("first Commit() error = %v", err)
	}
	first := store.Snapshot()

	if err := reporter.Commit(context.Background(), result); err != nil {
		t.Fatalf("second Commit() error = %v", err)
	}
	second := store.Snapshot()

	if first != second {
		t.Errorf("second commit changed state: %+v != %+v", first, second)
	}
}

func TestReporter_AbandonedRunDoesNotCommit(t *testing.T) {
	store := NewStore()
	store.SetIssueTotals(99, "", time.Now())
	reporter := NewReporter(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := reporter.Commit(ctx, domain.AggregateResult{RunID: "run-4", Total: 1})
	if !apperrors.IsCancelled(err) {
		t.Fatalf("Commit() error = %v, want CANCELLED", err)
	}

	// The previously committed value is retained.
	if got := store.Snapshot().OpenIssues; got != 99 {
		t.Errorf("OpenIssues = %d, want retained 99", got)
	}
}

// Warning from one commit is replaced, not accumulated, by the next.
func TestReporter_WarningClearedOnCleanRun(t *testing.T) {
	store := NewStore()
	reporter := NewReporter(store)

	failed := domain.AggregateResult{RunID: "r1", Total: 3, Failed: []string{"a/r2"}, CompletedAt: time.Now()}
	if err := reporter.Commit(context.Background(), failed); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	clean := domain.AggregateResult{RunID: "r2", Total: 8, CompletedAt: time.Now()}
	if err := reporter.Commit(context.Background(), clean); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if got := store.Snapshot().Warning; got != "" {
		t.Errorf("Warning = %q, want cleared", got)
	}
}
