package aggregate

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/NikkuNoShori/RepoMonitor/internal/domain"
	apperrors "github.com/NikkuNoShori/RepoMonitor/internal/errors"
)

// scriptedCounter returns a per-repository scripted outcome and records
// call order.
type scriptedCounter struct {
	results map[string]outcome
	calls   []string
}

type outcome struct {
	count int
	err   error
}

func (c *scriptedCounter) OpenIssueCount(ctx context.Context, item domain.WorkItem) (int, error) {
	c.calls = append(c.calls, item.FullName())
	out, ok := c.results[item.FullName()]
	if !ok {
		return 0, apperrors.NewTransientError("unexpected item "+item.FullName(), nil)
	}
	return out.count, out.err
}

// recordingPacer records pacing pauses instead of sleeping.
type recordingPacer struct {
	pauses []time.Duration
}

func (p *recordingPacer) Pause(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.pauses = append(p.pauses, d)
	return nil
}

func items(names ...string) []domain.WorkItem {
	out := make([]domain.WorkItem, 0, len(names))
	for _, n := range names {
		out = append(out, domain.WorkItem{Owner: "a", Name: n})
	}
	return out
}

func TestRunner_BatchAndDelayCounts(t *testing.T) {
	tests := []struct {
		name       string
		items      int
		batchSize  int
		wantPauses int
	}{
		{name: "even split", items: 4, batchSize: 2, wantPauses: 1},
		{name: "uneven split", items: 5, batchSize: 2, wantPauses: 2},
		{name: "single batch", items: 2, batchSize: 2, wantPauses: 0},
		{name: "batch larger than list", items: 1, batchSize: 10, wantPauses: 0},
		{name: "batch of one", items: 3, batchSize: 1, wantPauses: 2},
		{name: "empty list", items: 0, batchSize: 2, wantPauses: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := &scriptedCounter{results: map[string]outcome{}}
			var work []domain.WorkItem
			for i := 0; i < tt.items; i++ {
				item := domain.WorkItem{Owner: "a", Name: string(rune('a' + i))}
				work = append(work, item)
				counter.results[item.FullName()] = outcome{count: 1}
			}

			pacer := &recordingPacer{}
			runner := NewRunner(counter, pacer)

			result, err := runner.Run(context.Background(), work, Options{
				BatchSize:       tt.batchSize,
				InterBatchDelay: 50 * time.Millisecond,
			})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			if got := len(pacer.pauses); got != tt.wantPauses {
				t.Errorf("pauses = %d, want %d", got, tt.wantPauses)
			}
			if len(counter.calls) != tt.items {
				t.Errorf("calls = %d, want %d", len(counter.calls), tt.items)
			}
			if result.Total != tt.items {
				t.Errorf("Total = %d, want %d", result.Total, tt.items)
			}
			if len(result.Failed) != 0 {
				t.Errorf("Failed = %v, want empty", result.Failed)
			}
		})
	}
}

func TestRunner_ZeroFailuresSumsCounts(t *testing.T) {
	counter := &scriptedCounter{results: map[string]outcome{
		"a/r1": {count: 3},
		"a/r2": {count: 7},
		"a/r3": {count: 5},
	}}
	runner := NewRunner(counter, &recordingPacer{})

	result, err := runner.Run(context.Background(), items("r1", "r2", "r3"), Options{BatchSize: 2})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Total != 15 {
		t.Errorf("Total = %d, want 15", result.Total)
	}
	if result.Processed != 3 {
		t.Errorf("Processed = %d, want 3", result.Processed)
	}
	if len(result.Failed) != 0 {
		t.Errorf("Failed = %v, want empty", result.Failed)
	}
}

func TestRunner_TransientFailureScenario(t *testing.T) {
	// Work list [a/r1 a/r2 a/r3], batch size 2, counts [3, fail, 5]:
	// total 8, failed [a/r2], one inter-batch delay.
	counter := &scriptedCounter{results: map[string]outcome{
		"a/r1": {count: 3},
		"a/r2": {err: apperrors.NewTransientError("boom", nil)},
		"a/r3": {count: 5},
	}}
	pacer := &recordingPacer{}
	runner := NewRunner(counter, pacer)

	result, err := runner.Run(context.Background(), items("r1", "r2", "r3"), Options{
		BatchSize:       2,
		InterBatchDelay: time.Second,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Total != 8 {
		t.Errorf("Total = %d, want 8", result.Total)
	}
	if !reflect.DeepEqual(result.Failed, []string{"a/r2"}) {
		t.Errorf("Failed = %v, want [a/r2]", result.Failed)
	}
	if len(pacer.pauses) != 1 {
		t.Errorf("pauses = %d, want 1", len(pacer.pauses))
	}
	if len(counter.calls) != 3 {
		t.Errorf("calls = %d, want 3", len(counter.calls))
	}
}

func TestRunner_FailureOrderPreserved(t *testing.T) {
	counter := &scriptedCounter{results: map[string]outcome{
		"a/r1": {err: apperrors.NewRateLimitedError("throttled", nil)},
		"a/r2": {count: 2},
		"a/r3": {err: apperrors.NewTransientError("boom", nil)},
		"a/r4": {err: apperrors.NewTransientError("boom", nil)},
	}}
	runner := NewRunner(counter, &recordingPacer{})

	result, err := runner.Run(context.Background(), items("r1", "r2", "r3", "r4"), Options{BatchSize: 3})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"a/r1", "a/r3", "a/r4"}
	if !reflect.DeepEqual(result.Failed, want) {
		t.Errorf("Failed = %v, want %v", result.Failed, want)
	}
	if result.Total != 2 {
		t.Errorf("Total = %d, want 2", result.Total)
	}
}

func TestRunner_UnauthorizedAbortsRun(t *testing.T) {
	counter := &scriptedCounter{results: map[string]outcome{
		"a/r1": {count: 3},
		"a/r2": {err: apperrors.NewUnauthorizedError("bad credentials", nil)},
		"a/r3": {count: 5},
	}}
	runner := NewRunner(counter, &recordingPacer{})

	result, err := runner.Run(context.Background(), items("r1", "r2", "r3"), Options{BatchSize: 2})
	if !apperrors.IsUnauthorized(err) {
		t.Fatalf("Run() error = %v, want UNAUTHORIZED", err)
	}

	// Partial state is discarded.
	if result.Total != 0 || result.Processed != 0 || len(result.Failed) != 0 {
		t.Errorf("result = %+v, want zero value", result)
	}

	// The remaining item is never attempted.
	want := []string{"a/r1", "a/r2"}
	if !reflect.DeepEqual(counter.calls, want) {
		t.Errorf("calls = %v, want %v", counter.calls, want)
	}
}

func TestRunner_CancelledContextAbortsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	counter := &scriptedCounter{results: map[string]outcome{"a/r1": {count: 1}}}
	runner := NewRunner(counter, &recordingPacer{})

	_, err := runner.Run(ctx, items("r1"), Options{BatchSize: 2})
	if !apperrors.IsCancelled(err) {
		t.Fatalf("Run() error = %v, want CANCELLED", err)
	}
	if len(counter.calls) != 0 {
		t.Errorf("calls = %v, want none", counter.calls)
	}
}

func TestRunner_OnItemCallback(t *testing.T) {
	counter := &scriptedCounter{results: map[string]outcome{
		"a/r1": {count: 3},
		"a/r2": {err: apperrors.NewTransientError("boom", nil)},
	}}
	runner := NewRunner(counter, &recordingPacer{})

	seen := map[string]int{}
	_, err := runner.Run(context.Background(), items("r1", "r2"), Options{
		BatchSize: 2,
		OnItem: func(item domain.WorkItem, count int) {
			seen[item.FullName()] = count
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !reflect.DeepEqual(seen, map[string]int{"a/r1": 3}) {
		t.Errorf("OnItem saw %v, want only a/r1", seen)
	}
}

func TestSleepPacer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := SleepPacer{}.Pause(ctx, time.Minute)
	if err == nil {
		t.Fatal("Pause() = nil, want context error")
	}
}

func TestSleepPacer_ZeroDelay(t *testing.T) {
	if err := (SleepPacer{}).Pause(context.Background(), 0); err != nil {
		t.Fatalf("Pause(0) error = %v", err)
	}
}
