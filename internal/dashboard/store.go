// Package dashboard holds the shared view state read by dashboard
// observers and the reporter that commits aggregation results into it.
package dashboard

import (
	"sync"
	"time"

	"github.com/NikkuNoShori/RepoMonitor/internal/domain"
)

// Store is the shared view state container. Updates are field-scoped
// merges: each setter touches only the fields it owns, so commits from
// the aggregation run and re-derivations triggered by realtime events
// compose without clobbering each other.
type Store struct {
	mu     sync.RWMutex
	stats  domain.DashboardStats
	subs   map[int]chan domain.DashboardStats
	nextID int
}

// NewStore creates an empty view state store.
func NewStore() *Store {
	return &Store{
		subs: make(map[int]chan domain.DashboardStats),
	}
}

// Snapshot returns a copy of the current view state.
func (s *Store) Snapshot() domain.DashboardStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// SetIssueTotals commits the aggregated open-issues total and the run
// warning in a single atomic update. Observers never see intermediate
// partial totals.
func (s *Store) SetIssueTotals(total int, warning string, at time.Time) {
	s.mu.Lock()
	s.stats.OpenIssues = total
	s.stats.OpenIssuesUpdatedAt = at
	s.stats.Warning = warning
	snapshot := s.stats
	s.mu.Unlock()

	s.notify(snapshot)
}

// SetRepoCounts updates the tracked/analyzed repository counts without
// touching the aggregated total.
func (s *Store) SetRepoCounts(tracked, analyzed int) {
	s.mu.Lock()
	s.stats.TrackedRepos = tracked
	s.stats.AnalyzedRepos = analyzed
	snapshot := s.stats
	s.mu.Unlock()

	s.notify(snapshot)
}

// SetActiveJobs updates the active background job count.
func (s *Store) SetActiveJobs(n int) {
	s.mu.Lock()
	s.stats.ActiveJobs = n
	snapshot := s.stats
	s.mu.Unlock()

	s.notify(snapshot)
}

// Subscribe registers an observer. The returned channel receives a
// snapshot after every update until unsubscribe is called. Slow
// observers miss intermediate snapshots instead of blocking writers.
func (s *Store) Subscribe() (<-chan domain.DashboardStats, func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	ch := make(chan domain.DashboardStats, 1)
	s.subs[id] = ch
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, unsubscribe
}

func (s *Store) notify(snapshot domain.DashboardStats) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subs {
		select {
		case ch <- snapshot:
		default:
			// Drop stale snapshot, replace with the latest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}
