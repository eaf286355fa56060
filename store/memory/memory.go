// Package memory provides in-memory Store implementations (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/rule-engine/occurrence"
	"github.com/warp/rule-engine/policy"
)

// =============================================================================
// TRACKER STORE
// =============================================================================

// TrackerStore implements occurrence.Store with a mutex-guarded map.
type TrackerStore struct {
	mu       sync.RWMutex
	trackers map[occurrence.Key]occurrence.Tracker
}

func NewTrackerStore() *TrackerStore {
	return &TrackerStore{
		trackers: make(map[occurrence.Key]occurrence.Tracker),
	}
}

func (s *TrackerStore) Get(_ context.Context, key occurrence.Key) (occurrence.Tracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trackers[key]
	if !ok {
		return occurrence.Tracker{}, occurrence.ErrTrackerNotFound
	}
	return t, nil
}

func (s *TrackerStore) Put(_ context.Context, tracker occurrence.Tracker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackers[tracker.Key] = tracker
	return nil
}

func (s *TrackerStore) ListByPolicy(_ context.Context, policyID occurrence.PolicyID) ([]occurrence.Tracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []occurrence.Tracker
	for _, t := range s.trackers {
		if t.Key.PolicyID == policyID {
			result = append(result, t)
		}
	}
	sortTrackers(result)
	return result, nil
}

func (s *TrackerStore) ListAll(_ context.Context) ([]occurrence.Tracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]occurrence.Tracker, 0, len(s.trackers))
	for _, t := range s.trackers {
		result = append(result, t)
	}
	sortTrackers(result)
	return result, nil
}

func (s *TrackerStore) Delete(_ context.Context, key occurrence.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trackers, key)
	return nil
}

// sortTrackers keeps list output deterministic for tests and sweeps.
func sortTrackers(ts []occurrence.Tracker) {
	sort.Slice(ts, func(i, j int) bool {
		a, b := ts[i].Key, ts[j].Key
		if a.PolicyID != b.PolicyID {
			return a.PolicyID < b.PolicyID
		}
		if a.EmployeeID != b.EmployeeID {
			return a.EmployeeID < b.EmployeeID
		}
		return a.Type < b.Type
	})
}

// =============================================================================
// POLICY STORE
// =============================================================================

// PolicyStore implements policy.Store with a mutex-guarded map.
type PolicyStore struct {
	mu       sync.RWMutex
	policies map[policy.ID]policy.Policy
}

func NewPolicyStore() *PolicyStore {
	return &PolicyStore{
		policies: make(map[policy.ID]policy.Policy),
	}
}

func (s *PolicyStore) Get(_ context.Context, id policy.ID) (policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	if !ok {
		return policy.Policy{}, policy.ErrPolicyNotFound
	}
	return p, nil
}

func (s *PolicyStore) Put(_ context.Context, p policy.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.ID] = p
	return nil
}

func (s *PolicyStore) ListByCompany(_ context.Context, companyID string) ([]policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []policy.Policy
	for _, p := range s.policies {
		if p.CompanyID == companyID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *PolicyStore) Delete(_ context.Context, id policy.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.policies, id)
	return nil
}
