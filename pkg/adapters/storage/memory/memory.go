package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/slipwayci/slipway/pkg/domain"
)

// RunStore implements ports.RunStore using an in-memory map.
type RunStore struct {
	runs map[string]*domain.RunState
	mu   sync.RWMutex
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]*domain.RunState),
	}
}

// SaveRun persists the state of a run.
func (s *RunStore) SaveRun(ctx context.Context, state *domain.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Shallow copy to protect against caller mutation after save.
	stateCopy := *state
	s.runs[state.RunID] = &stateCopy
	return nil
}

// GetRun retrieves the state of a run.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*domain.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.runs[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return state, nil
}

// ListRuns returns all stored runs, newest first.
func (s *RunStore) ListRuns(ctx context.Context) ([]*domain.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]*domain.RunState, 0, len(s.runs))
	for _, state := range s.runs {
		states = append(states, state)
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].SubmittedAt.After(states[j].SubmittedAt)
	})

	return states, nil
}

// DeleteRun removes the state of a run.
func (s *RunStore) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, runID)
	return nil
}
