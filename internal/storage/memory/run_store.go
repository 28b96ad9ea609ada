package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/JakeFAU/citypop-crawler/internal/citypop"
)

// RunStore provides an in-memory run history for development/testing.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]citypop.RunSummary
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]citypop.RunSummary)}
}

// RecordRun stores a completed run.
func (s *RunStore) RecordRun(_ context.Context, run citypop.RunSummary) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	s.runs[run.ID] = run
	return nil
}

// ListRuns returns up to limit runs, most recent first. A non-positive limit
// returns everything.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]citypop.RunSummary, error) {
	s.mu.RLock()
	out := make([]citypop.RunSummary, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
