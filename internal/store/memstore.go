package store

import (
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and dry runs.
type MemStore struct {
	mu      sync.Mutex
	runs    map[string]*Run
	records map[string][]Record
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		runs:    map[string]*Run{},
		records: map[string][]Record{},
	}
}

func (s *MemStore) CreateRun(id string, started time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; ok {
		return fmt.Errorf("run %q already exists", id)
	}
	s.runs[id] = &Run{ID: id, Started: started}
	return nil
}

func (s *MemStore) AddRecord(runID string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return ErrNotFound
	}
	s.records[runID] = append(s.records[runID], rec)
	return nil
}

func (s *MemStore) FinishRun(id string, ended time.Time, counts Counts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.Ended = ended
	run.Counts = counts
	run.Finished = true
	return nil
}

func (s *MemStore) GetRun(id string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *run
	return &copied, nil
}

func (s *MemStore) ListRecords(runID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.records[runID]
	out := make([]Record, len(records))
	copy(out, records)
	return out, nil
}

func (s *MemStore) Close() error { return nil }
