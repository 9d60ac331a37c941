package store

import (
	"context"
	"sync"

	"medilens.app/analysis-server/internal/report"
)

// MemoryStore is the in-process Store used by tests and by library callers
// that don't want a database file. Same contract as SQLiteStore, including
// the uninitialized-use semantics.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	records     map[string]report.AnalysisRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Initialize(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		s.records = make(map[string]report.AnalysisRecord)
		s.initialized = true
	}
	return nil
}

func (s *MemoryStore) Put(_ context.Context, rec *report.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrStoreUnavailable
	}
	s.records[rec.ID] = *rec
	return nil
}

func (s *MemoryStore) GetAll(_ context.Context) ([]report.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return []report.AnalysisRecord{}, nil
	}
	out := make([]report.AnalysisRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrStoreUnavailable
	}
	s.records = make(map[string]report.AnalysisRecord)
	return nil
}
