package asset

import (
	"context"
	"sort"
	"sync"
	"time"

	"custodia.org/internal/rbac"
)

// MemoryStore is an in-process Store used by tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func copyRecord(r *Record) *Record {
	cp := *r
	cp.Nonce = append([]byte(nil), r.Nonce...)
	cp.Tag = append([]byte(nil), r.Tag...)
	if r.DeletedAt != nil {
		at := *r.DeletedAt
		cp.DeletedAt = &at
	}
	return &cp
}

func (s *MemoryStore) CreateRecord(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; ok {
		return ErrInvalidInput
	}
	s.records[r.ID] = copyRecord(r)
	return nil
}

func (s *MemoryStore) RecordByID(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(r), nil
}

func (s *MemoryStore) UpdateRecord(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; !ok {
		return ErrNotFound
	}
	s.records[r.ID] = copyRecord(r)
	return nil
}

func (s *MemoryStore) SoftDeleteRecord(_ context.Context, id, deletedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.DeletedAt != nil {
		return ErrNotFound
	}
	r.DeletedBy = deletedBy
	stamp := at
	r.DeletedAt = &stamp
	return nil
}

func (s *MemoryStore) ListRecords(_ context.Context, kind rbac.Resource, limit, offset int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var live []*Record
	for _, r := range s.records {
		if r.Kind == kind && r.DeletedAt == nil {
			live = append(live, copyRecord(r))
		}
	}
	sort.Slice(live, func(i, j int) bool {
		if !live[i].CreatedAt.Equal(live[j].CreatedAt) {
			return live[i].CreatedAt.After(live[j].CreatedAt)
		}
		return live[i].ID > live[j].ID
	})
	if offset >= len(live) {
		return nil, nil
	}
	live = live[offset:]
	if len(live) > limit {
		live = live[:limit]
	}
	return live, nil
}

var _ Store = (*MemoryStore)(nil)
