package access

import (
	"context"
	"sync"
)

// MemoryStore is a RoleStore held in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[Role]map[Principal]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{grants: make(map[Role]map[Principal]struct{})}
}

func (s *MemoryStore) HasRole(_ context.Context, role Role, p Principal) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.grants[role][p]
	return ok, nil
}

func (s *MemoryStore) SetRole(_ context.Context, role Role, p Principal, granted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.grants[role]
	if !granted {
		delete(members, p)
		return nil
	}
	if members == nil {
		members = make(map[Principal]struct{})
		s.grants[role] = members
	}
	members[p] = struct{}{}
	return nil
}
