package primary

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
)

// Memory is an in-process primary store, keyed by (owner, id).
type Memory struct {
	mu   sync.RWMutex
	rows map[access.Principal]map[string]Record
}

func NewMemory() *Memory {
	return &Memory{rows: make(map[access.Principal]map[string]Record)}
}

func (m *Memory) Upsert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.rows[rec.Owner]
	if !ok {
		byID = make(map[string]Record)
		m.rows[rec.Owner] = byID
	}
	byID[rec.ID] = rec
	return nil
}

func (m *Memory) ListUsers(context.Context) ([]access.Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]access.Principal, 0, len(m.rows))
	for u := range m.rows {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

func (m *Memory) UpdatedRecords(_ context.Context, user access.Principal, from, to time.Time) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, rec := range m.rows[user] {
		if !rec.UpdatedAt.Before(from) && rec.UpdatedAt.Before(to) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) Close() error { return nil }
