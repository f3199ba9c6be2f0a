// Package memory is an in-process ledger backend. Batches live in an
// append-only arena indexed by batch id; each owner has an append-only slice of
// ids into it.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
	"github.com/Martian-dev/ai-brain-ledger/internal/ledger"
	"github.com/Martian-dev/ai-brain-ledger/internal/outbox"
)

type recordKey struct {
	owner   access.Principal
	emailID string
}

type outboxRow struct {
	msg           outbox.Message
	published     bool
	retries       int
	nextAttemptAt time.Time
}

type Store struct {
	*access.MemoryStore

	mu      sync.RWMutex
	batches []ledger.Batch // batches[id-1]
	byOwner map[access.Principal][]ledger.BatchID
	records map[recordKey]ledger.Record
	outbox  []outboxRow
	now     func() time.Time
}

func New() *Store {
	return &Store{
		MemoryStore: access.NewMemoryStore(),
		byOwner:     make(map[access.Principal][]ledger.BatchID),
		records:     make(map[recordKey]ledger.Record),
		now:         time.Now,
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) AppendBatch(_ context.Context, owner access.Principal, entries []ledger.Entry, committedAt time.Time) (ledger.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := ledger.Batch{
		ID:          ledger.BatchID(len(s.batches) + 1),
		Owner:       owner,
		Entries:     copyEntries(entries),
		CommittedAt: committedAt,
	}
	s.batches = append(s.batches, b)
	s.byOwner[owner] = append(s.byOwner[owner], b.ID)
	s.enqueue(ledger.BatchCommittedEvent(b))
	return cloneBatch(b), nil
}

func (s *Store) Batch(_ context.Context, id ledger.BatchID) (ledger.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id == 0 || id > ledger.BatchID(len(s.batches)) {
		return ledger.Batch{}, fmt.Errorf("batch %d: %w", id, ledger.ErrNotFound)
	}
	return cloneBatch(s.batches[id-1]), nil
}

func (s *Store) BatchIDs(_ context.Context, owner access.Principal) ([]ledger.BatchID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byOwner[owner]
	out := make([]ledger.BatchID, len(ids))
	copy(out, ids)
	return out, nil
}

func (s *Store) LastBatchID(_ context.Context) (ledger.BatchID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ledger.BatchID(len(s.batches)), nil
}

func (s *Store) PutRecord(_ context.Context, rec ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.IsDeleted = false
	s.records[recordKey{rec.Owner, rec.Entry.EmailID}] = rec
	s.enqueue(ledger.RecordEvent(rec))
	return nil
}

func (s *Store) TombstoneRecord(_ context.Context, owner access.Principal, emailID string, at time.Time) (ledger.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey{owner, emailID}
	rec, ok := s.records[key]
	if !ok {
		return ledger.Record{}, fmt.Errorf("record %s/%s: %w", owner, emailID, ledger.ErrNotFound)
	}
	rec.IsDeleted = true
	rec.UpdatedAt = at
	s.records[key] = rec
	s.enqueue(ledger.RecordEvent(rec))
	return rec, nil
}

func (s *Store) Record(_ context.Context, owner access.Principal, emailID string) (ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordKey{owner, emailID}]
	if !ok {
		return ledger.Record{}, fmt.Errorf("record %s/%s: %w", owner, emailID, ledger.ErrNotFound)
	}
	return rec, nil
}

// enqueue must be called with mu held.
func (s *Store) enqueue(ev ledger.OutboxEvent) {
	s.outbox = append(s.outbox, outboxRow{
		msg: outbox.Message{
			ID:      int64(len(s.outbox) + 1),
			Subject: ev.Subject,
			Payload: ev.Payload,
			MsgID:   ev.MsgID,
		},
		nextAttemptAt: s.now(),
	})
}

func (s *Store) DequeueOutbox(_ context.Context, limit int) ([]outbox.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	var out []outbox.Message
	for _, row := range s.outbox {
		if len(out) == limit {
			break
		}
		if row.published || row.nextAttemptAt.After(now) {
			continue
		}
		out = append(out, row.msg)
	}
	return out, nil
}

func (s *Store) MarkPublished(_ context.Context, id int64) error {
	return s.updateOutbox(id, func(row *outboxRow) {
		row.published = true
	})
}

func (s *Store) MarkOutboxRetry(_ context.Context, id int64, backoff time.Duration) error {
	return s.updateOutbox(id, func(row *outboxRow) {
		row.retries++
		row.nextAttemptAt = s.now().Add(backoff)
	})
}

func (s *Store) updateOutbox(id int64, fn func(*outboxRow)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 1 || int(id) > len(s.outbox) {
		return fmt.Errorf("outbox %d: %w", id, ledger.ErrNotFound)
	}
	fn(&s.outbox[id-1])
	return nil
}

func copyEntries(entries []ledger.Entry) []ledger.Entry {
	out := make([]ledger.Entry, len(entries))
	copy(out, entries)
	return out
}

func cloneBatch(b ledger.Batch) ledger.Batch {
	b.Entries = copyEntries(b.Entries)
	return b
}
