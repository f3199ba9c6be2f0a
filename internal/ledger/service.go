// Package ledger stores classification entries per user in immutable,
// atomically committed batches and serves the owner-scoped read paths.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
)

// DefaultMaxBatchEntries bounds the size, and therefore the cost, of one commit.
const DefaultMaxBatchEntries = 500

// Authorizer answers role membership. *access.Controller satisfies it.
type Authorizer interface {
	HasRole(ctx context.Context, role access.Role, p access.Principal) (bool, error)
}

// Options tunes a Service. Zero values take defaults.
type Options struct {
	MaxBatchEntries int
	Clock           func() time.Time
}

// Service is the ClassificationLedger. Every operation checks authorisation
// before touching storage.
type Service struct {
	backend    Backend
	roles      Authorizer
	maxEntries int
	now        func() time.Time
	logger     *slog.Logger
}

// NewService builds a ledger over backend, checking roles with roles.
func NewService(backend Backend, roles Authorizer, opts Options, logger *slog.Logger) *Service {
	if opts.MaxBatchEntries <= 0 {
		opts.MaxBatchEntries = DefaultMaxBatchEntries
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		backend:    backend,
		roles:      roles,
		maxEntries: opts.MaxBatchEntries,
		now:        opts.Clock,
		logger:     logger.With("system", "ledger"),
	}
}

// MaxBatchEntries returns the per-commit entry ceiling.
func (s *Service) MaxBatchEntries() int {
	return s.maxEntries
}

// CommitBatch stores entries verbatim as the next batch of owner. Only BACKEND
// principals may commit.
func (s *Service) CommitBatch(ctx context.Context, caller, owner access.Principal, entries []Entry) (Batch, error) {
	if err := s.requireBackend(ctx, caller); err != nil {
		return Batch{}, err
	}
	if owner == "" {
		return Batch{}, fmt.Errorf("%w: empty owner", ErrInvalidArgument)
	}
	if len(entries) == 0 {
		return Batch{}, ErrEmptyBatch
	}
	if len(entries) > s.maxEntries {
		return Batch{}, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(entries), s.maxEntries)
	}
	for i, e := range entries {
		if err := validateEntry(e); err != nil {
			return Batch{}, fmt.Errorf("entry %d: %w", i, err)
		}
	}

	b, err := s.backend.AppendBatch(ctx, owner, cloneEntries(entries), s.now().UTC())
	if err != nil {
		return Batch{}, fmt.Errorf("append batch: %w", err)
	}
	s.logger.Info("batch committed", "owner", owner, "batch_id", b.ID, "entries", len(b.Entries), "by", caller)
	return b, nil
}

// GetBatch returns a batch to its owner or to a BACKEND principal.
func (s *Service) GetBatch(ctx context.Context, caller access.Principal, id BatchID) (Batch, error) {
	b, err := s.backend.Batch(ctx, id)
	if err != nil {
		return Batch{}, err
	}
	if err := s.requireOwnerOrBackend(ctx, caller, b.Owner); err != nil {
		return Batch{}, err
	}
	return b, nil
}

// GetUserBatchIDs returns the owner's batch index, oldest first. Only the owner
// may read it.
func (s *Service) GetUserBatchIDs(ctx context.Context, caller, owner access.Principal) ([]BatchID, error) {
	if caller == "" || caller != owner {
		return nil, fmt.Errorf("%w: %s may not list batches of %s", ErrUnauthorized, caller, owner)
	}
	ids, err := s.backend.BatchIDs(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("batch ids: %w", err)
	}
	return ids, nil
}

// FindEntry scans owner's batches newest first and returns the first entry with
// emailID, so the most recent commit of an email id wins.
func (s *Service) FindEntry(ctx context.Context, caller, owner access.Principal, emailID string) (Entry, bool, error) {
	if err := s.requireOwnerOrBackend(ctx, caller, owner); err != nil {
		return Entry{}, false, err
	}
	ids, err := s.backend.BatchIDs(ctx, owner)
	if err != nil {
		return Entry{}, false, fmt.Errorf("batch ids: %w", err)
	}
	for i := len(ids) - 1; i >= 0; i-- {
		b, err := s.backend.Batch(ctx, ids[i])
		if err != nil {
			return Entry{}, false, fmt.Errorf("batch %d: %w", ids[i], err)
		}
		for _, e := range b.Entries {
			if e.EmailID == emailID {
				return e, true, nil
			}
		}
	}
	return Entry{}, false, nil
}

// PutRecord writes the single-entry record for (owner, entry.EmailID),
// replacing any previous value and clearing a tombstone.
func (s *Service) PutRecord(ctx context.Context, caller, owner access.Principal, entry Entry) (Record, error) {
	if err := s.requireBackend(ctx, caller); err != nil {
		return Record{}, err
	}
	if owner == "" {
		return Record{}, fmt.Errorf("%w: empty owner", ErrInvalidArgument)
	}
	if err := validateEntry(entry); err != nil {
		return Record{}, err
	}
	rec := Record{Owner: owner, Entry: entry, UpdatedAt: s.now().UTC()}
	if err := s.backend.PutRecord(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("put record: %w", err)
	}
	return rec, nil
}

// DeleteRecord tombstones the single-entry record; the value stays readable with
// IsDeleted set.
func (s *Service) DeleteRecord(ctx context.Context, caller, owner access.Principal, emailID string) (Record, error) {
	if err := s.requireBackend(ctx, caller); err != nil {
		return Record{}, err
	}
	rec, err := s.backend.TombstoneRecord(ctx, owner, emailID, s.now().UTC())
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// GetRecord returns the single-entry record, tombstoned or not.
func (s *Service) GetRecord(ctx context.Context, caller, owner access.Principal, emailID string) (Record, error) {
	if err := s.requireOwnerOrBackend(ctx, caller, owner); err != nil {
		return Record{}, err
	}
	return s.backend.Record(ctx, owner, emailID)
}

// AuthorizeWrite reports ErrUnauthorized unless caller holds BACKEND. Callers
// decoding a request body use it to reject before parsing.
func (s *Service) AuthorizeWrite(ctx context.Context, caller access.Principal) error {
	return s.requireBackend(ctx, caller)
}

func (s *Service) requireBackend(ctx context.Context, caller access.Principal) error {
	ok, err := s.roles.HasRole(ctx, access.RoleBackend, caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s lacks BACKEND", ErrUnauthorized, caller)
	}
	return nil
}

func (s *Service) requireOwnerOrBackend(ctx context.Context, caller, owner access.Principal) error {
	if caller != "" && caller == owner {
		return nil
	}
	ok, err := s.roles.HasRole(ctx, access.RoleBackend, caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s may not read data of %s", ErrUnauthorized, caller, owner)
	}
	return nil
}

func validateEntry(e Entry) error {
	if strings.TrimSpace(e.EmailID) == "" {
		return fmt.Errorf("%w: empty email id", ErrInvalidEntry)
	}
	if !e.Label.Valid() {
		return fmt.Errorf("%w: label %d", ErrInvalidEntry, uint8(e.Label))
	}
	return nil
}
