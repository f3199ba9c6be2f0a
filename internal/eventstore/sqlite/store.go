// Package sqlite is the durable ledger backend. All ledger state, role grants
// and the event outbox share one SQLite database so that a commit and its
// event land in the same transaction.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
	"github.com/Martian-dev/ai-brain-ledger/internal/ledger"
)

//go:embed schema.sql
var schemaSQL string

// Store is the SQLite ledger backend.
type Store struct {
	DB  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger database at dbPath.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Immediate transactions take the write lock up front, which serialises
	// commits and therefore batch id allocation.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{DB: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// AppendBatch allocates the next batch id and writes the batch, its entries,
// the owner index position and the BatchCommitted outbox row in one transaction.
func (s *Store) AppendBatch(ctx context.Context, owner access.Principal, entries []ledger.Entry, committedAt time.Time) (ledger.Batch, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Batch{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		UPDATE ledger_counter SET last_batch_id = last_batch_id + 1
		WHERE id = 1
		RETURNING last_batch_id
	`).Scan(&id)
	if err != nil {
		return ledger.Batch{}, fmt.Errorf("failed to allocate batch id: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches (batch_id, owner, entry_count, committed_at)
		VALUES (?, ?, ?, ?)
	`, id, string(owner), len(entries), committedAt.UnixNano())
	if err != nil {
		return ledger.Batch{}, fmt.Errorf("failed to insert batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO batch_entries (batch_id, position, email_id, label, reasoning)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return ledger.Batch{}, fmt.Errorf("failed to prepare entry insert: %w", err)
	}
	defer stmt.Close()
	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, id, i, e.EmailID, int(e.Label), e.Reasoning); err != nil {
			return ledger.Batch{}, fmt.Errorf("failed to insert entry %d: %w", i, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_batches (owner, position, batch_id)
		SELECT ?, COALESCE(MAX(position), 0) + 1, ?
		FROM user_batches WHERE owner = ?
	`, string(owner), id, string(owner))
	if err != nil {
		return ledger.Batch{}, fmt.Errorf("failed to append user index: %w", err)
	}

	b := ledger.Batch{
		ID:          ledger.BatchID(id),
		Owner:       owner,
		Entries:     append([]ledger.Entry(nil), entries...),
		CommittedAt: committedAt,
	}
	if err := s.appendOutboxTx(ctx, tx, ledger.BatchCommittedEvent(b)); err != nil {
		return ledger.Batch{}, err
	}

	if err := tx.Commit(); err != nil {
		return ledger.Batch{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return b, nil
}

func (s *Store) Batch(ctx context.Context, id ledger.BatchID) (ledger.Batch, error) {
	var (
		owner       string
		committedAt int64
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT owner, committed_at FROM batches WHERE batch_id = ?
	`, int64(id)).Scan(&owner, &committedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Batch{}, fmt.Errorf("batch %d: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.Batch{}, fmt.Errorf("failed to load batch: %w", err)
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT email_id, label, reasoning
		FROM batch_entries
		WHERE batch_id = ?
		ORDER BY position
	`, int64(id))
	if err != nil {
		return ledger.Batch{}, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	b := ledger.Batch{
		ID:          id,
		Owner:       access.Principal(owner),
		CommittedAt: time.Unix(0, committedAt).UTC(),
	}
	for rows.Next() {
		var (
			e     ledger.Entry
			label int
		)
		if err := rows.Scan(&e.EmailID, &label, &e.Reasoning); err != nil {
			return ledger.Batch{}, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Label = ledger.Label(label)
		b.Entries = append(b.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return ledger.Batch{}, fmt.Errorf("failed to read entries: %w", err)
	}
	return b, nil
}

func (s *Store) BatchIDs(ctx context.Context, owner access.Principal) ([]ledger.BatchID, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT batch_id FROM user_batches WHERE owner = ? ORDER BY position
	`, string(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to query user index: %w", err)
	}
	defer rows.Close()

	ids := []ledger.BatchID{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan batch id: %w", err)
		}
		ids = append(ids, ledger.BatchID(id))
	}
	return ids, rows.Err()
}

func (s *Store) LastBatchID(ctx context.Context) (ledger.BatchID, error) {
	var id int64
	if err := s.DB.QueryRowContext(ctx, `SELECT last_batch_id FROM ledger_counter WHERE id = 1`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read batch counter: %w", err)
	}
	return ledger.BatchID(id), nil
}
