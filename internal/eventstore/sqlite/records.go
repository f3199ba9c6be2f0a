package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
	"github.com/Martian-dev/ai-brain-ledger/internal/ledger"
)

func (s *Store) PutRecord(ctx context.Context, rec ledger.Record) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entry_records (owner, email_id, label, reasoning, is_deleted, updated_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(owner, email_id) DO UPDATE SET
			label = excluded.label,
			reasoning = excluded.reasoning,
			is_deleted = 0,
			updated_at = excluded.updated_at
	`, string(rec.Owner), rec.Entry.EmailID, int(rec.Entry.Label), rec.Entry.Reasoning, rec.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}

	rec.IsDeleted = false
	if err := s.appendOutboxTx(ctx, tx, ledger.RecordEvent(rec)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) TombstoneRecord(ctx context.Context, owner access.Principal, emailID string, at time.Time) (ledger.Record, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE entry_records SET is_deleted = 1, updated_at = ?
		WHERE owner = ? AND email_id = ?
	`, at.UnixNano(), string(owner), emailID)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("failed to tombstone record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.Record{}, fmt.Errorf("record %s/%s: %w", owner, emailID, ledger.ErrNotFound)
	}

	rec, err := scanRecord(tx.QueryRowContext(ctx, recordQuery, string(owner), emailID), owner)
	if err != nil {
		return ledger.Record{}, err
	}
	if err := s.appendOutboxTx(ctx, tx, ledger.RecordEvent(rec)); err != nil {
		return ledger.Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return ledger.Record{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return rec, nil
}

func (s *Store) Record(ctx context.Context, owner access.Principal, emailID string) (ledger.Record, error) {
	return scanRecord(s.DB.QueryRowContext(ctx, recordQuery, string(owner), emailID), owner)
}

const recordQuery = `
	SELECT email_id, label, reasoning, is_deleted, updated_at
	FROM entry_records
	WHERE owner = ? AND email_id = ?
`

func scanRecord(row *sql.Row, owner access.Principal) (ledger.Record, error) {
	var (
		rec       = ledger.Record{Owner: owner}
		label     int
		deleted   int
		updatedAt int64
	)
	err := row.Scan(&rec.Entry.EmailID, &label, &rec.Entry.Reasoning, &deleted, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Record{}, fmt.Errorf("record %s: %w", owner, ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.Record{}, fmt.Errorf("failed to load record: %w", err)
	}
	rec.Entry.Label = ledger.Label(label)
	rec.IsDeleted = deleted != 0
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return rec, nil
}
