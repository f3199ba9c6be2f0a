package primary

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS classifications (
    owner      TEXT NOT NULL,
    email_id   TEXT NOT NULL,
    label      TEXT,
    reasoning  TEXT,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (owner, email_id)
);
CREATE INDEX IF NOT EXISTS idx_classifications_updated ON classifications(owner, updated_at);
`

// SQLite reads a local primary store. updated_at is stored as Unix
// milliseconds.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open primary store: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply primary schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Upsert writes rec as the current classification of (owner, id).
func (s *SQLite) Upsert(ctx context.Context, rec Record) error {
	query, args, err := sq.Insert(Table).
		Columns("owner", "email_id", "label", "reasoning", "updated_at").
		Values(string(rec.Owner), rec.ID, rec.Label, rec.Reasoning, rec.UpdatedAt.UnixMilli()).
		Suffix("ON CONFLICT(owner, email_id) DO UPDATE SET label = excluded.label, reasoning = excluded.reasoning, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

func (s *SQLite) ListUsers(ctx context.Context) ([]access.Principal, error) {
	query, args, err := sq.Select("owner").Distinct().From(Table).OrderBy("owner").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []access.Principal
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		users = append(users, access.Principal(owner))
	}
	return users, rows.Err()
}

func (s *SQLite) UpdatedRecords(ctx context.Context, user access.Principal, from, to time.Time) ([]Record, error) {
	query, args, err := sq.
		Select("email_id", "label", "reasoning", "updated_at").
		From(Table).
		Where(sq.Eq{"owner": string(user)}).
		Where(sq.GtOrEq{"updated_at": from.UnixMilli()}).
		Where(sq.Lt{"updated_at": to.UnixMilli()}).
		OrderBy("updated_at", "email_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec       = Record{Owner: user}
			label     sql.NullString
			reasoning sql.NullString
			updatedAt int64
		)
		if err := rows.Scan(&rec.ID, &label, &reasoning, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if label.Valid {
			rec.Label = &label.String
		}
		if reasoning.Valid {
			rec.Reasoning = &reasoning.String
		}
		rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
