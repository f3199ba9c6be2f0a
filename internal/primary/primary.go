// Package primary reads classification records from the mutable primary
// store the collector synchronises from.
package primary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
)

// Table is the primary-store table holding the current classification of
// every message.
const Table = "classifications"

// Record is one row of the primary store. Label and Reasoning are nil when
// the classifier has not produced them.
type Record struct {
	ID        string
	Owner     access.Principal
	Label     *string
	Reasoning *string
	UpdatedAt time.Time
}

// Store is the read side the collector needs.
type Store interface {
	ListUsers(ctx context.Context) ([]access.Principal, error)
	UpdatedRecords(ctx context.Context, user access.Principal, from, to time.Time) ([]Record, error)
	Close() error
}

// Open builds a Store from dsn: postgres:// or postgresql:// for PostgreSQL,
// sqlite://path for a local SQLite file, memory:// for an empty in-process store.
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		pool, err := NewPool(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return NewPostgres(pool, pool.Close), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return OpenSQLite(strings.TrimPrefix(dsn, "sqlite://"))
	case dsn == "memory" || strings.HasPrefix(dsn, "memory://"):
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("primary: unsupported dsn %q", dsn)
	}
}

// NewPool connects to PostgreSQL and pings it.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database DSN: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
