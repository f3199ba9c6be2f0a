package primary

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
)

// Querier is the subset of *pgxpool.Pool the reader uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type Postgres struct {
	q     Querier
	close func()
}

// NewPostgres wraps q. closeFn, if set, is called by Close.
func NewPostgres(q Querier, closeFn func()) *Postgres {
	return &Postgres{q: q, close: closeFn}
}

func (p *Postgres) ListUsers(ctx context.Context) ([]access.Principal, error) {
	query, args, err := psql.Select("owner").Distinct().From(Table).OrderBy("owner").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := p.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	owners, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]access.Principal, len(owners))
	for i, o := range owners {
		users[i] = access.Principal(o)
	}
	return users, nil
}

func (p *Postgres) UpdatedRecords(ctx context.Context, user access.Principal, from, to time.Time) ([]Record, error) {
	query, args, err := psql.
		Select("email_id", "label", "reasoning", "updated_at").
		From(Table).
		Where(sq.Eq{"owner": string(user)}).
		Where(sq.GtOrEq{"updated_at": from}).
		Where(sq.Lt{"updated_at": to}).
		OrderBy("updated_at", "email_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := p.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec := Record{Owner: user}
		if err := rows.Scan(&rec.ID, &rec.Label, &rec.Reasoning, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	return out, nil
}

func (p *Postgres) Close() error {
	if p.close != nil {
		p.close()
	}
	return nil
}
