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

// SyncState is the collector's last outcome for one owner. It is a status
// record for operators, not a resume cursor.
type SyncState struct {
	Owner        access.Principal
	Status       string
	LastBatchID  ledger.BatchID
	LastError    string
	FailureCount int
	LastRunAt    time.Time
}

// SaveSyncState records the outcome of syncing owner. A non-empty lastError
// increments the failure count; lastBatchID of zero keeps the previous value.
func (s *Store) SaveSyncState(ctx context.Context, owner access.Principal, status string, lastBatchID ledger.BatchID, lastError string, at time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO collector_state (owner, status, last_batch_id, last_error, failure_count, last_run_at, updated_at)
		VALUES (?, ?, ?, ?, CASE WHEN ? != '' THEN 1 ELSE 0 END, ?, ?)
		ON CONFLICT(owner) DO UPDATE SET
			status = excluded.status,
			last_batch_id = CASE WHEN excluded.last_batch_id > 0 THEN excluded.last_batch_id ELSE collector_state.last_batch_id END,
			last_error = excluded.last_error,
			failure_count = CASE WHEN excluded.last_error != '' THEN collector_state.failure_count + 1 ELSE collector_state.failure_count END,
			last_run_at = excluded.last_run_at,
			updated_at = excluded.updated_at
	`, string(owner), status, int64(lastBatchID), lastError, lastError, at.Unix(), s.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}

func (s *Store) LoadSyncState(ctx context.Context, owner access.Principal) (SyncState, error) {
	st := SyncState{Owner: owner}
	var (
		lastErr   sql.NullString
		batchID   int64
		lastRunAt int64
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT status, last_batch_id, last_error, failure_count, last_run_at
		FROM collector_state WHERE owner = ?
	`, string(owner)).Scan(&st.Status, &batchID, &lastErr, &st.FailureCount, &lastRunAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncState{}, fmt.Errorf("sync state %s: %w", owner, ledger.ErrNotFound)
	}
	if err != nil {
		return SyncState{}, fmt.Errorf("failed to load sync state: %w", err)
	}
	st.LastBatchID = ledger.BatchID(batchID)
	st.LastError = lastErr.String
	st.LastRunAt = time.Unix(lastRunAt, 0).UTC()
	return st, nil
}
