package collector

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
	"github.com/Martian-dev/ai-brain-ledger/internal/ledger"
	"github.com/Martian-dev/ai-brain-ledger/internal/ledgerclient"
	"github.com/Martian-dev/ai-brain-ledger/internal/primary"
)

// PrimaryStore is where classifications are read from.
type PrimaryStore interface {
	ListUsers(ctx context.Context) ([]access.Principal, error)
	UpdatedRecords(ctx context.Context, user access.Principal, from, to time.Time) ([]primary.Record, error)
}

// Submitter commits a batch and waits for it. *ledgerclient.Client satisfies it.
type Submitter interface {
	Submit(ctx context.Context, owner access.Principal, entries []ledger.Entry) (ledgerclient.Tx, error)
	Confirm(ctx context.Context, tx ledgerclient.Tx) (ledgerclient.Receipt, error)
}

// StateRecorder persists the per-user outcome of a run for operators.
type StateRecorder interface {
	SaveSyncState(ctx context.Context, owner access.Principal, status string, lastBatchID ledger.BatchID, lastError string, at time.Time) error
}

// State is the collector lifecycle state.
type State string

const (
	StateIdle    State = "IDLE"
	StateRunning State = "RUNNING"
)

// Per-user outcomes.
const (
	StatusCommitted = "committed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// UserResult is what happened to one user in one run.
type UserResult struct {
	Owner    access.Principal `json:"owner"`
	Status   string           `json:"status"`
	Records  int              `json:"records"`
	BatchIDs []ledger.BatchID `json:"batch_ids,omitempty"`
	TxIDs    []uuid.UUID      `json:"tx_ids,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Report summarises one run.
type Report struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	From       time.Time    `json:"from"`
	To         time.Time    `json:"to"`
	Users      []UserResult `json:"users"`
	Committed  int          `json:"committed"`
	Skipped    int          `json:"skipped"`
	Failed     int          `json:"failed"`
	Error      string       `json:"error,omitempty"`
}

func (r *Report) add(res UserResult) {
	r.Users = append(r.Users, res)
	switch res.Status {
	case StatusCommitted:
		r.Committed++
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
	}
}
