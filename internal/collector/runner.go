// Package collector periodically copies recently updated classifications from
// the primary store into the ledger, one batch per user.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
	"github.com/Martian-dev/ai-brain-ledger/internal/ledger"
	"github.com/Martian-dev/ai-brain-ledger/internal/primary"
)

// DefaultReasoning replaces a missing reasoning string.
const DefaultReasoning = "no reasoning provided"

var ErrAlreadyRunning = errors.New("collector run already in progress")

type Config struct {
	// Window is how far back a run looks. Defaults to 24h.
	Window         time.Duration
	ConfirmTimeout time.Duration
	// MaxBatchEntries splits larger sets into consecutive batches.
	MaxBatchEntries int
	Clock           func() time.Time
}

type Collector struct {
	primary   PrimaryStore
	submitter Submitter
	recorder  StateRecorder
	cfg       Config
	running   atomic.Bool
	logger    *slog.Logger

	// lastTo is the end of the last completed run. Only touched while running.
	lastTo time.Time
}

// New builds a collector. recorder may be nil.
func New(store PrimaryStore, submitter Submitter, recorder StateRecorder, cfg Config, logger *slog.Logger) *Collector {
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}
	if cfg.MaxBatchEntries <= 0 {
		cfg.MaxBatchEntries = ledger.DefaultMaxBatchEntries
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Collector{
		primary:   store,
		submitter: submitter,
		recorder:  recorder,
		cfg:       cfg,
		logger:    logger.With("system", "collector"),
	}
}

func (c *Collector) State() State {
	if c.running.Load() {
		return StateRunning
	}
	return StateIdle
}

// RunOnce syncs every user's records updated in [from, now). from is
// now-Window, pulled back to the end of the previous completed run when that
// is earlier, so consecutive runs leave no gap. A failure for one user is
// logged and recorded; the run continues with the next user.
func (c *Collector) RunOnce(ctx context.Context) (Report, error) {
	if !c.running.CompareAndSwap(false, true) {
		return Report{}, ErrAlreadyRunning
	}
	defer c.running.Store(false)

	now := c.cfg.Clock().UTC()
	from := now.Add(-c.cfg.Window)
	if !c.lastTo.IsZero() && c.lastTo.Before(from) {
		from = c.lastTo
	}
	report := Report{StartedAt: now, From: from, To: now}

	users, err := c.primary.ListUsers(ctx)
	if err != nil {
		return report, fmt.Errorf("list users: %w", err)
	}
	c.logger.Info("run started", "users", len(users), "from", report.From, "to", report.To)

	for _, user := range users {
		if ctx.Err() != nil {
			report.FinishedAt = c.cfg.Clock().UTC()
			return report, ctx.Err()
		}
		res := c.syncUser(ctx, user, report.From, report.To)
		report.add(res)
		c.record(ctx, res)
	}

	c.lastTo = now
	report.FinishedAt = c.cfg.Clock().UTC()
	c.logger.Info("run finished",
		"committed", report.Committed,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

func (c *Collector) syncUser(ctx context.Context, user access.Principal, from, to time.Time) UserResult {
	res := UserResult{Owner: user}
	log := c.logger.With("owner", user)

	records, err := c.primary.UpdatedRecords(ctx, user, from, to)
	if err != nil {
		return c.fail(log, res, fmt.Errorf("select: %w", err))
	}

	entries := mapRecords(records, log)
	res.Records = len(entries)
	if len(entries) == 0 {
		res.Status = StatusSkipped
		return res
	}

	confirmCtx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()

	for start := 0; start < len(entries); start += c.cfg.MaxBatchEntries {
		end := min(start+c.cfg.MaxBatchEntries, len(entries))

		tx, err := c.submitter.Submit(ctx, user, entries[start:end])
		if err != nil {
			return c.fail(log, res, fmt.Errorf("commit: %w", err))
		}
		rcpt, err := c.submitter.Confirm(confirmCtx, tx)
		if err != nil {
			return c.fail(log, res, fmt.Errorf("confirm batch %d: %w", tx.BatchID, err))
		}
		res.BatchIDs = append(res.BatchIDs, rcpt.BatchID)
		res.TxIDs = append(res.TxIDs, rcpt.TxID)
		log.Info("batch confirmed", "batch_id", rcpt.BatchID, "tx_id", rcpt.TxID, "entries", end-start, "gas", rcpt.GasUsed, "fee", rcpt.Fee)
	}

	res.Status = StatusCommitted
	return res
}

func (c *Collector) fail(log *slog.Logger, res UserResult, err error) UserResult {
	log.Error("user sync failed", "error", err, "confirmed_batches", len(res.BatchIDs))
	res.Status = StatusFailed
	res.Error = err.Error()
	return res
}

func (c *Collector) record(ctx context.Context, res UserResult) {
	if c.recorder == nil {
		return
	}
	var last ledger.BatchID
	if n := len(res.BatchIDs); n > 0 {
		last = res.BatchIDs[n-1]
	}
	if err := c.recorder.SaveSyncState(ctx, res.Owner, res.Status, last, res.Error, c.cfg.Clock()); err != nil {
		c.logger.Warn("save sync state", "owner", res.Owner, "error", err)
	}
}

// mapRecords turns primary rows into ledger entries. A missing or unknown label
// becomes LabelUnknown and a missing reasoning becomes DefaultReasoning.
func mapRecords(records []primary.Record, log *slog.Logger) []ledger.Entry {
	entries := make([]ledger.Entry, 0, len(records))
	for _, rec := range records {
		if strings.TrimSpace(rec.ID) == "" {
			log.Warn("skipping record without id", "updated_at", rec.UpdatedAt)
			continue
		}
		e := ledger.Entry{EmailID: rec.ID, Label: ledger.LabelUnknown, Reasoning: DefaultReasoning}
		if rec.Label != nil {
			if l, ok := ledger.ParseLabel(*rec.Label); ok {
				e.Label = l
			} else {
				log.Warn("unrecognised label", "email_id", rec.ID, "label", *rec.Label)
			}
		}
		if rec.Reasoning != nil && *rec.Reasoning != "" {
			e.Reasoning = *rec.Reasoning
		}
		entries = append(entries, e)
	}
	return entries
}
