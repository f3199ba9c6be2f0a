// Package ledgerclient submits batches to the ledger as transactions: it
// prices them in gas, enforces the caller's gas ceiling and waits for the
// committed batch to become readable.
package ledgerclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
	"github.com/Martian-dev/ai-brain-ledger/internal/ledger"
)

var ErrGasCeiling = errors.New("estimated gas exceeds limit")

// GasSchedule prices a commit: Base + PerEntry*entries + PerByte*payload bytes.
type GasSchedule struct {
	Base     uint64
	PerEntry uint64
	PerByte  uint64
}

var DefaultGasSchedule = GasSchedule{Base: 21000, PerEntry: 5000, PerByte: 16}

// Estimate returns the gas a commit of entries would use.
func (g GasSchedule) Estimate(entries []ledger.Entry) uint64 {
	var bytes uint64
	for _, e := range entries {
		// one byte for the label
		bytes += uint64(len(e.EmailID)+len(e.Reasoning)) + 1
	}
	return g.Base + g.PerEntry*uint64(len(entries)) + g.PerByte*bytes
}

// TxOptions bounds what a single submission may cost. GasLimit zero means no
// ceiling.
type TxOptions struct {
	GasLimit   uint64
	FeePerUnit uint64
}

// Tx is a submitted commit awaiting confirmation.
type Tx struct {
	ID      uuid.UUID
	Owner   access.Principal
	BatchID ledger.BatchID
	GasUsed uint64
	Fee     uint64
}

// Receipt confirms that a transaction's batch is readable on the ledger.
type Receipt struct {
	TxID        uuid.UUID
	BatchID     ledger.BatchID
	GasUsed     uint64
	Fee         uint64
	ConfirmedAt time.Time
}

// Transport carries commits to a ledger and reports batch visibility.
type Transport interface {
	Commit(ctx context.Context, owner access.Principal, entries []ledger.Entry) (ledger.BatchID, error)
	BatchVisible(ctx context.Context, id ledger.BatchID) (bool, error)
}

type Config struct {
	Gas          GasSchedule
	Tx           TxOptions
	PollInterval time.Duration
}

type Client struct {
	transport Transport
	cfg       Config
	logger    *slog.Logger
}

func New(transport Transport, cfg Config, logger *slog.Logger) *Client {
	if cfg.Gas == (GasSchedule{}) {
		cfg.Gas = DefaultGasSchedule
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	return &Client{
		transport: transport,
		cfg:       cfg,
		logger:    logger.With("system", "ledgerclient"),
	}
}

func (c *Client) Options() TxOptions {
	return c.cfg.Tx
}

// Submit prices entries, rejects them if they exceed the gas limit and commits
// them through the transport.
func (c *Client) Submit(ctx context.Context, owner access.Principal, entries []ledger.Entry) (Tx, error) {
	gas := c.cfg.Gas.Estimate(entries)
	if c.cfg.Tx.GasLimit > 0 && gas > c.cfg.Tx.GasLimit {
		return Tx{}, fmt.Errorf("%w: %d > %d", ErrGasCeiling, gas, c.cfg.Tx.GasLimit)
	}

	id, err := c.transport.Commit(ctx, owner, entries)
	if err != nil {
		return Tx{}, err
	}

	tx := Tx{
		ID:      uuid.New(),
		Owner:   owner,
		BatchID: id,
		GasUsed: gas,
		Fee:     gas * c.cfg.Tx.FeePerUnit,
	}
	c.logger.Debug("transaction submitted", "tx_id", tx.ID, "owner", owner, "batch_id", id, "gas", gas)
	return tx, nil
}

// Confirm blocks until tx's batch is visible or ctx ends.
func (c *Client) Confirm(ctx context.Context, tx Tx) (Receipt, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		ok, err := c.transport.BatchVisible(ctx, tx.BatchID)
		if err != nil {
			return Receipt{}, fmt.Errorf("confirm batch %d: %w", tx.BatchID, err)
		}
		if ok {
			return Receipt{
				TxID:        tx.ID,
				BatchID:     tx.BatchID,
				GasUsed:     tx.GasUsed,
				Fee:         tx.Fee,
				ConfirmedAt: time.Now().UTC(),
			}, nil
		}

		select {
		case <-ctx.Done():
			return Receipt{}, fmt.Errorf("confirm batch %d: %w", tx.BatchID, ctx.Err())
		case <-ticker.C:
		}
	}
}
