// Package outbox drains events written alongside ledger commits and hands them
// to a publisher.
package outbox

import (
	"context"
	"log/slog"
	"time"
)

// Message is an unpublished outbox row.
type Message struct {
	ID      int64
	Subject string
	Payload []byte
	MsgID   string
}

// Source is the storage side of the outbox.
type Source interface {
	DequeueOutbox(ctx context.Context, limit int) ([]Message, error)
	MarkPublished(ctx context.Context, id int64) error
	MarkOutboxRetry(ctx context.Context, id int64, backoff time.Duration) error
}

// Publisher delivers one message downstream. msgID is used for de-duplication.
type Publisher interface {
	Publish(subject string, payload []byte, msgID string) error
}

type Config struct {
	BatchSize    int
	IdleWait     time.Duration
	ErrorWait    time.Duration
	RetryBackoff time.Duration
}

func (c *Config) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.IdleWait <= 0 {
		c.IdleWait = 500 * time.Millisecond
	}
	if c.ErrorWait <= 0 {
		c.ErrorWait = time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 10 * time.Second
	}
}

type Dispatcher struct {
	source    Source
	publisher Publisher
	cfg       Config
	logger    *slog.Logger
}

func NewDispatcher(source Source, publisher Publisher, cfg Config, logger *slog.Logger) *Dispatcher {
	cfg.setDefaults()
	return &Dispatcher{
		source:    source,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With("system", "outbox"),
	}
}

// Run dispatches until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		n, err := d.DispatchOnce(ctx)
		wait := time.Duration(0)
		switch {
		case err != nil:
			d.logger.Error("dequeue outbox", "error", err)
			wait = d.cfg.ErrorWait
		case n == 0:
			wait = d.cfg.IdleWait
		}
		if wait == 0 {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// DispatchOnce publishes one batch of pending messages and returns how many
// were dequeued. Publish failures are rescheduled, not returned.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	messages, err := d.source.DequeueOutbox(ctx, d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, msg := range messages {
		if err := d.publisher.Publish(msg.Subject, msg.Payload, msg.MsgID); err != nil {
			d.logger.Warn("publish failed", "id", msg.ID, "subject", msg.Subject, "error", err)
			if err := d.source.MarkOutboxRetry(ctx, msg.ID, d.cfg.RetryBackoff); err != nil {
				d.logger.Error("mark retry", "id", msg.ID, "error", err)
			}
			continue
		}
		if err := d.source.MarkPublished(ctx, msg.ID); err != nil {
			d.logger.Error("mark published", "id", msg.ID, "error", err)
		}
	}
	return len(messages), nil
}
