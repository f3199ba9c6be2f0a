// Package natsjs publishes ledger events to NATS JetStream.
package natsjs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	DefaultStream   = "LEDGER_EVENTS"
	DefaultSubjects = "ledger.>"
)

// StreamConfig describes the stream ledger events are stored in.
type StreamConfig struct {
	Name       string
	Subjects   []string
	Duplicates time.Duration
	MaxAge     time.Duration
}

func (c *StreamConfig) setDefaults() {
	if c.Name == "" {
		c.Name = DefaultStream
	}
	if len(c.Subjects) == 0 {
		c.Subjects = []string{DefaultSubjects}
	}
	if c.Duplicates <= 0 {
		c.Duplicates = 10 * time.Minute
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 30 * 24 * time.Hour
	}
}

// Publisher wraps a JetStream context. It satisfies outbox.Publisher.
type Publisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	stream StreamConfig
	logger *slog.Logger
}

func NewPublisher(url string, stream StreamConfig, logger *slog.Logger) (*Publisher, error) {
	stream.setDefaults()
	logger = logger.With("system", "nats")

	nc, err := nats.Connect(url,
		nats.Name("ai-brain-ledger"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	return &Publisher{nc: nc, js: js, stream: stream, logger: logger}, nil
}

// EnsureStream creates the configured stream if it does not exist yet.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	if info, err := p.js.StreamInfo(p.stream.Name, nats.Context(ctx)); err == nil && info != nil {
		return nil
	}

	_, err := p.js.AddStream(&nats.StreamConfig{
		Name:       p.stream.Name,
		Subjects:   p.stream.Subjects,
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: p.stream.Duplicates,
		MaxAge:     p.stream.MaxAge,
	}, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil
		}
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("stream created", "stream", p.stream.Name, "subjects", p.stream.Subjects)
	return nil
}

// Publish sends payload with msgID as the JetStream de-duplication id.
func (p *Publisher) Publish(subject string, payload []byte, msgID string) error {
	_, err := p.js.Publish(subject, payload, nats.MsgId(msgID))
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
	}
}
