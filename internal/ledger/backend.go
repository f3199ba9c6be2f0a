package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
)

// Backend is the storage the ledger runs on. AppendBatch must be atomic: the id
// counter increment, the batch, the owner index append and the outbox event are
// all visible or none are. Batch ids are allocated in commit order.
type Backend interface {
	AppendBatch(ctx context.Context, owner access.Principal, entries []Entry, committedAt time.Time) (Batch, error)
	Batch(ctx context.Context, id BatchID) (Batch, error)
	BatchIDs(ctx context.Context, owner access.Principal) ([]BatchID, error)
	LastBatchID(ctx context.Context) (BatchID, error)

	PutRecord(ctx context.Context, rec Record) error
	TombstoneRecord(ctx context.Context, owner access.Principal, emailID string, at time.Time) (Record, error)
	Record(ctx context.Context, owner access.Principal, emailID string) (Record, error)
}

const (
	EventBatchCommitted = "batch.committed"
	EventRecordPut      = "record.put"
	EventRecordDeleted  = "record.deleted"
)

// OutboxEvent is an event written in the same transaction as the state change
// it describes, published later by the outbox dispatcher.
type OutboxEvent struct {
	Subject string
	Type    string
	Payload []byte
	MsgID   string
}

type batchCommittedPayload struct {
	EventID     string           `json:"event_id"`
	Owner       access.Principal `json:"owner"`
	BatchID     BatchID          `json:"batch_id"`
	EntryCount  int              `json:"entry_count"`
	CommittedAt int64            `json:"committed_at"`
}

type recordPayload struct {
	EventID   string           `json:"event_id"`
	Owner     access.Principal `json:"owner"`
	EmailID   string           `json:"email_id"`
	Label     Label            `json:"label"`
	IsDeleted bool             `json:"is_deleted"`
	UpdatedAt int64            `json:"updated_at"`
}

// BatchCommittedEvent builds the BatchCommitted(owner, batchId, entryCount) event.
func BatchCommittedEvent(b Batch) OutboxEvent {
	payload, _ := json.Marshal(batchCommittedPayload{
		EventID:     uuid.NewString(),
		Owner:       b.Owner,
		BatchID:     b.ID,
		EntryCount:  len(b.Entries),
		CommittedAt: b.CommittedAt.Unix(),
	})
	return OutboxEvent{
		Subject: fmt.Sprintf("ledger.%s.%s", subjectToken(b.Owner), EventBatchCommitted),
		Type:    EventBatchCommitted,
		Payload: payload,
		MsgID:   fmt.Sprintf("%s|%d", EventBatchCommitted, b.ID),
	}
}

// RecordEvent builds the event for a single-entry record change.
func RecordEvent(rec Record) OutboxEvent {
	eventType := EventRecordPut
	if rec.IsDeleted {
		eventType = EventRecordDeleted
	}
	eventID := uuid.NewString()
	payload, _ := json.Marshal(recordPayload{
		EventID:   eventID,
		Owner:     rec.Owner,
		EmailID:   rec.Entry.EmailID,
		Label:     rec.Entry.Label,
		IsDeleted: rec.IsDeleted,
		UpdatedAt: rec.UpdatedAt.Unix(),
	})
	return OutboxEvent{
		Subject: fmt.Sprintf("ledger.%s.%s", subjectToken(rec.Owner), eventType),
		Type:    eventType,
		Payload: payload,
		MsgID:   fmt.Sprintf("%s|%s", eventType, eventID),
	}
}

var subjectReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// subjectToken makes a principal safe to use as a single NATS subject token.
func subjectToken(p access.Principal) string {
	if p == "" {
		return "_"
	}
	return subjectReplacer.Replace(string(p))
}
