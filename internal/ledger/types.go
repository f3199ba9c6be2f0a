package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
)

// BatchID is the ledger-wide commit sequence number. The first batch is 1.
type BatchID uint64

// Label is the priority assigned to a message by the classifier.
type Label uint8

const (
	// LabelUnknown is stored when the source record carried no usable label.
	LabelUnknown Label = iota
	LabelCritical
	LabelAction
	LabelInfo
)

var labelNames = [...]string{
	LabelUnknown:  "UNKNOWN",
	LabelCritical: "CRITICAL",
	LabelAction:   "ACTION",
	LabelInfo:     "INFO",
}

func (l Label) Valid() bool {
	return int(l) < len(labelNames)
}

func (l Label) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Label(%d)", uint8(l))
	}
	return labelNames[l]
}

// ParseLabel maps a label name to its enum value, ignoring case and surrounding
// space. ok is false for anything that is not a known name.
func ParseLabel(s string) (Label, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range labelNames {
		if name == s {
			return Label(i), true
		}
	}
	return LabelUnknown, false
}

func (l Label) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: label %d", ErrInvalidEntry, uint8(l))
	}
	return []byte(labelNames[l]), nil
}

func (l *Label) UnmarshalText(b []byte) error {
	parsed, ok := ParseLabel(string(b))
	if !ok {
		return fmt.Errorf("%w: label %q", ErrInvalidEntry, string(b))
	}
	*l = parsed
	return nil
}

// Entry is one classified message.
type Entry struct {
	EmailID   string `json:"email_id"`
	Label     Label  `json:"label"`
	Reasoning string `json:"reasoning"`
}

// Batch is an immutable group of entries committed for one owner in a single call.
type Batch struct {
	ID          BatchID          `json:"batch_id"`
	Owner       access.Principal `json:"owner"`
	Entries     []Entry          `json:"entries"`
	CommittedAt time.Time        `json:"committed_at"`
}

// Record is the single-entry variant: one mutable slot per (owner, email id),
// soft-deleted with a tombstone rather than removed.
type Record struct {
	Owner     access.Principal `json:"owner"`
	Entry     Entry            `json:"entry"`
	IsDeleted bool             `json:"is_deleted"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func cloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
