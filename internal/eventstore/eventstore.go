// Package eventstore selects a ledger backend from a DSN.
package eventstore

import (
	"fmt"
	"io"
	"strings"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
	"github.com/Martian-dev/ai-brain-ledger/internal/eventstore/memory"
	"github.com/Martian-dev/ai-brain-ledger/internal/eventstore/sqlite"
	"github.com/Martian-dev/ai-brain-ledger/internal/ledger"
	"github.com/Martian-dev/ai-brain-ledger/internal/outbox"
)

// Store is everything the service needs from persistence: the ledger, the
// role registry and the outbox feeding the publisher.
type Store interface {
	ledger.Backend
	access.RoleStore
	outbox.Source
	io.Closer
}

// Open builds a Store from dsn. Supported forms:
//
//	memory://
//	sqlite:///var/lib/ledger/ledger.db
//	file:///var/lib/ledger/ledger.db
//	/var/lib/ledger/ledger.db
func Open(dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, fmt.Errorf("eventstore: empty dsn")
	case dsn == "memory" || strings.HasPrefix(dsn, "memory://"):
		return memory.New(), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return openSQLite(strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasPrefix(dsn, "file://"):
		return openSQLite(strings.TrimPrefix(dsn, "file://"))
	case strings.Contains(dsn, "://"):
		return nil, fmt.Errorf("eventstore: unsupported dsn scheme in %q", dsn)
	default:
		return openSQLite(dsn)
	}
}

func openSQLite(path string) (Store, error) {
	if path == "" {
		return nil, fmt.Errorf("eventstore: sqlite dsn has no path")
	}
	s, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("eventstore: %w", err)
	}
	return s, nil
}
