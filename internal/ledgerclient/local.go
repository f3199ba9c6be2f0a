package ledgerclient

import (
	"context"
	"errors"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
	"github.com/Martian-dev/ai-brain-ledger/internal/ledger"
)

// Local commits through an in-process ledger.Service as principal.
type Local struct {
	svc       *ledger.Service
	principal access.Principal
}

func NewLocal(svc *ledger.Service, principal access.Principal) *Local {
	return &Local{svc: svc, principal: principal}
}

func (l *Local) Commit(ctx context.Context, owner access.Principal, entries []ledger.Entry) (ledger.BatchID, error) {
	b, err := l.svc.CommitBatch(ctx, l.principal, owner, entries)
	if err != nil {
		return 0, err
	}
	return b.ID, nil
}

func (l *Local) BatchVisible(ctx context.Context, id ledger.BatchID) (bool, error) {
	_, err := l.svc.GetBatch(ctx, l.principal, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
