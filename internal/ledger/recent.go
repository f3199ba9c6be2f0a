package ledger

import (
	"context"
	"fmt"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
)

// GetRecent pages through owner's entries batch by batch, newest batch first.
// The batchOffset newest batches are skipped. Entries inside a batch keep their
// commit order; they are not reversed. At most limit entries are returned.
func (s *Service) GetRecent(ctx context.Context, caller, owner access.Principal, batchOffset, limit int) ([]Entry, error) {
	if err := s.requireOwnerOrBackend(ctx, caller, owner); err != nil {
		return nil, err
	}
	if batchOffset < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: offset %d limit %d", ErrInvalidArgument, batchOffset, limit)
	}
	out := []Entry{}
	if limit == 0 {
		return out, nil
	}

	ids, err := s.backend.BatchIDs(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("batch ids: %w", err)
	}

	for i := len(ids) - 1 - batchOffset; i >= 0 && len(out) < limit; i-- {
		b, err := s.backend.Batch(ctx, ids[i])
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", ids[i], err)
		}
		for _, e := range b.Entries {
			if len(out) == limit {
				break
			}
			out = append(out, e)
		}
	}
	return out, nil
}
