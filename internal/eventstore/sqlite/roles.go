package sqlite

import (
	"context"
	"fmt"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
)

// HasRole and SetRole make Store an access.RoleStore, so grants persist with
// the ledger they protect.
func (s *Store) HasRole(ctx context.Context, role access.Role, p access.Principal) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM role_grants WHERE role = ? AND principal = ?
	`, role.String(), string(p)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query role: %w", err)
	}
	return n > 0, nil
}

func (s *Store) SetRole(ctx context.Context, role access.Role, p access.Principal, granted bool) error {
	var err error
	if granted {
		_, err = s.DB.ExecContext(ctx, `
			INSERT OR IGNORE INTO role_grants (role, principal, granted_at) VALUES (?, ?, ?)
		`, role.String(), string(p), s.now().Unix())
	} else {
		_, err = s.DB.ExecContext(ctx, `
			DELETE FROM role_grants WHERE role = ? AND principal = ?
		`, role.String(), string(p))
	}
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return nil
}
