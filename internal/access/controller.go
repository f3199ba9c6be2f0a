// Package access implements the role registry consulted on every ledger write
// and every owner-scoped read.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidRole  = errors.New("invalid role")
)

// RoleStore persists (role, principal) grants.
type RoleStore interface {
	HasRole(ctx context.Context, role Role, p Principal) (bool, error)
	SetRole(ctx context.Context, role Role, p Principal, granted bool) error
}

// Controller answers and mutates role membership. Grants and revocations are
// restricted to the deployer principal or any holder of RoleAdmin.
type Controller struct {
	store    RoleStore
	deployer Principal
	logger   *slog.Logger
}

// NewController creates a controller backed by store.
func NewController(store RoleStore, deployer Principal, logger *slog.Logger) *Controller {
	return &Controller{
		store:    store,
		deployer: deployer,
		logger:   logger.With("system", "access"),
	}
}

// Deployer returns the administrative principal fixed at construction.
func (c *Controller) Deployer() Principal {
	return c.deployer
}

// HasRole reports whether p holds role. The empty principal holds nothing.
func (c *Controller) HasRole(ctx context.Context, role Role, p Principal) (bool, error) {
	if p == "" {
		return false, nil
	}
	ok, err := c.store.HasRole(ctx, role, p)
	if err != nil {
		return false, fmt.Errorf("has role %s: %w", role.Name(), err)
	}
	return ok, nil
}

// IsAdmin reports whether p may administer roles.
func (c *Controller) IsAdmin(ctx context.Context, p Principal) (bool, error) {
	if p == "" {
		return false, nil
	}
	if c.deployer != "" && p == c.deployer {
		return true, nil
	}
	return c.HasRole(ctx, RoleAdmin, p)
}

// GrantRole gives role to p. caller must be the deployer or hold ADMIN.
func (c *Controller) GrantRole(ctx context.Context, caller Principal, role Role, p Principal) error {
	return c.setRole(ctx, caller, role, p, true)
}

// RevokeRole removes role from p under the same rule as GrantRole.
func (c *Controller) RevokeRole(ctx context.Context, caller Principal, role Role, p Principal) error {
	return c.setRole(ctx, caller, role, p, false)
}

func (c *Controller) setRole(ctx context.Context, caller Principal, role Role, p Principal, granted bool) error {
	admin, err := c.IsAdmin(ctx, caller)
	if err != nil {
		return err
	}
	if !admin {
		return fmt.Errorf("%w: %s may not administer roles", ErrUnauthorized, caller)
	}
	if p == "" {
		return fmt.Errorf("%w: empty principal", ErrInvalidRole)
	}
	if err := c.store.SetRole(ctx, role, p, granted); err != nil {
		return fmt.Errorf("set role %s: %w", role.Name(), err)
	}
	c.logger.Info("role updated", "role", role.Name(), "principal", p, "granted", granted, "by", caller)
	return nil
}

// Bootstrap grants RoleBackend to each principal on behalf of the deployer.
// It runs once at start-up to authorise the collector's signing principal.
func (c *Controller) Bootstrap(ctx context.Context, backends []Principal) error {
	for _, p := range backends {
		ok, err := c.HasRole(ctx, RoleBackend, p)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := c.GrantRole(ctx, c.deployer, RoleBackend, p); err != nil {
			return fmt.Errorf("bootstrap %s: %w", p, err)
		}
	}
	return nil
}
