package config

import (
	"fmt"
	"strings"
)

// Validate performs cross-field validation. Load calls it automatically.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range (got %d)", c.Server.Port)
	}
	if strings.TrimSpace(c.Ledger.Deployer) == "" {
		return fmt.Errorf("ledger.deployer is required")
	}
	if c.Ledger.MaxBatchEntries <= 0 {
		return fmt.Errorf("ledger.max_batch_entries must be > 0 (got %d)", c.Ledger.MaxBatchEntries)
	}
	if c.Auth.JWKSURL == "" && c.Auth.HMACSecret == "" {
		return fmt.Errorf("auth: one of jwks_url or hmac_secret must be set")
	}
	if c.Auth.HMACSecret != "" && len(c.Auth.HMACSecret) < 32 {
		return fmt.Errorf("auth.hmac_secret must be at least 32 characters (got %d)", len(c.Auth.HMACSecret))
	}
	if err := c.Collector.validate(c); err != nil {
		return fmt.Errorf("collector: %w", err)
	}
	return nil
}

func (cc *CollectorConfig) validate(c *Config) error {
	if !cc.Enabled {
		return nil
	}
	if cc.Interval <= 0 {
		return fmt.Errorf("interval must be > 0 (got %s)", cc.Interval)
	}
	if cc.ConfirmTimeout <= 0 {
		return fmt.Errorf("confirm_timeout must be > 0 (got %s)", cc.ConfirmTimeout)
	}
	if strings.TrimSpace(cc.Principal) == "" {
		return fmt.Errorf("principal is required")
	}
	if c.Primary.DSN == "" {
		return fmt.Errorf("primary.dsn is required when the collector is enabled")
	}
	if cc.LedgerURL != "" && c.Auth.HMACSecret == "" {
		return fmt.Errorf("ledger_url requires auth.hmac_secret to sign requests")
	}
	return nil
}
