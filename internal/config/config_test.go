package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "this-is-a-very-long-hmac-secret-for-tests"

func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LEDGER_DEPLOYER", "deployer")
	t.Setenv("AUTH_HMAC_SECRET", secret)
}

func writeYAML(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
server:
  port: 9090
  shutdown_timeout: "5s"
log:
  level: debug
  format: text
ledger:
  storage_dsn: "memory://"
  deployer: "root"
  max_batch_entries: 100
  bootstrap_backends: ["collector", "indexer"]
auth:
  hmac_secret: "this-is-a-very-long-hmac-secret-for-tests"
collector:
  enabled: true
  interval: "1h"
  confirm_timeout: "30s"
primary:
  dsn: "memory://"
`

func TestLoadFromYAML(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeYAML(t, t.TempDir(), validYAML))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory://", cfg.Ledger.StorageDSN)
	assert.Equal(t, "root", cfg.Ledger.Deployer)
	assert.Equal(t, 100, cfg.Ledger.MaxBatchEntries)
	assert.Equal(t, []string{"collector", "indexer"}, cfg.Ledger.BootstrapBackends)
	assert.True(t, cfg.Collector.Enabled)
	assert.Equal(t, time.Hour, cfg.Collector.EffectiveWindow())
	assert.Equal(t, "collector", cfg.Collector.Principal)
	assert.Equal(t, "LEDGER_EVENTS", cfg.NATS.Stream)
}

func TestEnvOverridesYAML(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeYAML(t, t.TempDir(), validYAML))
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("COLLECTOR_WINDOW", "90m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 90*time.Minute, cfg.Collector.EffectiveWindow())
}

func TestLoadEnvOnlyDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	validEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite://data/ledger.db", cfg.Ledger.StorageDSN)
	assert.Equal(t, 500, cfg.Ledger.MaxBatchEntries)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Collector.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Collector.EffectiveWindow())
}

func TestExplicitMissingFileFails(t *testing.T) {
	validEnv(t)
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	t.Setenv("CONFIG_PATH", missing)
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger config "+missing)
}

func TestLoadFileReadsDefaultPathFromWorkingDir(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, validYAML)
	chdir(t, dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestBootstrapBackendsAreNormalized(t *testing.T) {
	chdir(t, t.TempDir())
	validEnv(t)
	t.Setenv("LEDGER_DEPLOYER", "  root ")
	t.Setenv("LEDGER_BOOTSTRAP_BACKENDS", "collector, indexer,,collector,")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "root", cfg.Ledger.Deployer)
	assert.Equal(t, []string{"collector", "indexer"}, cfg.Ledger.BootstrapBackends)
}

func TestLoadFileValidationErrorNamesSource(t *testing.T) {
	path := writeYAML(t, t.TempDir(), "ledger:\n  deployer: root\n")
	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger config "+path)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server: ServerConfig{Port: 8080},
			Ledger: LedgerConfig{Deployer: "root", MaxBatchEntries: 10},
			Auth:   AuthConfig{HMACSecret: secret},
		}
	}

	cfg := base()
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no deployer", func(c *Config) { c.Ledger.Deployer = " " }},
		{"zero ceiling", func(c *Config) { c.Ledger.MaxBatchEntries = 0 }},
		{"no verifier", func(c *Config) { c.Auth.HMACSecret = "" }},
		{"short secret", func(c *Config) { c.Auth.HMACSecret = "short" }},
		{"collector without primary", func(c *Config) {
			c.Collector = CollectorConfig{Enabled: true, Interval: time.Hour, ConfirmTimeout: time.Minute, Principal: "collector"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
