package config

import "time"

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Auth      AuthConfig      `yaml:"auth"`
	NATS      NATSConfig      `yaml:"nats"`
	Collector CollectorConfig `yaml:"collector"`
	Primary   PrimaryConfig   `yaml:"primary"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// LedgerConfig holds ledger storage and role settings.
type LedgerConfig struct {
	StorageDSN        string   `yaml:"storage_dsn"         env:"LEDGER_STORAGE_DSN"         env-default:"sqlite://data/ledger.db"`
	Deployer          string   `yaml:"deployer"            env:"LEDGER_DEPLOYER"            env-required:"true"`
	MaxBatchEntries   int      `yaml:"max_batch_entries"   env:"LEDGER_MAX_BATCH_ENTRIES"   env-default:"500"`
	BootstrapBackends []string `yaml:"bootstrap_backends"  env:"LEDGER_BOOTSTRAP_BACKENDS"`
}

// AuthConfig holds bearer-token verification settings. At least one of
// JWKSURL and HMACSecret must be set.
type AuthConfig struct {
	JWKSURL    string `yaml:"jwks_url"    env:"AUTH_JWKS_URL"`
	HMACSecret string `yaml:"hmac_secret" env:"AUTH_HMAC_SECRET"`
	Audience   string `yaml:"audience"    env:"AUTH_AUDIENCE"    env-default:"ai-brain-ledger"`
}

// NATSConfig holds event publishing settings. An empty URL disables publishing.
type NATSConfig struct {
	URL          string        `yaml:"url"           env:"NATS_URL"`
	Stream       string        `yaml:"stream"        env:"NATS_STREAM"        env-default:"LEDGER_EVENTS"`
	BatchSize    int           `yaml:"batch_size"    env:"NATS_BATCH_SIZE"    env-default:"100"`
	RetryBackoff time.Duration `yaml:"retry_backoff" env:"NATS_RETRY_BACKOFF" env-default:"10s"`
}

// CollectorConfig holds sync collector settings.
type CollectorConfig struct {
	Enabled        bool          `yaml:"enabled"         env:"COLLECTOR_ENABLED"         env-default:"false"`
	Interval       time.Duration `yaml:"interval"        env:"COLLECTOR_INTERVAL"        env-default:"24h"`
	Window         time.Duration `yaml:"window"          env:"COLLECTOR_WINDOW"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout" env:"COLLECTOR_CONFIRM_TIMEOUT" env-default:"2m"`
	RunOnStart     bool          `yaml:"run_on_start"    env:"COLLECTOR_RUN_ON_START"    env-default:"false"`
	Principal      string        `yaml:"principal"       env:"COLLECTOR_PRINCIPAL"       env-default:"collector"`
	// LedgerURL selects the HTTP submitter; empty commits in-process.
	LedgerURL   string `yaml:"ledger_url"    env:"COLLECTOR_LEDGER_URL"`
	GasLimit    uint64 `yaml:"gas_limit"     env:"COLLECTOR_GAS_LIMIT"     env-default:"0"`
	FeePerUnit  uint64 `yaml:"fee_per_unit"  env:"COLLECTOR_FEE_PER_UNIT"  env-default:"1"`
	BaseGas     uint64 `yaml:"base_gas"      env:"COLLECTOR_BASE_GAS"      env-default:"21000"`
	PerEntryGas uint64 `yaml:"per_entry_gas" env:"COLLECTOR_PER_ENTRY_GAS" env-default:"5000"`
	PerByteGas  uint64 `yaml:"per_byte_gas"  env:"COLLECTOR_PER_BYTE_GAS"  env-default:"16"`
}

// PrimaryConfig points at the store the collector reads from.
type PrimaryConfig struct {
	DSN string `yaml:"dsn" env:"PRIMARY_DSN"`
}

// EffectiveWindow is the look-back of one collector run.
func (c CollectorConfig) EffectiveWindow() time.Duration {
	if c.Window > 0 {
		return c.Window
	}
	return c.Interval
}
