package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is read when CONFIG_PATH is unset and the file exists.
const DefaultPath = "config.yaml"

// Load picks the config file from CONFIG_PATH, then DefaultPath, and falls
// back to environment variables alone when neither applies. An explicit
// CONFIG_PATH that does not exist is an error.
func Load() (*Config, error) {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return LoadFile(path)
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return LoadFile(DefaultPath)
	}
	return LoadFile("")
}

// LoadFile reads path as YAML with environment overrides, or only the
// environment when path is empty. Defaults come from env-default tags.
func LoadFile(path string) (*Config, error) {
	var (
		cfg Config
		err error
	)
	if path == "" {
		err = cleanenv.ReadEnv(&cfg)
	} else {
		err = cleanenv.ReadConfig(path, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger config %s: %w", sourceName(path), err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ledger config %s: %w", sourceName(path), err)
	}
	return &cfg, nil
}

func sourceName(path string) string {
	if path == "" {
		return "(env)"
	}
	return path
}

// normalize trims principal names and drops blank or repeated bootstrap
// backends, e.g. from a trailing comma in LEDGER_BOOTSTRAP_BACKENDS.
func (c *Config) normalize() {
	c.Ledger.Deployer = strings.TrimSpace(c.Ledger.Deployer)
	c.Collector.Principal = strings.TrimSpace(c.Collector.Principal)

	seen := make(map[string]bool, len(c.Ledger.BootstrapBackends))
	backends := make([]string, 0, len(c.Ledger.BootstrapBackends))
	for _, p := range c.Ledger.BootstrapBackends {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		backends = append(backends, p)
	}
	c.Ledger.BootstrapBackends = backends
}
