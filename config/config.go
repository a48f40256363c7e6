package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"supportstake/storage"
)

// Config is the supportd configuration file.
type Config struct {
	Engine  Engine  `toml:"Engine"`
	Pools   []Pool  `toml:"Pools"`
	Logging Logging `toml:"Logging"`
	Storage Storage `toml:"Storage"`
}

// Load decodes the TOML file at path, rejects unknown keys, fills defaults
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config %s: %w: %s", path, ErrUnknownKey, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a runnable single-pool configuration over a 100 day window.
func Default() *Config {
	cfg := &Config{
		Engine: Engine{
			StartTime:   "2025-01-01T00:00:00Z",
			EndTime:     "2025-04-11T00:00:00Z",
			TotalBudget: "100000",
			Admin:       "0x00000000000000000000000000000000000000a1",
			Vault:       "0x00000000000000000000000000000000000000b1",
		},
		Pools: []Pool{{
			Beneficiary:  "0x00000000000000000000000000000000000000c1",
			ExchangeRate: "1",
			Capacity:     "1000000",
		}},
	}
	cfg.applyDefaults()
	return cfg
}

// Write encodes cfg to path, creating parent directories. An existing file is
// left untouched.
func Write(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Engine.Funder) == "" {
		c.Engine.Funder = c.Engine.Admin
	}
	if strings.TrimSpace(c.Logging.Service) == "" {
		c.Logging.Service = "supportd"
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Storage.Backend) == "" {
		c.Storage.Backend = storage.BackendLevelDB
	}
	for i := range c.Pools {
		if strings.TrimSpace(c.Pools[i].ExchangeRate) == "" {
			c.Pools[i].ExchangeRate = "1"
		}
	}
}
