package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[Engine]
StartTime = "2025-01-01T00:00:00Z"
EndTime = "2025-04-11T00:00:00Z"
TotalBudget = "2500.5"
Admin = "0x00000000000000000000000000000000000000a1"
Vault = "0x00000000000000000000000000000000000000b1"

[[Pools]]
Beneficiary = "0x00000000000000000000000000000000000000c1"
Capacity = "1000"

[[Pools]]
Beneficiary = "0x00000000000000000000000000000000000000c2"
ExchangeRate = "2.5"
Capacity = "500"

[Logging]
Env = "test"
File = "logs/supportd.log"

[Storage]
SnapshotDir = "data/snapshots"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	require.Equal(t, "supportd", cfg.Logging.Service)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "test", cfg.Logging.Env)
	require.Equal(t, "data/snapshots", cfg.Storage.SnapshotDir)
	require.Equal(t, "leveldb", cfg.Storage.Backend)
	require.Equal(t, cfg.Engine.Admin, cfg.Engine.Funder)
	require.Equal(t, "1", cfg.Pools[0].ExchangeRate)

	engine, err := cfg.EngineSettings()
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Unix(), engine.StartTime.Unix())
	require.Equal(t, 100*24*time.Hour, engine.EndTime.Sub(engine.StartTime))
	budget, _ := new(big.Int).SetString("2500500000000000000000", 10)
	require.Zero(t, budget.Cmp(engine.TotalBudget))
	require.Equal(t, byte(0xa1), engine.Admin[19])

	pools, err := cfg.PoolSettings()
	require.NoError(t, err)
	require.Len(t, pools, 2)
	rate, _ := new(big.Int).SetString("2500000000000000000", 10)
	require.Zero(t, rate.Cmp(pools[1].ExchangeRate))
	require.Equal(t, byte(0xc2), pools[1].Beneficiary[19])
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, sampleConfig+"\n[Extra]\nFoo = 1\n"))
	require.ErrorIs(t, err, ErrUnknownKey)
	require.ErrorContains(t, err, "Extra.Foo")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		err    error
	}{
		{"reversed window", func(c *Config) { c.Engine.EndTime = c.Engine.StartTime }, ErrInvalidWindow},
		{"bad timestamp", func(c *Config) { c.Engine.StartTime = "yesterday" }, ErrInvalidWindow},
		{"negative budget", func(c *Config) { c.Engine.TotalBudget = "-1" }, ErrInvalidAmount},
		{"too many decimals", func(c *Config) { c.Engine.TotalBudget = "0.0000000000000000001" }, ErrInvalidAmount},
		{"short admin", func(c *Config) { c.Engine.Admin = "0xa1" }, ErrInvalidAddress},
		{"zero vault", func(c *Config) { c.Engine.Vault = "0x0000000000000000000000000000000000000000" }, ErrInvalidAddress},
		{"zero rate", func(c *Config) { c.Pools[0].ExchangeRate = "0" }, ErrInvalidAmount},
		{"missing capacity", func(c *Config) { c.Pools[0].Capacity = "" }, ErrInvalidAmount},
		{"unknown storage backend", func(c *Config) { c.Storage.Backend = "sqlite" }, ErrInvalidStorage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), tc.err)
		})
	}
	require.NoError(t, Default().Validate())
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "engine.toml")
	require.NoError(t, Write(path, Default()))
	require.Error(t, Write(path, Default()))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestParseUnits(t *testing.T) {
	cases := map[string]string{
		"0":      "0",
		"1":      "1000000000000000000",
		" 12.5 ": "12500000000000000000",
		"1e-18":  "1",
	}
	for in, want := range cases {
		got, err := ParseUnits(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got.String(), in)
	}
	_, err := ParseUnits("abc")
	require.ErrorIs(t, err, ErrInvalidAmount)
}
