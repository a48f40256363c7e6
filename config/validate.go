package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"supportstake/storage"
)

var (
	ErrUnknownKey     = errors.New("config: unknown key")
	ErrInvalidAmount  = errors.New("config: invalid amount")
	ErrInvalidAddress = errors.New("config: invalid address")
	ErrInvalidWindow  = errors.New("config: invalid reward window")
	ErrInvalidStorage = errors.New("config: invalid storage backend")
)

// EngineSettings is the parsed form of the Engine section.
type EngineSettings struct {
	StartTime   time.Time
	EndTime     time.Time
	TotalBudget *big.Int
	Admin       [20]byte
	Vault       [20]byte
	Funder      [20]byte
}

// PoolSettings is the parsed form of a Pools entry.
type PoolSettings struct {
	Beneficiary  [20]byte
	ExchangeRate *big.Int
	Capacity     *big.Int
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if _, err := c.EngineSettings(); err != nil {
		return err
	}
	if _, err := c.PoolSettings(); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Backend)) {
	case "", storage.BackendLevelDB, storage.BackendBolt:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStorage, c.Storage.Backend)
	}
}

// EngineSettings parses the Engine section.
func (c *Config) EngineSettings() (EngineSettings, error) {
	var out EngineSettings
	var err error
	e := c.Engine
	if out.StartTime, err = time.Parse(time.RFC3339, e.StartTime); err != nil {
		return out, fmt.Errorf("%w: Engine.StartTime: %v", ErrInvalidWindow, err)
	}
	if out.EndTime, err = time.Parse(time.RFC3339, e.EndTime); err != nil {
		return out, fmt.Errorf("%w: Engine.EndTime: %v", ErrInvalidWindow, err)
	}
	if !out.StartTime.Before(out.EndTime) {
		return out, fmt.Errorf("%w: StartTime must precede EndTime", ErrInvalidWindow)
	}
	if out.StartTime.Unix() < 0 {
		return out, fmt.Errorf("%w: StartTime before the unix epoch", ErrInvalidWindow)
	}
	if out.TotalBudget, err = ParseUnits(e.TotalBudget); err != nil {
		return out, fmt.Errorf("Engine.TotalBudget: %w", err)
	}
	if out.Admin, err = ParseAddress(e.Admin); err != nil {
		return out, fmt.Errorf("Engine.Admin: %w", err)
	}
	if out.Vault, err = ParseAddress(e.Vault); err != nil {
		return out, fmt.Errorf("Engine.Vault: %w", err)
	}
	if out.Funder, err = ParseAddress(e.Funder); err != nil {
		return out, fmt.Errorf("Engine.Funder: %w", err)
	}
	return out, nil
}

// PoolSettings parses the Pools entries in order.
func (c *Config) PoolSettings() ([]PoolSettings, error) {
	out := make([]PoolSettings, 0, len(c.Pools))
	for i, p := range c.Pools {
		var ps PoolSettings
		var err error
		if ps.Beneficiary, err = ParseAddress(p.Beneficiary); err != nil {
			return nil, fmt.Errorf("Pools[%d].Beneficiary: %w", i, err)
		}
		if ps.ExchangeRate, err = ParseUnits(p.ExchangeRate); err != nil {
			return nil, fmt.Errorf("Pools[%d].ExchangeRate: %w", i, err)
		}
		if ps.ExchangeRate.Sign() == 0 {
			return nil, fmt.Errorf("Pools[%d].ExchangeRate: %w: must be positive", i, ErrInvalidAmount)
		}
		if ps.Capacity, err = ParseUnits(p.Capacity); err != nil {
			return nil, fmt.Errorf("Pools[%d].Capacity: %w", i, err)
		}
		out = append(out, ps)
	}
	return out, nil
}
