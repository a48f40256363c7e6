package config

// Engine describes the reward window, budget and privileged accounts.
type Engine struct {
	// StartTime and EndTime are RFC3339 timestamps bounding the reward curve.
	StartTime string `toml:"StartTime"`
	EndTime   string `toml:"EndTime"`
	// TotalBudget is a decimal token amount.
	TotalBudget string `toml:"TotalBudget"`
	Admin       string `toml:"Admin"`
	Vault       string `toml:"Vault"`
	// Funder supplies the reward budget. Defaults to Admin.
	Funder string `toml:"Funder,omitempty"`
}

// Pool registers a beneficiary at startup.
type Pool struct {
	Beneficiary string `toml:"Beneficiary"`
	// ExchangeRate is the number of derived units minted per principal unit.
	ExchangeRate string `toml:"ExchangeRate"`
	// Capacity caps the derived units the pool may have outstanding.
	Capacity string `toml:"Capacity"`
}

type Logging struct {
	Service string `toml:"Service"`
	Env     string `toml:"Env,omitempty"`
	Level   string `toml:"Level"`
	// File enables a rotating log file next to stderr output.
	File string `toml:"File,omitempty"`
}

type Storage struct {
	// Backend is "leveldb" or "bolt".
	Backend string `toml:"Backend,omitempty"`
	// SnapshotDir holds the snapshot store. Empty keeps snapshots in memory.
	SnapshotDir string `toml:"SnapshotDir,omitempty"`
}
