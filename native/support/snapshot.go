package support

import (
	"fmt"
	"math/big"
)

// SnapshotVersion is the canonical MigrationSnapshot schema version. Every
// engine version exports and imports this schema rather than talking to
// another engine's internals.
const SnapshotVersion uint32 = 1

// MigrationSnapshot is an immutable copy of an engine's accounting taken from
// a frozen engine.
type MigrationSnapshot struct {
	Version    uint32       `json:"version"`
	EngineID   string       `json:"engineId"`
	ExportedAt int64        `json:"exportedAt"`
	State      *GlobalState `json:"state"`
	Disabled   bool         `json:"disabled"`
	Funded     bool         `json:"funded"`
	Recovered  bool         `json:"recovered"`
	NextPoolID uint64       `json:"nextPoolId"`
	Pools      []*Pool      `json:"pools"`
	Stakes     []*Stake     `json:"stakes"`
}

// Clone returns a deep copy of the snapshot.
func (s *MigrationSnapshot) Clone() *MigrationSnapshot {
	if s == nil {
		return nil
	}
	clone := *s
	clone.State = s.State.Clone()
	clone.Pools = make([]*Pool, len(s.Pools))
	for i, pool := range s.Pools {
		clone.Pools[i] = pool.Clone()
	}
	clone.Stakes = make([]*Stake, len(s.Stakes))
	for i, stake := range s.Stakes {
		clone.Stakes[i] = stake.Clone()
	}
	return &clone
}

// Freeze stops the engine from accepting mutations so its state can be
// exported.
func (e *Engine) Freeze() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusActive {
		return fmt.Errorf("%w: cannot freeze from %s", ErrInvalidTransition, e.status)
	}
	e.status = StatusFrozen
	e.logger.Info("engine frozen")
	e.emit(EngineLifecycleEvent(e.id, "frozen"))
	return nil
}

// Retire makes a frozen engine permanently read-only.
func (e *Engine) Retire() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusFrozen {
		return fmt.Errorf("%w: cannot retire from %s", ErrInvalidTransition, e.status)
	}
	e.status = StatusRetired
	e.logger.Info("engine retired")
	e.emit(EngineLifecycleEvent(e.id, "retired"))
	return nil
}

// Activate makes a successor engine authoritative once a snapshot has been
// imported.
func (e *Engine) Activate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusImporting || !e.imported {
		return fmt.Errorf("%w: cannot activate from %s (imported=%t)", ErrInvalidTransition, e.status, e.imported)
	}
	e.status = StatusActive
	e.logger.Info("engine activated")
	e.emit(EngineLifecycleEvent(e.id, "activated"))
	return nil
}

// ExportSnapshot copies the full accounting state. The engine must be frozen
// or retired so the snapshot cannot go stale.
func (e *Engine) ExportSnapshot() (*MigrationSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusFrozen && e.status != StatusRetired {
		return nil, fmt.Errorf("%w: export requires a frozen engine, status %s", ErrInvalidTransition, e.status)
	}
	snap := &MigrationSnapshot{
		Version:    SnapshotVersion,
		EngineID:   e.id,
		ExportedAt: e.now(),
		State:      e.state.Clone(),
		Disabled:   e.disabled,
		Funded:     e.funded,
		Recovered:  e.recovered,
		NextPoolID: e.nextPoolID,
		Pools:      make([]*Pool, 0, len(e.pools)),
		Stakes:     e.stakes.All(),
	}
	for id := uint64(1); id < e.nextPoolID; id++ {
		if pool, ok := e.pools[id]; ok {
			snap.Pools = append(snap.Pools, pool.Clone())
		}
	}
	return snap, nil
}

// ImportSnapshot loads a snapshot into an empty successor engine. The
// snapshot is validated first; on any inconsistency nothing is applied.
func (e *Engine) ImportSnapshot(snap *MigrationSnapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusImporting || e.imported {
		return fmt.Errorf("%w: import requires a fresh importing engine, status %s", ErrInvalidTransition, e.status)
	}
	if err := ValidateSnapshot(snap, e.state.Curve); err != nil {
		return err
	}
	snap = snap.Clone()

	pools := make(map[uint64]*Pool, len(snap.Pools))
	for _, pool := range snap.Pools {
		pools[pool.ID] = pool
	}
	stakes := NewStakeLedger()
	for _, stake := range snap.Stakes {
		stakes.Put(stake)
	}
	e.state = snap.State
	e.pools = pools
	e.stakes = stakes
	e.nextPoolID = snap.NextPoolID
	e.disabled = snap.Disabled
	e.funded = snap.Funded
	e.recovered = snap.Recovered
	e.imported = true

	e.logger.Info("snapshot imported",
		"source", snap.EngineID,
		"pools", len(snap.Pools),
		"stakes", len(snap.Stakes),
		"accumulator", snap.State.AccumulatorValue.String())
	e.emit(EngineLifecycleEvent(e.id, "imported"))
	return nil
}

// ValidateSnapshot checks the internal consistency of snap and that it was
// taken from an engine running the same curve as expected.
func ValidateSnapshot(snap *MigrationSnapshot, expected CurveParameters) error {
	if snap == nil || snap.State == nil {
		return fmt.Errorf("%w: empty snapshot", ErrMigrationInvariant)
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedSnapshot, snap.Version)
	}
	st := snap.State
	for name, v := range map[string]*big.Int{
		"totalBudget":          st.Curve.TotalBudget,
		"budgetGivenSoFar":     st.Curve.BudgetGivenSoFar,
		"accumulatorValue":     st.AccumulatorValue,
		"totalAdjustedShares":  st.TotalAdjustedShares,
		"totalPrincipalStaked": st.TotalPrincipalStaked,
		"totalSettled":         st.TotalSettled,
		"recoveredBudget":      st.RecoveredBudget,
	} {
		if v == nil || v.Sign() < 0 {
			return invariantf("%s missing or negative", name)
		}
	}
	if st.Curve.StartTime != expected.StartTime || st.Curve.EndTime != expected.EndTime ||
		st.Curve.TotalBudget.Cmp(copyBigInt(expected.TotalBudget)) != 0 {
		return invariantf("curve [%d,%d] budget %s does not match target [%d,%d] budget %s",
			st.Curve.StartTime, st.Curve.EndTime, st.Curve.TotalBudget,
			expected.StartTime, expected.EndTime, copyBigInt(expected.TotalBudget))
	}
	committed := new(big.Int).Add(st.Curve.BudgetGivenSoFar, st.RecoveredBudget)
	if committed.Cmp(st.Curve.TotalBudget) > 0 {
		return invariantf("given %s plus recovered %s exceeds budget %s", st.Curve.BudgetGivenSoFar, st.RecoveredBudget, st.Curve.TotalBudget)
	}
	if st.TotalSettled.Cmp(st.Curve.BudgetGivenSoFar) > 0 {
		return invariantf("settled %s exceeds given %s", st.TotalSettled, st.Curve.BudgetGivenSoFar)
	}
	if st.LastUpdateTime < st.Curve.StartTime || st.LastUpdateTime > st.Curve.EndTime {
		return invariantf("last update %d outside window", st.LastUpdateTime)
	}
	if snap.NextPoolID == 0 {
		return invariantf("next pool id must be at least 1")
	}
	if len(snap.Stakes) > 0 && !snap.Funded {
		return invariantf("%d stakes recorded against an unfunded reward reserve", len(snap.Stakes))
	}

	poolPrincipal := make(map[uint64]*big.Int, len(snap.Pools))
	poolShares := make(map[uint64]*big.Int, len(snap.Pools))
	for _, pool := range snap.Pools {
		if pool == nil {
			return invariantf("nil pool record")
		}
		if pool.ID == 0 || pool.ID >= snap.NextPoolID {
			return invariantf("pool id %d outside [1,%d)", pool.ID, snap.NextPoolID)
		}
		if _, dup := poolPrincipal[pool.ID]; dup {
			return invariantf("duplicate pool %d", pool.ID)
		}
		if pool.ExchangeRate == nil || pool.ExchangeRate.Sign() <= 0 {
			return invariantf("pool %d exchange rate must be positive", pool.ID)
		}
		if isZeroAddress(pool.Beneficiary) {
			return invariantf("pool %d has no beneficiary", pool.ID)
		}
		for _, v := range []*big.Int{pool.RedeemableBeneficiaryBalance, pool.PoolAdjustedShares, pool.PoolPrincipal, pool.BeneficiaryShareSnapshot, pool.BeneficiaryPaidOut} {
			if v == nil || v.Sign() < 0 {
				return invariantf("pool %d has missing or negative totals", pool.ID)
			}
		}
		poolPrincipal[pool.ID] = big.NewInt(0)
		poolShares[pool.ID] = big.NewInt(0)
	}

	totalPrincipal := big.NewInt(0)
	totalShares := big.NewInt(0)
	var active uint64
	seen := make(map[stakeKey]struct{}, len(snap.Stakes))
	for _, stake := range snap.Stakes {
		if stake == nil {
			return invariantf("nil stake record")
		}
		key := stakeKey{pool: stake.PoolID, owner: stake.Owner}
		if _, dup := seen[key]; dup {
			return invariantf("duplicate stake %s in pool %d", hexAddr(stake.Owner), stake.PoolID)
		}
		seen[key] = struct{}{}
		if _, ok := poolPrincipal[stake.PoolID]; !ok {
			return invariantf("stake %s references unknown pool %d", hexAddr(stake.Owner), stake.PoolID)
		}
		for _, v := range []*big.Int{stake.Principal, stake.MintedDerivedUnits, stake.AdjustedShares, stake.CheckpointAccumulator} {
			if v == nil || v.Sign() < 0 {
				return invariantf("stake %s has missing or negative fields", hexAddr(stake.Owner))
			}
		}
		if stake.AdjustedShares.Cmp(AdjustedShares(stake.Principal)) != 0 {
			return invariantf("stake %s adjusted shares %s != isqrt(principal %s)", hexAddr(stake.Owner), stake.AdjustedShares, stake.Principal)
		}
		if stake.CheckpointAccumulator.Cmp(st.AccumulatorValue) > 0 {
			return invariantf("stake %s checkpoint ahead of accumulator", hexAddr(stake.Owner))
		}
		holding := stake.Principal.Sign() > 0 || stake.MintedDerivedUnits.Sign() > 0
		if holding != stake.IsActive {
			return invariantf("stake %s active flag %t inconsistent with balances", hexAddr(stake.Owner), stake.IsActive)
		}
		if stake.IsActive {
			active++
		}
		poolPrincipal[stake.PoolID].Add(poolPrincipal[stake.PoolID], stake.Principal)
		poolShares[stake.PoolID].Add(poolShares[stake.PoolID], stake.AdjustedShares)
		totalPrincipal.Add(totalPrincipal, stake.Principal)
		totalShares.Add(totalShares, stake.AdjustedShares)
	}
	for _, pool := range snap.Pools {
		if pool.PoolPrincipal.Cmp(poolPrincipal[pool.ID]) != 0 {
			return invariantf("pool %d principal %s != stake sum %s", pool.ID, pool.PoolPrincipal, poolPrincipal[pool.ID])
		}
		if pool.PoolAdjustedShares.Cmp(poolShares[pool.ID]) != 0 {
			return invariantf("pool %d adjusted shares %s != stake sum %s", pool.ID, pool.PoolAdjustedShares, poolShares[pool.ID])
		}
	}
	if totalPrincipal.Cmp(st.TotalPrincipalStaked) != 0 {
		return invariantf("sum of stake principal %s != total principal staked %s", totalPrincipal, st.TotalPrincipalStaked)
	}
	if totalShares.Cmp(st.TotalAdjustedShares) != 0 {
		return invariantf("sum of adjusted shares %s != total adjusted shares %s", totalShares, st.TotalAdjustedShares)
	}
	if active != st.ActiveStakeCount {
		return invariantf("active stakes %d != active stake count %d", active, st.ActiveStakeCount)
	}
	return nil
}

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMigrationInvariant, fmt.Sprintf(format, args...))
}
