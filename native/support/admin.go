package support

import (
	"fmt"
	"math/big"
)

// RegisterPool creates a pool for beneficiary with the given derived unit
// exchange rate (scaled by RatePrecision).
func (e *Engine) RegisterPool(caller [20]byte, beneficiary [20]byte, exchangeRate *big.Int) (pool *Pool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.finish(opRegisterPool, err) }()

	if err := e.requireWritable(); err != nil {
		return nil, err
	}
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	if isZeroAddress(beneficiary) {
		return nil, fmt.Errorf("%w: beneficiary address required", ErrInvalidParameter)
	}
	if exchangeRate == nil || exchangeRate.Sign() <= 0 {
		return nil, fmt.Errorf("%w: exchange rate must be positive", ErrInvalidParameter)
	}
	pool = newPool(e.nextPoolID, beneficiary, exchangeRate)
	e.pools[pool.ID] = pool
	e.nextPoolID++
	e.logger.Info("pool registered", "pool", pool.ID, "beneficiary", hexAddr(beneficiary), "rate", exchangeRate.String())
	e.emit(PoolRegisteredEvent(pool))
	return pool.Clone(), nil
}

// FundRewards moves the full reward budget from the funder into the vault.
func (e *Engine) FundRewards(from [20]byte) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.finish(opFund, err) }()

	if err := e.requireWritable(); err != nil {
		return err
	}
	if e.funded {
		return ErrAlreadyFunded
	}
	if err := e.collect(from, e.state.Curve.TotalBudget); err != nil {
		return err
	}
	e.funded = true
	e.logger.Info("reward reserve funded", "from", hexAddr(from), "amount", e.state.Curve.TotalBudget.String())
	return nil
}

// DisableEngine permanently blocks new deposits. Claims and withdrawals stay
// available.
func (e *Engine) DisableEngine(caller [20]byte) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.finish(opDisable, err) }()

	if err := e.requireWritable(); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if e.disabled {
		return nil
	}
	e.disabled = true
	e.logger.Info("engine disabled")
	e.emit(EngineLifecycleEvent(e.id, "disabled"))
	return nil
}

// AdminRecoverUnallocated returns the budget never allocated to the
// accumulator to the admin. The engine must be disabled with no active stakes
// left, otherwise unsettled rewards would be orphaned.
func (e *Engine) AdminRecoverUnallocated(caller [20]byte) (amount *big.Int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.finish(opRecover, err) }()

	if err := e.requireWritable(); err != nil {
		return nil, err
	}
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	if !e.disabled {
		return nil, ErrEngineNotDisabled
	}
	if e.state.ActiveStakeCount > 0 {
		return nil, fmt.Errorf("%w: %d", ErrActiveStakesRemain, e.state.ActiveStakeCount)
	}
	if e.recovered {
		return nil, ErrAlreadyRecovered
	}
	staged := e.state.Clone()
	_, forfeited := Accumulator{state: staged}.Advance(e.now())
	amount = staged.Unallocated()
	if err := e.pay(caller, amount); err != nil {
		return nil, err
	}
	staged.RecoveredBudget = new(big.Int).Add(staged.RecoveredBudget, amount)
	e.state = staged
	e.recovered = true
	if forfeited.Sign() > 0 {
		e.observer.ObserveForfeit(forfeited)
	}
	e.logger.Info("unallocated budget recovered", "amount", amount.String())
	e.emit(UnallocatedRecoveredEvent(caller, amount))
	return amount, nil
}
