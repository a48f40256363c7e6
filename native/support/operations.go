package support

import (
	"fmt"
	"math/big"
)

const (
	opDeposit             = "deposit"
	opClaim               = "claim"
	opWithdrawClaimed     = "withdraw_claimed"
	opRedeem              = "redeem"
	opWithdrawBeneficiary = "withdraw_beneficiary"
	opRegisterPool        = "register_pool"
	opFund                = "fund"
	opDisable             = "disable"
	opRecover             = "recover"
)

// Deposit stakes amount of principal from owner into poolID and mints derived
// units at the pool's exchange rate. Any rewards already earned by the stake
// are settled first. The reward reserve must be funded before the first
// deposit.
func (e *Engine) Deposit(owner [20]byte, poolID uint64, amount *big.Int) (result *DepositResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.finish(opDeposit, err) }()

	if err := e.requireWritable(); err != nil {
		return nil, err
	}
	if e.disabled {
		return nil, ErrEngineDisabled
	}
	if !e.funded {
		return nil, ErrNotFunded
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: deposit amount must be positive", ErrInvalidParameter)
	}
	pool, ok := e.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPoolNotFound, poolID)
	}
	minted := unitsForPrincipal(amount, pool.ExchangeRate)
	if minted.Sign() == 0 {
		return nil, fmt.Errorf("%w: deposit %s mints no derived units", ErrInvalidParameter, amount)
	}
	remaining, err := e.units.RemainingMintable(poolID)
	if err != nil {
		return nil, err
	}
	if minted.Cmp(remaining) > 0 {
		return nil, fmt.Errorf("%w: pool %d needs %s units, %s remaining", ErrCapacityExceeded, poolID, minted, remaining)
	}

	cp, err := e.begin(owner, poolID, true)
	if err != nil {
		return nil, err
	}
	if err := e.collect(owner, amount); err != nil {
		return nil, err
	}
	if err := e.units.Mint(poolID, owner, minted); err != nil {
		if refund := e.pay(owner, amount); refund != nil {
			e.logger.Error("deposit refund failed", "owner", hexAddr(owner), "error", refund)
		}
		return nil, err
	}
	cp.deposit(amount, minted)
	cp.commit()

	e.logger.Info("deposit", "owner", hexAddr(owner), "pool", poolID, "amount", amount.String(), "minted", minted.String())
	e.emit(StakeDepositedEvent(cp.stake, amount, minted))
	return &DepositResult{Stake: cp.stake.Clone(), Minted: minted, Settled: cp.settled}, nil
}

// Claim settles the stake's earnings: the supporter portion compounds into
// principal and the beneficiary portion accrues to the pool. A missing or
// inactive stake yields a zero result without error.
func (e *Engine) Claim(owner [20]byte, poolID uint64) (result *ClaimResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.finish(opClaim, err) }()

	if err := e.requireWritable(); err != nil {
		return nil, err
	}
	stake, ok := e.stakes.Get(owner, poolID)
	if _, poolOK := e.pools[poolID]; !poolOK || !ok || !stake.IsActive {
		return &ClaimResult{Settled: zeroSettlement()}, nil
	}
	cp, err := e.begin(owner, poolID, false)
	if err != nil {
		return nil, err
	}
	cp.commit()
	return &ClaimResult{Stake: cp.stake.Clone(), Settled: cp.settled}, nil
}

// WithdrawClaimed settles the stake and pays the freshly settled supporter
// portion out to the owner instead of leaving it compounded.
func (e *Engine) WithdrawClaimed(owner [20]byte, poolID uint64) (result *WithdrawResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.finish(opWithdrawClaimed, err) }()

	if err := e.requireWritable(); err != nil {
		return nil, err
	}
	cp, err := e.begin(owner, poolID, false)
	if err != nil {
		return nil, err
	}
	amount := copyBigInt(cp.settled.Supporter)
	if err := cp.withdraw(amount, big.NewInt(0)); err != nil {
		return nil, err
	}
	if err := e.pay(owner, amount); err != nil {
		return nil, err
	}
	cp.commit()
	if amount.Sign() > 0 {
		e.emit(PrincipalWithdrawnEvent(cp.stake, amount, big.NewInt(0), opWithdrawClaimed))
	}
	return &WithdrawResult{Stake: cp.stake.Clone(), Paid: amount, Burned: big.NewInt(0), Settled: cp.settled}, nil
}

// RedeemDerivedUnits burns units and returns the equivalent principal at the
// pool's exchange rate. Redeeming the stake's last units returns all remaining
// principal, including compounded rewards, and closes the stake.
func (e *Engine) RedeemDerivedUnits(owner [20]byte, poolID uint64, units *big.Int) (result *WithdrawResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.finish(opRedeem, err) }()

	if err := e.requireWritable(); err != nil {
		return nil, err
	}
	if units == nil || units.Sign() <= 0 {
		return nil, fmt.Errorf("%w: units must be positive", ErrInvalidParameter)
	}
	cp, err := e.begin(owner, poolID, false)
	if err != nil {
		return nil, err
	}
	held := cp.stake.MintedDerivedUnits
	if units.Cmp(held) > 0 {
		return nil, fmt.Errorf("%w: holds %s, redeeming %s", ErrInsufficientStake, held, units)
	}
	amount := principalForUnits(units, cp.pool.ExchangeRate)
	if units.Cmp(held) == 0 || amount.Cmp(cp.stake.Principal) > 0 {
		amount = copyBigInt(cp.stake.Principal)
	}
	if err := cp.withdraw(amount, units); err != nil {
		return nil, err
	}
	if err := e.units.Burn(poolID, owner, units); err != nil {
		return nil, err
	}
	if err := e.pay(owner, amount); err != nil {
		if remint := e.units.Mint(poolID, owner, units); remint != nil {
			e.logger.Error("re-mint after failed payout", "owner", hexAddr(owner), "error", remint)
		}
		return nil, err
	}
	cp.commit()

	e.logger.Info("redeem", "owner", hexAddr(owner), "pool", poolID, "units", units.String(), "paid", amount.String(), "active", cp.stake.IsActive)
	e.emit(PrincipalWithdrawnEvent(cp.stake, amount, units, opRedeem))
	return &WithdrawResult{Stake: cp.stake.Clone(), Paid: amount, Burned: copyBigInt(units), Settled: cp.settled}, nil
}

// WithdrawBeneficiaryBalance pays the pool's accrued beneficiary balance to
// the beneficiary. Only the beneficiary may call it.
func (e *Engine) WithdrawBeneficiaryBalance(caller [20]byte, poolID uint64) (paid *big.Int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.finish(opWithdrawBeneficiary, err) }()

	if err := e.requireWritable(); err != nil {
		return nil, err
	}
	pool, ok := e.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPoolNotFound, poolID)
	}
	if caller != pool.Beneficiary {
		return nil, fmt.Errorf("%w: %s is not the beneficiary of pool %d", ErrUnauthorized, hexAddr(caller), poolID)
	}
	amount := copyBigInt(pool.RedeemableBeneficiaryBalance)
	if amount.Sign() == 0 {
		return amount, nil
	}
	if err := e.pay(caller, amount); err != nil {
		return nil, err
	}
	updated := pool.Clone()
	updated.RedeemableBeneficiaryBalance = big.NewInt(0)
	updated.BeneficiaryPaidOut = new(big.Int).Add(copyBigInt(updated.BeneficiaryPaidOut), amount)
	e.pools[poolID] = updated
	e.emit(BeneficiaryPaidEvent(updated, amount))
	return amount, nil
}

// PendingRewards reports what a Claim would settle right now without
// mutating any state.
func (e *Engine) PendingRewards(owner [20]byte, poolID uint64) (Settlement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	stake, ok := e.stakes.Get(owner, poolID)
	if _, poolOK := e.pools[poolID]; !poolOK || !ok || !stake.IsActive {
		return zeroSettlement(), nil
	}
	cp, err := e.begin(owner, poolID, false)
	if err != nil {
		return Settlement{}, err
	}
	return cp.settled, nil
}

func unitsForPrincipal(amount, rate *big.Int) *big.Int {
	out := new(big.Int).Mul(amount, rate)
	return out.Quo(out, RatePrecision)
}

func principalForUnits(units, rate *big.Int) *big.Int {
	if rate == nil || rate.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(units, RatePrecision)
	return out.Quo(out, rate)
}
