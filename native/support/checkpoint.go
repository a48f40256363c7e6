package support

import (
	"fmt"
	"math/big"

	"supportstake/native/curve"
)

// checkpoint is a staged view of one stake after the accumulator has been
// advanced and the stake settled. Mutations apply to the staged copies only;
// nothing reaches the engine until commit. The type is only obtainable from
// Engine.begin, which keeps "advance and settle before mutate" mechanical.
type checkpoint struct {
	engine *Engine
	now    int64

	state *GlobalState
	pool  *Pool
	stake *Stake

	fresh     bool
	allocated *big.Int
	forfeited *big.Int
	settled   Settlement
}

// begin advances the accumulator to now and settles the stake for owner in
// poolID. When create is set a missing or inactive stake is opened at the
// current accumulator value; otherwise it yields ErrStakeNotFound.
func (e *Engine) begin(owner [20]byte, poolID uint64, create bool) (*checkpoint, error) {
	pool, ok := e.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPoolNotFound, poolID)
	}
	stake, ok := e.stakes.Get(owner, poolID)
	if !create && (!ok || !stake.IsActive) {
		return nil, fmt.Errorf("%w: pool %d owner %s", ErrStakeNotFound, poolID, hexAddr(owner))
	}

	cp := &checkpoint{
		engine:  e,
		now:     e.now(),
		state:   e.state.Clone(),
		pool:    pool.Clone(),
		settled: zeroSettlement(),
	}
	acc := Accumulator{state: cp.state}
	cp.allocated, cp.forfeited = acc.Advance(cp.now)

	if !ok {
		cp.fresh = true
		stake = &Stake{
			Owner:                 owner,
			PoolID:                poolID,
			Principal:             big.NewInt(0),
			MintedDerivedUnits:    big.NewInt(0),
			AdjustedShares:        big.NewInt(0),
			CheckpointAccumulator: acc.Value(),
			EnteredAt:             cp.now,
		}
	}
	cp.stake = stake

	earned := acc.Earned(stake.CheckpointAccumulator, stake.AdjustedShares)
	if earned.Sign() > 0 {
		if err := cp.settle(earned); err != nil {
			return nil, err
		}
	}
	stake.CheckpointAccumulator = acc.Value()
	return cp, nil
}

func (cp *checkpoint) settle(earned *big.Int) error {
	beneficiaryShares, err := cp.beneficiaryWeight()
	if err != nil {
		return err
	}
	supporter, beneficiary, err := curve.Split(earned, cp.pool.PoolPrincipal, beneficiaryShares)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	cp.pool.BeneficiaryShareSnapshot = copyBigInt(beneficiaryShares)
	cp.pool.RedeemableBeneficiaryBalance = new(big.Int).Add(cp.pool.RedeemableBeneficiaryBalance, beneficiary)
	cp.shares().reweight(cp.stake, new(big.Int).Add(cp.stake.Principal, supporter))
	cp.state.TotalSettled = new(big.Int).Add(cp.state.TotalSettled, earned)
	cp.settled = Settlement{Supporter: supporter, Beneficiary: beneficiary}
	return nil
}

// beneficiaryWeight is the beneficiary's principal balance less every payout
// the engine has made to it through WithdrawBeneficiaryBalance, across all of
// its pools. Settling identical stakes at the same instant therefore splits
// the same way whether or not the beneficiary withdrew in between.
func (cp *checkpoint) beneficiaryWeight() (*big.Int, error) {
	balance, err := cp.engine.principal.BalanceOf(cp.pool.Beneficiary)
	if err != nil {
		return nil, err
	}
	weight := copyBigInt(balance)
	weight.Sub(weight, copyBigInt(cp.pool.BeneficiaryPaidOut))
	for id, pool := range cp.engine.pools {
		if id == cp.pool.ID || pool.Beneficiary != cp.pool.Beneficiary {
			continue
		}
		weight.Sub(weight, copyBigInt(pool.BeneficiaryPaidOut))
	}
	if weight.Sign() < 0 {
		weight.SetInt64(0)
	}
	return weight, nil
}

func (cp *checkpoint) shares() shareLedger {
	return shareLedger{state: cp.state, pool: cp.pool}
}

// deposit adds principal and minted units, activating the stake if needed.
func (cp *checkpoint) deposit(amount, minted *big.Int) {
	if !cp.stake.IsActive {
		cp.stake.IsActive = true
		cp.stake.EnteredAt = cp.now
		cp.state.ActiveStakeCount++
	}
	cp.shares().reweight(cp.stake, new(big.Int).Add(cp.stake.Principal, amount))
	cp.stake.MintedDerivedUnits = new(big.Int).Add(cp.stake.MintedDerivedUnits, minted)
}

// withdraw removes principal and burned units. A stake left with neither is
// deactivated.
func (cp *checkpoint) withdraw(amount, burned *big.Int) error {
	principal := new(big.Int).Sub(cp.stake.Principal, amount)
	units := new(big.Int).Sub(cp.stake.MintedDerivedUnits, burned)
	if principal.Sign() < 0 || units.Sign() < 0 {
		return fmt.Errorf("%w: withdrawal exceeds stake", ErrInsufficientStake)
	}
	cp.shares().reweight(cp.stake, principal)
	cp.stake.MintedDerivedUnits = units
	if principal.Sign() == 0 && units.Sign() == 0 && cp.stake.IsActive {
		cp.stake.IsActive = false
		cp.state.ActiveStakeCount--
	}
	return nil
}

// commit publishes the staged state to the engine and emits settlement
// events.
func (cp *checkpoint) commit() {
	e := cp.engine
	e.state = cp.state
	e.pools[cp.pool.ID] = cp.pool
	if !cp.fresh || cp.stake.IsActive {
		e.stakes.Put(cp.stake)
	}
	if cp.forfeited.Sign() > 0 {
		e.observer.ObserveForfeit(cp.forfeited)
		e.logger.Warn("reward slice forfeited with no active shares", "amount", cp.forfeited.String(), "until", cp.state.LastUpdateTime)
		e.emit(RewardForfeitedEvent(cp.forfeited, cp.state.LastUpdateTime))
	}
	if cp.settled.Total().Sign() > 0 {
		e.logger.Debug("rewards settled",
			"owner", hexAddr(cp.stake.Owner),
			"pool", cp.stake.PoolID,
			"supporter", cp.settled.Supporter.String(),
			"beneficiary", cp.settled.Beneficiary.String())
		e.emit(RewardsSettledEvent(cp.stake, cp.settled, cp.state.AccumulatorValue))
	}
}
