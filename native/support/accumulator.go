package support

import (
	"math/big"
)

// Precision scales the reward-per-share accumulator.
var Precision = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Accumulator advances the global reward-per-share counter along the reward
// curve. It operates on the GlobalState it wraps and never reads the clock.
type Accumulator struct {
	state *GlobalState
}

// Advance moves the accumulator to min(now, end). Rewards released while no
// adjusted shares exist are forfeited: lastUpdateTime moves forward but the
// slice is neither added to the accumulator nor counted as given.
func (a Accumulator) Advance(now int64) (allocated, forfeited *big.Int) {
	allocated, forfeited = big.NewInt(0), big.NewInt(0)
	s := a.state
	target := now
	if target > s.Curve.EndTime {
		target = s.Curve.EndTime
	}
	if target <= s.LastUpdateTime {
		return
	}
	delta := s.Curve.Curve().Reward(s.LastUpdateTime, target)
	s.LastUpdateTime = target
	if delta.Sign() == 0 {
		return
	}
	if s.TotalAdjustedShares == nil || s.TotalAdjustedShares.Sign() == 0 {
		forfeited = delta
		return
	}
	// given + recovered never exceeds the budget.
	room := new(big.Int).Sub(s.Curve.TotalBudget, s.Curve.BudgetGivenSoFar)
	room.Sub(room, s.RecoveredBudget)
	if delta.Cmp(room) > 0 {
		delta = room
	}
	if delta.Sign() <= 0 {
		return big.NewInt(0), forfeited
	}
	increment := new(big.Int).Mul(delta, Precision)
	increment.Quo(increment, s.TotalAdjustedShares)
	s.AccumulatorValue = new(big.Int).Add(s.AccumulatorValue, increment)
	s.Curve.BudgetGivenSoFar = new(big.Int).Add(s.Curve.BudgetGivenSoFar, delta)
	return delta, forfeited
}

// Earned returns the rewards accrued by adjustedShares since checkpoint.
func (a Accumulator) Earned(checkpoint, adjustedShares *big.Int) *big.Int {
	if adjustedShares == nil || adjustedShares.Sign() == 0 {
		return big.NewInt(0)
	}
	diff := new(big.Int).Sub(a.state.AccumulatorValue, copyBigInt(checkpoint))
	if diff.Sign() <= 0 {
		return big.NewInt(0)
	}
	diff.Mul(diff, adjustedShares)
	return diff.Quo(diff, Precision)
}

// Value returns a copy of the accumulator value.
func (a Accumulator) Value() *big.Int { return copyBigInt(a.state.AccumulatorValue) }
