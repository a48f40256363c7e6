package support

import (
	"math/big"

	"supportstake/native/curve"
)

// CurveParameters bounds the reward window and tracks how much of the budget
// has been allocated to the accumulator.
type CurveParameters struct {
	StartTime        int64    `json:"startTime"`
	EndTime          int64    `json:"endTime"`
	TotalBudget      *big.Int `json:"totalBudget"`
	BudgetGivenSoFar *big.Int `json:"budgetGivenSoFar"`
}

// Curve returns the reward curve described by the parameters.
func (p CurveParameters) Curve() curve.Curve {
	return curve.Curve{Start: p.StartTime, End: p.EndTime, Budget: copyBigInt(p.TotalBudget)}
}

// Clone returns a deep copy of the parameters.
func (p CurveParameters) Clone() CurveParameters {
	return CurveParameters{
		StartTime:        p.StartTime,
		EndTime:          p.EndTime,
		TotalBudget:      copyBigInt(p.TotalBudget),
		BudgetGivenSoFar: copyBigInt(p.BudgetGivenSoFar),
	}
}

// GlobalState is the engine-wide accumulator and share accounting.
type GlobalState struct {
	Curve                CurveParameters `json:"curve"`
	AccumulatorValue     *big.Int        `json:"accumulatorValue"`
	LastUpdateTime       int64           `json:"lastUpdateTime"`
	TotalAdjustedShares  *big.Int        `json:"totalAdjustedShares"`
	TotalPrincipalStaked *big.Int        `json:"totalPrincipalStaked"`
	ActiveStakeCount     uint64          `json:"activeStakeCount"`
	// TotalSettled is the sum of every supporter and beneficiary portion
	// settled so far. It never exceeds Curve.BudgetGivenSoFar; the difference
	// is accumulator rounding dust.
	TotalSettled *big.Int `json:"totalSettled"`
	// RecoveredBudget is the unallocated budget returned to the admin.
	RecoveredBudget *big.Int `json:"recoveredBudget"`
}

// newGlobalState starts LastUpdateTime at the window start. An engine built
// before the window opens therefore holds a LastUpdateTime ahead of the clock
// until the start passes; Advance is a no-op up to that point and the curve
// emits nothing before the start, so the bound that holds is
// LastUpdateTime <= max(StartTime, min(now, EndTime)).
func newGlobalState(params CurveParameters) *GlobalState {
	return &GlobalState{
		Curve:                params.Clone(),
		AccumulatorValue:     big.NewInt(0),
		LastUpdateTime:       params.StartTime,
		TotalAdjustedShares:  big.NewInt(0),
		TotalPrincipalStaked: big.NewInt(0),
		TotalSettled:         big.NewInt(0),
		RecoveredBudget:      big.NewInt(0),
	}
}

// Clone returns a deep copy of the state.
func (s *GlobalState) Clone() *GlobalState {
	if s == nil {
		return nil
	}
	return &GlobalState{
		Curve:                s.Curve.Clone(),
		AccumulatorValue:     copyBigInt(s.AccumulatorValue),
		LastUpdateTime:       s.LastUpdateTime,
		TotalAdjustedShares:  copyBigInt(s.TotalAdjustedShares),
		TotalPrincipalStaked: copyBigInt(s.TotalPrincipalStaked),
		ActiveStakeCount:     s.ActiveStakeCount,
		TotalSettled:         copyBigInt(s.TotalSettled),
		RecoveredBudget:      copyBigInt(s.RecoveredBudget),
	}
}

// Unallocated returns the part of the budget neither allocated nor recovered.
func (s *GlobalState) Unallocated() *big.Int {
	out := copyBigInt(s.Curve.TotalBudget)
	out.Sub(out, s.Curve.BudgetGivenSoFar)
	out.Sub(out, s.RecoveredBudget)
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

// Pool is a reward bucket tied to a single beneficiary.
type Pool struct {
	ID          uint64   `json:"id"`
	Beneficiary [20]byte `json:"beneficiary"`
	// ExchangeRate is the number of derived units minted per principal unit,
	// scaled by RatePrecision.
	ExchangeRate                 *big.Int `json:"exchangeRate"`
	RedeemableBeneficiaryBalance *big.Int `json:"redeemableBeneficiaryBalance"`
	PoolAdjustedShares           *big.Int `json:"poolAdjustedShares"`
	PoolPrincipal                *big.Int `json:"poolPrincipal"`
	BeneficiaryShareSnapshot     *big.Int `json:"beneficiaryShareSnapshot"`
	// BeneficiaryPaidOut is everything WithdrawBeneficiaryBalance has paid
	// from this pool. It is excluded from the beneficiary's split weight.
	BeneficiaryPaidOut *big.Int `json:"beneficiaryPaidOut"`
}

func newPool(id uint64, beneficiary [20]byte, rate *big.Int) *Pool {
	return &Pool{
		ID:                           id,
		Beneficiary:                  beneficiary,
		ExchangeRate:                 copyBigInt(rate),
		RedeemableBeneficiaryBalance: big.NewInt(0),
		PoolAdjustedShares:           big.NewInt(0),
		PoolPrincipal:                big.NewInt(0),
		BeneficiaryShareSnapshot:     big.NewInt(0),
		BeneficiaryPaidOut:           big.NewInt(0),
	}
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.ExchangeRate = copyBigInt(p.ExchangeRate)
	clone.RedeemableBeneficiaryBalance = copyBigInt(p.RedeemableBeneficiaryBalance)
	clone.PoolAdjustedShares = copyBigInt(p.PoolAdjustedShares)
	clone.PoolPrincipal = copyBigInt(p.PoolPrincipal)
	clone.BeneficiaryShareSnapshot = copyBigInt(p.BeneficiaryShareSnapshot)
	clone.BeneficiaryPaidOut = copyBigInt(p.BeneficiaryPaidOut)
	return &clone
}

// Stake is a supporter position in a pool, checkpointed against the
// accumulator.
type Stake struct {
	Owner                 [20]byte `json:"owner"`
	PoolID                uint64   `json:"poolId"`
	Principal             *big.Int `json:"principal"`
	MintedDerivedUnits    *big.Int `json:"mintedDerivedUnits"`
	AdjustedShares        *big.Int `json:"adjustedShares"`
	CheckpointAccumulator *big.Int `json:"checkpointAccumulator"`
	EnteredAt             int64    `json:"enteredAt"`
	IsActive              bool     `json:"isActive"`
}

// Clone returns a deep copy of the stake.
func (s *Stake) Clone() *Stake {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Principal = copyBigInt(s.Principal)
	clone.MintedDerivedUnits = copyBigInt(s.MintedDerivedUnits)
	clone.AdjustedShares = copyBigInt(s.AdjustedShares)
	clone.CheckpointAccumulator = copyBigInt(s.CheckpointAccumulator)
	return &clone
}

// Settlement is the outcome of settling a stake against the accumulator.
type Settlement struct {
	Supporter   *big.Int `json:"supporter"`
	Beneficiary *big.Int `json:"beneficiary"`
}

// Total returns the sum of both portions.
func (s Settlement) Total() *big.Int {
	out := copyBigInt(s.Supporter)
	return out.Add(out, copyBigInt(s.Beneficiary))
}

// DepositResult describes a completed deposit.
type DepositResult struct {
	Stake   *Stake     `json:"stake"`
	Minted  *big.Int   `json:"minted"`
	Settled Settlement `json:"settled"`
}

// ClaimResult describes a completed claim.
type ClaimResult struct {
	Stake   *Stake     `json:"stake,omitempty"`
	Settled Settlement `json:"settled"`
}

// WithdrawResult describes a completed principal withdrawal.
type WithdrawResult struct {
	Stake   *Stake     `json:"stake"`
	Paid    *big.Int   `json:"paid"`
	Burned  *big.Int   `json:"burned"`
	Settled Settlement `json:"settled"`
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func zeroSettlement() Settlement {
	return Settlement{Supporter: big.NewInt(0), Beneficiary: big.NewInt(0)}
}

func isZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}
