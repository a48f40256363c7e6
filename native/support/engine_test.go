package support

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"supportstake/native/bank"
)

func TestEqualSharesSplitFullBudget(t *testing.T) {
	h := newHarness(t, tokens(100))
	h.credit(beneficiaryAddr, tokens(100))
	h.credit(aliceAddr, tokens(100))

	h.deposit(aliceAddr, 1, tokens(100))
	h.advanceTo(100 * day)

	res, err := h.engine.WithdrawClaimed(aliceAddr, 1)
	require.NoError(t, err)
	require.Equal(t, tokens(50), res.Settled.Supporter)
	require.Equal(t, tokens(50), res.Settled.Beneficiary)
	require.Equal(t, tokens(50), res.Paid)
	require.Equal(t, tokens(50), h.balance(aliceAddr))

	paid, err := h.engine.WithdrawBeneficiaryBalance(beneficiaryAddr, 1)
	require.NoError(t, err)
	require.Equal(t, tokens(50), paid)
	require.Equal(t, tokens(150), h.balance(beneficiaryAddr))

	st := h.engine.State()
	require.Equal(t, tokens(100), st.Curve.BudgetGivenSoFar)
	require.Equal(t, tokens(100), st.TotalSettled)
	requireConservation(t, st)
}

func TestLateEntrantEarnsOnlyTail(t *testing.T) {
	h := newHarness(t, tokens(100))
	h.credit(beneficiaryAddr, tokens(100))
	h.credit(aliceAddr, tokens(100))

	h.advanceTo(50 * day)
	h.deposit(aliceAddr, 1, tokens(100))
	h.advanceTo(100 * day)

	settled := h.claim(aliceAddr, 1)
	require.Equal(t, tokensFrac(625, 100), settled.Supporter)
	require.Equal(t, tokensFrac(625, 100), settled.Beneficiary)

	st := h.engine.State()
	require.Equal(t, tokensFrac(125, 10), st.Curve.BudgetGivenSoFar)
	require.Equal(t, tokensFrac(875, 10), st.Unallocated())
	require.Len(t, h.events.OfType(EventTypeRewardForfeited), 1)

	stake, ok := h.engine.Stake(aliceAddr, 1)
	require.True(t, ok)
	require.Equal(t, new(big.Int).Add(tokens(100), tokensFrac(625, 100)), stake.Principal)
	require.Equal(t, windowStart.Add(50*day).Unix(), stake.EnteredAt)
}

func TestSplitFavoursBeneficiaryThroughSqrt(t *testing.T) {
	h := newHarness(t, tokens(100))
	h.credit(beneficiaryAddr, tokens(100))
	h.credit(aliceAddr, tokens(400))

	h.deposit(aliceAddr, 1, tokens(400))
	h.advanceTo(100 * day)
	settled := h.claim(aliceAddr, 1)

	// sqrt(100) / (sqrt(400) + sqrt(100)) = 1/3
	require.InDelta(t, 100.0/3, toFloat(settled.Beneficiary), 1e-6)
	require.Equal(t, tokens(100), settled.Total())
}

func TestClaimTwiceAtSameTimeYieldsNothing(t *testing.T) {
	h := newHarness(t, tokens(100))
	h.credit(beneficiaryAddr, tokens(10))
	h.credit(aliceAddr, tokens(10))
	h.deposit(aliceAddr, 1, tokens(10))

	h.advanceTo(30 * day)
	first := h.claim(aliceAddr, 1)
	require.Positive(t, first.Total().Sign())

	second := h.claim(aliceAddr, 1)
	require.Zero(t, second.Total().Sign())
}

func TestClaimWithoutStakeIsSilent(t *testing.T) {
	h := newHarness(t, tokens(100))
	res, err := h.engine.Claim(bobAddr, 1)
	require.NoError(t, err)
	require.Nil(t, res.Stake)
	require.Zero(t, res.Settled.Total().Sign())

	res, err = h.engine.Claim(bobAddr, 42)
	require.NoError(t, err)
	require.Zero(t, res.Settled.Total().Sign())
}

func TestPendingRewardsDoesNotMutate(t *testing.T) {
	h := newHarness(t, tokens(100))
	h.credit(beneficiaryAddr, tokens(100))
	h.credit(aliceAddr, tokens(100))
	h.deposit(aliceAddr, 1, tokens(100))
	h.advanceTo(100 * day)

	before := h.engine.State()
	pending, err := h.engine.PendingRewards(aliceAddr, 1)
	require.NoError(t, err)
	require.Equal(t, tokens(50), pending.Supporter)
	require.Equal(t, before, h.engine.State())

	require.Equal(t, pending, h.claim(aliceAddr, 1))
}

func TestDepositMintsAtExchangeRate(t *testing.T) {
	h := newHarness(t, tokens(100))
	rate := new(big.Int).Mul(RatePrecision, big.NewInt(2))
	pool, err := h.engine.RegisterPool(adminAddr, otherBenefAddr, rate)
	require.NoError(t, err)
	require.NoError(t, h.units.SetCapacity(pool.ID, tokens(10)))

	h.credit(aliceAddr, tokens(10))
	res := h.deposit(aliceAddr, pool.ID, tokens(4))
	require.Equal(t, tokens(8), res.Minted)
	require.Equal(t, tokens(8), h.units.BalanceOf(pool.ID, aliceAddr))

	_, err = h.engine.Deposit(aliceAddr, pool.ID, tokens(2))
	require.ErrorIs(t, err, ErrCapacityExceeded)
	require.Equal(t, tokens(6), h.balance(aliceAddr))
}

func TestRedeemPartialAndFull(t *testing.T) {
	h := newHarness(t, tokens(100))
	h.credit(beneficiaryAddr, tokens(100))
	h.credit(aliceAddr, tokens(100))
	h.deposit(aliceAddr, 1, tokens(100))

	h.advanceTo(10 * day)
	res, err := h.engine.RedeemDerivedUnits(aliceAddr, 1, tokens(40))
	require.NoError(t, err)
	require.Equal(t, tokens(40), res.Paid)
	require.True(t, res.Stake.IsActive)
	require.Equal(t, tokens(60), res.Stake.MintedDerivedUnits)
	require.Equal(t, uint64(1), h.engine.State().ActiveStakeCount)

	_, err = h.engine.RedeemDerivedUnits(aliceAddr, 1, tokens(61))
	require.ErrorIs(t, err, ErrInsufficientStake)

	h.advanceTo(20 * day)
	res, err = h.engine.RedeemDerivedUnits(aliceAddr, 1, tokens(60))
	require.NoError(t, err)
	require.False(t, res.Stake.IsActive)
	require.Zero(t, res.Stake.Principal.Sign())
	// The final redemption sweeps compounded rewards with the principal.
	require.True(t, res.Paid.Cmp(tokens(60)) > 0)

	st := h.engine.State()
	require.Zero(t, st.ActiveStakeCount)
	require.Zero(t, st.TotalAdjustedShares.Sign())
	require.Zero(t, st.TotalPrincipalStaked.Sign())
	requireConservation(t, st)

	_, err = h.engine.RedeemDerivedUnits(aliceAddr, 1, tokens(1))
	require.ErrorIs(t, err, ErrStakeNotFound)
}

func TestReentryAfterFullExitReactivates(t *testing.T) {
	h := newHarness(t, tokens(100))
	h.credit(aliceAddr, tokens(20))
	h.deposit(aliceAddr, 1, tokens(10))
	_, err := h.engine.RedeemDerivedUnits(aliceAddr, 1, tokens(10))
	require.NoError(t, err)
	require.Zero(t, h.engine.State().ActiveStakeCount)

	h.advanceTo(5 * day)
	res := h.deposit(aliceAddr, 1, tokens(5))
	require.True(t, res.Stake.IsActive)
	require.Equal(t, windowStart.Add(5*day).Unix(), res.Stake.EnteredAt)
	require.Equal(t, uint64(1), h.engine.State().ActiveStakeCount)
}

func TestDepositValidation(t *testing.T) {
	h := newHarness(t, tokens(100))
	h.credit(aliceAddr, tokens(10))

	_, err := h.engine.Deposit(aliceAddr, 1, big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, err = h.engine.Deposit(aliceAddr, 1, nil)
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, err = h.engine.Deposit(aliceAddr, 9, tokens(1))
	require.ErrorIs(t, err, ErrPoolNotFound)
}

func TestDepositPropagatesLedgerErrorsWithoutSideEffects(t *testing.T) {
	h := newHarness(t, tokens(100))
	h.credit(aliceAddr, tokens(5))
	h.credit(bobAddr, tokens(10))
	h.deposit(bobAddr, 1, tokens(10))
	h.advanceTo(10 * day)

	before := h.engine.State()
	_, err := h.engine.Deposit(aliceAddr, 1, tokens(6))
	require.ErrorIs(t, err, bank.ErrInsufficientBalance)
	require.Equal(t, before, h.engine.State())
	_, ok := h.engine.Stake(aliceAddr, 1)
	require.False(t, ok)
	require.Equal(t, tokens(5), h.balance(aliceAddr))
}

func TestDisableBlocksDepositsOnly(t *testing.T) {
	h := newHarness(t, tokens(100))
	h.credit(beneficiaryAddr, tokens(10))
	h.credit(aliceAddr, tokens(20))
	h.deposit(aliceAddr, 1, tokens(10))

	require.ErrorIs(t, h.engine.DisableEngine(aliceAddr), ErrUnauthorized)
	require.NoError(t, h.engine.DisableEngine(adminAddr))
	require.True(t, h.engine.Disabled())

	_, err := h.engine.Deposit(aliceAddr, 1, tokens(1))
	require.ErrorIs(t, err, ErrEngineDisabled)

	h.advanceTo(10 * day)
	require.Positive(t, h.claim(aliceAddr, 1).Total().Sign())
	_, err = h.engine.WithdrawClaimed(aliceAddr, 1)
	require.NoError(t, err)
	_, err = h.engine.RedeemDerivedUnits(aliceAddr, 1, tokens(10))
	require.NoError(t, err)
}

func TestBeneficiaryWithdrawalRequiresBeneficiary(t *testing.T) {
	h := newHarness(t, tokens(100))
	h.credit(aliceAddr, tokens(10))
	h.deposit(aliceAddr, 1, tokens(10))
	h.advanceTo(10 * day)
	h.claim(aliceAddr, 1)

	_, err := h.engine.WithdrawBeneficiaryBalance(aliceAddr, 1)
	require.ErrorIs(t, err, ErrUnauthorized)

	pool, ok := h.engine.Pool(1)
	require.True(t, ok)
	require.Positive(t, pool.RedeemableBeneficiaryBalance.Sign())

	paid, err := h.engine.WithdrawBeneficiaryBalance(beneficiaryAddr, 1)
	require.NoError(t, err)
	require.Equal(t, pool.RedeemableBeneficiaryBalance, paid)

	paid, err = h.engine.WithdrawBeneficiaryBalance(beneficiaryAddr, 1)
	require.NoError(t, err)
	require.Zero(t, paid.Sign())
}

func TestAdminRecoverUnallocated(t *testing.T) {
	h := newHarness(t, tokens(100))
	h.credit(beneficiaryAddr, tokens(100))
	h.credit(aliceAddr, tokens(100))

	h.advanceTo(50 * day)
	h.deposit(aliceAddr, 1, tokens(100))

	_, err := h.engine.AdminRecoverUnallocated(adminAddr)
	require.ErrorIs(t, err, ErrEngineNotDisabled)
	require.NoError(t, h.engine.DisableEngine(adminAddr))
	_, err = h.engine.AdminRecoverUnallocated(aliceAddr)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.engine.AdminRecoverUnallocated(adminAddr)
	require.ErrorIs(t, err, ErrActiveStakesRemain)

	h.advanceTo(100 * day)
	_, err = h.engine.RedeemDerivedUnits(aliceAddr, 1, tokens(100))
	require.NoError(t, err)

	recovered, err := h.engine.AdminRecoverUnallocated(adminAddr)
	require.NoError(t, err)
	require.Equal(t, tokensFrac(875, 10), recovered)
	require.Equal(t, tokensFrac(875, 10), h.balance(adminAddr))

	_, err = h.engine.AdminRecoverUnallocated(adminAddr)
	require.ErrorIs(t, err, ErrAlreadyRecovered)

	st := h.engine.State()
	require.Zero(t, st.Unallocated().Sign())
	requireConservation(t, st)
	require.Len(t, h.events.OfType(EventTypeUnallocatedRecovered), 1)
}

func TestRegisterPoolValidation(t *testing.T) {
	h := newHarness(t, tokens(1))
	_, err := h.engine.RegisterPool(aliceAddr, otherBenefAddr, RatePrecision)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.engine.RegisterPool(adminAddr, otherBenefAddr, big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, err = h.engine.RegisterPool(adminAddr, [20]byte{}, RatePrecision)
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestNewEngineValidation(t *testing.T) {
	h := &harness{t: t, ledger: bank.NewLedger(), units: bank.NewUnits(), budget: tokens(1)}
	params := h.params(vaultAddr)
	params.EndTime = params.StartTime
	_, err := NewEngine(params)
	require.ErrorIs(t, err, ErrInvalidParameter)

	params = h.params(vaultAddr)
	params.Units = nil
	_, err = NewEngine(params)
	require.ErrorIs(t, err, ErrInvalidParameter)

	params = h.params([20]byte{})
	_, err = NewEngine(params)
	require.True(t, errors.Is(err, ErrInvalidParameter))
}

func TestFundRewardsOnce(t *testing.T) {
	h := newHarness(t, tokens(10))
	require.ErrorIs(t, h.engine.FundRewards(adminAddr), ErrAlreadyFunded)
	require.Equal(t, tokens(10), h.balance(vaultAddr))
}

func TestDepositRequiresFundedReserve(t *testing.T) {
	h := newUnfundedHarness(t, tokens(100))
	h.credit(beneficiaryAddr, tokens(100))
	h.credit(aliceAddr, tokens(100))
	h.credit(bobAddr, tokens(100))

	_, err := h.engine.Deposit(aliceAddr, 1, tokens(100))
	require.ErrorIs(t, err, ErrNotFunded)
	require.Equal(t, tokens(100), h.balance(aliceAddr))
	require.Zero(t, h.balance(vaultAddr).Sign())
	require.Zero(t, h.units.BalanceOf(1, aliceAddr).Sign())
	_, ok := h.engine.Stake(aliceAddr, 1)
	require.False(t, ok)

	h.credit(adminAddr, tokens(100))
	require.NoError(t, h.engine.FundRewards(adminAddr))
	h.deposit(aliceAddr, 1, tokens(100))
	h.deposit(bobAddr, 1, tokens(100))
	h.advanceTo(100 * day)

	for _, owner := range [][20]byte{aliceAddr, bobAddr} {
		res, err := h.engine.RedeemDerivedUnits(owner, 1, tokens(100))
		require.NoError(t, err)
		require.True(t, res.Paid.Cmp(tokens(100)) > 0, "paid %s", res.Paid)
		require.False(t, res.Stake.IsActive)
	}
	_, err = h.engine.WithdrawBeneficiaryBalance(beneficiaryAddr, 1)
	require.NoError(t, err)
	requireVaultBacked(t, h, vaultAddr)
}

func TestBeneficiaryWithdrawalDoesNotShiftSplit(t *testing.T) {
	h := newHarness(t, tokens(100))
	h.credit(beneficiaryAddr, tokens(100))
	h.credit(aliceAddr, tokens(100))
	h.credit(bobAddr, tokens(100))

	h.deposit(aliceAddr, 1, tokens(100))
	h.deposit(bobAddr, 1, tokens(100))
	h.advanceTo(100 * day)

	first, err := h.engine.WithdrawClaimed(aliceAddr, 1)
	require.NoError(t, err)
	paid, err := h.engine.WithdrawBeneficiaryBalance(beneficiaryAddr, 1)
	require.NoError(t, err)
	require.Equal(t, first.Settled.Beneficiary, paid)
	require.Equal(t, new(big.Int).Add(tokens(100), paid), h.balance(beneficiaryAddr))

	second, err := h.engine.WithdrawClaimed(bobAddr, 1)
	require.NoError(t, err)
	require.Equal(t, first.Settled.Supporter, second.Settled.Supporter)
	require.Equal(t, first.Settled.Beneficiary, second.Settled.Beneficiary)

	pool, ok := h.engine.Pool(1)
	require.True(t, ok)
	require.Equal(t, tokens(100), pool.BeneficiaryShareSnapshot)
	require.Equal(t, paid, pool.BeneficiaryPaidOut)
	requireVaultBacked(t, h, vaultAddr)
}

func TestBeneficiaryPayoutsExcludedAcrossPools(t *testing.T) {
	h := newHarness(t, tokens(100))
	second, err := h.engine.RegisterPool(adminAddr, beneficiaryAddr, RatePrecision)
	require.NoError(t, err)
	require.NoError(t, h.units.SetCapacity(second.ID, tokens(1_000)))
	h.credit(beneficiaryAddr, tokens(100))
	h.credit(aliceAddr, tokens(100))
	h.credit(bobAddr, tokens(100))

	h.deposit(aliceAddr, 1, tokens(100))
	h.deposit(bobAddr, second.ID, tokens(100))
	h.advanceTo(100 * day)

	first, err := h.engine.WithdrawClaimed(aliceAddr, 1)
	require.NoError(t, err)
	_, err = h.engine.WithdrawBeneficiaryBalance(beneficiaryAddr, 1)
	require.NoError(t, err)

	other, err := h.engine.WithdrawClaimed(bobAddr, second.ID)
	require.NoError(t, err)
	require.Equal(t, first.Settled.Supporter, other.Settled.Supporter)
	require.Equal(t, first.Settled.Beneficiary, other.Settled.Beneficiary)
}

func TestEngineBuiltBeforeWindowAccruesFromStart(t *testing.T) {
	h := newHarness(t, tokens(100))
	params := h.params(successorVault)
	params.StartTime = windowStart.Add(10 * day).Unix()
	params.EndTime = windowStart.Add(110 * day).Unix()
	early, err := NewEngine(params)
	require.NoError(t, err)
	h.attach(early)
	h.credit(adminAddr, tokens(100))
	require.NoError(t, early.FundRewards(adminAddr))
	_, err = early.RegisterPool(adminAddr, beneficiaryAddr, RatePrecision)
	require.NoError(t, err)
	h.credit(beneficiaryAddr, tokens(10))
	h.credit(aliceAddr, tokens(10))

	_, err = early.Deposit(aliceAddr, 1, tokens(10))
	require.NoError(t, err)
	h.advanceTo(5 * day)
	res, err := early.Claim(aliceAddr, 1)
	require.NoError(t, err)
	require.Zero(t, res.Settled.Total().Sign())

	st := early.State()
	require.Equal(t, params.StartTime, st.LastUpdateTime)
	require.Zero(t, st.Curve.BudgetGivenSoFar.Sign())
	require.Empty(t, h.events.OfType(EventTypeRewardForfeited))

	// halfway through the window F(0.5) = 0.875
	h.advanceTo(60 * day)
	res, err = early.Claim(aliceAddr, 1)
	require.NoError(t, err)
	require.InDelta(t, 87.5, toFloat(res.Settled.Total()), 1e-6)
	st = early.State()
	require.Equal(t, windowStart.Add(60*day).Unix(), st.LastUpdateTime)
	require.Equal(t, tokensFrac(875, 10), st.Curve.BudgetGivenSoFar)
}

func toFloat(v *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), new(big.Float).SetInt(Precision)).Float64()
	return f
}
