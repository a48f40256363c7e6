package support

import (
	"math/big"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"supportstake/core/events"
	"supportstake/native/bank"
)

const day = 24 * time.Hour

var (
	windowStart = time.Unix(1_700_000_000, 0)

	adminAddr       = [20]byte{0xa1}
	vaultAddr       = [20]byte{0xb1}
	successorVault  = [20]byte{0xb2}
	beneficiaryAddr = [20]byte{0xc1}
	otherBenefAddr  = [20]byte{0xc2}
	aliceAddr       = [20]byte{0xd1}
	bobAddr         = [20]byte{0xd2}
	carolAddr       = [20]byte{0xd3}
)

type fakeClock interface {
	clockwork.Clock
	Advance(time.Duration)
}

type harness struct {
	t      *testing.T
	clock  fakeClock
	ledger *bank.Ledger
	units  *bank.Units
	engine *Engine
	events *events.Recorder
	budget *big.Int
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Precision)
}

func tokensFrac(num, denom int64) *big.Int {
	out := tokens(num)
	return out.Quo(out, big.NewInt(denom))
}

func (h *harness) params(vault [20]byte) Params {
	return Params{
		Admin:       adminAddr,
		Vault:       vault,
		StartTime:   windowStart.Unix(),
		EndTime:     windowStart.Add(100 * day).Unix(),
		TotalBudget: h.budget,
		Principal:   h.ledger,
		Units:       h.units,
	}
}

// newHarness builds a funded engine over a 100-day window with one pool for
// beneficiaryAddr at a 1:1 exchange rate.
func newHarness(t *testing.T, budget *big.Int) *harness {
	t.Helper()
	h := newUnfundedHarness(t, budget)
	h.credit(adminAddr, budget)
	require.NoError(t, h.engine.FundRewards(adminAddr))
	return h
}

// newUnfundedHarness is newHarness without FundRewards.
func newUnfundedHarness(t *testing.T, budget *big.Int) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		clock:  clockwork.NewFakeClockAt(windowStart),
		ledger: bank.NewLedger(),
		units:  bank.NewUnits(),
		events: &events.Recorder{},
		budget: budget,
	}
	engine, err := NewEngine(h.params(vaultAddr))
	require.NoError(t, err)
	h.attach(engine)
	h.engine = engine

	pool, err := engine.RegisterPool(adminAddr, beneficiaryAddr, RatePrecision)
	require.NoError(t, err)
	require.Equal(t, uint64(1), pool.ID)
	require.NoError(t, h.units.SetCapacity(pool.ID, tokens(1_000_000)))
	return h
}

func (h *harness) attach(engine *Engine) {
	engine.SetClock(h.clock)
	engine.SetEmitter(h.events)
}

func (h *harness) credit(owner [20]byte, amount *big.Int) {
	h.t.Helper()
	require.NoError(h.t, h.ledger.Credit(owner, amount))
}

func (h *harness) balance(owner [20]byte) *big.Int {
	h.t.Helper()
	bal, err := h.ledger.BalanceOf(owner)
	require.NoError(h.t, err)
	return bal
}

func (h *harness) advanceTo(offset time.Duration) {
	h.t.Helper()
	target := windowStart.Add(offset)
	now := h.clock.Now()
	require.False(h.t, target.Before(now), "clock cannot move backwards")
	h.clock.Advance(target.Sub(now))
}

func (h *harness) deposit(owner [20]byte, poolID uint64, amount *big.Int) *DepositResult {
	h.t.Helper()
	res, err := h.engine.Deposit(owner, poolID, amount)
	require.NoError(h.t, err)
	return res
}

func (h *harness) claim(owner [20]byte, poolID uint64) Settlement {
	h.t.Helper()
	res, err := h.engine.Claim(owner, poolID)
	require.NoError(h.t, err)
	return res.Settled
}

// requireConservation checks the budget accounting invariants on state.
func requireConservation(t *testing.T, st *GlobalState) {
	t.Helper()
	committed := new(big.Int).Add(st.Curve.BudgetGivenSoFar, st.RecoveredBudget)
	require.True(t, committed.Cmp(st.Curve.TotalBudget) <= 0, "given %s + recovered %s > budget %s", st.Curve.BudgetGivenSoFar, st.RecoveredBudget, st.Curve.TotalBudget)
	require.True(t, st.TotalSettled.Cmp(st.Curve.BudgetGivenSoFar) <= 0, "settled %s > given %s", st.TotalSettled, st.Curve.BudgetGivenSoFar)
}
