package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SupportMetrics exports the staking engine's accounting totals and
// operation outcomes. It satisfies the engine's Observer interface.
type SupportMetrics struct {
	operations   *prometheus.CounterVec
	forfeited    prometheus.Counter
	accumulator  prometheus.Gauge
	budgetGiven  prometheus.Gauge
	settled      prometheus.Gauge
	principal    prometheus.Gauge
	activeStakes prometheus.Gauge
}

var (
	supportOnce     sync.Once
	supportRegistry *SupportMetrics
)

// Support returns the process-wide metrics, registering them with the
// default registry on first use.
func Support() *SupportMetrics {
	supportOnce.Do(func() {
		supportRegistry = NewSupportMetrics()
		supportRegistry.MustRegister(prometheus.DefaultRegisterer)
	})
	return supportRegistry
}

// NewSupportMetrics builds an unregistered set of collectors.
func NewSupportMetrics() *SupportMetrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "supportstake",
			Subsystem: "engine",
			Name:      name,
			Help:      help,
		})
	}
	return &SupportMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supportstake",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Engine operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		forfeited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "supportstake",
			Subsystem: "engine",
			Name:      "forfeited_rewards_total",
			Help:      "Rewards released while no shares were staked.",
		}),
		accumulator:  gauge("accumulator", "Reward-per-share accumulator value."),
		budgetGiven:  gauge("budget_given", "Budget allocated to the accumulator so far."),
		settled:      gauge("settled", "Rewards settled to supporters and beneficiaries."),
		principal:    gauge("principal_staked", "Principal currently staked across all pools."),
		activeStakes: gauge("active_stakes", "Number of active stakes."),
	}
}

// MustRegister registers every collector with reg.
func (m *SupportMetrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.operations, m.forfeited, m.accumulator, m.budgetGiven, m.settled, m.principal, m.activeStakes)
}

func (m *SupportMetrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *SupportMetrics) ObserveForfeit(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.forfeited.Add(toFloat(amount))
}

func (m *SupportMetrics) ObserveTotals(accumulator, budgetGiven, settled, principal *big.Int, activeStakes uint64) {
	if m == nil {
		return
	}
	m.accumulator.Set(toFloat(accumulator))
	m.budgetGiven.Set(toFloat(budgetGiven))
	m.settled.Set(toFloat(settled))
	m.principal.Set(toFloat(principal))
	m.activeStakes.Set(float64(activeStakes))
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
