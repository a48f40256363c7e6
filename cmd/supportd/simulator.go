package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"supportstake/config"
	"supportstake/core/events"
	"supportstake/native/bank"
	"supportstake/native/support"
)

// Simulator drives an engine through a scenario on a fake clock.
type Simulator struct {
	cfg      *config.Config
	settings config.EngineSettings
	ledger   *bank.Ledger
	units    *bank.Units
	clock    *clockwork.FakeClock
	engine   *support.Engine
	events   *events.Recorder
	store    support.SnapshotStore
	observer support.Observer
	logger   *slog.Logger

	migrations []*support.MigrationReport
}

// StepResult records the outcome of one scenario step.
type StepResult struct {
	Index  int    `json:"index"`
	At     string `json:"at"`
	Op     string `json:"op"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report is the simulator's JSON output.
type Report struct {
	Engine     string                     `json:"engine"`
	Status     string                     `json:"status"`
	Steps      []StepResult               `json:"steps"`
	State      *support.GlobalState       `json:"state"`
	Pools      []*support.Pool            `json:"pools"`
	Stakes     []*support.Stake           `json:"stakes"`
	Balances   map[string]string          `json:"balances"`
	Events     map[string]int             `json:"events"`
	Migrations []*support.MigrationReport `json:"migrations,omitempty"`
}

// NewSimulator builds a funded engine with the configured pools. The reward
// budget is minted to the funder before funding.
func NewSimulator(cfg *config.Config, store support.SnapshotStore, observer support.Observer, logger *slog.Logger) (*Simulator, error) {
	settings, err := cfg.EngineSettings()
	if err != nil {
		return nil, err
	}
	pools, err := cfg.PoolSettings()
	if err != nil {
		return nil, err
	}
	s := &Simulator{
		cfg:      cfg,
		settings: settings,
		ledger:   bank.NewLedger(),
		units:    bank.NewUnits(),
		clock:    clockwork.NewFakeClockAt(settings.StartTime),
		events:   &events.Recorder{},
		store:    store,
		observer: observer,
		logger:   logger,
	}
	engine, err := support.NewEngine(s.params(settings.Vault))
	if err != nil {
		return nil, err
	}
	s.attach(engine)
	s.engine = engine

	if err := s.ledger.Credit(settings.Funder, settings.TotalBudget); err != nil {
		return nil, err
	}
	if err := engine.FundRewards(settings.Funder); err != nil {
		return nil, fmt.Errorf("fund rewards: %w", err)
	}
	for i, p := range pools {
		pool, err := engine.RegisterPool(settings.Admin, p.Beneficiary, p.ExchangeRate)
		if err != nil {
			return nil, fmt.Errorf("register pool %d: %w", i, err)
		}
		if err := s.units.SetCapacity(pool.ID, p.Capacity); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Simulator) params(vault [20]byte) support.Params {
	return support.Params{
		Admin:       s.settings.Admin,
		Vault:       vault,
		StartTime:   s.settings.StartTime.Unix(),
		EndTime:     s.settings.EndTime.Unix(),
		TotalBudget: s.settings.TotalBudget,
		Principal:   s.ledger,
		Units:       s.units,
	}
}

func (s *Simulator) attach(engine *support.Engine) {
	engine.SetClock(s.clock)
	engine.SetEmitter(s.events)
	engine.SetObserver(s.observer)
	engine.SetLogger(s.logger)
}

// Seed credits the scenario balances.
func (s *Simulator) Seed(balances map[string]string) error {
	owners := make([]string, 0, len(balances))
	for owner := range balances {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	for _, owner := range owners {
		addr, err := config.ParseAddress(owner)
		if err != nil {
			return fmt.Errorf("balance %s: %w", owner, err)
		}
		amount, err := config.ParseUnits(balances[owner])
		if err != nil {
			return fmt.Errorf("balance %s: %w", owner, err)
		}
		if err := s.ledger.Credit(addr, amount); err != nil {
			return err
		}
	}
	return nil
}

// Run executes every step and stops at the first unexpected outcome.
func (s *Simulator) Run(ctx context.Context, sc *Scenario) ([]StepResult, error) {
	if err := s.Seed(sc.Balances); err != nil {
		return nil, err
	}
	results := make([]StepResult, 0, len(sc.Steps))
	for i, step := range sc.Steps {
		at, err := resolveTime(step.At, s.settings.StartTime)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i, err)
		}
		if at.Before(s.clock.Now()) {
			return results, fmt.Errorf("step %d: %s is before the current time %s", i, at.Format(time.RFC3339), s.clock.Now().Format(time.RFC3339))
		}
		s.clock.Advance(at.Sub(s.clock.Now()))

		out, opErr := s.apply(ctx, step)
		res := StepResult{Index: i, At: at.UTC().Format(time.RFC3339), Op: step.Op, Result: out}
		switch {
		case opErr != nil && step.ExpectError != "" && strings.Contains(opErr.Error(), step.ExpectError):
			res.Error = opErr.Error()
		case opErr != nil:
			return results, fmt.Errorf("step %d (%s): %w", i, step.Op, opErr)
		case step.ExpectError != "":
			return results, fmt.Errorf("step %d (%s): expected error %q", i, step.Op, step.ExpectError)
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Simulator) apply(ctx context.Context, step Step) (any, error) {
	var owner [20]byte
	if step.Owner != "" {
		addr, err := config.ParseAddress(step.Owner)
		if err != nil {
			return nil, fmt.Errorf("owner: %w", err)
		}
		owner = addr
	}
	switch step.Op {
	case "deposit":
		amount, err := parseAmount(step)
		if err != nil {
			return nil, err
		}
		return s.engine.Deposit(owner, step.Pool, amount)
	case "claim":
		return s.engine.Claim(owner, step.Pool)
	case "withdraw_claimed":
		return s.engine.WithdrawClaimed(owner, step.Pool)
	case "redeem":
		amount, err := parseAmount(step)
		if err != nil {
			return nil, err
		}
		return s.engine.RedeemDerivedUnits(owner, step.Pool, amount)
	case "withdraw_beneficiary":
		paid, err := s.engine.WithdrawBeneficiaryBalance(owner, step.Pool)
		if err != nil {
			return nil, err
		}
		return map[string]string{"paid": paid.String()}, nil
	case "disable":
		return nil, s.engine.DisableEngine(owner)
	case "recover":
		amount, err := s.engine.AdminRecoverUnallocated(owner)
		if err != nil {
			return nil, err
		}
		return map[string]string{"recovered": amount.String()}, nil
	case "freeze":
		return nil, s.engine.Freeze()
	case "migrate":
		return s.migrate(ctx, step)
	default:
		return nil, fmt.Errorf("%w %q", errUnknownOp, step.Op)
	}
}

func (s *Simulator) migrate(ctx context.Context, step Step) (*support.MigrationReport, error) {
	vault, err := config.ParseAddress(step.Vault)
	if err != nil {
		return nil, fmt.Errorf("migrate vault: %w", err)
	}
	target, err := support.NewTargetEngine(s.params(vault))
	if err != nil {
		return nil, err
	}
	s.attach(target)
	adapter, err := support.NewMigrationAdapter(s.engine, target, s.ledger, s.store)
	if err != nil {
		return nil, err
	}
	adapter.SetLogger(s.logger)
	report, err := adapter.Migrate(ctx)
	if err != nil {
		return nil, err
	}
	s.engine = target
	s.migrations = append(s.migrations, report)
	return report, nil
}

// Report summarises the current engine and ledger state.
func (s *Simulator) Report(steps []StepResult) *Report {
	rep := &Report{
		Engine:     s.engine.ID(),
		Status:     s.engine.Status().String(),
		Steps:      steps,
		State:      s.engine.State(),
		Stakes:     s.engine.Stakes(),
		Balances:   map[string]string{},
		Events:     map[string]int{},
		Migrations: s.migrations,
	}
	for id := uint64(1); ; id++ {
		pool, ok := s.engine.Pool(id)
		if !ok {
			break
		}
		rep.Pools = append(rep.Pools, pool)
	}
	for owner, bal := range s.ledger.Balances() {
		rep.Balances[hexAddress(owner)] = bal.String()
	}
	for _, evt := range s.events.Events() {
		rep.Events[evt.Type]++
	}
	return rep
}

func hexAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}
