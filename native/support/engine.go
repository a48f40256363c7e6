package support

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"supportstake/core/events"
	"supportstake/core/types"
)

// RatePrecision scales pool exchange rates: a rate of RatePrecision mints one
// derived unit per principal unit.
var RatePrecision = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// PrincipalLedger is the transferable principal currency the engine moves.
type PrincipalLedger interface {
	Debit(owner [20]byte, amount *big.Int) error
	Credit(owner [20]byte, amount *big.Int) error
	BalanceOf(owner [20]byte) (*big.Int, error)
}

// DerivedUnitLedger issues the per-pool derived claim units.
type DerivedUnitLedger interface {
	Mint(poolID uint64, owner [20]byte, units *big.Int) error
	Burn(poolID uint64, owner [20]byte, units *big.Int) error
	RemainingMintable(poolID uint64) (*big.Int, error)
}

// Observer receives engine telemetry.
type Observer interface {
	ObserveOperation(op string, err error)
	ObserveForfeit(amount *big.Int)
	ObserveTotals(accumulator, budgetGiven, settled, principal *big.Int, activeStakes uint64)
}

type noopObserver struct{}

func (noopObserver) ObserveOperation(string, error)              {}
func (noopObserver) ObserveForfeit(*big.Int)                     {}
func (noopObserver) ObserveTotals(_, _, _, _ *big.Int, _ uint64) {}

// Status is the engine's position in the migration lifecycle.
type Status uint8

const (
	// StatusActive accepts every operation.
	StatusActive Status = iota
	// StatusImporting is a successor engine waiting for a snapshot.
	StatusImporting
	// StatusFrozen rejects mutations; the state may be exported.
	StatusFrozen
	// StatusRetired is permanently read-only.
	StatusRetired
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusImporting:
		return "importing"
	case StatusFrozen:
		return "frozen"
	case StatusRetired:
		return "retired"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Params configures a new engine.
type Params struct {
	// Admin may register pools, disable the engine and recover budget.
	Admin [20]byte
	// Vault is the principal-ledger account holding deposits and the reward reserve.
	Vault       [20]byte
	StartTime   int64
	EndTime     int64
	TotalBudget *big.Int
	Principal   PrincipalLedger
	Units       DerivedUnitLedger
}

func (p Params) validate() error {
	if p.StartTime >= p.EndTime {
		return fmt.Errorf("%w: start time %d must precede end time %d", ErrInvalidParameter, p.StartTime, p.EndTime)
	}
	if p.TotalBudget == nil || p.TotalBudget.Sign() < 0 {
		return fmt.Errorf("%w: total budget must be non-negative", ErrInvalidParameter)
	}
	if isZeroAddress(p.Admin) {
		return fmt.Errorf("%w: admin address required", ErrInvalidParameter)
	}
	if isZeroAddress(p.Vault) {
		return fmt.Errorf("%w: vault address required", ErrInvalidParameter)
	}
	if p.Principal == nil || p.Units == nil {
		return fmt.Errorf("%w: principal and derived unit ledgers required", ErrInvalidParameter)
	}
	return nil
}

// Engine orchestrates deposits, settlements and withdrawals against the
// shared accumulator. Operations are serialised by a single mutex and either
// commit fully or leave no trace.
type Engine struct {
	mu sync.Mutex

	id        string
	admin     [20]byte
	vault     [20]byte
	principal PrincipalLedger
	units     DerivedUnitLedger

	state      *GlobalState
	pools      map[uint64]*Pool
	nextPoolID uint64
	stakes     *StakeLedger

	status    Status
	disabled  bool
	funded    bool
	recovered bool
	imported  bool

	clock    clockwork.Clock
	emitter  events.Emitter
	logger   *slog.Logger
	observer Observer
}

// NewEngine constructs an active engine with an empty ledger.
func NewEngine(params Params) (*Engine, error) {
	return newEngine(params, StatusActive)
}

// NewTargetEngine constructs a successor engine that stays frozen until a
// snapshot has been imported and Activate is called.
func NewTargetEngine(params Params) (*Engine, error) {
	return newEngine(params, StatusImporting)
}

func newEngine(params Params, status Status) (*Engine, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	curveParams := CurveParameters{
		StartTime:        params.StartTime,
		EndTime:          params.EndTime,
		TotalBudget:      copyBigInt(params.TotalBudget),
		BudgetGivenSoFar: big.NewInt(0),
	}
	return &Engine{
		id:         uuid.NewString(),
		admin:      params.Admin,
		vault:      params.Vault,
		principal:  params.Principal,
		units:      params.Units,
		state:      newGlobalState(curveParams),
		pools:      make(map[uint64]*Pool),
		nextPoolID: 1,
		stakes:     NewStakeLedger(),
		status:     status,
		clock:      clockwork.NewRealClock(),
		emitter:    events.NoopEmitter{},
		logger:     slog.Default(),
		observer:   noopObserver{},
	}, nil
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetClock overrides the time source, typically with a fake clock in tests.
func (e *Engine) SetClock(clock clockwork.Clock) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if clock == nil {
		e.clock = clockwork.NewRealClock()
		return
	}
	e.clock = clock
}

// SetLogger configures the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger.With("engine", e.id)
}

// SetObserver configures the telemetry sink.
func (e *Engine) SetObserver(observer Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if observer == nil {
		e.observer = noopObserver{}
		return
	}
	e.observer = observer
}

// ID returns the engine instance identifier.
func (e *Engine) ID() string { return e.id }

// Admin returns the admin address.
func (e *Engine) Admin() [20]byte { return e.admin }

// Vault returns the principal-ledger account holding the engine's funds.
func (e *Engine) Vault() [20]byte { return e.vault }

// Status returns the lifecycle status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Disabled reports whether DisableEngine has been called.
func (e *Engine) Disabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disabled
}

// State returns a copy of the global accounting state.
func (e *Engine) State() *GlobalState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Pool returns a copy of the pool.
func (e *Engine) Pool(id uint64) (*Pool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pool, ok := e.pools[id]
	if !ok {
		return nil, false
	}
	return pool.Clone(), true
}

// Stake returns a copy of the stake record.
func (e *Engine) Stake(owner [20]byte, poolID uint64) (*Stake, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stakes.Get(owner, poolID)
}

// Stakes returns copies of every stake record.
func (e *Engine) Stakes() []*Stake {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stakes.All()
}

func (e *Engine) now() int64 {
	return e.clock.Now().Unix()
}

func (e *Engine) emit(evt *types.Event) {
	if evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) requireWritable() error {
	switch e.status {
	case StatusActive:
		return nil
	case StatusRetired:
		return ErrEngineRetired
	default:
		return fmt.Errorf("%w: status %s", ErrEngineFrozen, e.status)
	}
}

func (e *Engine) requireAdmin(caller [20]byte) error {
	if caller != e.admin {
		return fmt.Errorf("%w: %s is not the admin", ErrUnauthorized, hexAddr(caller))
	}
	return nil
}

func (e *Engine) finish(op string, err error) {
	e.observer.ObserveOperation(op, err)
	if err != nil {
		e.logger.Debug("operation rejected", "op", op, "error", err)
		return
	}
	e.observer.ObserveTotals(e.state.AccumulatorValue, e.state.Curve.BudgetGivenSoFar, e.state.TotalSettled, e.state.TotalPrincipalStaked, e.state.ActiveStakeCount)
}

// pay moves amount from the vault to owner.
func (e *Engine) pay(owner [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if err := e.principal.Debit(e.vault, amount); err != nil {
		return err
	}
	if err := e.principal.Credit(owner, amount); err != nil {
		if rollback := e.principal.Credit(e.vault, amount); rollback != nil {
			e.logger.Error("vault rollback failed", "error", rollback)
		}
		return err
	}
	return nil
}

// collect moves amount from owner into the vault.
func (e *Engine) collect(owner [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if err := e.principal.Debit(owner, amount); err != nil {
		return err
	}
	if err := e.principal.Credit(e.vault, amount); err != nil {
		if rollback := e.principal.Credit(owner, amount); rollback != nil {
			e.logger.Error("owner rollback failed", "error", rollback)
		}
		return err
	}
	return nil
}
