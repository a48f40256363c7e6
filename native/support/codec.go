package support

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"lukechampine.com/blake3"
)

// legacySnapshotVersion identifies snapshots written by engines that did not
// record per-stake adjusted shares, settled totals or recovery state.
const legacySnapshotVersion uint32 = 0

type snapshotEnvelope struct {
	Version  uint32
	Body     []byte
	Checksum [32]byte
}

type wirePool struct {
	ID                  uint64
	Beneficiary         [20]byte
	ExchangeRate        *uint256.Int
	Redeemable          *uint256.Int
	AdjustedShares      *uint256.Int
	Principal           *uint256.Int
	BeneficiarySnapshot *uint256.Int
	PaidOut             *uint256.Int
}

type wireStake struct {
	Owner          [20]byte
	PoolID         uint64
	Principal      *uint256.Int
	Minted         *uint256.Int
	AdjustedShares *uint256.Int
	Checkpoint     *uint256.Int
	EnteredAt      uint64
	Active         bool
}

type wireSnapshot struct {
	EngineID       string
	ExportedAt     uint64
	StartTime      uint64
	EndTime        uint64
	TotalBudget    *uint256.Int
	BudgetGiven    *uint256.Int
	Accumulator    *uint256.Int
	LastUpdate     uint64
	TotalAdjusted  *uint256.Int
	TotalPrincipal *uint256.Int
	ActiveStakes   uint64
	TotalSettled   *uint256.Int
	Recovered      *uint256.Int
	Disabled       bool
	Funded         bool
	RecoveryDone   bool
	NextPoolID     uint64
	Pools          []wirePool
	Stakes         []wireStake
}

type legacyWirePool struct {
	ID                  uint64
	Beneficiary         [20]byte
	ExchangeRate        *uint256.Int
	Redeemable          *uint256.Int
	AdjustedShares      *uint256.Int
	Principal           *uint256.Int
	BeneficiarySnapshot *uint256.Int
}

type legacyWireStake struct {
	Owner      [20]byte
	PoolID     uint64
	Principal  *uint256.Int
	Minted     *uint256.Int
	Checkpoint *uint256.Int
	EnteredAt  uint64
	Active     bool
}

type legacyWireSnapshot struct {
	EngineID       string
	ExportedAt     uint64
	StartTime      uint64
	EndTime        uint64
	TotalBudget    *uint256.Int
	BudgetGiven    *uint256.Int
	Accumulator    *uint256.Int
	LastUpdate     uint64
	TotalAdjusted  *uint256.Int
	TotalPrincipal *uint256.Int
	ActiveStakes   uint64
	Disabled       bool
	NextPoolID     uint64
	Pools          []legacyWirePool
	Stakes         []legacyWireStake
}

// EncodeSnapshot serialises snap with RLP inside a checksummed envelope.
// Every amount must fit in 256 bits and every timestamp must be non-negative.
func EncodeSnapshot(snap *MigrationSnapshot) ([]byte, error) {
	if snap == nil || snap.State == nil {
		return nil, fmt.Errorf("%w: empty snapshot", ErrInvalidParameter)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSnapshot, snap.Version)
	}
	enc := &wireEncoder{}
	st := snap.State
	wire := wireSnapshot{
		EngineID:       snap.EngineID,
		ExportedAt:     enc.ts("exportedAt", snap.ExportedAt),
		StartTime:      enc.ts("startTime", st.Curve.StartTime),
		EndTime:        enc.ts("endTime", st.Curve.EndTime),
		TotalBudget:    enc.u256("totalBudget", st.Curve.TotalBudget),
		BudgetGiven:    enc.u256("budgetGivenSoFar", st.Curve.BudgetGivenSoFar),
		Accumulator:    enc.u256("accumulatorValue", st.AccumulatorValue),
		LastUpdate:     enc.ts("lastUpdateTime", st.LastUpdateTime),
		TotalAdjusted:  enc.u256("totalAdjustedShares", st.TotalAdjustedShares),
		TotalPrincipal: enc.u256("totalPrincipalStaked", st.TotalPrincipalStaked),
		ActiveStakes:   st.ActiveStakeCount,
		TotalSettled:   enc.u256("totalSettled", st.TotalSettled),
		Recovered:      enc.u256("recoveredBudget", st.RecoveredBudget),
		Disabled:       snap.Disabled,
		Funded:         snap.Funded,
		RecoveryDone:   snap.Recovered,
		NextPoolID:     snap.NextPoolID,
		Pools:          make([]wirePool, 0, len(snap.Pools)),
		Stakes:         make([]wireStake, 0, len(snap.Stakes)),
	}
	for _, pool := range snap.Pools {
		wire.Pools = append(wire.Pools, wirePool{
			ID:                  pool.ID,
			Beneficiary:         pool.Beneficiary,
			ExchangeRate:        enc.u256("exchangeRate", pool.ExchangeRate),
			Redeemable:          enc.u256("redeemableBeneficiaryBalance", pool.RedeemableBeneficiaryBalance),
			AdjustedShares:      enc.u256("poolAdjustedShares", pool.PoolAdjustedShares),
			Principal:           enc.u256("poolPrincipal", pool.PoolPrincipal),
			BeneficiarySnapshot: enc.u256("beneficiaryShareSnapshot", pool.BeneficiaryShareSnapshot),
			PaidOut:             enc.u256("beneficiaryPaidOut", pool.BeneficiaryPaidOut),
		})
	}
	for _, stake := range snap.Stakes {
		wire.Stakes = append(wire.Stakes, wireStake{
			Owner:          stake.Owner,
			PoolID:         stake.PoolID,
			Principal:      enc.u256("principal", stake.Principal),
			Minted:         enc.u256("mintedDerivedUnits", stake.MintedDerivedUnits),
			AdjustedShares: enc.u256("adjustedShares", stake.AdjustedShares),
			Checkpoint:     enc.u256("checkpointAccumulator", stake.CheckpointAccumulator),
			EnteredAt:      enc.ts("enteredAt", stake.EnteredAt),
			Active:         stake.IsActive,
		})
	}
	if enc.err != nil {
		return nil, enc.err
	}
	body, err := rlp.EncodeToBytes(&wire)
	if err != nil {
		return nil, err
	}
	return sealEnvelope(SnapshotVersion, body)
}

// DecodeSnapshot verifies the envelope checksum and decodes the body.
// Legacy version 0 payloads are upgraded to the current schema.
func DecodeSnapshot(data []byte) (*MigrationSnapshot, error) {
	var env snapshotEnvelope
	if err := rlp.DecodeBytes(data, &env); err != nil {
		return nil, fmt.Errorf("decode snapshot envelope: %w", err)
	}
	if sum := blake3.Sum256(env.Body); !bytes.Equal(sum[:], env.Checksum[:]) {
		return nil, ErrSnapshotChecksum
	}
	switch env.Version {
	case SnapshotVersion:
		var wire wireSnapshot
		if err := rlp.DecodeBytes(env.Body, &wire); err != nil {
			return nil, fmt.Errorf("decode snapshot v%d: %w", env.Version, err)
		}
		return wire.snapshot(), nil
	case legacySnapshotVersion:
		var legacy legacyWireSnapshot
		if err := rlp.DecodeBytes(env.Body, &legacy); err != nil {
			return nil, fmt.Errorf("decode snapshot v%d: %w", env.Version, err)
		}
		return legacy.upgrade().snapshot(), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSnapshot, env.Version)
	}
}

// SnapshotDigest returns the BLAKE3 digest of an encoded snapshot.
func SnapshotDigest(data []byte) [32]byte {
	return blake3.Sum256(data)
}

func sealEnvelope(version uint32, body []byte) ([]byte, error) {
	return rlp.EncodeToBytes(&snapshotEnvelope{
		Version:  version,
		Body:     body,
		Checksum: blake3.Sum256(body),
	})
}

func (w *wireSnapshot) snapshot() *MigrationSnapshot {
	snap := &MigrationSnapshot{
		Version:    SnapshotVersion,
		EngineID:   w.EngineID,
		ExportedAt: int64(w.ExportedAt),
		State: &GlobalState{
			Curve: CurveParameters{
				StartTime:        int64(w.StartTime),
				EndTime:          int64(w.EndTime),
				TotalBudget:      toBig(w.TotalBudget),
				BudgetGivenSoFar: toBig(w.BudgetGiven),
			},
			AccumulatorValue:     toBig(w.Accumulator),
			LastUpdateTime:       int64(w.LastUpdate),
			TotalAdjustedShares:  toBig(w.TotalAdjusted),
			TotalPrincipalStaked: toBig(w.TotalPrincipal),
			ActiveStakeCount:     w.ActiveStakes,
			TotalSettled:         toBig(w.TotalSettled),
			RecoveredBudget:      toBig(w.Recovered),
		},
		Disabled:   w.Disabled,
		Funded:     w.Funded,
		Recovered:  w.RecoveryDone,
		NextPoolID: w.NextPoolID,
		Pools:      make([]*Pool, 0, len(w.Pools)),
		Stakes:     make([]*Stake, 0, len(w.Stakes)),
	}
	for _, pool := range w.Pools {
		snap.Pools = append(snap.Pools, &Pool{
			ID:                           pool.ID,
			Beneficiary:                  pool.Beneficiary,
			ExchangeRate:                 toBig(pool.ExchangeRate),
			RedeemableBeneficiaryBalance: toBig(pool.Redeemable),
			PoolAdjustedShares:           toBig(pool.AdjustedShares),
			PoolPrincipal:                toBig(pool.Principal),
			BeneficiaryShareSnapshot:     toBig(pool.BeneficiarySnapshot),
			BeneficiaryPaidOut:           toBig(pool.PaidOut),
		})
	}
	for _, stake := range w.Stakes {
		snap.Stakes = append(snap.Stakes, &Stake{
			Owner:                 stake.Owner,
			PoolID:                stake.PoolID,
			Principal:             toBig(stake.Principal),
			MintedDerivedUnits:    toBig(stake.Minted),
			AdjustedShares:        toBig(stake.AdjustedShares),
			CheckpointAccumulator: toBig(stake.Checkpoint),
			EnteredAt:             int64(stake.EnteredAt),
			IsActive:              stake.Active,
		})
	}
	return snap
}

// upgrade fills the fields legacy engines never tracked: adjusted shares are
// recomputed from principal, everything given so far is treated as settled
// and no beneficiary payouts are recorded.
func (l *legacyWireSnapshot) upgrade() *wireSnapshot {
	out := &wireSnapshot{
		EngineID:       l.EngineID,
		ExportedAt:     l.ExportedAt,
		StartTime:      l.StartTime,
		EndTime:        l.EndTime,
		TotalBudget:    l.TotalBudget,
		BudgetGiven:    l.BudgetGiven,
		Accumulator:    l.Accumulator,
		LastUpdate:     l.LastUpdate,
		TotalAdjusted:  l.TotalAdjusted,
		TotalPrincipal: l.TotalPrincipal,
		ActiveStakes:   l.ActiveStakes,
		TotalSettled:   l.BudgetGiven,
		Recovered:      uint256.NewInt(0),
		Disabled:       l.Disabled,
		Funded:         true,
		NextPoolID:     l.NextPoolID,
		Pools:          make([]wirePool, 0, len(l.Pools)),
		Stakes:         make([]wireStake, 0, len(l.Stakes)),
	}
	for _, pool := range l.Pools {
		out.Pools = append(out.Pools, wirePool{
			ID:                  pool.ID,
			Beneficiary:         pool.Beneficiary,
			ExchangeRate:        pool.ExchangeRate,
			Redeemable:          pool.Redeemable,
			AdjustedShares:      pool.AdjustedShares,
			Principal:           pool.Principal,
			BeneficiarySnapshot: pool.BeneficiarySnapshot,
			PaidOut:             uint256.NewInt(0),
		})
	}
	for _, stake := range l.Stakes {
		shares, _ := uint256.FromBig(AdjustedShares(toBig(stake.Principal)))
		out.Stakes = append(out.Stakes, wireStake{
			Owner:          stake.Owner,
			PoolID:         stake.PoolID,
			Principal:      stake.Principal,
			Minted:         stake.Minted,
			AdjustedShares: shares,
			Checkpoint:     stake.Checkpoint,
			EnteredAt:      stake.EnteredAt,
			Active:         stake.Active,
		})
	}
	return out
}

// wireEncoder converts values to their wire form and keeps the first error.
type wireEncoder struct {
	err error
}

func (w *wireEncoder) u256(field string, v *big.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	if v.Sign() < 0 {
		w.fail(fmt.Errorf("%w: %s is negative", ErrInvalidParameter, field))
		return uint256.NewInt(0)
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		w.fail(fmt.Errorf("%w: %s exceeds 256 bits", ErrInvalidParameter, field))
		return uint256.NewInt(0)
	}
	return out
}

func (w *wireEncoder) ts(field string, v int64) uint64 {
	if v < 0 {
		w.fail(fmt.Errorf("%w: %s is negative", ErrInvalidParameter, field))
		return 0
	}
	return uint64(v)
}

func (w *wireEncoder) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v.ToBig()
}
