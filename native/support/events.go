package support

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"supportstake/core/events"
	"supportstake/core/types"
)

const (
	// EventTypeStakeDeposited is emitted when a supporter deposits into a pool.
	EventTypeStakeDeposited = "support.stake.deposited"
	// EventTypeRewardsSettled is emitted when a checkpoint settles a non-zero reward.
	EventTypeRewardsSettled = "support.rewards.settled"
	// EventTypePrincipalWithdrawn is emitted when principal leaves a stake.
	EventTypePrincipalWithdrawn = "support.stake.withdrawn"
	// EventTypeBeneficiaryPaid is emitted when a beneficiary withdraws its balance.
	EventTypeBeneficiaryPaid = "support.beneficiary.paid"
	// EventTypePoolRegistered is emitted when a pool is created.
	EventTypePoolRegistered = "support.pool.registered"
	// EventTypeRewardForfeited is emitted when a reward slice elapses with no shares.
	EventTypeRewardForfeited = "support.rewards.forfeited"
	// EventTypeEngineLifecycle is emitted on disable, freeze, import, activate and retire.
	EventTypeEngineLifecycle = "support.engine.lifecycle"
	// EventTypeUnallocatedRecovered is emitted when the admin recovers unallocated budget.
	EventTypeUnallocatedRecovered = "support.budget.recovered"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func poolIDString(id uint64) string { return strconv.FormatUint(id, 10) }

// StakeDepositedEvent captures a deposit and the units minted for it.
func StakeDepositedEvent(stake *Stake, amount, minted *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeStakeDeposited,
		Attributes: map[string]string{
			"owner":     hexAddr(stake.Owner),
			"pool":      poolIDString(stake.PoolID),
			"amount":    amount.String(),
			"minted":    minted.String(),
			"principal": stake.Principal.String(),
			"shares":    stake.AdjustedShares.String(),
		},
	}
}

// RewardsSettledEvent captures the split of a settled reward.
func RewardsSettledEvent(stake *Stake, settled Settlement, accumulator *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRewardsSettled,
		Attributes: map[string]string{
			"owner":       hexAddr(stake.Owner),
			"pool":        poolIDString(stake.PoolID),
			"supporter":   settled.Supporter.String(),
			"beneficiary": settled.Beneficiary.String(),
			"accumulator": accumulator.String(),
		},
	}
}

// PrincipalWithdrawnEvent captures principal paid out of a stake.
func PrincipalWithdrawnEvent(stake *Stake, paid, burned *big.Int, reason string) *types.Event {
	return &types.Event{
		Type: EventTypePrincipalWithdrawn,
		Attributes: map[string]string{
			"owner":     hexAddr(stake.Owner),
			"pool":      poolIDString(stake.PoolID),
			"paid":      paid.String(),
			"burned":    burned.String(),
			"principal": stake.Principal.String(),
			"active":    strconv.FormatBool(stake.IsActive),
			"reason":    reason,
		},
	}
}

// BeneficiaryPaidEvent captures a beneficiary balance withdrawal.
func BeneficiaryPaidEvent(pool *Pool, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeBeneficiaryPaid,
		Attributes: map[string]string{
			"pool":        poolIDString(pool.ID),
			"beneficiary": hexAddr(pool.Beneficiary),
			"amount":      amount.String(),
		},
	}
}

// PoolRegisteredEvent captures pool creation.
func PoolRegisteredEvent(pool *Pool) *types.Event {
	return &types.Event{
		Type: EventTypePoolRegistered,
		Attributes: map[string]string{
			"pool":         poolIDString(pool.ID),
			"beneficiary":  hexAddr(pool.Beneficiary),
			"exchangeRate": pool.ExchangeRate.String(),
		},
	}
}

// RewardForfeitedEvent captures a reward slice that elapsed with no shares.
func RewardForfeitedEvent(amount *big.Int, until int64) *types.Event {
	return &types.Event{
		Type: EventTypeRewardForfeited,
		Attributes: map[string]string{
			"amount": amount.String(),
			"until":  strconv.FormatInt(until, 10),
		},
	}
}

// EngineLifecycleEvent captures a lifecycle transition of the engine.
func EngineLifecycleEvent(engineID string, transition string) *types.Event {
	return &types.Event{
		Type: EventTypeEngineLifecycle,
		Attributes: map[string]string{
			"engine":     engineID,
			"transition": transition,
		},
	}
}

// UnallocatedRecoveredEvent captures the admin budget recovery.
func UnallocatedRecoveredEvent(admin [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeUnallocatedRecovered,
		Attributes: map[string]string{
			"admin":  hexAddr(admin),
			"amount": amount.String(),
		},
	}
}
