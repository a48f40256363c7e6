package bank

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

var (
	// ErrCapacityExceeded is returned when a mint would exceed the pool cap.
	ErrCapacityExceeded = errors.New("bank: derived unit capacity exceeded")
	// ErrUnknownPool is returned when a pool has no configured capacity.
	ErrUnknownPool = errors.New("bank: derived unit pool not configured")
)

type unitPool struct {
	capacity *big.Int
	minted   *big.Int
	holders  map[[20]byte]*big.Int
}

// Units is an in-memory derived-claim-unit ledger with one capped balance
// book per pool. Burned units free capacity for later mints.
type Units struct {
	mu    sync.Mutex
	pools map[uint64]*unitPool
}

// NewUnits constructs an empty derived unit ledger.
func NewUnits() *Units {
	return &Units{pools: make(map[uint64]*unitPool)}
}

// SetCapacity configures the maximum outstanding units for poolID.
func (u *Units) SetCapacity(poolID uint64, capacity *big.Int) error {
	if capacity == nil || capacity.Sign() < 0 {
		return ErrInvalidAmount
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	pool := u.poolLocked(poolID, true)
	pool.capacity = new(big.Int).Set(capacity)
	return nil
}

// Mint issues units to owner within the pool's remaining capacity.
func (u *Units) Mint(poolID uint64, owner [20]byte, units *big.Int) error {
	if units == nil || units.Sign() < 0 {
		return ErrInvalidAmount
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	pool := u.poolLocked(poolID, false)
	if pool == nil {
		return fmt.Errorf("%w: %d", ErrUnknownPool, poolID)
	}
	next := new(big.Int).Add(pool.minted, units)
	if next.Cmp(pool.capacity) > 0 {
		return fmt.Errorf("%w: pool %d", ErrCapacityExceeded, poolID)
	}
	pool.minted = next
	pool.holders[owner] = new(big.Int).Add(holding(pool, owner), units)
	return nil
}

// Burn destroys units held by owner.
func (u *Units) Burn(poolID uint64, owner [20]byte, units *big.Int) error {
	if units == nil || units.Sign() < 0 {
		return ErrInvalidAmount
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	pool := u.poolLocked(poolID, false)
	if pool == nil {
		return fmt.Errorf("%w: %d", ErrUnknownPool, poolID)
	}
	held := holding(pool, owner)
	if held.Cmp(units) < 0 {
		return fmt.Errorf("%w: hold %s units, burning %s", ErrInsufficientBalance, held, units)
	}
	pool.holders[owner] = held.Sub(held, units)
	pool.minted = new(big.Int).Sub(pool.minted, units)
	return nil
}

// RemainingMintable returns the capacity still available in poolID.
func (u *Units) RemainingMintable(poolID uint64) (*big.Int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	pool := u.poolLocked(poolID, false)
	if pool == nil {
		return big.NewInt(0), nil
	}
	remaining := new(big.Int).Sub(pool.capacity, pool.minted)
	if remaining.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return remaining, nil
}

// BalanceOf returns the units held by owner in poolID.
func (u *Units) BalanceOf(poolID uint64, owner [20]byte) *big.Int {
	u.mu.Lock()
	defer u.mu.Unlock()
	pool := u.poolLocked(poolID, false)
	if pool == nil {
		return big.NewInt(0)
	}
	return holding(pool, owner)
}

func (u *Units) poolLocked(poolID uint64, create bool) *unitPool {
	pool, ok := u.pools[poolID]
	if !ok && create {
		pool = &unitPool{capacity: big.NewInt(0), minted: big.NewInt(0), holders: make(map[[20]byte]*big.Int)}
		u.pools[poolID] = pool
	}
	return pool
}

func holding(pool *unitPool, owner [20]byte) *big.Int {
	held, ok := pool.holders[owner]
	if !ok || held == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(held)
}
