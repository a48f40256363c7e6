package bank

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the account balance.
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	// ErrInvalidAmount is returned for nil or negative amounts.
	ErrInvalidAmount = errors.New("bank: amount must be non-negative")
)

// Ledger is an in-memory principal-currency ledger keyed by 20-byte address.
type Ledger struct {
	mu       sync.Mutex
	balances map[[20]byte]*big.Int
	supply   *big.Int
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[[20]byte]*big.Int), supply: big.NewInt(0)}
}

// Credit adds amount to the owner's balance.
func (l *Ledger) Credit(owner [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.balanceLocked(owner)
	l.balances[owner] = current.Add(current, amount)
	l.supply.Add(l.supply, amount)
	return nil
}

// Debit removes amount from the owner's balance.
func (l *Ledger) Debit(owner [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.balanceLocked(owner)
	if current.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, current, amount)
	}
	l.balances[owner] = current.Sub(current, amount)
	l.supply.Sub(l.supply, amount)
	return nil
}

// BalanceOf returns a copy of the owner's balance.
func (l *Ledger) BalanceOf(owner [20]byte) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceLocked(owner)), nil
}

// Transfer moves amount between two accounts atomically.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	src := l.balanceLocked(from)
	if src.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, src, amount)
	}
	l.balances[from] = src.Sub(src, amount)
	dst := l.balanceLocked(to)
	l.balances[to] = dst.Add(dst, amount)
	return nil
}

// Supply returns the sum of all balances.
func (l *Ledger) Supply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.supply)
}

// Balances returns a copy of every non-zero balance.
func (l *Ledger) Balances() map[[20]byte]*big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[[20]byte]*big.Int, len(l.balances))
	for owner, bal := range l.balances {
		if bal != nil && bal.Sign() != 0 {
			out[owner] = new(big.Int).Set(bal)
		}
	}
	return out
}

func (l *Ledger) balanceLocked(owner [20]byte) *big.Int {
	current, ok := l.balances[owner]
	if !ok || current == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(current)
}
