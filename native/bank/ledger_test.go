package bank

import (
	"errors"
	"math/big"
	"testing"
)

func TestLedgerDebitCredit(t *testing.T) {
	ledger := NewLedger()
	alice := [20]byte{1}
	if err := ledger.Credit(alice, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Debit(alice, big.NewInt(101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := ledger.Debit(alice, big.NewInt(40)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	bal, _ := ledger.BalanceOf(alice)
	if bal.Int64() != 60 {
		t.Fatalf("balance: got %s want 60", bal)
	}
	if ledger.Supply().Int64() != 60 {
		t.Fatalf("supply: got %s want 60", ledger.Supply())
	}
	if err := ledger.Credit(alice, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestLedgerTransfer(t *testing.T) {
	ledger := NewLedger()
	alice, bob := [20]byte{1}, [20]byte{2}
	_ = ledger.Credit(alice, big.NewInt(10))
	if err := ledger.Transfer(alice, bob, big.NewInt(11)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := ledger.Transfer(alice, bob, big.NewInt(4)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	a, _ := ledger.BalanceOf(alice)
	b, _ := ledger.BalanceOf(bob)
	if a.Int64() != 6 || b.Int64() != 4 {
		t.Fatalf("balances after transfer: %s/%s", a, b)
	}
	if ledger.Supply().Int64() != 10 {
		t.Fatalf("transfer must not change supply, got %s", ledger.Supply())
	}
}

func TestUnitsCapacity(t *testing.T) {
	units := NewUnits()
	owner := [20]byte{9}
	if err := units.Mint(1, owner, big.NewInt(1)); !errors.Is(err, ErrUnknownPool) {
		t.Fatalf("expected unknown pool, got %v", err)
	}
	if err := units.SetCapacity(1, big.NewInt(10)); err != nil {
		t.Fatalf("set capacity: %v", err)
	}
	if err := units.Mint(1, owner, big.NewInt(8)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := units.Mint(1, owner, big.NewInt(3)); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected capacity exceeded, got %v", err)
	}
	remaining, _ := units.RemainingMintable(1)
	if remaining.Int64() != 2 {
		t.Fatalf("remaining: got %s want 2", remaining)
	}
	if err := units.Burn(1, owner, big.NewInt(9)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance on burn, got %v", err)
	}
	if err := units.Burn(1, owner, big.NewInt(5)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	remaining, _ = units.RemainingMintable(1)
	if remaining.Int64() != 7 {
		t.Fatalf("remaining after burn: got %s want 7", remaining)
	}
	if units.BalanceOf(1, owner).Int64() != 3 {
		t.Fatalf("holder balance: got %s want 3", units.BalanceOf(1, owner))
	}
}
