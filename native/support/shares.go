package support

import (
	"math/big"

	"supportstake/native/curve"
)

// AdjustedShares returns the accrual weight of principal, isqrt(principal).
func AdjustedShares(principal *big.Int) *big.Int {
	if principal == nil || principal.Sign() <= 0 {
		return big.NewInt(0)
	}
	out, err := curve.Isqrt(principal)
	if err != nil {
		return big.NewInt(0)
	}
	return out
}

// shareLedger keeps a stake's adjusted shares consistent with the pool and
// global aggregates it contributes to.
type shareLedger struct {
	state *GlobalState
	pool  *Pool
}

// reweight replaces the stake's principal and its sqrt term in every total.
func (l shareLedger) reweight(stake *Stake, principal *big.Int) {
	oldPrincipal := copyBigInt(stake.Principal)
	oldShares := copyBigInt(stake.AdjustedShares)
	newShares := AdjustedShares(principal)

	principalDelta := new(big.Int).Sub(principal, oldPrincipal)
	sharesDelta := new(big.Int).Sub(newShares, oldShares)

	stake.Principal = new(big.Int).Set(principal)
	stake.AdjustedShares = newShares

	l.pool.PoolPrincipal = new(big.Int).Add(l.pool.PoolPrincipal, principalDelta)
	l.pool.PoolAdjustedShares = new(big.Int).Add(l.pool.PoolAdjustedShares, sharesDelta)
	l.state.TotalPrincipalStaked = new(big.Int).Add(l.state.TotalPrincipalStaked, principalDelta)
	l.state.TotalAdjustedShares = new(big.Int).Add(l.state.TotalAdjustedShares, sharesDelta)
}
