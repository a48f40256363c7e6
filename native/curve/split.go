package curve

import (
	"fmt"
	"math/big"
)

// Split divides reward between the supporter and beneficiary sides of a pool.
// The beneficiary receives reward * sqrt(b) / (sqrt(s) + sqrt(b)), never less
// than one percent of reward; the supporter side receives the remainder so the
// two portions always sum to reward exactly.
func Split(reward, supporterShares, beneficiaryShares *big.Int) (supporter, beneficiary *big.Int, err error) {
	if reward == nil || reward.Sign() < 0 {
		return nil, nil, fmt.Errorf("%w: reward must be non-negative", ErrInvalidParameter)
	}
	s := copyBig(supporterShares)
	b := copyBig(beneficiaryShares)
	if s.Sign() < 0 || b.Sign() < 0 {
		return nil, nil, fmt.Errorf("%w: shares must be non-negative", ErrInvalidParameter)
	}
	if s.Sign() == 0 && b.Sign() == 0 {
		return nil, nil, fmt.Errorf("%w: supporter and beneficiary shares both zero", ErrInvalidParameter)
	}
	if reward.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0), nil
	}
	sqrtS, err := SqrtFixed(s)
	if err != nil {
		return nil, nil, err
	}
	sqrtB, err := SqrtFixed(b)
	if err != nil {
		return nil, nil, err
	}
	beneficiary = new(big.Int).Mul(reward, sqrtB)
	beneficiary.Quo(beneficiary, new(big.Int).Add(sqrtS, sqrtB))

	floor := new(big.Int).Quo(reward, onePercentDenom)
	if beneficiary.Cmp(floor) < 0 {
		beneficiary = floor
	}
	supporter = new(big.Int).Sub(reward, beneficiary)
	return supporter, beneficiary, nil
}
