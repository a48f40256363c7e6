package curve

import (
	"errors"
	"math/big"
)

// ErrInvalidParameter is returned for negative or otherwise unusable inputs.
var ErrInvalidParameter = errors.New("curve: invalid parameter")

var (
	// Precision is the fixed-point scale used for fractions and square roots.
	Precision = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	onePercentDenom = big.NewInt(100)
)

// Isqrt returns floor(sqrt(x)) for x >= 0. big.Int.Sqrt runs Newton's method
// and always terminates with r such that r*r <= x < (r+1)*(r+1).
func Isqrt(x *big.Int) (*big.Int, error) {
	if x == nil || x.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if x.Sign() < 0 {
		return nil, ErrInvalidParameter
	}
	return new(big.Int).Sqrt(x), nil
}

// SqrtFixed returns sqrt(x) carrying nine extra decimal digits, i.e.
// isqrt(x * Precision). Ratios of SqrtFixed values equal ratios of real
// square roots to within 1e-9 relative error.
func SqrtFixed(x *big.Int) (*big.Int, error) {
	if x == nil || x.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if x.Sign() < 0 {
		return nil, ErrInvalidParameter
	}
	scaled := new(big.Int).Mul(x, Precision)
	return scaled.Sqrt(scaled), nil
}

func cube(x *big.Int) *big.Int {
	out := new(big.Int).Mul(x, x)
	return out.Mul(out, x)
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
