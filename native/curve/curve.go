package curve

import (
	"fmt"
	"math/big"
)

// Curve describes a reward budget released over [Start, End] with a
// cumulative fraction F(p) = 1 - (1-p)^3, where p is the elapsed share of the
// window. The rate decays quadratically so early intervals release more of the
// budget than equally long later ones.
type Curve struct {
	Start  int64
	End    int64
	Budget *big.Int
}

// New validates the supplied window and budget and returns the curve.
func New(start, end int64, budget *big.Int) (Curve, error) {
	c := Curve{Start: start, End: end, Budget: copyBig(budget)}
	if err := c.Validate(); err != nil {
		return Curve{}, err
	}
	return c, nil
}

// Validate ensures the window is non-empty and the budget non-negative.
func (c Curve) Validate() error {
	if c.Start >= c.End {
		return fmt.Errorf("%w: start time %d must precede end time %d", ErrInvalidParameter, c.Start, c.End)
	}
	if c.Budget == nil || c.Budget.Sign() < 0 {
		return fmt.Errorf("%w: budget must be non-negative", ErrInvalidParameter)
	}
	return nil
}

// Clamp truncates ts into the curve window.
func (c Curve) Clamp(ts int64) int64 {
	if ts < c.Start {
		return c.Start
	}
	if ts > c.End {
		return c.End
	}
	return ts
}

// Duration returns the window length in seconds.
func (c Curve) Duration() int64 { return c.End - c.Start }

// Emitted returns floor(Budget * F(p(ts))), the amount of budget released by
// ts. Interval rewards are differences of this function so any partition of
// the window sums to exactly Budget.
func (c Curve) Emitted(ts int64) *big.Int {
	if c.Budget == nil || c.Budget.Sign() == 0 || c.End <= c.Start {
		return big.NewInt(0)
	}
	ts = c.Clamp(ts)
	if ts == c.Start {
		return big.NewInt(0)
	}
	if ts == c.End {
		return new(big.Int).Set(c.Budget)
	}
	d3 := cube(big.NewInt(c.Duration()))
	r3 := cube(big.NewInt(c.End - ts))
	out := new(big.Int).Sub(d3, r3)
	out.Mul(out, c.Budget)
	return out.Quo(out, d3)
}

// Reward returns the budget released over [from, to]. Both bounds are clipped
// into the window first; an empty or inverted interval yields zero.
func (c Curve) Reward(from, to int64) *big.Int {
	from, to = c.Clamp(from), c.Clamp(to)
	if to <= from {
		return big.NewInt(0)
	}
	out := c.Emitted(to)
	return out.Sub(out, c.Emitted(from))
}

// Fraction returns F(p(ts)) scaled by Precision.
func (c Curve) Fraction(ts int64) *big.Int {
	unit := Curve{Start: c.Start, End: c.End, Budget: Precision}
	return unit.Emitted(ts)
}

// Remaining returns the part of the budget not yet released at ts.
func (c Curve) Remaining(ts int64) *big.Int {
	out := copyBig(c.Budget)
	return out.Sub(out, c.Emitted(ts))
}
