// Package fixed implements the saturating fixed-point arithmetic the
// scheduler's fairness math is built on. Weights are Q48.16 ratios;
// durations and virtual times stay plain int64 nanoseconds and are
// scaled through the 128-bit helpers below. No floating point: fairness
// depends on exact, deterministic rounding.
package fixed

import (
	"fmt"
	"math"
	"math/bits"
)

// FracBits is the number of fractional bits in a Ratio.
const FracBits = 16

// One is the Ratio value 1.0.
const One = Ratio(1 << FracBits)

// Ratio is a signed Q48.16 fixed-point rational.
type Ratio int64

// FromInt returns n as a Ratio, saturating at the rails.
func FromInt(n int64) Ratio {
	if n > math.MaxInt64>>FracBits {
		return Ratio(math.MaxInt64)
	}
	if n < math.MinInt64>>FracBits {
		return Ratio(math.MinInt64)
	}
	return Ratio(n << FracBits)
}

// FromRatio returns num/den as a Ratio, rounded to nearest.
// den must be positive.
func FromRatio(num, den int64) Ratio {
	if den <= 0 {
		panic(fmt.Sprintf("fixed: non-positive denominator %d", den))
	}
	return Ratio(mulDivRound(num, 1<<FracBits, den))
}

// Add returns a+b, saturating on overflow.
func (a Ratio) Add(b Ratio) Ratio {
	s := a + b
	if (a > 0 && b > 0 && s < 0) || (a < 0 && b < 0 && s >= 0) {
		if a > 0 {
			return Ratio(math.MaxInt64)
		}
		return Ratio(math.MinInt64)
	}
	return s
}

// Sub returns a-b, saturating on overflow.
func (a Ratio) Sub(b Ratio) Ratio { return a.Add(-b) }

// Mul returns a*b, rounded to nearest, saturating on overflow.
func (a Ratio) Mul(b Ratio) Ratio {
	return Ratio(mulDivRound(int64(a), int64(b), 1<<FracBits))
}

// Div returns a/b, rounded to nearest. b must be non-zero.
func (a Ratio) Div(b Ratio) Ratio {
	if b == 0 {
		panic("fixed: division by zero")
	}
	return Ratio(mulDivRound(int64(a), 1<<FracBits, int64(b)))
}

// Round returns the nearest integer, half away from zero.
func (a Ratio) Round() int64 {
	switch {
	case a == Ratio(math.MinInt64):
		return math.MinInt64 >> FracBits
	case a >= 0:
		return int64(a.Add(One/2)) >> FracBits
	default:
		return -(int64((-a).Add(One / 2)) >> FracBits)
	}
}

// IsPositive reports a > 0.
func (a Ratio) IsPositive() bool { return a > 0 }

func (a Ratio) String() string {
	whole := int64(a) / (1 << FracBits)
	frac := int64(a) % (1 << FracBits)
	if frac < 0 {
		frac = -frac
	}
	// 4 decimal digits is enough to distinguish adjacent Q48.16 values
	// for the weight range the scheduler uses.
	return fmt.Sprintf("%d.%04d", whole, frac*10000>>FracBits)
}

// ScaleDuration returns d * num / den nanoseconds, rounded to nearest,
// saturating at the int64 rails. num and den must be positive Ratios;
// the intermediate product is computed in 128 bits so large durations
// never overflow.
func ScaleDuration(d int64, num, den Ratio) int64 {
	if num <= 0 || den <= 0 {
		panic(fmt.Sprintf("fixed: ScaleDuration with non-positive ratio num=%v den=%v", num, den))
	}
	return mulDivRound(d, int64(num), int64(den))
}

// CeilDiv returns ceil(a/b) for positive b.
func CeilDiv(a, b int64) int64 {
	if b <= 0 {
		panic(fmt.Sprintf("fixed: CeilDiv by non-positive %d", b))
	}
	if a <= 0 {
		return a / b
	}
	return (a + b - 1) / b
}

// mulDivRound computes a*b/c with a 128-bit intermediate, rounding to
// nearest (half away from zero) and saturating at the int64 rails.
func mulDivRound(a, b, c int64) int64 {
	if c == 0 {
		panic("fixed: division by zero")
	}
	neg := false
	if a < 0 {
		a, neg = -a, !neg
	}
	if b < 0 {
		b, neg = -b, !neg
	}
	if c < 0 {
		c, neg = -c, !neg
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	uc := uint64(c)
	if hi >= uc {
		// Quotient would not fit in 64 bits.
		if neg {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	q, r := bits.Div64(hi, lo, uc)
	if r >= uc-r { // round half away from zero
		q++
	}
	if neg {
		if q > uint64(math.MaxInt64)+1 {
			return math.MinInt64
		}
		return -int64(q)
	}
	if q > uint64(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(q)
}
