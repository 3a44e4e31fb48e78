package domain

import (
	"math/bits"

	"github.com/holiman/uint256"
)

// BasisPoints is the fee denominator: 10_000 bps = 100%.
const BasisPoints = 10_000

// MaxTreasuryFeeBps caps the protocol fee at 10%.
const MaxTreasuryFeeBps = 1_000

// AddAmount returns a+b or ErrAmountOverflow.
func AddAmount(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrAmountOverflow.With("%d + %d", a, b)
	}
	return sum, nil
}

// SubAmount returns a-b or ErrAmountOverflow when b > a.
func SubAmount(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrAmountOverflow.With("%d - %d", a, b)
	}
	return diff, nil
}

// MulDiv returns floor(a*b/d) with a 256-bit intermediate product.
// d == 0 yields 0.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, nil
	}
	x := new(uint256.Int).SetUint64(a)
	x.Mul(x, new(uint256.Int).SetUint64(b))
	x.Div(x, new(uint256.Int).SetUint64(d))
	if !x.IsUint64() {
		return 0, ErrAmountOverflow.With("%d * %d / %d", a, b, d)
	}
	return x.Uint64(), nil
}
