package pricefeed

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// binIDOffset is the active bin id at which the price is exactly 1.
const binIDOffset = 1 << 23

// binPrecision bounds the digits kept while exponentiating.
const binPrecision = 36

// BinPrice returns the spot price of a liquidity-bin pool:
//
//	price = (1 + binStep/10000) ^ (activeID - 2^23)
func BinPrice(activeID, binStep uint32) (decimal.Decimal, error) {
	if binStep == 0 {
		return decimal.Zero, fmt.Errorf("bin price: bin step is zero")
	}
	base := decimal.NewFromInt(int64(10_000 + binStep)).Div(decimal.NewFromInt(10_000))
	exp := int64(activeID) - binIDOffset

	if exp == 0 {
		return decimal.NewFromInt(1), nil
	}
	neg := exp < 0
	if neg {
		exp = -exp
	}

	p := powInt(base, uint64(exp))
	if neg {
		return decimal.NewFromInt(1).DivRound(p, binPrecision), nil
	}
	return p, nil
}

// powInt is exponentiation by squaring, truncating each step to binPrecision.
func powInt(base decimal.Decimal, exp uint64) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for exp > 0 {
		if exp&1 == 1 {
			result = result.Mul(base).Truncate(binPrecision)
		}
		exp >>= 1
		if exp > 0 {
			base = base.Mul(base).Truncate(binPrecision)
		}
	}
	return result
}

// Scale converts px to an integer with the given number of decimals,
// truncating. The result must be positive and fit in 64 bits.
func Scale(px decimal.Decimal, decimals int32) (uint64, error) {
	scaled := px.Shift(decimals).Truncate(0)
	if !scaled.IsPositive() {
		return 0, fmt.Errorf("scaled price %s is not positive", scaled.String())
	}
	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("scaled price %s overflows uint64", scaled.String())
	}
	return bi.Uint64(), nil
}
