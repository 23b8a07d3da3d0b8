// Package numfmt renders prices and quantities as fixed-point strings at a
// venue's precision.
package numfmt

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// NumberToString formats value with exactly precision fraction digits.
//
// With roundUp unset the value is rounded half-up at digit precision+1 and
// then truncated, so 0.0019999 becomes 0.001999 at six digits and 0.00200 at
// five. With roundUp set the value is rounded towards positive infinity, which
// is what a buyer pays.
func NumberToString(value decimal.Decimal, precision int32, roundUp bool) (string, error) {
	if precision < 0 {
		return "", fmt.Errorf("precision must be >= 0, got %d", precision)
	}
	var out decimal.Decimal
	if roundUp {
		out = value.RoundCeil(precision)
	} else {
		out = value.Round(precision + 1).Truncate(precision)
	}
	return out.StringFixed(precision), nil
}

// Scaled returns value * 10^precision as an integer, rounding up or truncating.
func Scaled(value decimal.Decimal, precision int32, roundUp bool) (uint64, error) {
	if precision < 0 {
		return 0, fmt.Errorf("precision must be >= 0, got %d", precision)
	}
	if value.IsNegative() {
		return 0, fmt.Errorf("amount must be >= 0, got %s", value)
	}
	shifted := value.Shift(precision)
	if roundUp {
		shifted = shifted.Ceil()
	} else {
		shifted = shifted.Truncate(0)
	}
	if !shifted.BigInt().IsUint64() {
		return 0, fmt.Errorf("amount %s overflows uint64 at precision %d", value, precision)
	}
	return shifted.BigInt().Uint64(), nil
}
