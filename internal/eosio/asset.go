package eosio

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Symbol struct {
	Precision uint8
	Code      string
}

func (s Symbol) Validate() error {
	if len(s.Code) == 0 || len(s.Code) > 7 {
		return fmt.Errorf("symbol code %q must be 1-7 characters", s.Code)
	}
	for i := 0; i < len(s.Code); i++ {
		if s.Code[i] < 'A' || s.Code[i] > 'Z' {
			return fmt.Errorf("symbol code %q must be upper case letters", s.Code)
		}
	}
	if s.Precision > 18 {
		return fmt.Errorf("symbol precision %d too large", s.Precision)
	}
	return nil
}

func (s Symbol) Uint64() uint64 {
	out := uint64(s.Precision)
	for i := 0; i < len(s.Code); i++ {
		out |= uint64(s.Code[i]) << (8 * (i + 1))
	}
	return out
}

// Asset is an integer amount of a symbol, as stored on chain.
type Asset struct {
	Amount int64
	Symbol Symbol
}

// NewAsset builds an asset from a fixed-point amount string such as
// "0.0113" that already carries exactly precision fraction digits.
func NewAsset(amount string, symbol Symbol) (Asset, error) {
	if err := symbol.Validate(); err != nil {
		return Asset{}, err
	}
	digits := 0
	if _, frac, ok := strings.Cut(amount, "."); ok {
		digits = len(frac)
	}
	if digits != int(symbol.Precision) {
		return Asset{}, fmt.Errorf("amount %q must have %d fraction digits for %s", amount, symbol.Precision, symbol.Code)
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return Asset{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	scaled := value.Shift(int32(symbol.Precision))
	if !scaled.Equal(scaled.Truncate(0)) || !scaled.BigInt().IsInt64() {
		return Asset{}, fmt.Errorf("amount %q out of range", amount)
	}
	return Asset{Amount: scaled.IntPart(), Symbol: symbol}, nil
}

// ParseAsset parses the "1.0000 EOS" form.
func ParseAsset(s string) (Asset, error) {
	amount, code, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return Asset{}, fmt.Errorf("invalid asset %q", s)
	}
	precision := 0
	if _, frac, ok := strings.Cut(amount, "."); ok {
		precision = len(frac)
	}
	return NewAsset(amount, Symbol{Precision: uint8(precision), Code: strings.TrimSpace(code)})
}

func (a Asset) Decimal() decimal.Decimal {
	return decimal.New(a.Amount, -int32(a.Symbol.Precision))
}

func (a Asset) String() string {
	return a.Decimal().StringFixed(int32(a.Symbol.Precision)) + " " + a.Symbol.Code
}
