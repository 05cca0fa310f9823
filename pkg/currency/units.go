package currency

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var ErrPrecision = errors.New("amount exceeds unit precision")

// ToBaseUnits converts a display amount into the integer base unit using
// decimals fractional digits. The conversion is exact: amounts carrying more
// fractional digits than decimals are rejected rather than rounded.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	shifted := amount.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %s has more than %d decimals", ErrPrecision, amount.String(), decimals)
	}
	return shifted.BigInt(), nil
}

// FromBaseUnits converts an integer base unit amount into display units.
func FromBaseUnits(value *big.Int, decimals int32) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -decimals)
}

// Convert converts an amount between two registered units using their decimals.
func (r *Registry) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	fromUnit, err := r.Get(from)
	if err != nil {
		return decimal.Zero, err
	}
	toUnit, err := r.Get(to)
	if err != nil {
		return decimal.Zero, err
	}
	if fromUnit.ChainType != toUnit.ChainType {
		return decimal.Zero, fmt.Errorf("no conversion from %s to %s: chain types differ", from, to)
	}
	return amount.Shift(fromUnit.Decimals - toUnit.Decimals), nil
}
