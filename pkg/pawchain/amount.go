package pawchain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// PAW amounts are handled as integer atomic units of 10^-9 PAW. The
// node reports 18-digit raw values; the 9 least significant digits are
// below the bridge's resolution and are stripped on ingest.

const (
	// Decimals is the native coin precision carried by the bridge.
	Decimals = 9
	// rawDigits is the extra precision of on-chain raw values.
	rawDigits = 9
)

var (
	// rawPerUnit converts between atomic units and on-chain raw.
	rawPerUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(rawDigits), nil)
	// unitsPerCoin is the number of atomic units in one PAW.
	unitsPerCoin = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)
	// centRemainder: units not divisible by 10^7 carry more than two
	// decimal places of PAW.
	centRemainder = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals-2), nil)
)

// UnitsFromRaw strips the sub-unit digits of an on-chain raw value.
func UnitsFromRaw(raw *big.Int) *big.Int {
	return new(big.Int).Quo(raw, rawPerUnit)
}

// RawFromUnits expands atomic units back to an on-chain raw value.
func RawFromUnits(units *big.Int) *big.Int {
	return new(big.Int).Mul(units, rawPerUnit)
}

// WrappedRawFromUnits converts atomic units to the wrapped token's
// 18-decimal raw representation.
func WrappedRawFromUnits(units *big.Int) *big.Int {
	return new(big.Int).Mul(units, rawPerUnit)
}

// UnitsFromWrappedRaw converts an 18-decimal wrapped raw value to atomic units.
func UnitsFromWrappedRaw(raw *big.Int) *big.Int {
	return new(big.Int).Quo(raw, rawPerUnit)
}

// ParseAmount converts a decimal PAW string to atomic units. Negative
// values are preserved; callers decide whether to reject them.
func ParseAmount(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("malformed amount %q: %w", s, err)
	}
	shifted := d.Shift(Decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", s, Decimals)
	}
	return shifted.BigInt(), nil
}

// FormatAmount renders atomic units as a decimal PAW string.
func FormatAmount(units *big.Int) string {
	return decimal.NewFromBigInt(units, -Decimals).String()
}

// HasMoreThanTwoDecimals reports whether the amount carries precision
// below 0.01 PAW. Such deposits are refunded, not credited.
func HasMoreThanTwoDecimals(units *big.Int) bool {
	return new(big.Int).Rem(units, centRemainder).Sign() != 0
}

// FloorToWholeCoins truncates atomic units down to a whole number of PAW.
func FloorToWholeCoins(units *big.Int) *big.Int {
	rem := new(big.Int).Rem(units, unitsPerCoin)
	return new(big.Int).Sub(units, rem)
}
