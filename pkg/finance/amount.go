// Package finance provides fixed-point helpers for token amounts. Amounts are
// unsigned integers in base units; one whole token is 10^decimals base units.
package finance

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	ErrNegativeAmount = errors.New("finance: amount must not be negative")
	ErrAmountSyntax   = errors.New("finance: malformed amount")
)

// Unit returns 10^decimals.
func Unit(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// Whole converts a count of whole tokens to base units.
func Whole(tokens int64, decimals uint8) *big.Int {
	return new(big.Int).Mul(big.NewInt(tokens), Unit(decimals))
}

// Copy returns an independent copy of v, treating nil as zero.
func Copy(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// MulDiv computes v*num/den with truncation toward zero.
func MulDiv(v *big.Int, num, den int64) *big.Int {
	out := new(big.Int).Mul(Copy(v), big.NewInt(num))
	return out.Quo(out, big.NewInt(den))
}

// Min returns the smaller of a and b as a new value.
func Min(a, b *big.Int) *big.Int {
	if Copy(a).Cmp(Copy(b)) <= 0 {
		return Copy(a)
	}
	return Copy(b)
}

// ParseBaseUnits parses a non-negative decimal integer of base units.
func ParseBaseUnits(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAmountSyntax, s)
	}
	if v.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	return v, nil
}

// ParseTokens parses a decimal token quantity such as "12.5" into base units.
// Fractions finer than one base unit are rejected.
func ParseTokens(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		return nil, ErrNegativeAmount
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrAmountSyntax, s, decimals)
	}
	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAmountSyntax, s)
	}
	return v, nil
}

// FormatTokens renders base units as a decimal token quantity without
// trailing zeros.
func FormatTokens(v *big.Int, decimals uint8) string {
	q, r := new(big.Int).QuoRem(Copy(v), Unit(decimals), new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	frac := new(big.Int).Abs(r).String()
	frac = strings.Repeat("0", int(decimals)-len(frac)) + frac
	frac = strings.TrimRight(frac, "0")
	sign := ""
	if v.Sign() < 0 && q.Sign() == 0 {
		sign = "-"
	}
	return sign + q.String() + "." + frac
}
