package domain

import (
	"bytes"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// TokenDecimals is the number of fractional digits of the bet token.
const TokenDecimals = 18

// Amount is an unsigned 256-bit token quantity in base units. The zero value
// is zero. Arithmetic is value-based and reports overflow instead of wrapping.
type Amount struct {
	u uint256.Int
}

// NewAmount returns an Amount of v base units.
func NewAmount(v uint64) Amount {
	var a Amount
	a.u.SetUint64(v)
	return a
}

// Tokens returns n whole tokens expressed in base units.
func Tokens(n uint64) Amount {
	var scale, out Amount
	scale.u.Exp(uint256.NewInt(10), uint256.NewInt(TokenDecimals))
	out.u.Mul(uint256.NewInt(n), &scale.u)
	return out
}

// MaxAmount returns 2^256-1. An allowance of MaxAmount is never decremented.
func MaxAmount() Amount {
	var a Amount
	a.u.SetAllOne()
	return a
}

// ParseAmount parses a base-10 string of base units.
func ParseAmount(s string) (Amount, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: amount %q: %v", ErrInvalidParameters, s, err)
	}
	return Amount{u: *v}, nil
}

// ParseTokens parses a decimal token quantity such as "12.5" into base units.
func ParseTokens(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: token amount %q: %v", ErrInvalidParameters, s, err)
	}
	if d.IsNegative() {
		return Amount{}, fmt.Errorf("%w: token amount %q is negative", ErrInvalidParameters, s)
	}
	scaled := d.Shift(TokenDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return Amount{}, fmt.Errorf("%w: token amount %q has more than %d decimals", ErrInvalidParameters, s, TokenDecimals)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return Amount{}, fmt.Errorf("%w: token amount %q overflows", ErrInvalidParameters, s)
	}
	return Amount{u: *v}, nil
}

func (a Amount) IsZero() bool { return a.u.IsZero() }

func (a Amount) IsMax() bool { return a.Cmp(MaxAmount()) == 0 }

func (a Amount) Cmp(b Amount) int { return a.u.Cmp(&b.u) }

func (a Amount) Lt(b Amount) bool { return a.u.Lt(&b.u) }

func (a Amount) Eq(b Amount) bool { return a.u.Eq(&b.u) }

// String returns the base-unit value in base 10.
func (a Amount) String() string { return a.u.Dec() }

// Uint64 returns the low 64 bits and whether the value fits in them.
func (a Amount) Uint64() (uint64, bool) { return a.u.Uint64(), a.u.IsUint64() }

// Add returns a+b and false when the sum overflows.
func (a Amount) Add(b Amount) (Amount, bool) {
	var out Amount
	_, overflow := out.u.AddOverflow(&a.u, &b.u)
	return out, !overflow
}

// Sub returns a-b and false when b > a.
func (a Amount) Sub(b Amount) (Amount, bool) {
	var out Amount
	_, underflow := out.u.SubOverflow(&a.u, &b.u)
	return out, !underflow
}

// MulUint64 returns a*n and false when the product overflows.
func (a Amount) MulUint64(n uint64) (Amount, bool) {
	var out Amount
	_, overflow := out.u.MulOverflow(&a.u, uint256.NewInt(n))
	return out, !overflow
}

// DivMod splits a into n equal parts, returning the share and the remainder.
// n must be non-zero.
func (a Amount) DivMod(n uint64) (share, rem Amount) {
	d := uint256.NewInt(n)
	share.u.Div(&a.u, d)
	rem.u.Mod(&a.u, d)
	return share, rem
}

// Display renders the amount in whole tokens, e.g. "12.5".
func (a Amount) Display() string {
	return decimal.NewFromBigInt(a.u.ToBig(), -TokenDecimals).String()
}

// TokensFloat approximates the amount in whole tokens, for gauges.
func (a Amount) TokensFloat() float64 {
	return decimal.NewFromBigInt(a.u.ToBig(), -TokenDecimals).InexactFloat64()
}

// MarshalJSON encodes the amount as a quoted base-10 string so that values
// above 2^53 survive JavaScript clients.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.u.Dec() + `"`), nil
}

// UnmarshalJSON accepts a quoted or bare base-10 integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	if s == "" || s == "null" {
		*a = Amount{}
		return nil
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
