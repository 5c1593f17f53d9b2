// Package amount implements the 18-decimal fixed-point token amounts used by
// every balance in the farm.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Decimals is the number of fractional decimal digits carried by an Amount.
const Decimals = 18

var (
	ErrSyntax    = errors.New("invalid amount syntax")
	ErrPrecision = errors.New("amount has more than 18 fractional digits")
	ErrOverflow  = errors.New("amount overflow")
	ErrUnderflow = errors.New("amount underflow")
)

// one is 10^18, the number of base units in one whole token.
var one = uint256.NewInt(1_000_000_000_000_000_000)

// Amount is an unsigned count of base units. The zero value is zero.
type Amount struct {
	v uint256.Int
}

// Zero returns the zero amount.
func Zero() Amount { return Amount{} }

// FromUnits returns n whole tokens.
func FromUnits(n uint64) Amount {
	var a Amount
	a.v.Mul(uint256.NewInt(n), one)
	return a
}

// FromBase returns an amount of n base units.
func FromBase(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// Parse reads a decimal string such as "100", "0.01" or "1.000000000000000001".
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, ErrSyntax
	}
	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return Amount{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	if hasDot && frac == "" {
		return Amount{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	if !digits(whole) || !digits(frac) {
		return Amount{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	if len(frac) > Decimals {
		return Amount{}, fmt.Errorf("%w: %q", ErrPrecision, s)
	}
	if whole == "" {
		whole = "0"
	}
	raw := strings.TrimLeft(whole+frac+strings.Repeat("0", Decimals-len(frac)), "0")
	var a Amount
	if raw == "" {
		return a, nil
	}
	if err := a.v.SetFromDecimal(raw); err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrOverflow, s)
	}
	return a, nil
}

// MustParse is Parse for constants; it panics on error.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func digits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// String renders the amount in whole tokens with trailing zeros trimmed.
func (a Amount) String() string {
	raw := a.v.Dec()
	if len(raw) <= Decimals {
		raw = strings.Repeat("0", Decimals-len(raw)+1) + raw
	}
	whole := raw[:len(raw)-Decimals]
	frac := strings.TrimRight(raw[len(raw)-Decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// BaseString renders the raw base-unit count.
func (a Amount) BaseString() string { return a.v.Dec() }

// Whole returns the integer token part, discarding fractional base units.
func (a Amount) Whole() *big.Int {
	var q uint256.Int
	q.Div(&a.v, one)
	return q.ToBig()
}

// Float64 approximates the amount in whole tokens. Display and metrics only.
func (a Amount) Float64() float64 {
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(a.v.ToBig()),
		new(big.Float).SetInt(one.ToBig()),
	).Float64()
	return f
}

func (a Amount) IsZero() bool { return a.v.IsZero() }

// Cmp returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

func (a Amount) Lt(b Amount) bool { return a.v.Lt(&b.v) }

func (a Amount) Eq(b Amount) bool { return a.v.Eq(&b.v) }

// Add returns a+b or ErrOverflow.
func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, ErrOverflow
	}
	return out, nil
}

// Sub returns a-b or ErrUnderflow when b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	var out Amount
	if _, underflow := out.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, ErrUnderflow
	}
	return out, nil
}

// MulUint64 returns a*n or ErrOverflow.
func (a Amount) MulUint64(n uint64) (Amount, error) {
	var out Amount
	if _, overflow := out.v.MulOverflow(&a.v, uint256.NewInt(n)); overflow {
		return Amount{}, ErrOverflow
	}
	return out, nil
}

// MulFixed returns a*b/10^18, treating b as an 18-decimal factor. The
// intermediate product is 512 bits wide and the result truncates toward zero.
func (a Amount) MulFixed(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.MulDivOverflow(&a.v, &b.v, one); overflow {
		return Amount{}, ErrOverflow
	}
	return out, nil
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
