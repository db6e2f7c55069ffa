// Package money holds ledger amounts expressed in integer base units.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrNegative      = errors.New("amount is negative")
)

// Amount is an immutable, arbitrary precision integer amount of base units.
// The zero value is 0.
type Amount struct {
	v *big.Int
}

func Zero() Amount {
	return Amount{}
}

func FromInt64(i int64) Amount {
	return Amount{v: big.NewInt(i)}
}

func FromBig(b *big.Int) Amount {
	if b == nil {
		return Amount{}
	}
	return Amount{v: new(big.Int).Set(b)}
}

// Parse reads a base-10 integer string.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Amount{v: b}, nil
}

func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseUnits converts a decimal token quantity ("1.5") into base units given the
// token's number of decimals. More fractional digits than decimals is an error.
func ParseUnits(s string, decimals int) (Amount, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > decimals {
		return Amount{}, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, decimals)
	}
	return Parse(whole + frac + strings.Repeat("0", decimals-len(frac)))
}

func (a Amount) big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// Big returns a copy of the underlying integer.
func (a Amount) Big() *big.Int {
	return new(big.Int).Set(a.big())
}

func (a Amount) Sign() int {
	return a.big().Sign()
}

func (a Amount) IsZero() bool {
	return a.Sign() == 0
}

func (a Amount) Cmp(b Amount) int {
	return a.big().Cmp(b.big())
}

func (a Amount) Equal(b Amount) bool {
	return a.Cmp(b) == 0
}

func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.big(), b.big())}
}

func (a Amount) Sub(b Amount) Amount {
	return Amount{v: new(big.Int).Sub(a.big(), b.big())}
}

func (a Amount) MulInt64(n int64) Amount {
	return Amount{v: new(big.Int).Mul(a.big(), big.NewInt(n))}
}

// MulDiv returns a*num/den truncated toward zero.
func (a Amount) MulDiv(num, den int64) Amount {
	r := new(big.Int).Mul(a.big(), big.NewInt(num))
	return Amount{v: r.Quo(r, big.NewInt(den))}
}

func (a Amount) String() string {
	return a.big().String()
}

// Format renders the amount as a decimal token quantity with trailing zeros trimmed.
func (a Amount) Format(decimals int) string {
	s := a.big().String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole, frac := s[:len(s)-decimals], strings.TrimRight(s[len(s)-decimals:], "0")
	if neg {
		whole = "-" + whole
	}
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case string:
		p, err := Parse(v)
		if err != nil {
			return err
		}
		*a = p
	case []byte:
		p, err := Parse(string(v))
		if err != nil {
			return err
		}
		*a = p
	case int64:
		*a = FromInt64(v)
	default:
		return fmt.Errorf("cannot scan %T into money.Amount", src)
	}
	return nil
}

// MarshalJSON encodes the amount as a JSON string, which keeps values above 2^53 exact.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// bare JSON numbers are accepted as long as they are integers
		s = string(data)
	}
	p, err := Parse(s)
	if err != nil {
		return err
	}
	*a = p
	return nil
}
