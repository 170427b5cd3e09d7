// Package balance implements the unsigned 128-bit amount used for token
// balances, total supply and attached deposits.
package balance

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Bits is the width of the representable range.
const Bits = 128

var (
	// ErrOverflow is returned when a result does not fit in 128 bits.
	ErrOverflow = errors.New("balance overflow")

	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("balance underflow")

	// ErrInvalid is returned for strings that are not base-10 unsigned integers.
	ErrInvalid = errors.New("invalid balance")
)

// Zero is the zero amount.
var Zero Balance

// One is the smallest non-zero amount (one yocto).
var One = FromUint64(1)

// Balance is an unsigned integer in [0, 2^128-1]. The zero value is zero.
type Balance struct {
	v uint256.Int
}

// FromUint64 builds a Balance from a uint64.
func FromUint64(n uint64) Balance {
	var b Balance
	b.v.SetUint64(n)
	return b
}

// Max returns 2^128-1.
func Max() Balance {
	var b Balance
	b.v.Lsh(uint256.NewInt(1), Bits)
	b.v.SubUint64(&b.v, 1)
	return b
}

// Parse reads a base-10 string. Signs, whitespace and empty input are rejected.
func Parse(s string) (Balance, error) {
	if s == "" {
		return Balance{}, fmt.Errorf("%w: empty string", ErrInvalid)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Balance{}, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
	}
	n, err := uint256.FromDecimal(s)
	if err != nil {
		// only reachable for values above 2^256-1
		return Balance{}, fmt.Errorf("%w: %q", ErrOverflow, s)
	}
	if n.BitLen() > Bits {
		return Balance{}, fmt.Errorf("%w: %q", ErrOverflow, s)
	}
	return Balance{v: *n}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Balance {
	b, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Add returns b+o or ErrOverflow.
func (b Balance) Add(o Balance) (Balance, error) {
	var r Balance
	if _, overflow := r.v.AddOverflow(&b.v, &o.v); overflow || r.v.BitLen() > Bits {
		return Balance{}, ErrOverflow
	}
	return r, nil
}

// Sub returns b-o or ErrUnderflow.
func (b Balance) Sub(o Balance) (Balance, error) {
	var r Balance
	if _, underflow := r.v.SubOverflow(&b.v, &o.v); underflow {
		return Balance{}, ErrUnderflow
	}
	return r, nil
}

// MulUint64 returns b*n or ErrOverflow.
func (b Balance) MulUint64(n uint64) (Balance, error) {
	var r Balance
	if _, overflow := r.v.MulOverflow(&b.v, uint256.NewInt(n)); overflow || r.v.BitLen() > Bits {
		return Balance{}, ErrOverflow
	}
	return r, nil
}

// Cmp compares b and o and returns -1, 0 or +1.
func (b Balance) Cmp(o Balance) int {
	return b.v.Cmp(&o.v)
}

// Equal reports whether b == o.
func (b Balance) Equal(o Balance) bool {
	return b.v.Eq(&o.v)
}

// IsZero reports whether b is zero.
func (b Balance) IsZero() bool {
	return b.v.IsZero()
}

// String returns the base-10 representation.
func (b Balance) String() string {
	return b.v.Dec()
}

// MarshalText encodes the balance as a base-10 string, which is also how it
// appears in JSON and YAML.
func (b Balance) MarshalText() ([]byte, error) {
	return []byte(b.v.Dec()), nil
}

// UnmarshalText decodes a base-10 string.
func (b *Balance) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}
