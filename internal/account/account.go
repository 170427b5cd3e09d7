package account

import (
	"errors"
	"fmt"
)

const (
	// MinLength is the shortest accepted account identifier.
	MinLength = 2
	// MaxLength is the longest accepted account identifier.
	MaxLength = 64
)

// ErrInvalidAccount is returned for identifiers that fail format validation.
var ErrInvalidAccount = errors.New("invalid account id")

// ID identifies a ledger participant. Values of this type have passed Validate
// unless they were built with a raw conversion.
type ID string

// String returns the identifier as a plain string.
func (id ID) String() string {
	return string(id)
}

// Parse validates s and returns it as an ID.
func Parse(s string) (ID, error) {
	if err := Validate(s); err != nil {
		return "", err
	}
	return ID(s), nil
}

// MustParse is like Parse but panics on malformed input. Intended for
// constants and tests.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Validate checks s against the account id format: 2 to 64 characters of
// lowercase letters and digits, with '-', '_' and '.' allowed only as single
// separators between them.
func Validate(s string) error {
	if len(s) < MinLength {
		return fmt.Errorf("%w: %q is shorter than %d characters", ErrInvalidAccount, s, MinLength)
	}
	if len(s) > MaxLength {
		return fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidAccount, s, MaxLength)
	}

	lastWasSeparator := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		separator := c == '-' || c == '_' || c == '.'
		switch {
		case separator:
			if lastWasSeparator {
				return fmt.Errorf("%w: %q has a misplaced separator at %d", ErrInvalidAccount, s, i)
			}
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		default:
			return fmt.Errorf("%w: %q contains invalid character %q", ErrInvalidAccount, s, c)
		}
		lastWasSeparator = separator
	}
	if lastWasSeparator {
		return fmt.Errorf("%w: %q ends with a separator", ErrInvalidAccount, s)
	}
	return nil
}
