package amount

import (
	"math/big"

	"github.com/launchpad-settlement/internal/errors"
)

// Parse converts a base-10 amount string (as stored in the database) into an
// amount, validating range and sign.
func Parse(s string) (*big.Int, error) {
	if s == "" {
		return Zero(), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.NewInvalidParameterError("amount", "not a base-10 integer: "+s)
	}
	if err := check(v, "parse"); err != nil {
		return nil, err
	}
	return v, nil
}

// MustParse is Parse for trusted literals in tests and defaults; it panics on
// malformed input.
func MustParse(s string) *big.Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Format renders an amount as the base-10 string stored in the database.
// A nil amount formats as "0".
func Format(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
