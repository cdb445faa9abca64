// Package amount provides integer arithmetic over financial quantities.
//
// All amounts are non-negative integers in base units (wei), carried as
// *big.Int and bounded to 256 bits. Percentages are integer basis points;
// no floating point is used anywhere. Division floors, and split helpers
// assign the rounding remainder to the last bucket so totals are conserved
// exactly.
package amount

import (
	"math/big"

	"github.com/launchpad-settlement/internal/errors"
)

// BpsDenominator is the basis-point scale: 10000 bps == 100%.
const BpsDenominator = 10000

// MaxUint256 is the largest representable amount (2^256 - 1).
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Zero returns a fresh zero amount.
func Zero() *big.Int {
	return new(big.Int)
}

// check validates that x is a well-formed amount: non-nil, non-negative and
// within 256 bits. Overflow fails loudly, never wraps.
func check(x *big.Int, operation string) error {
	if x == nil || x.Sign() < 0 || x.Cmp(MaxUint256) > 0 {
		return errors.NewArithmeticOverflowError(operation)
	}
	return nil
}

// Add returns a+b, erring on 256-bit overflow.
func Add(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(a, b)
	if err := check(sum, "add"); err != nil {
		return nil, err
	}
	return sum, nil
}

// Sub returns a-b, erring if the result would be negative.
func Sub(a, b *big.Int) (*big.Int, error) {
	diff := new(big.Int).Sub(a, b)
	if err := check(diff, "sub"); err != nil {
		return nil, err
	}
	return diff, nil
}

// Sum adds a list of amounts, erring on 256-bit overflow.
func Sum(amounts []*big.Int) (*big.Int, error) {
	total := Zero()
	for _, a := range amounts {
		var err error
		total, err = Add(total, a)
		if err != nil {
			return nil, err
		}
	}
	return total, nil
}

// Proportional computes part × whole / total with floor division.
// Intermediate products are unbounded; only the result is range-checked.
func Proportional(part, total, whole *big.Int) (*big.Int, error) {
	if err := check(part, "proportional"); err != nil {
		return nil, err
	}
	if err := check(whole, "proportional"); err != nil {
		return nil, err
	}
	if total == nil || total.Sign() == 0 {
		return nil, errors.NewDivisionByZeroError("proportional")
	}
	result := new(big.Int).Mul(part, whole)
	result.Quo(result, total)
	if err := check(result, "proportional"); err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyBps computes total × bps / 10000 with floor division.
func ApplyBps(total *big.Int, bps uint64) (*big.Int, error) {
	return Proportional(new(big.Int).SetUint64(bps), big.NewInt(BpsDenominator), total)
}

// SplitByBps splits total into one amount per bucket, each floor(total × bps / 10000).
// The last bucket absorbs the rounding remainder, so the returned amounts always
// sum to exactly floor-share totals plus remainder == total when Σbps == 10000.
// The bucket order is the caller's fixed, documented order.
func SplitByBps(total *big.Int, bps []uint64) ([]*big.Int, error) {
	return split(total, bps, BpsDenominator)
}

// SplitByShares splits total proportionally to the given shares, with the
// denominator equal to the sum of the shares. The last bucket absorbs the
// rounding remainder so Σ amounts == total exactly, always.
func SplitByShares(total *big.Int, shares []uint64) ([]*big.Int, error) {
	var denom uint64
	for _, s := range shares {
		denom += s
	}
	return split(total, shares, denom)
}

func split(total *big.Int, weights []uint64, denom uint64) ([]*big.Int, error) {
	if err := check(total, "split"); err != nil {
		return nil, err
	}
	if len(weights) == 0 {
		return nil, errors.NewInvalidParameterError("weights", "must not be empty")
	}
	if denom == 0 {
		return nil, errors.NewDivisionByZeroError("split")
	}

	denominator := new(big.Int).SetUint64(denom)
	amounts := make([]*big.Int, len(weights))
	assigned := Zero()

	for i, w := range weights {
		if i == len(weights)-1 {
			// Last bucket absorbs the remainder. Deterministic tie-break:
			// remainder goes to the last bucket, never the largest.
			rest, err := Sub(total, assigned)
			if err != nil {
				return nil, err
			}
			amounts[i] = rest
			break
		}
		share := new(big.Int).Mul(total, new(big.Int).SetUint64(w))
		share.Quo(share, denominator)
		amounts[i] = share
		var err error
		assigned, err = Add(assigned, share)
		if err != nil {
			return nil, err
		}
	}

	return amounts, nil
}
