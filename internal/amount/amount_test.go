package amount

import (
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/launchpad-settlement/internal/errors"
)

func TestAdd(t *testing.T) {
	sum, err := Add(big.NewInt(2), big.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum.Int64())
}

func TestAddOverflow(t *testing.T) {
	_, err := Add(MaxUint256, big.NewInt(1))
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
}

func TestSubNegativeResult(t *testing.T) {
	_, err := Sub(big.NewInt(1), big.NewInt(2))
	require.Error(t, err)
}

func TestSum(t *testing.T) {
	total, err := Sum([]*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)})
	require.NoError(t, err)
	assert.Equal(t, int64(6), total.Int64())

	empty, err := Sum(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.Int64())
}

func TestProportional(t *testing.T) {
	tests := []struct {
		name     string
		part     int64
		total    int64
		whole    int64
		expected int64
	}{
		{"exact", 1, 2, 100, 50},
		{"floors", 1, 3, 100, 33},
		{"zero part", 0, 3, 100, 0},
		{"full share", 3, 3, 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Proportional(big.NewInt(tt.part), big.NewInt(tt.total), big.NewInt(tt.whole))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.Int64())
		})
	}
}

func TestProportionalZeroTotal(t *testing.T) {
	_, err := Proportional(big.NewInt(1), big.NewInt(0), big.NewInt(100))
	require.Error(t, err)
}

// Intermediate products above 2^256 must not fail as long as the final
// result fits.
func TestProportionalLargeIntermediate(t *testing.T) {
	nearMax := new(big.Int).Sub(MaxUint256, big.NewInt(10))
	got, err := Proportional(nearMax, nearMax, nearMax)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cmp(nearMax))
}

func TestApplyBps(t *testing.T) {
	tests := []struct {
		name     string
		total    int64
		bps      uint64
		expected int64
	}{
		{"five percent", 2500, 500, 125},
		{"floors down", 999, 500, 49},
		{"zero bps", 2500, 0, 0},
		{"full bps", 2500, 10000, 2500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyBps(big.NewInt(tt.total), tt.bps)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.Int64())
		})
	}
}

func TestSplitByBpsRemainderGoesToLastBucket(t *testing.T) {
	parts, err := SplitByBps(big.NewInt(100), []uint64{3333, 3333, 3334})
	require.NoError(t, err)
	require.Len(t, parts, 3)
	assert.Equal(t, int64(33), parts[0].Int64())
	assert.Equal(t, int64(33), parts[1].Int64())
	assert.Equal(t, int64(34), parts[2].Int64())
}

func TestSplitBySharesFeeExample(t *testing.T) {
	// 125 at shares 250/200/50 gives 62/50/13 with the last bucket
	// absorbing the dust.
	parts, err := SplitByShares(big.NewInt(125), []uint64{250, 200, 50})
	require.NoError(t, err)
	require.Len(t, parts, 3)
	assert.Equal(t, int64(62), parts[0].Int64())
	assert.Equal(t, int64(50), parts[1].Int64())
	assert.Equal(t, int64(13), parts[2].Int64())
}

func TestSplitEmptyWeights(t *testing.T) {
	_, err := SplitByBps(big.NewInt(100), nil)
	require.Error(t, err)
}

func TestSplitBySharesZeroDenominator(t *testing.T) {
	_, err := SplitByShares(big.NewInt(100), []uint64{0, 0})
	require.Error(t, err)
}

func TestParse(t *testing.T) {
	v, err := Parse("12345")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), v.Int64())

	v, err = Parse("")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.Int64())

	_, err = Parse("not-a-number")
	require.Error(t, err)

	_, err = Parse("-5")
	require.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "42", Format(big.NewInt(42)))
	assert.Equal(t, "0", Format(nil))
}

func TestSplitConservationProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("SplitByShares conserves the total exactly", prop.ForAll(
		func(total int64, a, b, c uint16) bool {
			shares := []uint64{uint64(a), uint64(b), uint64(c)}
			if shares[0]+shares[1]+shares[2] == 0 {
				return true
			}
			parts, err := SplitByShares(big.NewInt(total), shares)
			if err != nil {
				return false
			}
			sum := new(big.Int)
			for _, p := range parts {
				sum.Add(sum, p)
			}
			return sum.Cmp(big.NewInt(total)) == 0
		},
		gen.Int64Range(0, 1<<60),
		gen.UInt16(),
		gen.UInt16(),
		gen.UInt16(),
	))

	properties.Property("no bucket is negative", prop.ForAll(
		func(total int64, a, b uint16) bool {
			shares := []uint64{uint64(a), uint64(b)}
			if shares[0]+shares[1] == 0 {
				return true
			}
			parts, err := SplitByShares(big.NewInt(total), shares)
			if err != nil {
				return false
			}
			for _, p := range parts {
				if p.Sign() < 0 {
					return false
				}
			}
			return true
		},
		gen.Int64Range(0, 1<<60),
		gen.UInt16(),
		gen.UInt16(),
	))

	properties.Property("ApplyBps never exceeds the total for bps <= 10000", prop.ForAll(
		func(total int64, bps uint16) bool {
			if bps > 10000 {
				bps = 10000
			}
			got, err := ApplyBps(big.NewInt(total), uint64(bps))
			if err != nil {
				return false
			}
			return got.Cmp(big.NewInt(total)) <= 0
		},
		gen.Int64Range(0, 1<<60),
		gen.UInt16Range(0, 10000),
	))

	properties.TestingRun(t)
}
