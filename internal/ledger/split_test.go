package ledger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitpot/splitpot/internal/shared"
)

func TestParseSplitMode(t *testing.T) {
	for _, raw := range []string{"shares", "percent", "absolute"} {
		mode, err := ParseSplitMode(raw)
		require.NoError(t, err)
		assert.Equal(t, SplitMode(raw), mode)
	}

	_, err := ParseSplitMode("equal")
	assert.True(t, errors.Is(err, shared.ErrInvalidCommand))
}

func TestValidateDebitorSumSharesModeHasNoConstraint(t *testing.T) {
	err := ValidateDebitorSum(SplitModeShares, map[int64]float64{1: 3, 2: 0.5}, 100, true)
	assert.NoError(t, err)
}

func TestValidateDebitorSumPercentMode(t *testing.T) {
	// Exactly 1.0 passes.
	err := ValidateDebitorSum(SplitModePercent, map[int64]float64{1: 0.25, 2: 0.75}, 100, false)
	assert.NoError(t, err)

	// 0.99999 is outside epsilon and fails.
	err = ValidateDebitorSum(SplitModePercent, map[int64]float64{1: 0.99999}, 100, false)
	assert.True(t, errors.Is(err, shared.ErrInvalidCommand))
}

func TestValidateDebitorSumAbsoluteMode(t *testing.T) {
	err := ValidateDebitorSum(SplitModeAbsolute, map[int64]float64{1: 10, 2: 20}, 30, false)
	assert.NoError(t, err)

	err = ValidateDebitorSum(SplitModeAbsolute, map[int64]float64{1: 10, 2: 20}, 31, false)
	assert.True(t, errors.Is(err, shared.ErrInvalidCommand))

	// Positions imply proportional allocation; absolute mode rejects them even
	// when the sum matches.
	err = ValidateDebitorSum(SplitModeAbsolute, map[int64]float64{1: 30}, 30, true)
	assert.True(t, errors.Is(err, shared.ErrInvalidCommand))
}

func TestPruneZeroWeights(t *testing.T) {
	pruned := PruneZeroWeights(map[int64]float64{1: 1.5, 2: 0, 3: 0.25})
	assert.Equal(t, map[int64]float64{1: 1.5, 3: 0.25}, pruned)
}

func TestValidateWeightsRejectsNegative(t *testing.T) {
	assert.NoError(t, ValidateWeights(map[int64]float64{1: 0, 2: 2}))
	err := ValidateWeights(map[int64]float64{1: -0.5})
	assert.True(t, errors.Is(err, shared.ErrInvalidCommand))
}
