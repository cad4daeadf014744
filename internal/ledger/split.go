package ledger

import (
	"math"

	"github.com/splitpot/splitpot/internal/shared"
)

// SplitMode selects how a transaction's debitor share weights are interpreted.
type SplitMode string

const (
	// SplitModeShares treats weights as relative; no sum constraint.
	SplitModeShares SplitMode = "shares"
	// SplitModePercent requires debitor weights to sum to 1.0.
	SplitModePercent SplitMode = "percent"
	// SplitModeAbsolute requires debitor weights to sum to the transaction value.
	SplitModeAbsolute SplitMode = "absolute"
)

// SumEpsilon is the tolerance for percent and absolute sum checks.
const SumEpsilon = 1e-6

// ParseSplitMode validates a raw split-mode string.
func ParseSplitMode(raw string) (SplitMode, error) {
	switch SplitMode(raw) {
	case SplitModeShares, SplitModePercent, SplitModeAbsolute:
		return SplitMode(raw), nil
	}
	return "", shared.InvalidCommandf("unknown split mode %q", raw)
}

// ValidateDebitorSum enforces the split-mode sum laws for a debitor share set.
// hasPositions must be true when the transaction carries any non-deleted
// purchase position; positions imply proportional allocation and are
// incompatible with absolute mode.
func ValidateDebitorSum(mode SplitMode, debitorShares map[int64]float64, totalValue float64, hasPositions bool) error {
	switch mode {
	case SplitModeShares:
		return nil
	case SplitModePercent:
		if math.Abs(sumWeights(debitorShares)-1.0) > SumEpsilon {
			return shared.InvalidCommandf("percent split debitor shares must sum to 1.0, got %v", sumWeights(debitorShares))
		}
		return nil
	case SplitModeAbsolute:
		if hasPositions {
			return shared.InvalidCommandf("absolute split does not allow purchase positions")
		}
		if math.Abs(sumWeights(debitorShares)-totalValue) > SumEpsilon {
			return shared.InvalidCommandf("absolute split debitor shares must sum to the transaction value %v, got %v", totalValue, sumWeights(debitorShares))
		}
		return nil
	}
	return shared.InvalidCommandf("unknown split mode %q", mode)
}

func sumWeights(shares map[int64]float64) float64 {
	var sum float64
	for _, w := range shares {
		sum += w
	}
	return sum
}

// PruneZeroWeights removes entries whose weight is exactly zero; a zero weight
// is equivalent to absence and is never stored.
func PruneZeroWeights(shares map[int64]float64) map[int64]float64 {
	pruned := make(map[int64]float64, len(shares))
	for id, w := range shares {
		if w != 0 {
			pruned[id] = w
		}
	}
	return pruned
}

// ValidateWeights rejects negative share weights.
func ValidateWeights(shares map[int64]float64) error {
	for id, w := range shares {
		if w < 0 {
			return shared.InvalidCommandf("share weight for account %d must not be negative", id)
		}
	}
	return nil
}
