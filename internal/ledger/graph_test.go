package ledger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/splitpot/splitpot/internal/shared"
)

func TestCheckAcyclicRejectsSelfReference(t *testing.T) {
	g := NewClearingGraph(nil)
	err := g.CheckAcyclic(1, map[int64]float64{1: 1.0})
	assert.True(t, errors.Is(err, shared.ErrInvalidCommand))
}

func TestCheckAcyclicRejectsTwoNodeCycle(t *testing.T) {
	// A (1) already references B (2); making B reference A closes the loop.
	g := NewClearingGraph(map[int64][]int64{1: {2}})
	err := g.CheckAcyclic(2, map[int64]float64{1: 1.0})
	assert.True(t, errors.Is(err, shared.ErrInvalidCommand))
}

func TestCheckAcyclicRejectsTransitiveCycle(t *testing.T) {
	g := NewClearingGraph(map[int64][]int64{1: {2}, 2: {3}})
	err := g.CheckAcyclic(3, map[int64]float64{1: 2.0})
	assert.True(t, errors.Is(err, shared.ErrInvalidCommand))
}

func TestCheckAcyclicAllowsDiamond(t *testing.T) {
	// 1 -> 2, 1 -> 3, 2 -> 4, 3 -> 4 shares a sink but has no cycle.
	g := NewClearingGraph(map[int64][]int64{1: {2, 3}, 2: {4}})
	assert.NoError(t, g.CheckAcyclic(3, map[int64]float64{4: 1.0}))
}

func TestCheckAcyclicUsesProposedEdgesNotOldOnes(t *testing.T) {
	// 2 currently references 1; replacing 2's edges entirely with 3 removes
	// the old edge, so 1 may then reference 2.
	g := NewClearingGraph(map[int64][]int64{2: {3}})
	assert.NoError(t, g.CheckAcyclic(1, map[int64]float64{2: 1.0}))

	// But the stale committed state would have been cyclic: verify the check
	// sees proposed edges for the account under change.
	stale := NewClearingGraph(map[int64][]int64{2: {1}})
	err := stale.CheckAcyclic(1, map[int64]float64{2: 1.0})
	assert.True(t, errors.Is(err, shared.ErrInvalidCommand))
}

func TestCheckAcyclicIgnoresZeroWeightEdges(t *testing.T) {
	g := NewClearingGraph(map[int64][]int64{1: {2}})
	assert.NoError(t, g.CheckAcyclic(2, map[int64]float64{1: 0}))
}
