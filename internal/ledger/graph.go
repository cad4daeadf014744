package ledger

import "github.com/splitpot/splitpot/internal/shared"

// ClearingGraph is the directed dependency graph of a group's clearing
// accounts: an edge A -> B exists when A's clearing shares reference B. Built
// on demand from the committed share rows; group-local account counts are
// small, so rebuilding beats incremental maintenance.
type ClearingGraph map[int64]map[int64]struct{}

// NewClearingGraph builds the graph from committed clearing share rows.
func NewClearingGraph(edges map[int64][]int64) ClearingGraph {
	g := make(ClearingGraph, len(edges))
	for from, targets := range edges {
		set := make(map[int64]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
		}
		g[from] = set
	}
	return g
}

// CheckAcyclic verifies that replacing accountID's outgoing edges with the
// proposed share targets leaves the graph cycle-free. The check runs against
// the post-commit state: committed edges minus accountID's old edges plus the
// proposed ones. A self-reference fails before any traversal.
func (g ClearingGraph) CheckAcyclic(accountID int64, proposedShares map[int64]float64) error {
	proposed := make(map[int64]struct{}, len(proposedShares))
	for target, weight := range proposedShares {
		if weight == 0 {
			continue
		}
		if target == accountID {
			return shared.InvalidCommandf("clearing account %d cannot reference itself", accountID)
		}
		proposed[target] = struct{}{}
	}

	next := func(id int64) map[int64]struct{} {
		if id == accountID {
			return proposed
		}
		return g[id]
	}

	for target := range proposed {
		if reaches(next, target, accountID, make(map[int64]struct{})) {
			return shared.InvalidCommandf("clearing shares of account %d introduce a cyclic dependency via account %d", accountID, target)
		}
	}
	return nil
}

func reaches(next func(int64) map[int64]struct{}, from, goal int64, seen map[int64]struct{}) bool {
	if from == goal {
		return true
	}
	if _, ok := seen[from]; ok {
		return false
	}
	seen[from] = struct{}{}
	for neighbor := range next(from) {
		if reaches(next, neighbor, goal, seen) {
			return true
		}
	}
	return false
}
