package group

import "github.com/splitpot/splitpot/internal/shared"

// Require is the permission gate every mutating ledger operation passes.
// The membership row must be snapshot-fresh: callers fetch it inside the same
// transaction as the mutation, never from a cache.
func Require(m *Membership, requiresWrite, requiresOwner bool) error {
	if m == nil {
		return shared.NotFoundf("no membership for user in group")
	}
	if requiresOwner && !m.IsOwner {
		return shared.ErrPermissionDenied
	}
	if requiresWrite && !m.CanWrite && !m.IsOwner {
		return shared.ErrPermissionDenied
	}
	return nil
}
