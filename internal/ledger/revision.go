package ledger

import "time"

// Revision is one proposed state of a ledger entity. At most one revision per
// (entity, user) pair may be uncommitted at any time; that row is the user's
// draft. CommittedAt is set exactly once and never unset.
type Revision struct {
	ID          int64
	EntityID    int64
	UserID      int64
	StartedAt   time.Time
	CommittedAt *time.Time
	// Version is bumped on every account commit; clients use it for
	// optimistic staleness detection. Unused for transactions.
	Version int64
}

// Committed reports whether the revision has been promoted to the entity's
// shared agreed-upon state.
func (r Revision) Committed() bool {
	return r.CommittedAt != nil
}
