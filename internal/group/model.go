package group

import "time"

// Membership is the capability row tying a user to a group. Owned by group
// administration; the ledger core only reads it.
type Membership struct {
	GroupID  int64
	UserID   int64
	CanWrite bool
	IsOwner  bool
	JoinedAt time.Time
}

// LogEntry is one append-only group activity record. Written once per
// committed mutation, never mutated or deleted.
type LogEntry struct {
	ID             int64
	GroupID        int64
	UserID         int64
	Type           string
	Message        string
	AffectedUserID *int64
	LoggedAt       time.Time
}

// Log entry types written by the ledger core.
const (
	LogAccountCommitted     = "account-committed"
	LogAccountDeleted       = "account-deleted"
	LogTransactionCommitted = "transaction-committed"
	LogTransactionDeleted   = "transaction-deleted"
)
