package accounts

import "time"

// AccountType discriminates the account variants. Behavior differences are
// limited to the clearing share map and its validation, so a single struct
// with a discriminator replaces subclassing.
type AccountType string

const (
	// TypePersonal is a plain settlement target with no shares.
	TypePersonal AccountType = "personal"
	// TypeClearing is an account whose value is itself distributed across
	// other accounts via weighted shares.
	TypeClearing AccountType = "clearing"
)

// Details is one revision's attribute snapshot for an account.
type Details struct {
	Name        string
	Description string
	Deleted     bool
	// ClearingShares maps referenced account id to weight. Empty for
	// personal accounts.
	ClearingShares map[int64]float64
	// DateInfo is the effective date of a clearing account's distribution.
	DateInfo *time.Time
}

// Account is the merged view of an account: the committed snapshot plus the
// calling user's pending draft, if any.
type Account struct {
	ID      int64
	GroupID int64
	Type    AccountType
	// Version increments on every commit; clients compare it to detect
	// stale local state.
	Version   int64
	Committed *Details
	Pending   *Details
}
