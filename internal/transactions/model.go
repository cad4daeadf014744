package transactions

import (
	"time"

	"github.com/splitpot/splitpot/internal/ledger"
)

// TransactionType discriminates the transaction variants.
type TransactionType string

const (
	// TypePurchase is a shared expense paid by a single creditor and split
	// across debitors, optionally itemized into positions.
	TypePurchase TransactionType = "purchase"
	// TypeTransfer moves value from exactly one creditor to exactly one
	// debitor.
	TypeTransfer TransactionType = "transfer"
)

// Position is one purchase line item: its price is allocated across the usage
// shares, with the communist share weight covering everyone without a usage
// entry. Positions follow the transaction's revision cycle.
type Position struct {
	ID              int64
	Name            string
	Price           float64
	CommunistShares float64
	Deleted         bool
	// Usages maps account id to usage share weight.
	Usages map[int64]float64
}

// Details is one revision's attribute snapshot for a transaction.
type Details struct {
	Value                  float64
	CurrencyIdentifier     string
	CurrencyConversionRate float64
	BilledAt               time.Time
	Description            string
	Tags                   []string
	SplitMode              ledger.SplitMode
	Deleted                bool
	CreditorShares         map[int64]float64
	DebitorShares          map[int64]float64
	Positions              []Position
}

// Transaction is the merged view: committed snapshot, the calling user's
// pending draft and the pending drafts of every other editing user.
type Transaction struct {
	ID            int64
	GroupID       int64
	Type          TransactionType
	Committed     *Details
	Pending       *Details
	PendingByUser map[int64]*Details
}
