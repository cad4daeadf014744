package transactions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/currency"

	"github.com/splitpot/splitpot/internal/group"
	"github.com/splitpot/splitpot/internal/ledger"
	"github.com/splitpot/splitpot/internal/notify"
	"github.com/splitpot/splitpot/internal/platform/db"
	"github.com/splitpot/splitpot/internal/shared"
)

// Service provides business logic for transaction operations. Transactions
// hold long-lived per-user drafts; only Commit and Discard end a draft's life.
type Service struct {
	repo     Repository
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewService constructs a transactions service.
func NewService(repo Repository, notifier notify.Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Service{repo: repo, notifier: notifier, logger: logger}
}

// CreateTransactionRequest carries the initial attributes of a transaction.
type CreateTransactionRequest struct {
	GroupID                int64
	Type                   TransactionType
	Value                  float64
	CurrencyIdentifier     string
	CurrencyConversionRate float64
	BilledAt               time.Time
	Description            string
	Tags                   []string
	SplitMode              ledger.SplitMode
}

// UpdateTransactionRequest carries replacement metadata for a draft.
type UpdateTransactionRequest struct {
	Value                  float64
	CurrencyIdentifier     string
	CurrencyConversionRate float64
	BilledAt               time.Time
	Description            string
	Tags                   []string
	SplitMode              ledger.SplitMode
}

// Create inserts a new transaction with an uncommitted first revision. Shares
// cannot be assigned yet, so validation cannot succeed and the draft stays
// open until the creator commits it.
func (s *Service) Create(ctx context.Context, userID int64, req CreateTransactionRequest) (int64, error) {
	if req.Type != TypePurchase && req.Type != TypeTransfer {
		return 0, shared.InvalidCommandf("unknown transaction type %q", req.Type)
	}
	details, err := detailsFromRequest(req.Value, req.CurrencyIdentifier, req.CurrencyConversionRate, req.BilledAt, req.Description, req.Tags, req.SplitMode)
	if err != nil {
		return 0, err
	}

	var transactionID int64
	err = s.withConflictMapping(ctx, func(ctx context.Context, tx TxRepository) error {
		membership, err := tx.GetMembership(ctx, req.GroupID, userID)
		if err != nil {
			return err
		}
		if err := group.Require(membership, true, false); err != nil {
			return err
		}
		transactionID, err = tx.InsertTransaction(ctx, req.GroupID, req.Type)
		if err != nil {
			return err
		}
		// First-time creation: insert the revision directly, there is no
		// committed baseline to branch from.
		rev, err := tx.InsertRevision(ctx, transactionID, userID)
		if err != nil {
			return err
		}
		return tx.UpsertDetails(ctx, transactionID, rev.ID, *details)
	})
	if err != nil {
		return 0, err
	}
	return transactionID, nil
}

// Update replaces the metadata of the caller's draft.
func (s *Service) Update(ctx context.Context, userID, transactionID int64, req UpdateTransactionRequest) error {
	details, err := detailsFromRequest(req.Value, req.CurrencyIdentifier, req.CurrencyConversionRate, req.BilledAt, req.Description, req.Tags, req.SplitMode)
	if err != nil {
		return err
	}
	return s.withConflictMapping(ctx, func(ctx context.Context, tx TxRepository) error {
		_, rev, err := s.openDraft(ctx, tx, transactionID, userID)
		if err != nil {
			return err
		}
		current, err := tx.GetDetails(ctx, transactionID, rev.ID)
		if err != nil {
			return err
		}
		if current != nil {
			details.Deleted = current.Deleted
		}
		return tx.UpsertDetails(ctx, transactionID, rev.ID, *details)
	})
}

// Commit promotes the caller's draft to the transaction's shared state.
func (s *Service) Commit(ctx context.Context, userID, transactionID int64) error {
	var groupID int64
	err := s.withConflictMapping(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, err := tx.GetTransactionRow(ctx, transactionID)
		if err != nil {
			return err
		}
		groupID = txn.GroupID
		membership, err := tx.GetMembership(ctx, txn.GroupID, userID)
		if err != nil {
			return err
		}
		if err := group.Require(membership, true, false); err != nil {
			return err
		}
		rev, err := tx.GetPendingRevision(ctx, transactionID, userID)
		if err != nil {
			return err
		}
		if rev == nil {
			return shared.InvalidCommandf("nothing to commit for transaction %d", transactionID)
		}
		details, err := tx.GetDetails(ctx, transactionID, rev.ID)
		if err != nil {
			return err
		}
		if details == nil {
			return shared.InvalidCommandf("transaction %d draft has no content", transactionID)
		}
		if !details.Deleted {
			if err := s.validateForCommit(ctx, tx, txn, details); err != nil {
				return err
			}
		}
		if err := tx.CommitRevision(ctx, rev.ID); err != nil {
			return err
		}
		return tx.AppendGroupLog(ctx, group.LogEntry{
			GroupID: txn.GroupID,
			UserID:  userID,
			Type:    group.LogTransactionCommitted,
			Message: fmt.Sprintf("committed changes to %s %d", txn.Type, transactionID),
		})
	})
	if err != nil {
		return err
	}
	s.publish(ctx, groupID, transactionID)
	return nil
}

// DiscardChanges drops the caller's draft. A never-committed transaction has
// no baseline to fall back to and must be deleted instead.
func (s *Service) DiscardChanges(ctx context.Context, userID, transactionID int64) error {
	return s.withConflictMapping(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, err := tx.GetTransactionRow(ctx, transactionID)
		if err != nil {
			return err
		}
		membership, err := tx.GetMembership(ctx, txn.GroupID, userID)
		if err != nil {
			return err
		}
		if err := group.Require(membership, true, false); err != nil {
			return err
		}
		rev, err := tx.GetPendingRevision(ctx, transactionID, userID)
		if err != nil {
			return err
		}
		if rev == nil {
			return shared.InvalidCommandf("no pending changes on transaction %d", transactionID)
		}
		baseline, err := tx.GetLatestCommittedRevision(ctx, transactionID)
		if err != nil {
			return err
		}
		if baseline == nil {
			return shared.InvalidCommandf("transaction %d has never been committed, delete it instead", transactionID)
		}
		return tx.DeleteRevision(ctx, transactionID, rev.ID)
	})
}

// Delete marks a committed transaction deleted through a terminal history row,
// or physically removes a never-committed one.
func (s *Service) Delete(ctx context.Context, userID, transactionID int64) error {
	var groupID int64
	var physical bool
	err := s.withConflictMapping(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, err := tx.GetTransactionRow(ctx, transactionID)
		if err != nil {
			return err
		}
		groupID = txn.GroupID
		membership, err := tx.GetMembership(ctx, txn.GroupID, userID)
		if err != nil {
			return err
		}
		if err := group.Require(membership, true, false); err != nil {
			return err
		}
		baseline, err := tx.GetLatestCommittedRevision(ctx, transactionID)
		if err != nil {
			return err
		}
		if baseline == nil {
			// Never committed: nothing agreed upon exists to preserve.
			physical = true
			return tx.DeleteTransactionRow(ctx, transactionID)
		}
		committed, err := tx.GetDetails(ctx, transactionID, baseline.ID)
		if err != nil {
			return err
		}
		if committed != nil && committed.Deleted {
			return shared.InvalidCommandf("transaction %d is already deleted", transactionID)
		}
		rev, err := s.getOrCreateDraft(ctx, tx, transactionID, userID)
		if err != nil {
			return err
		}
		details, err := tx.GetDetails(ctx, transactionID, rev.ID)
		if err != nil {
			return err
		}
		if details == nil {
			return shared.InvalidCommandf("transaction %d draft has no content", transactionID)
		}
		details.Deleted = true
		if err := tx.UpsertDetails(ctx, transactionID, rev.ID, *details); err != nil {
			return err
		}
		if err := tx.CommitRevision(ctx, rev.ID); err != nil {
			return err
		}
		return tx.AppendGroupLog(ctx, group.LogEntry{
			GroupID: txn.GroupID,
			UserID:  userID,
			Type:    group.LogTransactionDeleted,
			Message: fmt.Sprintf("deleted %s %d", txn.Type, transactionID),
		})
	})
	if err != nil {
		return err
	}
	if !physical {
		s.publish(ctx, groupID, transactionID)
	}
	return nil
}

// AddOrChangeCreditorShare sets the creditor share weight for an account in
// the caller's draft. A zero weight prunes the share.
func (s *Service) AddOrChangeCreditorShare(ctx context.Context, userID, transactionID, accountID int64, weight float64) error {
	return s.setShare(ctx, ShareCreditor, userID, transactionID, accountID, weight)
}

// AddOrChangeDebitorShare mirrors AddOrChangeCreditorShare for debitors.
func (s *Service) AddOrChangeDebitorShare(ctx context.Context, userID, transactionID, accountID int64, weight float64) error {
	return s.setShare(ctx, ShareDebitor, userID, transactionID, accountID, weight)
}

// SwitchCreditorShare atomically replaces the entire creditor share set with a
// single entry.
func (s *Service) SwitchCreditorShare(ctx context.Context, userID, transactionID, accountID int64, weight float64) error {
	return s.switchShare(ctx, ShareCreditor, userID, transactionID, accountID, weight)
}

// SwitchDebitorShare atomically replaces the entire debitor share set with a
// single entry. Only transfers support it; a purchase's debitor set is
// inherently plural.
func (s *Service) SwitchDebitorShare(ctx context.Context, userID, transactionID, accountID int64, weight float64) error {
	return s.switchShare(ctx, ShareDebitor, userID, transactionID, accountID, weight)
}

// DeleteCreditorShare removes an account's creditor share from the draft.
func (s *Service) DeleteCreditorShare(ctx context.Context, userID, transactionID, accountID int64) error {
	return s.deleteShare(ctx, ShareCreditor, userID, transactionID, accountID)
}

// DeleteDebitorShare removes an account's debitor share from the draft.
func (s *Service) DeleteDebitorShare(ctx context.Context, userID, transactionID, accountID int64) error {
	return s.deleteShare(ctx, ShareDebitor, userID, transactionID, accountID)
}

func (s *Service) setShare(ctx context.Context, kind ShareKind, userID, transactionID, accountID int64, weight float64) error {
	if weight < 0 {
		return shared.InvalidCommandf("share weight must not be negative")
	}
	return s.withConflictMapping(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, rev, err := s.openDraft(ctx, tx, transactionID, userID)
		if err != nil {
			return err
		}
		if weight == 0 {
			_, err := tx.DeleteShare(ctx, kind, transactionID, rev.ID, accountID)
			return err
		}
		if err := s.requireShareTarget(ctx, tx, txn.GroupID, accountID); err != nil {
			return err
		}
		details, err := tx.GetDetails(ctx, transactionID, rev.ID)
		if err != nil {
			return err
		}
		if details != nil {
			if err := checkShareCardinality(txn.Type, kind, details, accountID); err != nil {
				return err
			}
		}
		return tx.SetShare(ctx, kind, transactionID, rev.ID, accountID, weight)
	})
}

func (s *Service) switchShare(ctx context.Context, kind ShareKind, userID, transactionID, accountID int64, weight float64) error {
	if weight <= 0 {
		return shared.InvalidCommandf("switched share weight must be positive")
	}
	return s.withConflictMapping(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, rev, err := s.openDraft(ctx, tx, transactionID, userID)
		if err != nil {
			return err
		}
		if kind == ShareDebitor && txn.Type != TypeTransfer {
			return shared.InvalidCommandf("%s does not support switching the debitor share", txn.Type)
		}
		if err := s.requireShareTarget(ctx, tx, txn.GroupID, accountID); err != nil {
			return err
		}
		return tx.ReplaceShares(ctx, kind, transactionID, rev.ID, map[int64]float64{accountID: weight})
	})
}

func (s *Service) deleteShare(ctx context.Context, kind ShareKind, userID, transactionID, accountID int64) error {
	return s.withConflictMapping(ctx, func(ctx context.Context, tx TxRepository) error {
		_, rev, err := s.openDraft(ctx, tx, transactionID, userID)
		if err != nil {
			return err
		}
		removed, err := tx.DeleteShare(ctx, kind, transactionID, rev.ID, accountID)
		if err != nil {
			return err
		}
		if !removed {
			return shared.NotFoundf("no %s share for account %d on transaction %d", kind, accountID, transactionID)
		}
		return nil
	})
}

// CreatePurchaseItem adds a position to a purchase draft.
func (s *Service) CreatePurchaseItem(ctx context.Context, userID, transactionID int64, name string, price, communistShares float64) (int64, error) {
	if name == "" {
		return 0, shared.InvalidCommandf("purchase item name must not be empty")
	}
	if price < 0 || communistShares < 0 {
		return 0, shared.InvalidCommandf("purchase item price and communist shares must not be negative")
	}
	var itemID int64
	err := s.withConflictMapping(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, rev, err := s.openDraft(ctx, tx, transactionID, userID)
		if err != nil {
			return err
		}
		if txn.Type != TypePurchase {
			return shared.InvalidCommandf("%s transactions cannot have purchase items", txn.Type)
		}
		details, err := tx.GetDetails(ctx, transactionID, rev.ID)
		if err != nil {
			return err
		}
		if details != nil && details.SplitMode == ledger.SplitModeAbsolute {
			return shared.InvalidCommandf("absolute split does not allow purchase positions")
		}
		itemID, err = tx.InsertPurchaseItem(ctx, transactionID)
		if err != nil {
			return err
		}
		return tx.UpsertItemHistory(ctx, itemID, rev.ID, Position{
			Name:            name,
			Price:           price,
			CommunistShares: communistShares,
		})
	})
	if err != nil {
		return 0, err
	}
	return itemID, nil
}

// UpdatePurchaseItem changes a position's attributes in the caller's draft.
func (s *Service) UpdatePurchaseItem(ctx context.Context, userID, itemID int64, name string, price, communistShares float64) error {
	if name == "" {
		return shared.InvalidCommandf("purchase item name must not be empty")
	}
	if price < 0 || communistShares < 0 {
		return shared.InvalidCommandf("purchase item price and communist shares must not be negative")
	}
	return s.withItemDraft(ctx, userID, itemID, func(ctx context.Context, tx TxRepository, txn *Transaction, rev *ledger.Revision, position *Position) error {
		position.Name = name
		position.Price = price
		position.CommunistShares = communistShares
		return tx.UpsertItemHistory(ctx, itemID, rev.ID, *position)
	})
}

// AddOrChangeItemShare sets the usage share of an account on a position. A
// zero share prunes the entry.
func (s *Service) AddOrChangeItemShare(ctx context.Context, userID, itemID, accountID int64, share float64) error {
	if share < 0 {
		return shared.InvalidCommandf("usage share must not be negative")
	}
	return s.withItemDraft(ctx, userID, itemID, func(ctx context.Context, tx TxRepository, txn *Transaction, rev *ledger.Revision, position *Position) error {
		if share == 0 {
			_, err := tx.DeleteItemUsage(ctx, itemID, rev.ID, accountID)
			return err
		}
		if err := s.requireShareTarget(ctx, tx, txn.GroupID, accountID); err != nil {
			return err
		}
		return tx.SetItemUsage(ctx, itemID, rev.ID, accountID, share)
	})
}

// DeleteItemShare removes an account's usage share from a position.
func (s *Service) DeleteItemShare(ctx context.Context, userID, itemID, accountID int64) error {
	return s.withItemDraft(ctx, userID, itemID, func(ctx context.Context, tx TxRepository, txn *Transaction, rev *ledger.Revision, position *Position) error {
		removed, err := tx.DeleteItemUsage(ctx, itemID, rev.ID, accountID)
		if err != nil {
			return err
		}
		if !removed {
			return shared.NotFoundf("no usage share for account %d on item %d", accountID, itemID)
		}
		return nil
	})
}

// DeletePurchaseItem marks a position deleted in the caller's draft.
func (s *Service) DeletePurchaseItem(ctx context.Context, userID, itemID int64) error {
	return s.withItemDraft(ctx, userID, itemID, func(ctx context.Context, tx TxRepository, txn *Transaction, rev *ledger.Revision, position *Position) error {
		usages := position.Usages
		position.Deleted = true
		position.Usages = nil
		if err := tx.UpsertItemHistory(ctx, itemID, rev.ID, *position); err != nil {
			return err
		}
		for accountID := range usages {
			if _, err := tx.DeleteItemUsage(ctx, itemID, rev.ID, accountID); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns the merged committed + pending view of a transaction.
func (s *Service) Get(ctx context.Context, userID, transactionID int64) (*Transaction, error) {
	txn, err := s.repo.GetTransaction(ctx, transactionID, userID)
	if err != nil {
		return nil, err
	}
	membership, err := s.repo.GetMembership(ctx, txn.GroupID, userID)
	if err != nil {
		return nil, err
	}
	if err := group.Require(membership, false, false); err != nil {
		return nil, err
	}
	return txn, nil
}

// List returns merged views for all of the group's transactions.
func (s *Service) List(ctx context.Context, userID, groupID int64) ([]Transaction, error) {
	membership, err := s.repo.GetMembership(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if err := group.Require(membership, false, false); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, groupID, userID)
}

// openDraft runs the gate, blocks edits on deleted transactions and returns
// the caller's draft, creating it from the committed baseline if needed.
func (s *Service) openDraft(ctx context.Context, tx TxRepository, transactionID, userID int64) (*Transaction, *ledger.Revision, error) {
	txn, err := tx.GetTransactionRow(ctx, transactionID)
	if err != nil {
		return nil, nil, err
	}
	membership, err := tx.GetMembership(ctx, txn.GroupID, userID)
	if err != nil {
		return nil, nil, err
	}
	if err := group.Require(membership, true, false); err != nil {
		return nil, nil, err
	}
	baseline, err := tx.GetLatestCommittedRevision(ctx, transactionID)
	if err != nil {
		return nil, nil, err
	}
	if baseline != nil {
		committed, err := tx.GetDetails(ctx, transactionID, baseline.ID)
		if err != nil {
			return nil, nil, err
		}
		if committed != nil && committed.Deleted {
			return nil, nil, shared.InvalidCommandf("transaction %d is deleted", transactionID)
		}
	}
	rev, err := s.getOrCreateDraft(ctx, tx, transactionID, userID)
	if err != nil {
		return nil, nil, err
	}
	return txn, rev, nil
}

// getOrCreateDraft implements the draft lifecycle for transactions: reuse the
// user's open draft, otherwise branch off the latest committed revision and
// copy its rows forward.
func (s *Service) getOrCreateDraft(ctx context.Context, tx TxRepository, transactionID, userID int64) (*ledger.Revision, error) {
	if rev, err := tx.GetPendingRevision(ctx, transactionID, userID); err != nil {
		return nil, err
	} else if rev != nil {
		return rev, nil
	}
	baseline, err := tx.GetLatestCommittedRevision(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if baseline == nil {
		return nil, shared.InvalidCommandf("transaction %d has no committed baseline to branch from", transactionID)
	}
	rev, err := tx.InsertRevision(ctx, transactionID, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.CopyRevisionContent(ctx, transactionID, baseline.ID, rev.ID); err != nil {
		return nil, err
	}
	return rev, nil
}

func (s *Service) withItemDraft(ctx context.Context, userID, itemID int64, fn func(context.Context, TxRepository, *Transaction, *ledger.Revision, *Position) error) error {
	return s.withConflictMapping(ctx, func(ctx context.Context, tx TxRepository) error {
		transactionID, err := tx.GetItemTransaction(ctx, itemID)
		if err != nil {
			return err
		}
		txn, rev, err := s.openDraft(ctx, tx, transactionID, userID)
		if err != nil {
			return err
		}
		position, err := tx.GetPosition(ctx, itemID, rev.ID)
		if err != nil {
			return err
		}
		if position == nil {
			return shared.NotFoundf("purchase item %d in current draft", itemID)
		}
		if position.Deleted {
			return shared.InvalidCommandf("purchase item %d is deleted", itemID)
		}
		return fn(ctx, tx, txn, rev, position)
	})
}

// validateForCommit runs the share-set rules against the draft's content,
// checking referenced accounts against the committed state as of the commit
// transaction.
func (s *Service) validateForCommit(ctx context.Context, tx TxRepository, txn *Transaction, details *Details) error {
	if len(details.CreditorShares) == 0 {
		return shared.InvalidCommandf("transaction must have at least one creditor share")
	}
	if len(details.DebitorShares) == 0 {
		return shared.InvalidCommandf("transaction must have at least one debitor share")
	}
	switch txn.Type {
	case TypePurchase:
		if len(details.CreditorShares) > 1 {
			return shared.InvalidCommandf("a purchase may have at most one creditor share")
		}
	case TypeTransfer:
		if len(details.CreditorShares) != 1 || len(details.DebitorShares) != 1 {
			return shared.InvalidCommandf("a transfer must have exactly one creditor and one debitor share")
		}
	}

	hasPositions := false
	for _, p := range details.Positions {
		if !p.Deleted {
			hasPositions = true
			break
		}
	}
	if err := ledger.ValidateDebitorSum(details.SplitMode, details.DebitorShares, details.Value, hasPositions); err != nil {
		return err
	}

	for accountID := range details.CreditorShares {
		if err := s.requireShareTarget(ctx, tx, txn.GroupID, accountID); err != nil {
			return err
		}
	}
	for accountID := range details.DebitorShares {
		if err := s.requireShareTarget(ctx, tx, txn.GroupID, accountID); err != nil {
			return err
		}
	}
	for _, p := range details.Positions {
		if p.Deleted {
			continue
		}
		for accountID := range p.Usages {
			if err := s.requireShareTarget(ctx, tx, txn.GroupID, accountID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) requireShareTarget(ctx context.Context, tx TxRepository, groupID, accountID int64) error {
	exists, err := tx.CommittedAccountExists(ctx, groupID, accountID)
	if err != nil {
		return err
	}
	if !exists {
		return shared.NotFoundf("share target account %d", accountID)
	}
	return nil
}

func (s *Service) withConflictMapping(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := s.repo.WithTx(ctx, fn)
	if err != nil && db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", shared.ErrConflictOnCommit, err)
	}
	return err
}

func (s *Service) publish(ctx context.Context, groupID, transactionID int64) {
	if err := s.notifier.Notify(ctx, notify.NewEvent(groupID, notify.KindTransaction, transactionID)); err != nil && s.logger != nil {
		s.logger.Error("notify transaction commit", slog.Int64("transaction_id", transactionID), slog.Any("error", err))
	}
}

func detailsFromRequest(value float64, currencyIdentifier string, conversionRate float64, billedAt time.Time, description string, tags []string, splitMode ledger.SplitMode) (*Details, error) {
	if value <= 0 {
		return nil, shared.InvalidCommandf("transaction value must be positive")
	}
	if conversionRate <= 0 {
		return nil, shared.InvalidCommandf("currency conversion rate must be positive")
	}
	if _, err := currency.ParseISO(currencyIdentifier); err != nil {
		return nil, shared.InvalidCommandf("unknown currency %q", currencyIdentifier)
	}
	if billedAt.IsZero() {
		return nil, shared.InvalidCommandf("billed-at date must be set")
	}
	if splitMode == "" {
		splitMode = ledger.SplitModeShares
	}
	mode, err := ledger.ParseSplitMode(string(splitMode))
	if err != nil {
		return nil, err
	}
	return &Details{
		Value:                  value,
		CurrencyIdentifier:     currencyIdentifier,
		CurrencyConversionRate: conversionRate,
		BilledAt:               billedAt,
		Description:            description,
		Tags:                   tags,
		SplitMode:              mode,
	}, nil
}

// checkShareCardinality enforces the per-type share count rules at edit time
// so a draft cannot accumulate an uncommittable share set silently.
func checkShareCardinality(transactionType TransactionType, kind ShareKind, details *Details, accountID int64) error {
	current := details.CreditorShares
	if kind == ShareDebitor {
		current = details.DebitorShares
	}
	if _, ok := current[accountID]; ok {
		return nil
	}
	switch {
	case kind == ShareCreditor && len(current) >= 1:
		if transactionType == TypePurchase {
			return shared.InvalidCommandf("a purchase may have at most one creditor share")
		}
		return shared.InvalidCommandf("a transfer must have exactly one creditor share")
	case kind == ShareDebitor && transactionType == TypeTransfer && len(current) >= 1:
		return shared.InvalidCommandf("a transfer must have exactly one debitor share")
	}
	return nil
}
