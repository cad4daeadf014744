package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/splitpot/splitpot/internal/group"
	"github.com/splitpot/splitpot/internal/ledger"
	"github.com/splitpot/splitpot/internal/notify"
	"github.com/splitpot/splitpot/internal/platform/db"
	"github.com/splitpot/splitpot/internal/shared"
)

// Service provides business logic for account operations. Every account
// mutation runs draft creation, validation and commit inside one serializable
// transaction; accounts have no long-lived drafts, unlike transactions.
type Service struct {
	repo     Repository
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewService constructs an accounts service.
func NewService(repo Repository, notifier notify.Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Service{repo: repo, notifier: notifier, logger: logger}
}

// CreateAccountRequest carries the attributes of a new account.
type CreateAccountRequest struct {
	GroupID        int64
	Type           AccountType
	Name           string
	Description    string
	ClearingShares map[int64]float64
	DateInfo       *time.Time
}

// UpdateAccountRequest carries replacement attributes for an account.
type UpdateAccountRequest struct {
	Name           string
	Description    string
	ClearingShares map[int64]float64
	DateInfo       *time.Time
}

// Create inserts a new account whose first revision is committed immediately.
func (s *Service) Create(ctx context.Context, userID int64, req CreateAccountRequest) (int64, error) {
	if req.Type != TypePersonal && req.Type != TypeClearing {
		return 0, shared.InvalidCommandf("unknown account type %q", req.Type)
	}
	if req.Name == "" {
		return 0, shared.InvalidCommandf("account name must not be empty")
	}
	if req.Type == TypePersonal && len(req.ClearingShares) > 0 {
		return 0, shared.InvalidCommandf("personal accounts cannot have clearing shares")
	}
	if err := ledger.ValidateWeights(req.ClearingShares); err != nil {
		return 0, err
	}
	shares := ledger.PruneZeroWeights(req.ClearingShares)

	var accountID int64
	err := s.withConflictMapping(ctx, func(ctx context.Context, tx TxRepository) error {
		membership, err := tx.GetMembership(ctx, req.GroupID, userID)
		if err != nil {
			return err
		}
		if err := group.Require(membership, true, false); err != nil {
			return err
		}

		accountID, err = tx.InsertAccount(ctx, req.GroupID, req.Type)
		if err != nil {
			return err
		}

		if req.Type == TypeClearing {
			if err := s.validateClearingShares(ctx, tx, req.GroupID, accountID, shares); err != nil {
				return err
			}
		}

		// First-time creation: insert the revision directly, there is no
		// committed baseline to branch from.
		rev, err := tx.InsertRevision(ctx, accountID, userID)
		if err != nil {
			return err
		}
		details := Details{
			Name:        req.Name,
			Description: req.Description,
			DateInfo:    req.DateInfo,
		}
		if err := tx.UpsertDetails(ctx, accountID, rev.ID, details); err != nil {
			return err
		}
		if req.Type == TypeClearing && len(shares) > 0 {
			if err := tx.ReplaceClearingShares(ctx, accountID, rev.ID, shares); err != nil {
				return err
			}
		}
		return s.commitDraft(ctx, tx, accountID, rev.ID, userID, req.GroupID, group.LogAccountCommitted, fmt.Sprintf("created account %q", req.Name))
	})
	if err != nil {
		return 0, err
	}
	s.publish(ctx, req.GroupID, accountID)
	return accountID, nil
}

// Update replaces the account's attributes through a fresh draft and commits
// it in the same unit of work.
func (s *Service) Update(ctx context.Context, userID, accountID int64, req UpdateAccountRequest) error {
	if req.Name == "" {
		return shared.InvalidCommandf("account name must not be empty")
	}
	if err := ledger.ValidateWeights(req.ClearingShares); err != nil {
		return err
	}
	shares := ledger.PruneZeroWeights(req.ClearingShares)

	var groupID int64
	err := s.withConflictMapping(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountRow(ctx, accountID)
		if err != nil {
			return err
		}
		groupID = account.GroupID
		membership, err := tx.GetMembership(ctx, account.GroupID, userID)
		if err != nil {
			return err
		}
		if err := group.Require(membership, true, false); err != nil {
			return err
		}
		if account.Type == TypePersonal && len(shares) > 0 {
			return shared.InvalidCommandf("personal accounts cannot have clearing shares")
		}
		if err := s.requireNotDeleted(ctx, tx, accountID); err != nil {
			return err
		}
		if account.Type == TypeClearing {
			if err := s.validateClearingShares(ctx, tx, account.GroupID, accountID, shares); err != nil {
				return err
			}
		}

		rev, err := s.getOrCreateDraft(ctx, tx, accountID, userID)
		if err != nil {
			return err
		}
		details := Details{
			Name:        req.Name,
			Description: req.Description,
			DateInfo:    req.DateInfo,
		}
		if err := tx.UpsertDetails(ctx, accountID, rev.ID, details); err != nil {
			return err
		}
		if err := tx.ReplaceClearingShares(ctx, accountID, rev.ID, shares); err != nil {
			return err
		}
		return s.commitDraft(ctx, tx, accountID, rev.ID, userID, account.GroupID, group.LogAccountCommitted, fmt.Sprintf("updated account %q", req.Name))
	})
	if err != nil {
		return err
	}
	s.publish(ctx, groupID, accountID)
	return nil
}

// Delete writes a terminal deleted=true history row, provided nothing in the
// group still references the account.
func (s *Service) Delete(ctx context.Context, userID, accountID int64) error {
	var groupID int64
	err := s.withConflictMapping(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountRow(ctx, accountID)
		if err != nil {
			return err
		}
		groupID = account.GroupID
		membership, err := tx.GetMembership(ctx, account.GroupID, userID)
		if err != nil {
			return err
		}
		if err := group.Require(membership, true, false); err != nil {
			return err
		}

		committed, err := s.latestCommittedDetails(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if committed == nil {
			return shared.InvalidCommandf("account %d has no committed baseline", accountID)
		}
		if committed.Deleted {
			return shared.InvalidCommandf("account %d is already deleted", accountID)
		}

		references, err := tx.CountAccountReferences(ctx, account.GroupID, accountID)
		if err != nil {
			return err
		}
		if references > 0 {
			return shared.InvalidCommandf("account %d is still referenced by %d share(s)", accountID, references)
		}

		rev, err := s.getOrCreateDraft(ctx, tx, accountID, userID)
		if err != nil {
			return err
		}
		details := *committed
		details.Deleted = true
		details.ClearingShares = nil
		if err := tx.UpsertDetails(ctx, accountID, rev.ID, details); err != nil {
			return err
		}
		if err := tx.ReplaceClearingShares(ctx, accountID, rev.ID, nil); err != nil {
			return err
		}
		return s.commitDraft(ctx, tx, accountID, rev.ID, userID, account.GroupID, group.LogAccountDeleted, fmt.Sprintf("deleted account %q", committed.Name))
	})
	if err != nil {
		return err
	}
	s.publish(ctx, groupID, accountID)
	return nil
}

// Get returns the merged committed + caller-pending view of an account.
func (s *Service) Get(ctx context.Context, userID, accountID int64) (*Account, error) {
	account, err := s.repo.GetAccount(ctx, accountID, userID)
	if err != nil {
		return nil, err
	}
	membership, err := s.repo.GetMembership(ctx, account.GroupID, userID)
	if err != nil {
		return nil, err
	}
	if err := group.Require(membership, false, false); err != nil {
		return nil, err
	}
	return account, nil
}

// List returns merged views for all of the group's accounts.
func (s *Service) List(ctx context.Context, userID, groupID int64) ([]Account, error) {
	membership, err := s.repo.GetMembership(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if err := group.Require(membership, false, false); err != nil {
		return nil, err
	}
	return s.repo.ListAccounts(ctx, groupID, userID)
}

// getOrCreateDraft implements the draft lifecycle: reuse the user's open
// draft, otherwise branch a new revision off the latest committed one and
// copy its rows forward.
func (s *Service) getOrCreateDraft(ctx context.Context, tx TxRepository, accountID, userID int64) (*ledger.Revision, error) {
	if rev, err := tx.GetPendingRevision(ctx, accountID, userID); err != nil {
		return nil, err
	} else if rev != nil {
		return rev, nil
	}
	baseline, err := tx.GetLatestCommittedRevision(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if baseline == nil {
		return nil, shared.InvalidCommandf("account %d has no committed baseline to branch from", accountID)
	}
	rev, err := tx.InsertRevision(ctx, accountID, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.CopyRevisionContent(ctx, accountID, baseline.ID, rev.ID); err != nil {
		return nil, err
	}
	return rev, nil
}

// commitDraft is the account-side commit coordinator: marks the revision
// committed, bumps the version counter and appends the group log entry.
func (s *Service) commitDraft(ctx context.Context, tx TxRepository, accountID, revisionID, userID, groupID int64, logType, message string) error {
	if err := tx.CommitRevision(ctx, revisionID); err != nil {
		return err
	}
	if _, err := tx.BumpVersion(ctx, accountID); err != nil {
		return err
	}
	return tx.AppendGroupLog(ctx, group.LogEntry{
		GroupID: groupID,
		UserID:  userID,
		Type:    logType,
		Message: message,
	})
}

func (s *Service) validateClearingShares(ctx context.Context, tx TxRepository, groupID, accountID int64, shares map[int64]float64) error {
	for target := range shares {
		exists, err := tx.CommittedAccountExists(ctx, groupID, target)
		if err != nil {
			return err
		}
		if !exists {
			return shared.NotFoundf("clearing share target account %d", target)
		}
	}
	edges, err := tx.CommittedClearingEdges(ctx, groupID)
	if err != nil {
		return err
	}
	return ledger.NewClearingGraph(edges).CheckAcyclic(accountID, shares)
}

func (s *Service) requireNotDeleted(ctx context.Context, tx TxRepository, accountID int64) error {
	committed, err := s.latestCommittedDetails(ctx, tx, accountID)
	if err != nil {
		return err
	}
	if committed != nil && committed.Deleted {
		return shared.InvalidCommandf("account %d is deleted", accountID)
	}
	return nil
}

func (s *Service) latestCommittedDetails(ctx context.Context, tx TxRepository, accountID int64) (*Details, error) {
	baseline, err := tx.GetLatestCommittedRevision(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if baseline == nil {
		return nil, nil
	}
	return tx.GetDetails(ctx, accountID, baseline.ID)
}

// withConflictMapping surfaces storage-level serialization failures as the
// retryable ErrConflictOnCommit.
func (s *Service) withConflictMapping(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := s.repo.WithTx(ctx, fn)
	if err != nil && db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", shared.ErrConflictOnCommit, err)
	}
	return err
}

func (s *Service) publish(ctx context.Context, groupID, accountID int64) {
	if err := s.notifier.Notify(ctx, notify.NewEvent(groupID, notify.KindAccount, accountID)); err != nil && s.logger != nil {
		s.logger.Error("notify account commit", slog.Int64("account_id", accountID), slog.Any("error", err))
	}
}
