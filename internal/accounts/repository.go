package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splitpot/splitpot/internal/group"
	"github.com/splitpot/splitpot/internal/ledger"
	"github.com/splitpot/splitpot/internal/platform/db"
	"github.com/splitpot/splitpot/internal/shared"
)

// Repository encapsulates DB operations for accounts.
type Repository interface {
	GetAccount(ctx context.Context, accountID, userID int64) (*Account, error)
	ListAccounts(ctx context.Context, groupID, userID int64) ([]Account, error)
	GetMembership(ctx context.Context, groupID, userID int64) (*group.Membership, error)
	// WithTx runs fn inside a serializable transaction; commits contend here
	// and the loser observes a serialization failure, never a silent overwrite.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the row operations available within a commit
// transaction.
type TxRepository interface {
	// GetMembership re-reads the capability row inside the transaction so the
	// gate never acts on a stale snapshot.
	GetMembership(ctx context.Context, groupID, userID int64) (*group.Membership, error)

	InsertAccount(ctx context.Context, groupID int64, accountType AccountType) (int64, error)
	GetAccountRow(ctx context.Context, accountID int64) (*Account, error)

	GetPendingRevision(ctx context.Context, accountID, userID int64) (*ledger.Revision, error)
	GetLatestCommittedRevision(ctx context.Context, accountID int64) (*ledger.Revision, error)
	InsertRevision(ctx context.Context, accountID, userID int64) (*ledger.Revision, error)
	CopyRevisionContent(ctx context.Context, accountID, fromRevision, toRevision int64) error
	CommitRevision(ctx context.Context, revisionID int64) error
	DeleteRevision(ctx context.Context, accountID, revisionID int64) error
	BumpVersion(ctx context.Context, accountID int64) (int64, error)

	GetDetails(ctx context.Context, accountID, revisionID int64) (*Details, error)
	UpsertDetails(ctx context.Context, accountID, revisionID int64, details Details) error
	ReplaceClearingShares(ctx context.Context, accountID, revisionID int64, shares map[int64]float64) error

	// CommittedClearingEdges returns the group's committed clearing graph as
	// account id -> referenced account ids. Read inside the commit transaction
	// to close the check/use race against concurrent edge insertions.
	CommittedClearingEdges(ctx context.Context, groupID int64) (map[int64][]int64, error)
	CommittedAccountExists(ctx context.Context, groupID, accountID int64) (bool, error)
	CountAccountReferences(ctx context.Context, groupID, accountID int64) (int64, error)

	AppendGroupLog(ctx context.Context, entry group.LogEntry) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres-backed accounts repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithSerializableTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) GetMembership(ctx context.Context, groupID, userID int64) (*group.Membership, error) {
	return scanMembership(ctx, r.db, groupID, userID)
}

func (r *repository) GetAccount(ctx context.Context, accountID, userID int64) (*Account, error) {
	account, err := scanAccountRow(ctx, r.db, accountID)
	if err != nil {
		return nil, err
	}
	if err := attachViews(ctx, r.db, account, userID); err != nil {
		return nil, err
	}
	return account, nil
}

func (r *repository) ListAccounts(ctx context.Context, groupID, userID int64) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT id, group_id, type, version FROM accounts WHERE group_id=$1 ORDER BY id ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.GroupID, &a.Type, &a.Version); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range accounts {
		if err := attachViews(ctx, r.db, &accounts[i], userID); err != nil {
			return nil, err
		}
	}
	return accounts, nil
}

type txRepository struct {
	tx pgx.Tx
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx so the read helpers
// serve the pool-level views and the in-transaction repository alike.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *txRepository) GetMembership(ctx context.Context, groupID, userID int64) (*group.Membership, error) {
	return scanMembership(ctx, r.tx, groupID, userID)
}

func (r *txRepository) InsertAccount(ctx context.Context, groupID int64, accountType AccountType) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO accounts (group_id, type, version) VALUES ($1, $2, 0) RETURNING id`,
		groupID, accountType).Scan(&id)
	return id, err
}

func (r *txRepository) GetAccountRow(ctx context.Context, accountID int64) (*Account, error) {
	return scanAccountRow(ctx, r.tx, accountID)
}

func (r *txRepository) GetPendingRevision(ctx context.Context, accountID, userID int64) (*ledger.Revision, error) {
	rev, err := scanRevision(ctx, r.tx, `SELECT id, account_id, user_id, started_at, committed_at
FROM account_revisions WHERE account_id=$1 AND user_id=$2 AND committed_at IS NULL`, accountID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rev, nil
}

func (r *txRepository) GetLatestCommittedRevision(ctx context.Context, accountID int64) (*ledger.Revision, error) {
	rev, err := scanRevision(ctx, r.tx, `SELECT id, account_id, user_id, started_at, committed_at
FROM account_revisions WHERE account_id=$1 AND committed_at IS NOT NULL ORDER BY committed_at DESC, id DESC LIMIT 1`, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rev, nil
}

func (r *txRepository) InsertRevision(ctx context.Context, accountID, userID int64) (*ledger.Revision, error) {
	var rev ledger.Revision
	rev.EntityID = accountID
	rev.UserID = userID
	err := r.tx.QueryRow(ctx, `INSERT INTO account_revisions (account_id, user_id, started_at)
VALUES ($1, $2, NOW()) RETURNING id, started_at`, accountID, userID).Scan(&rev.ID, &rev.StartedAt)
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

func (r *txRepository) CopyRevisionContent(ctx context.Context, accountID, fromRevision, toRevision int64) error {
	if _, err := r.tx.Exec(ctx, `INSERT INTO account_history (account_id, revision_id, name, description, deleted, date_info)
SELECT account_id, $3, name, description, deleted, date_info FROM account_history WHERE account_id=$1 AND revision_id=$2`,
		accountID, fromRevision, toRevision); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO clearing_shares (account_id, revision_id, share_account_id, shares)
SELECT account_id, $3, share_account_id, shares FROM clearing_shares WHERE account_id=$1 AND revision_id=$2`,
		accountID, fromRevision, toRevision)
	return err
}

func (r *txRepository) CommitRevision(ctx context.Context, revisionID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE account_revisions SET committed_at=NOW() WHERE id=$1 AND committed_at IS NULL`, revisionID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrConflictOnCommit
	}
	return nil
}

func (r *txRepository) DeleteRevision(ctx context.Context, accountID, revisionID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM clearing_shares WHERE account_id=$1 AND revision_id=$2`, accountID, revisionID); err != nil {
		return err
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM account_history WHERE account_id=$1 AND revision_id=$2`, accountID, revisionID); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `DELETE FROM account_revisions WHERE id=$1 AND committed_at IS NULL`, revisionID)
	return err
}

func (r *txRepository) BumpVersion(ctx context.Context, accountID int64) (int64, error) {
	var version int64
	err := r.tx.QueryRow(ctx, `UPDATE accounts SET version=version+1 WHERE id=$1 RETURNING version`, accountID).Scan(&version)
	return version, err
}

func (r *txRepository) GetDetails(ctx context.Context, accountID, revisionID int64) (*Details, error) {
	return scanDetails(ctx, r.tx, accountID, revisionID)
}

func (r *txRepository) UpsertDetails(ctx context.Context, accountID, revisionID int64, details Details) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO account_history (account_id, revision_id, name, description, deleted, date_info)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (account_id, revision_id) DO UPDATE SET name=$3, description=$4, deleted=$5, date_info=$6`,
		accountID, revisionID, details.Name, details.Description, details.Deleted, details.DateInfo)
	return err
}

func (r *txRepository) ReplaceClearingShares(ctx context.Context, accountID, revisionID int64, shares map[int64]float64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM clearing_shares WHERE account_id=$1 AND revision_id=$2`, accountID, revisionID); err != nil {
		return err
	}
	for target, weight := range shares {
		if _, err := r.tx.Exec(ctx, `INSERT INTO clearing_shares (account_id, revision_id, share_account_id, shares)
VALUES ($1, $2, $3, $4)`, accountID, revisionID, target, weight); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) CommittedClearingEdges(ctx context.Context, groupID int64) (map[int64][]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT cs.account_id, cs.share_account_id
FROM clearing_shares cs
JOIN accounts a ON a.id = cs.account_id
JOIN account_history h ON h.account_id = cs.account_id AND h.revision_id = cs.revision_id
WHERE a.group_id = $1 AND NOT h.deleted AND cs.revision_id = (
	SELECT r2.id FROM account_revisions r2
	WHERE r2.account_id = cs.account_id AND r2.committed_at IS NOT NULL
	ORDER BY r2.committed_at DESC, r2.id DESC LIMIT 1
)`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	edges := make(map[int64][]int64)
	for rows.Next() {
		var from, to int64
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		edges[from] = append(edges[from], to)
	}
	return edges, rows.Err()
}

func (r *txRepository) CommittedAccountExists(ctx context.Context, groupID, accountID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
	SELECT 1 FROM accounts a
	JOIN account_history h ON h.account_id = a.id
	JOIN account_revisions r ON r.id = h.revision_id
	WHERE a.id = $2 AND a.group_id = $1 AND NOT h.deleted AND r.committed_at IS NOT NULL
	AND r.id = (
		SELECT r2.id FROM account_revisions r2
		WHERE r2.account_id = a.id AND r2.committed_at IS NOT NULL
		ORDER BY r2.committed_at DESC, r2.id DESC LIMIT 1
	)
)`, groupID, accountID).Scan(&exists)
	return exists, err
}

// CountAccountReferences scans the whole group for committed or pending share
// rows pointing at the account: transaction creditor/debitor shares, purchase
// item usages and other accounts' clearing shares. Rows belonging to a deleted
// snapshot of their entity do not count.
func (r *txRepository) CountAccountReferences(ctx context.Context, groupID, accountID int64) (int64, error) {
	queries := []string{
		`SELECT COUNT(*) FROM creditor_shares s
JOIN transactions t ON t.id = s.transaction_id
JOIN transaction_history h ON h.transaction_id = s.transaction_id AND h.revision_id = s.revision_id
JOIN transaction_revisions r ON r.id = s.revision_id
WHERE t.group_id = $1 AND s.account_id = $2 AND NOT h.deleted AND (r.committed_at IS NULL OR r.id = (
	SELECT r2.id FROM transaction_revisions r2 WHERE r2.transaction_id = t.id AND r2.committed_at IS NOT NULL
	ORDER BY r2.committed_at DESC, r2.id DESC LIMIT 1))`,
		`SELECT COUNT(*) FROM debitor_shares s
JOIN transactions t ON t.id = s.transaction_id
JOIN transaction_history h ON h.transaction_id = s.transaction_id AND h.revision_id = s.revision_id
JOIN transaction_revisions r ON r.id = s.revision_id
WHERE t.group_id = $1 AND s.account_id = $2 AND NOT h.deleted AND (r.committed_at IS NULL OR r.id = (
	SELECT r2.id FROM transaction_revisions r2 WHERE r2.transaction_id = t.id AND r2.committed_at IS NOT NULL
	ORDER BY r2.committed_at DESC, r2.id DESC LIMIT 1))`,
		`SELECT COUNT(*) FROM purchase_item_usages u
JOIN purchase_items i ON i.id = u.item_id
JOIN transactions t ON t.id = i.transaction_id
JOIN purchase_item_history h ON h.item_id = u.item_id AND h.revision_id = u.revision_id
JOIN transaction_revisions r ON r.id = u.revision_id
WHERE t.group_id = $1 AND u.account_id = $2 AND NOT h.deleted AND (r.committed_at IS NULL OR r.id = (
	SELECT r2.id FROM transaction_revisions r2 WHERE r2.transaction_id = t.id AND r2.committed_at IS NOT NULL
	ORDER BY r2.committed_at DESC, r2.id DESC LIMIT 1))`,
		`SELECT COUNT(*) FROM clearing_shares s
JOIN accounts a ON a.id = s.account_id
JOIN account_history h ON h.account_id = s.account_id AND h.revision_id = s.revision_id
JOIN account_revisions r ON r.id = s.revision_id
WHERE a.group_id = $1 AND s.share_account_id = $2 AND NOT h.deleted AND (r.committed_at IS NULL OR r.id = (
	SELECT r2.id FROM account_revisions r2 WHERE r2.account_id = a.id AND r2.committed_at IS NOT NULL
	ORDER BY r2.committed_at DESC, r2.id DESC LIMIT 1))`,
	}
	var total int64
	for _, q := range queries {
		var count int64
		if err := r.tx.QueryRow(ctx, q, groupID, accountID).Scan(&count); err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

func (r *txRepository) AppendGroupLog(ctx context.Context, entry group.LogEntry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO group_log (group_id, user_id, type, message, affected_user_id, logged_at)
VALUES ($1, $2, $3, $4, $5, NOW())`, entry.GroupID, entry.UserID, entry.Type, entry.Message, entry.AffectedUserID)
	return err
}

// Shared scan helpers.

func scanMembership(ctx context.Context, q querier, groupID, userID int64) (*group.Membership, error) {
	var m group.Membership
	err := q.QueryRow(ctx, `SELECT group_id, user_id, can_write, is_owner, joined_at
FROM group_memberships WHERE group_id=$1 AND user_id=$2`, groupID, userID).
		Scan(&m.GroupID, &m.UserID, &m.CanWrite, &m.IsOwner, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFoundf("no membership for user %d in group %d", userID, groupID)
		}
		return nil, err
	}
	return &m, nil
}

func scanAccountRow(ctx context.Context, q querier, accountID int64) (*Account, error) {
	var a Account
	err := q.QueryRow(ctx, `SELECT id, group_id, type, version FROM accounts WHERE id=$1`, accountID).
		Scan(&a.ID, &a.GroupID, &a.Type, &a.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFoundf("account %d", accountID)
		}
		return nil, err
	}
	return &a, nil
}

func scanRevision(ctx context.Context, q querier, sql string, args ...any) (*ledger.Revision, error) {
	var rev ledger.Revision
	var committedAt *time.Time
	err := q.QueryRow(ctx, sql, args...).Scan(&rev.ID, &rev.EntityID, &rev.UserID, &rev.StartedAt, &committedAt)
	if err != nil {
		return nil, err
	}
	rev.CommittedAt = committedAt
	return &rev, nil
}

func scanDetails(ctx context.Context, q querier, accountID, revisionID int64) (*Details, error) {
	var d Details
	err := q.QueryRow(ctx, `SELECT name, description, deleted, date_info
FROM account_history WHERE account_id=$1 AND revision_id=$2`, accountID, revisionID).
		Scan(&d.Name, &d.Description, &d.Deleted, &d.DateInfo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT share_account_id, shares FROM clearing_shares WHERE account_id=$1 AND revision_id=$2`,
		accountID, revisionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var target int64
		var weight float64
		if err := rows.Scan(&target, &weight); err != nil {
			return nil, err
		}
		if d.ClearingShares == nil {
			d.ClearingShares = make(map[int64]float64)
		}
		d.ClearingShares[target] = weight
	}
	return &d, rows.Err()
}

func attachViews(ctx context.Context, q querier, account *Account, userID int64) error {
	var committedRevision, pendingRevision *int64
	err := q.QueryRow(ctx, `SELECT id FROM account_revisions
WHERE account_id=$1 AND committed_at IS NOT NULL ORDER BY committed_at DESC, id DESC LIMIT 1`, account.ID).
		Scan(&committedRevision)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	err = q.QueryRow(ctx, `SELECT id FROM account_revisions
WHERE account_id=$1 AND user_id=$2 AND committed_at IS NULL`, account.ID, userID).
		Scan(&pendingRevision)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if committedRevision != nil {
		details, err := scanDetails(ctx, q, account.ID, *committedRevision)
		if err != nil {
			return err
		}
		account.Committed = details
	}
	if pendingRevision != nil {
		details, err := scanDetails(ctx, q, account.ID, *pendingRevision)
		if err != nil {
			return err
		}
		account.Pending = details
	}
	return nil
}
