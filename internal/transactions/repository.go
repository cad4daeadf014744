package transactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splitpot/splitpot/internal/group"
	"github.com/splitpot/splitpot/internal/ledger"
	"github.com/splitpot/splitpot/internal/platform/db"
	"github.com/splitpot/splitpot/internal/shared"
)

// ShareKind selects which share table an operation touches.
type ShareKind string

const (
	ShareCreditor ShareKind = "creditor"
	ShareDebitor  ShareKind = "debitor"
)

func (k ShareKind) table() (string, error) {
	switch k {
	case ShareCreditor:
		return "creditor_shares", nil
	case ShareDebitor:
		return "debitor_shares", nil
	}
	return "", fmt.Errorf("transactions: unknown share kind %q", k)
}

// Repository encapsulates DB operations for transactions.
type Repository interface {
	GetTransaction(ctx context.Context, transactionID, userID int64) (*Transaction, error)
	ListTransactions(ctx context.Context, groupID, userID int64) ([]Transaction, error)
	GetMembership(ctx context.Context, groupID, userID int64) (*group.Membership, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the row operations available within a transaction.
type TxRepository interface {
	GetMembership(ctx context.Context, groupID, userID int64) (*group.Membership, error)

	InsertTransaction(ctx context.Context, groupID int64, transactionType TransactionType) (int64, error)
	GetTransactionRow(ctx context.Context, transactionID int64) (*Transaction, error)
	DeleteTransactionRow(ctx context.Context, transactionID int64) error

	GetPendingRevision(ctx context.Context, transactionID, userID int64) (*ledger.Revision, error)
	GetLatestCommittedRevision(ctx context.Context, transactionID int64) (*ledger.Revision, error)
	InsertRevision(ctx context.Context, transactionID, userID int64) (*ledger.Revision, error)
	CopyRevisionContent(ctx context.Context, transactionID, fromRevision, toRevision int64) error
	CommitRevision(ctx context.Context, revisionID int64) error
	DeleteRevision(ctx context.Context, transactionID, revisionID int64) error

	GetDetails(ctx context.Context, transactionID, revisionID int64) (*Details, error)
	UpsertDetails(ctx context.Context, transactionID, revisionID int64, details Details) error

	SetShare(ctx context.Context, kind ShareKind, transactionID, revisionID, accountID int64, weight float64) error
	DeleteShare(ctx context.Context, kind ShareKind, transactionID, revisionID, accountID int64) (bool, error)
	ReplaceShares(ctx context.Context, kind ShareKind, transactionID, revisionID int64, shares map[int64]float64) error

	InsertPurchaseItem(ctx context.Context, transactionID int64) (int64, error)
	GetItemTransaction(ctx context.Context, itemID int64) (int64, error)
	UpsertItemHistory(ctx context.Context, itemID, revisionID int64, position Position) error
	GetPosition(ctx context.Context, itemID, revisionID int64) (*Position, error)
	SetItemUsage(ctx context.Context, itemID, revisionID, accountID int64, share float64) error
	DeleteItemUsage(ctx context.Context, itemID, revisionID, accountID int64) (bool, error)

	CommittedAccountExists(ctx context.Context, groupID, accountID int64) (bool, error)
	AppendGroupLog(ctx context.Context, entry group.LogEntry) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres-backed transactions repository.
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

func (r *repository) GetTransaction(ctx context.Context, transactionID, userID int64) (*Transaction, error) {
	txn, err := scanTransactionRow(ctx, r.db, transactionID)
	if err != nil {
		return nil, err
	}
	if err := attachViews(ctx, r.db, txn, userID); err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *repository) ListTransactions(ctx context.Context, groupID, userID int64) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, `SELECT id, group_id, type FROM transactions WHERE group_id=$1 ORDER BY id ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.GroupID, &t.Type); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range txns {
		if err := attachViews(ctx, r.db, &txns[i], userID); err != nil {
			return nil, err
		}
	}
	return txns, nil
}

type txRepository struct {
	tx pgx.Tx
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *txRepository) GetMembership(ctx context.Context, groupID, userID int64) (*group.Membership, error) {
	return scanMembership(ctx, r.tx, groupID, userID)
}

func (r *txRepository) InsertTransaction(ctx context.Context, groupID int64, transactionType TransactionType) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO transactions (group_id, type) VALUES ($1, $2) RETURNING id`,
		groupID, transactionType).Scan(&id)
	return id, err
}

func (r *txRepository) GetTransactionRow(ctx context.Context, transactionID int64) (*Transaction, error) {
	return scanTransactionRow(ctx, r.tx, transactionID)
}

func (r *txRepository) DeleteTransactionRow(ctx context.Context, transactionID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM transactions WHERE id=$1`, transactionID)
	return err
}

func (r *txRepository) GetPendingRevision(ctx context.Context, transactionID, userID int64) (*ledger.Revision, error) {
	rev, err := scanRevision(ctx, r.tx, `SELECT id, transaction_id, user_id, started_at, committed_at
FROM transaction_revisions WHERE transaction_id=$1 AND user_id=$2 AND committed_at IS NULL`, transactionID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rev, nil
}

func (r *txRepository) GetLatestCommittedRevision(ctx context.Context, transactionID int64) (*ledger.Revision, error) {
	rev, err := scanRevision(ctx, r.tx, `SELECT id, transaction_id, user_id, started_at, committed_at
FROM transaction_revisions WHERE transaction_id=$1 AND committed_at IS NOT NULL ORDER BY committed_at DESC, id DESC LIMIT 1`, transactionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rev, nil
}

func (r *txRepository) InsertRevision(ctx context.Context, transactionID, userID int64) (*ledger.Revision, error) {
	var rev ledger.Revision
	rev.EntityID = transactionID
	rev.UserID = userID
	err := r.tx.QueryRow(ctx, `INSERT INTO transaction_revisions (transaction_id, user_id, started_at)
VALUES ($1, $2, NOW()) RETURNING id, started_at`, transactionID, userID).Scan(&rev.ID, &rev.StartedAt)
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

func (r *txRepository) CopyRevisionContent(ctx context.Context, transactionID, fromRevision, toRevision int64) error {
	statements := []string{
		`INSERT INTO transaction_history (transaction_id, revision_id, value, currency_identifier, currency_conversion_rate, billed_at, description, tags, split_mode, deleted)
SELECT transaction_id, $3, value, currency_identifier, currency_conversion_rate, billed_at, description, tags, split_mode, deleted
FROM transaction_history WHERE transaction_id=$1 AND revision_id=$2`,
		`INSERT INTO creditor_shares (transaction_id, revision_id, account_id, shares)
SELECT transaction_id, $3, account_id, shares FROM creditor_shares WHERE transaction_id=$1 AND revision_id=$2`,
		`INSERT INTO debitor_shares (transaction_id, revision_id, account_id, shares)
SELECT transaction_id, $3, account_id, shares FROM debitor_shares WHERE transaction_id=$1 AND revision_id=$2`,
		`INSERT INTO purchase_item_history (item_id, revision_id, name, price, communist_shares, deleted)
SELECT h.item_id, $3, h.name, h.price, h.communist_shares, h.deleted
FROM purchase_item_history h JOIN purchase_items i ON i.id = h.item_id
WHERE i.transaction_id=$1 AND h.revision_id=$2`,
		`INSERT INTO purchase_item_usages (item_id, revision_id, account_id, share_amount)
SELECT u.item_id, $3, u.account_id, u.share_amount
FROM purchase_item_usages u JOIN purchase_items i ON i.id = u.item_id
WHERE i.transaction_id=$1 AND u.revision_id=$2`,
	}
	for _, stmt := range statements {
		if _, err := r.tx.Exec(ctx, stmt, transactionID, fromRevision, toRevision); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) CommitRevision(ctx context.Context, revisionID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE transaction_revisions SET committed_at=NOW() WHERE id=$1 AND committed_at IS NULL`, revisionID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrConflictOnCommit
	}
	return nil
}

func (r *txRepository) DeleteRevision(ctx context.Context, transactionID, revisionID int64) error {
	statements := []string{
		`DELETE FROM purchase_item_usages u USING purchase_items i WHERE i.id = u.item_id AND i.transaction_id=$1 AND u.revision_id=$2`,
		`DELETE FROM purchase_item_history h USING purchase_items i WHERE i.id = h.item_id AND i.transaction_id=$1 AND h.revision_id=$2`,
		`DELETE FROM creditor_shares WHERE transaction_id=$1 AND revision_id=$2`,
		`DELETE FROM debitor_shares WHERE transaction_id=$1 AND revision_id=$2`,
		`DELETE FROM transaction_history WHERE transaction_id=$1 AND revision_id=$2`,
	}
	for _, stmt := range statements {
		if _, err := r.tx.Exec(ctx, stmt, transactionID, revisionID); err != nil {
			return err
		}
	}
	_, err := r.tx.Exec(ctx, `DELETE FROM transaction_revisions WHERE id=$2 AND transaction_id=$1 AND committed_at IS NULL`, transactionID, revisionID)
	return err
}

func (r *txRepository) GetDetails(ctx context.Context, transactionID, revisionID int64) (*Details, error) {
	return scanTransactionDetails(ctx, r.tx, transactionID, revisionID)
}

func (r *txRepository) UpsertDetails(ctx context.Context, transactionID, revisionID int64, details Details) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO transaction_history (transaction_id, revision_id, value, currency_identifier, currency_conversion_rate, billed_at, description, tags, split_mode, deleted)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (transaction_id, revision_id) DO UPDATE SET
	value=$3, currency_identifier=$4, currency_conversion_rate=$5, billed_at=$6, description=$7, tags=$8, split_mode=$9, deleted=$10`,
		transactionID, revisionID, details.Value, details.CurrencyIdentifier, details.CurrencyConversionRate,
		details.BilledAt, details.Description, details.Tags, string(details.SplitMode), details.Deleted)
	return err
}

func (r *txRepository) SetShare(ctx context.Context, kind ShareKind, transactionID, revisionID, accountID int64, weight float64) error {
	table, err := kind.table()
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `INSERT INTO `+table+` (transaction_id, revision_id, account_id, shares)
VALUES ($1, $2, $3, $4)
ON CONFLICT (transaction_id, revision_id, account_id) DO UPDATE SET shares=$4`,
		transactionID, revisionID, accountID, weight)
	return err
}

func (r *txRepository) DeleteShare(ctx context.Context, kind ShareKind, transactionID, revisionID, accountID int64) (bool, error) {
	table, err := kind.table()
	if err != nil {
		return false, err
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM `+table+` WHERE transaction_id=$1 AND revision_id=$2 AND account_id=$3`,
		transactionID, revisionID, accountID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *txRepository) ReplaceShares(ctx context.Context, kind ShareKind, transactionID, revisionID int64, shares map[int64]float64) error {
	table, err := kind.table()
	if err != nil {
		return err
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM `+table+` WHERE transaction_id=$1 AND revision_id=$2`, transactionID, revisionID); err != nil {
		return err
	}
	for accountID, weight := range shares {
		if _, err := r.tx.Exec(ctx, `INSERT INTO `+table+` (transaction_id, revision_id, account_id, shares)
VALUES ($1, $2, $3, $4)`, transactionID, revisionID, accountID, weight); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) InsertPurchaseItem(ctx context.Context, transactionID int64) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_items (transaction_id) VALUES ($1) RETURNING id`, transactionID).Scan(&id)
	return id, err
}

func (r *txRepository) GetItemTransaction(ctx context.Context, itemID int64) (int64, error) {
	var transactionID int64
	err := r.tx.QueryRow(ctx, `SELECT transaction_id FROM purchase_items WHERE id=$1`, itemID).Scan(&transactionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.NotFoundf("purchase item %d", itemID)
		}
		return 0, err
	}
	return transactionID, nil
}

func (r *txRepository) UpsertItemHistory(ctx context.Context, itemID, revisionID int64, position Position) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_item_history (item_id, revision_id, name, price, communist_shares, deleted)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (item_id, revision_id) DO UPDATE SET name=$3, price=$4, communist_shares=$5, deleted=$6`,
		itemID, revisionID, position.Name, position.Price, position.CommunistShares, position.Deleted)
	return err
}

func (r *txRepository) GetPosition(ctx context.Context, itemID, revisionID int64) (*Position, error) {
	var p Position
	p.ID = itemID
	err := r.tx.QueryRow(ctx, `SELECT name, price, communist_shares, deleted
FROM purchase_item_history WHERE item_id=$1 AND revision_id=$2`, itemID, revisionID).
		Scan(&p.Name, &p.Price, &p.CommunistShares, &p.Deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rows, err := r.tx.Query(ctx, `SELECT account_id, share_amount FROM purchase_item_usages WHERE item_id=$1 AND revision_id=$2`,
		itemID, revisionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var accountID int64
		var share float64
		if err := rows.Scan(&accountID, &share); err != nil {
			return nil, err
		}
		if p.Usages == nil {
			p.Usages = make(map[int64]float64)
		}
		p.Usages[accountID] = share
	}
	return &p, rows.Err()
}

func (r *txRepository) SetItemUsage(ctx context.Context, itemID, revisionID, accountID int64, share float64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_item_usages (item_id, revision_id, account_id, share_amount)
VALUES ($1, $2, $3, $4)
ON CONFLICT (item_id, revision_id, account_id) DO UPDATE SET share_amount=$4`,
		itemID, revisionID, accountID, share)
	return err
}

func (r *txRepository) DeleteItemUsage(ctx context.Context, itemID, revisionID, accountID int64) (bool, error) {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM purchase_item_usages WHERE item_id=$1 AND revision_id=$2 AND account_id=$3`,
		itemID, revisionID, accountID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
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

func scanTransactionRow(ctx context.Context, q querier, transactionID int64) (*Transaction, error) {
	var t Transaction
	err := q.QueryRow(ctx, `SELECT id, group_id, type FROM transactions WHERE id=$1`, transactionID).
		Scan(&t.ID, &t.GroupID, &t.Type)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFoundf("transaction %d", transactionID)
		}
		return nil, err
	}
	return &t, nil
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

func scanTransactionDetails(ctx context.Context, q querier, transactionID, revisionID int64) (*Details, error) {
	var d Details
	var splitMode string
	err := q.QueryRow(ctx, `SELECT value, currency_identifier, currency_conversion_rate, billed_at, description, tags, split_mode, deleted
FROM transaction_history WHERE transaction_id=$1 AND revision_id=$2`, transactionID, revisionID).
		Scan(&d.Value, &d.CurrencyIdentifier, &d.CurrencyConversionRate, &d.BilledAt, &d.Description, &d.Tags, &splitMode, &d.Deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	d.SplitMode = ledger.SplitMode(splitMode)

	d.CreditorShares, err = scanShares(ctx, q, "creditor_shares", transactionID, revisionID)
	if err != nil {
		return nil, err
	}
	d.DebitorShares, err = scanShares(ctx, q, "debitor_shares", transactionID, revisionID)
	if err != nil {
		return nil, err
	}
	d.Positions, err = scanPositions(ctx, q, transactionID, revisionID)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanShares(ctx context.Context, q querier, table string, transactionID, revisionID int64) (map[int64]float64, error) {
	rows, err := q.Query(ctx, `SELECT account_id, shares FROM `+table+` WHERE transaction_id=$1 AND revision_id=$2`,
		transactionID, revisionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var shares map[int64]float64
	for rows.Next() {
		var accountID int64
		var weight float64
		if err := rows.Scan(&accountID, &weight); err != nil {
			return nil, err
		}
		if shares == nil {
			shares = make(map[int64]float64)
		}
		shares[accountID] = weight
	}
	return shares, rows.Err()
}

func scanPositions(ctx context.Context, q querier, transactionID, revisionID int64) ([]Position, error) {
	rows, err := q.Query(ctx, `SELECT h.item_id, h.name, h.price, h.communist_shares, h.deleted
FROM purchase_item_history h
JOIN purchase_items i ON i.id = h.item_id
WHERE i.transaction_id=$1 AND h.revision_id=$2 ORDER BY h.item_id ASC`, transactionID, revisionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var positions []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.CommunistShares, &p.Deleted); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range positions {
		usageRows, err := q.Query(ctx, `SELECT account_id, share_amount FROM purchase_item_usages WHERE item_id=$1 AND revision_id=$2`,
			positions[i].ID, revisionID)
		if err != nil {
			return nil, err
		}
		for usageRows.Next() {
			var accountID int64
			var share float64
			if err := usageRows.Scan(&accountID, &share); err != nil {
				usageRows.Close()
				return nil, err
			}
			if positions[i].Usages == nil {
				positions[i].Usages = make(map[int64]float64)
			}
			positions[i].Usages[accountID] = share
		}
		if err := usageRows.Err(); err != nil {
			usageRows.Close()
			return nil, err
		}
		usageRows.Close()
	}
	return positions, nil
}

func attachViews(ctx context.Context, q querier, txn *Transaction, userID int64) error {
	rows, err := q.Query(ctx, `SELECT id, user_id, committed_at FROM transaction_revisions
WHERE transaction_id=$1 AND (committed_at IS NULL OR id = (
	SELECT r2.id FROM transaction_revisions r2
	WHERE r2.transaction_id=$1 AND r2.committed_at IS NOT NULL
	ORDER BY r2.committed_at DESC, r2.id DESC LIMIT 1
))`, txn.ID)
	if err != nil {
		return err
	}
	type revRef struct {
		id        int64
		userID    int64
		committed bool
	}
	var refs []revRef
	for rows.Next() {
		var ref revRef
		var committedAt *time.Time
		if err := rows.Scan(&ref.id, &ref.userID, &committedAt); err != nil {
			rows.Close()
			return err
		}
		ref.committed = committedAt != nil
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, ref := range refs {
		details, err := scanTransactionDetails(ctx, q, txn.ID, ref.id)
		if err != nil {
			return err
		}
		if details == nil {
			continue
		}
		if ref.committed {
			txn.Committed = details
			continue
		}
		if txn.PendingByUser == nil {
			txn.PendingByUser = make(map[int64]*Details)
		}
		txn.PendingByUser[ref.userID] = details
		if ref.userID == userID {
			txn.Pending = details
		}
	}
	return nil
}
