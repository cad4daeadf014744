package group

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splitpot/splitpot/internal/shared"
)

// Repository encapsulates read access to memberships and the activity log.
type Repository interface {
	GetMembership(ctx context.Context, groupID, userID int64) (*Membership, error)
	ListMembers(ctx context.Context, groupID int64) ([]Membership, error)
	ListLog(ctx context.Context, groupID int64, limit, offset int) ([]LogEntry, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres-backed group repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) GetMembership(ctx context.Context, groupID, userID int64) (*Membership, error) {
	var m Membership
	err := r.db.QueryRow(ctx, `SELECT group_id, user_id, can_write, is_owner, joined_at
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

func (r *repository) ListMembers(ctx context.Context, groupID int64) ([]Membership, error) {
	rows, err := r.db.Query(ctx, `SELECT group_id, user_id, can_write, is_owner, joined_at
FROM group_memberships WHERE group_id=$1 ORDER BY joined_at ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.CanWrite, &m.IsOwner, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *repository) ListLog(ctx context.Context, groupID int64, limit, offset int) ([]LogEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, group_id, user_id, type, message, affected_user_id, logged_at
FROM group_log WHERE group_id=$1 ORDER BY logged_at DESC, id DESC LIMIT $2 OFFSET $3`, groupID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.GroupID, &e.UserID, &e.Type, &e.Message, &e.AffectedUserID, &e.LoggedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
