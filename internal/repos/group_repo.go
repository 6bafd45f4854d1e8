package repos

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"agrobulk/internal/domain"
)

// ErrGroupFull is returned by AddMember when the group is at its member limit.
var ErrGroupFull = errors.New("group is at its member limit")

type GroupRepo struct{ db dbtx }

func NewGroupRepo(db *sqlx.DB) *GroupRepo { return &GroupRepo{db: db} }

func (r *GroupRepo) WithTx(tx *sqlx.Tx) *GroupRepo { return &GroupRepo{db: tx} }

func (r *GroupRepo) Create(ctx context.Context, g domain.Group) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO groups(id, name, admin_id, member_limit, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, g.ID, g.Name, g.AdminID, g.MemberLimit, g.CreatedAt)
	return err
}

func (r *GroupRepo) Get(ctx context.Context, id string) (domain.Group, error) {
	var g domain.Group
	err := r.db.GetContext(ctx, &g, `
		SELECT id, name, admin_id, member_limit, created_at FROM groups WHERE id = ?
	`, id)
	return g, err
}

// AddMember inserts an active membership only while the active member count
// is below the group's limit. The count and the insert are one statement.
func (r *GroupRepo) AddMember(ctx context.Context, groupID, userID string, at domain.Timestamp) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO memberships(group_id, user_id, status, joined_at)
		SELECT g.id, ?, 'active', ?
		FROM groups g
		WHERE g.id = ?
		  AND (SELECT COUNT(*) FROM memberships m WHERE m.group_id = g.id AND m.status = 'active') < g.member_limit
	`, userID, at, groupID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrGroupFull
	}
	return nil
}

func (r *GroupRepo) RemoveMember(ctx context.Context, groupID, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM memberships WHERE group_id = ? AND user_id = ?`, groupID, userID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAdmin moves the admin role to userID when userID is an active member.
func (r *GroupRepo) SetAdmin(ctx context.Context, groupID, userID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE groups SET admin_id = ?
		WHERE id = ?
		  AND EXISTS (SELECT 1 FROM memberships WHERE group_id = ? AND user_id = ? AND status = 'active')
	`, userID, groupID, groupID, userID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GroupRepo) IsActiveMember(ctx context.Context, groupID, userID string) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM memberships WHERE group_id = ? AND user_id = ? AND status = 'active'
	`, groupID, userID)
	return n > 0, err
}

func (r *GroupRepo) IsAdmin(ctx context.Context, groupID, userID string) (bool, error) {
	var admin string
	err := r.db.GetContext(ctx, &admin, `SELECT admin_id FROM groups WHERE id = ?`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return admin == userID, nil
}

func (r *GroupRepo) Members(ctx context.Context, groupID string) ([]domain.Membership, error) {
	out := []domain.Membership{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT group_id, user_id, status, joined_at
		FROM memberships
		WHERE group_id = ?
		ORDER BY joined_at, user_id
	`, groupID)
	return out, err
}
