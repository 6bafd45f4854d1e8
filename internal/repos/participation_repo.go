package repos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"agrobulk/internal/domain"
)

type ParticipationRepo struct{ db dbtx }

func NewParticipationRepo(db *sqlx.DB) *ParticipationRepo { return &ParticipationRepo{db: db} }

func (r *ParticipationRepo) WithTx(tx *sqlx.Tx) *ParticipationRepo { return &ParticipationRepo{db: tx} }

const participationCols = `id, bulk_order_id, member_id, quantity, unit_price, amount, payment_status, created_at, updated_at`

// Totals is the aggregate of a bulk order's participations.
type Totals struct {
	Quantity     int `db:"quantity"`
	Participants int `db:"participants"`
}

// Insert adds p only if the bulk order is still collecting and the new
// quantity fits under its target. The capacity check and the write are a
// single statement. It reports false when the condition did not hold.
func (r *ParticipationRepo) Insert(ctx context.Context, p domain.Participation) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO participations(id, bulk_order_id, member_id, quantity, unit_price, amount,
		  payment_status, created_at, updated_at)
		SELECT ?, b.id, ?, ?, ?, ?, ?, ?, ?
		FROM bulk_orders b
		WHERE b.id = ? AND b.status = 'collecting'
		  AND (SELECT COALESCE(SUM(quantity), 0) FROM participations WHERE bulk_order_id = b.id) + ? <= b.target_quantity
	`, p.ID, p.MemberID, p.Quantity, p.UnitPrice, p.Amount, p.PaymentStatus, p.CreatedAt, p.UpdatedAt,
		p.BulkOrderID, p.Quantity)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// UpdateQuantity changes the quantity of participation p, re-checking
// capacity against every other participation on the same bulk order in the
// same statement. It reports false when the condition did not hold.
func (r *ParticipationRepo) UpdateQuantity(ctx context.Context, p domain.Participation) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE participations
		SET quantity = ?, amount = ?, updated_at = ?
		WHERE id = ? AND member_id = ?
		  AND EXISTS (
		    SELECT 1 FROM bulk_orders b
		    WHERE b.id = participations.bulk_order_id AND b.status = 'collecting'
		      AND (SELECT COALESCE(SUM(o.quantity), 0) FROM participations o
		           WHERE o.bulk_order_id = b.id AND o.id <> participations.id) + ? <= b.target_quantity
		  )
	`, p.Quantity, p.Amount, p.UpdatedAt, p.ID, p.MemberID, p.Quantity)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// Delete removes participation id owned by memberID while its bulk order is
// collecting.
func (r *ParticipationRepo) Delete(ctx context.Context, id, memberID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM participations
		WHERE id = ? AND member_id = ?
		  AND EXISTS (SELECT 1 FROM bulk_orders b WHERE b.id = participations.bulk_order_id AND b.status = 'collecting')
	`, id, memberID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *ParticipationRepo) Get(ctx context.Context, id string) (domain.Participation, error) {
	var p domain.Participation
	err := r.db.GetContext(ctx, &p, `SELECT `+participationCols+` FROM participations WHERE id = ?`, id)
	return p, err
}

func (r *ParticipationRepo) ByMember(ctx context.Context, bulkOrderID, memberID string) (domain.Participation, error) {
	var p domain.Participation
	err := r.db.GetContext(ctx, &p, `
		SELECT `+participationCols+` FROM participations WHERE bulk_order_id = ? AND member_id = ?
	`, bulkOrderID, memberID)
	return p, err
}

func (r *ParticipationRepo) ListByBulkOrder(ctx context.Context, bulkOrderID string) ([]domain.Participation, error) {
	out := []domain.Participation{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+participationCols+` FROM participations
		WHERE bulk_order_id = ?
		ORDER BY created_at, id
	`, bulkOrderID)
	return out, err
}

// Totals sums quantities on bulkOrderID, optionally leaving out one participation.
func (r *ParticipationRepo) Totals(ctx context.Context, bulkOrderID, excludeID string) (Totals, error) {
	var t Totals
	err := r.db.GetContext(ctx, &t, `
		SELECT COALESCE(SUM(quantity), 0) AS quantity, COUNT(*) AS participants
		FROM participations
		WHERE bulk_order_id = ? AND id <> ?
	`, bulkOrderID, excludeID)
	return t, err
}

// TotalsByGroup returns collected totals for every bulk order of a group, keyed
// by bulk order id.
func (r *ParticipationRepo) TotalsByGroup(ctx context.Context, groupID string) (map[string]Totals, error) {
	var rows []struct {
		BulkOrderID string `db:"bulk_order_id"`
		Totals
	}
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT p.bulk_order_id, COALESCE(SUM(p.quantity), 0) AS quantity, COUNT(*) AS participants
		FROM participations p
		JOIN bulk_orders b ON b.id = p.bulk_order_id
		WHERE b.group_id = ?
		GROUP BY p.bulk_order_id
	`, groupID); err != nil {
		return nil, err
	}
	out := make(map[string]Totals, len(rows))
	for _, row := range rows {
		out[row.BulkOrderID] = row.Totals
	}
	return out, nil
}
