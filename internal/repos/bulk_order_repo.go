package repos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"agrobulk/internal/domain"
)

type BulkOrderRepo struct{ db dbtx }

func NewBulkOrderRepo(db *sqlx.DB) *BulkOrderRepo { return &BulkOrderRepo{db: db} }

func (r *BulkOrderRepo) WithTx(tx *sqlx.Tx) *BulkOrderRepo { return &BulkOrderRepo{db: tx} }

const bulkOrderCols = `id, group_id, product_id, created_by, target_quantity, unit_price, total_amount,
	deadline, status, created_at, updated_at, finalized_at`

func (r *BulkOrderRepo) Create(ctx context.Context, b domain.BulkOrder) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bulk_orders(id, group_id, product_id, created_by, target_quantity, unit_price,
		  total_amount, deadline, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.GroupID, b.ProductID, b.CreatedBy, b.TargetQuantity, b.UnitPrice,
		b.TotalAmount, b.Deadline, b.Status, b.CreatedAt, b.UpdatedAt)
	return err
}

func (r *BulkOrderRepo) Get(ctx context.Context, id string) (domain.BulkOrder, error) {
	var b domain.BulkOrder
	err := r.db.GetContext(ctx, &b, `SELECT `+bulkOrderCols+` FROM bulk_orders WHERE id = ?`, id)
	return b, err
}

func (r *BulkOrderRepo) ListByGroup(ctx context.Context, groupID string) ([]domain.BulkOrder, error) {
	out := []domain.BulkOrder{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+bulkOrderCols+` FROM bulk_orders
		WHERE group_id = ?
		ORDER BY created_at DESC, id
	`, groupID)
	return out, err
}

// Finalize moves a collecting order to finalized with the aggregated quantity
// and total. It reports false when the order was no longer collecting.
func (r *BulkOrderRepo) Finalize(ctx context.Context, id string, quantity int, total decimal.Decimal, at domain.Timestamp) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bulk_orders
		SET status = 'finalized', target_quantity = ?, total_amount = ?, finalized_at = ?, updated_at = ?
		WHERE id = ? AND status = 'collecting'
	`, quantity, total, at, at, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// Cancel moves a collecting order to cancelled. It reports false when the
// order was no longer collecting.
func (r *BulkOrderRepo) Cancel(ctx context.Context, id string, at domain.Timestamp) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bulk_orders SET status = 'cancelled', updated_at = ?
		WHERE id = ? AND status = 'collecting'
	`, at, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}
