package repos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"agrobulk/internal/domain"
)

type OrderRepo struct{ db dbtx }

func NewOrderRepo(db *sqlx.DB) *OrderRepo { return &OrderRepo{db: db} }

func (r *OrderRepo) WithTx(tx *sqlx.Tx) *OrderRepo { return &OrderRepo{db: tx} }

const orderCols = `id, buyer_id, product_id, quantity, unit_price, total_amount, status, payment_status,
	delivery_address, stock_reserved, created_at, updated_at`

// Create inserts a new order.
func (r *OrderRepo) Create(ctx context.Context, o domain.Order) error {
	_, err := r.db.ExecContext(ctx, `
	  INSERT INTO orders
	    (id, buyer_id, product_id, quantity, unit_price, total_amount, status, payment_status,
	     delivery_address, stock_reserved, created_at, updated_at)
	  VALUES
	    (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.BuyerID, o.ProductID, o.Quantity, o.UnitPrice, o.TotalAmount, o.Status, o.PaymentStatus,
		o.DeliveryAddress, o.StockReserved, o.CreatedAt, o.UpdatedAt)
	return err
}

func (r *OrderRepo) Get(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	err := r.db.GetContext(ctx, &o, `SELECT `+orderCols+` FROM orders WHERE id = ?`, id)
	return o, err
}

// ListByBuyer returns the buyer's orders, newest first.
func (r *OrderRepo) ListByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	out := []domain.Order{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+orderCols+` FROM orders
		WHERE buyer_id = ?
		ORDER BY created_at DESC, id
	`, buyerID)
	return out, err
}

// ListBySeller returns orders placed on products sold by sellerID.
func (r *OrderRepo) ListBySeller(ctx context.Context, sellerID string) ([]domain.Order, error) {
	out := []domain.Order{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT o.id, o.buyer_id, o.product_id, o.quantity, o.unit_price, o.total_amount, o.status,
		       o.payment_status, o.delivery_address, o.stock_reserved, o.created_at, o.updated_at
		FROM orders o
		JOIN products p ON p.id = o.product_id
		WHERE p.seller_id = ?
		ORDER BY o.created_at DESC, o.id
	`, sellerID)
	return out, err
}

// ListUnreconciled returns cancelled orders whose stock was never given back.
func (r *OrderRepo) ListUnreconciled(ctx context.Context) ([]domain.Order, error) {
	out := []domain.Order{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+orderCols+` FROM orders
		WHERE status = 'cancelled' AND stock_reserved = 1
		ORDER BY updated_at
	`)
	return out, err
}

// Transition moves order id from one status to another. The status check is
// part of the update so two callers cannot both win; it reports false when
// the order was no longer in from.
func (r *OrderRepo) Transition(ctx context.Context, id string, from, to domain.OrderStatus, stockReserved bool, at domain.Timestamp) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, stock_reserved = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, to, stockReserved, at, id, from)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// MarkRestored clears the stock reservation flag once stock has been given back.
func (r *OrderRepo) MarkRestored(ctx context.Context, id string, at domain.Timestamp) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET stock_reserved = 0, updated_at = ?
		WHERE id = ? AND stock_reserved = 1
	`, at, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *OrderRepo) UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus, at domain.Timestamp) error {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET payment_status = ?, updated_at = ? WHERE id = ?`, status, at, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
