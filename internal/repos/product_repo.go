package repos

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"agrobulk/internal/domain"
)

// ErrInsufficientStock is returned by Decrement when the conditional update
// matched no row.
var ErrInsufficientStock = errors.New("insufficient stock")

type ProductRepo struct{ db dbtx }

func NewProductRepo(db *sqlx.DB) *ProductRepo { return &ProductRepo{db: db} }

func (r *ProductRepo) WithTx(tx *sqlx.Tx) *ProductRepo { return &ProductRepo{db: tx} }

const productCols = `id, seller_id, name, unit_type, unit_price, price_tiers, stock_quantity, active`

func (r *ProductRepo) Get(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := r.db.GetContext(ctx, &p, `SELECT `+productCols+` FROM products WHERE id = ?`, id)
	return p, err
}

func (r *ProductRepo) ListBySeller(ctx context.Context, sellerID string) ([]domain.Product, error) {
	out := []domain.Product{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+productCols+` FROM products
		WHERE seller_id = ?
		ORDER BY name
	`, sellerID)
	return out, err
}

// Upsert writes the catalog mirror row for p.
func (r *ProductRepo) Upsert(ctx context.Context, p domain.Product) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products(id, seller_id, name, unit_type, unit_price, price_tiers, stock_quantity, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  seller_id = excluded.seller_id,
		  name = excluded.name,
		  unit_type = excluded.unit_type,
		  unit_price = excluded.unit_price,
		  price_tiers = excluded.price_tiers,
		  stock_quantity = excluded.stock_quantity,
		  active = excluded.active
	`, p.ID, p.SellerID, p.Name, p.UnitType, p.UnitPrice, p.Tiers, p.StockQuantity, p.Active)
	return err
}

// Decrement atomically subtracts qty if enough stock exists and records the
// movement against orderID.
func (r *ProductRepo) Decrement(ctx context.Context, productID, orderID string, qty int, at domain.Timestamp) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - ?
		WHERE id = ? AND stock_quantity >= ?
	`, qty, productID, qty)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w for %s (need %d)", ErrInsufficientStock, productID, qty)
	}
	return r.recordMovement(ctx, productID, orderID, -qty, domain.MovementReserve, at)
}

// Restore gives qty back to the product. It returns ErrNotFound when the
// product row is gone.
func (r *ProductRepo) Restore(ctx context.Context, productID, orderID string, qty int, at domain.Timestamp) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE products SET stock_quantity = stock_quantity + ? WHERE id = ?
	`, qty, productID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return r.recordMovement(ctx, productID, orderID, qty, domain.MovementRestore, at)
}

func (r *ProductRepo) recordMovement(ctx context.Context, productID, orderID string, delta int, reason string, at domain.Timestamp) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stock_movements(id, product_id, order_id, delta, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), productID, orderID, delta, reason, at)
	return err
}

func (r *ProductRepo) Movements(ctx context.Context, productID string) ([]domain.StockMovement, error) {
	out := []domain.StockMovement{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, product_id, order_id, delta, reason, created_at
		FROM stock_movements
		WHERE product_id = ?
		ORDER BY created_at, rowid
	`, productID)
	return out, err
}
