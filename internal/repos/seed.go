package repos

import (
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Seed inserts a demo cooperative, its members, and a few tiered products.
// Safe to run on every startup (idempotent).
func Seed(db *sqlx.DB, lg *zap.Logger) error {
	now := time.Now().UTC().UnixMilli()

	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.Get(&n, `SELECT COUNT(*) FROM products`); err != nil {
		return err
	}
	if n == 0 {
		lg.Info("seed: inserting demo cooperative and products")
	}

	if _, err := tx.Exec(`
		INSERT INTO products(id, seller_id, name, unit_type, unit_price, price_tiers, stock_quantity, active)
		VALUES
		  ('dap-50kg',  'u-agrovet', 'DAP Fertilizer 50kg',       'bag',    '3500', '{"10":"3300","50":"3100","100":"2900"}', 400, 1),
		  ('can-50kg',  'u-agrovet', 'CAN Top Dressing 50kg',     'bag',    '2800', '{"20":"2650","80":"2500"}',              250, 1),
		  ('maize-h614','u-seedco',  'Hybrid Maize Seed H614 2kg','packet', '650',  '{"25":"600","100":"560"}',               1000, 1)
		ON CONFLICT(id) DO NOTHING
	`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
		INSERT INTO groups(id, name, admin_id, member_limit, created_at)
		VALUES ('g-kiambu', 'Kiambu Dairy & Maize SACCO', 'u-wanjiku', 30, ?)
		ON CONFLICT(id) DO NOTHING
	`, now); err != nil {
		return err
	}

	for _, uid := range []string{"u-wanjiku", "u-otieno", "u-kamau", "u-achieng"} {
		if _, err := tx.Exec(`
			INSERT INTO memberships(group_id, user_id, status, joined_at)
			VALUES ('g-kiambu', ?, 'active', ?)
			ON CONFLICT(group_id, user_id) DO NOTHING
		`, uid, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}
