package domain

import (
	"github.com/shopspring/decimal"
)

type MembershipStatus string

const MembershipActive MembershipStatus = "active"

type Group struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	AdminID     string    `db:"admin_id" json:"admin_id"`
	MemberLimit int       `db:"member_limit" json:"member_limit"`
	CreatedAt   Timestamp `db:"created_at" json:"created_at"`
}

type Membership struct {
	GroupID  string           `db:"group_id" json:"group_id"`
	UserID   string           `db:"user_id" json:"user_id"`
	Status   MembershipStatus `db:"status" json:"status"`
	JoinedAt Timestamp        `db:"joined_at" json:"joined_at"`
}

// Product is the local mirror of a catalog entry. The engine reads it and only
// ever touches stock_quantity.
type Product struct {
	ID            string          `db:"id" json:"id"`
	SellerID      string          `db:"seller_id" json:"seller_id"`
	Name          string          `db:"name" json:"name"`
	UnitType      string          `db:"unit_type" json:"unit_type"`
	UnitPrice     decimal.Decimal `db:"unit_price" json:"unit_price"`
	Tiers         TierSchedule    `db:"price_tiers" json:"price_tiers"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	Active        bool            `db:"active" json:"active"`
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type StockMovement struct {
	ID        string    `db:"id" json:"id"`
	ProductID string    `db:"product_id" json:"product_id"`
	OrderID   string    `db:"order_id" json:"order_id"`
	Delta     int       `db:"delta" json:"delta"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt Timestamp `db:"created_at" json:"created_at"`
}

const (
	MovementReserve = "order.confirm"
	MovementRestore = "order.cancel"
)

// Availability is the stock band shown next to a product.
type Availability struct {
	Status string `json:"status"`
	Qty    int    `json:"qty"`
}

const (
	InStock    = "IN_STOCK"
	LowStock   = "LOW_STOCK"
	OutOfStock = "OUT_OF_STOCK"
)
