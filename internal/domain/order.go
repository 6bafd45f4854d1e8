package domain

import "github.com/shopspring/decimal"

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderConfirmed, OrderCancelled},
	OrderConfirmed: {OrderShipped, OrderCancelled},
	OrderShipped:   {OrderDelivered},
	OrderDelivered: {},
	OrderCancelled: {},
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HoldsStock reports whether an order in this status has taken stock.
func (s OrderStatus) HoldsStock() bool { return s == OrderConfirmed || s == OrderShipped }

type Order struct {
	ID              string          `db:"id" json:"id"`
	BuyerID         string          `db:"buyer_id" json:"buyer_id"`
	ProductID       string          `db:"product_id" json:"product_id"`
	Quantity        int             `db:"quantity" json:"quantity"`
	UnitPrice       decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status          OrderStatus     `db:"status" json:"status"`
	PaymentStatus   PaymentStatus   `db:"payment_status" json:"payment_status"`
	DeliveryAddress string          `db:"delivery_address" json:"delivery_address"`
	StockReserved   bool            `db:"stock_reserved" json:"-"`
	CreatedAt       Timestamp       `db:"created_at" json:"created_at"`
	UpdatedAt       Timestamp       `db:"updated_at" json:"updated_at"`
}
