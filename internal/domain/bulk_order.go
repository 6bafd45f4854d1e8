package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type BulkStatus string

const (
	BulkCollecting BulkStatus = "collecting"
	BulkFinalized  BulkStatus = "finalized"
	BulkCancelled  BulkStatus = "cancelled"
)

// Terminal reports whether the bulk order can no longer change.
func (s BulkStatus) Terminal() bool { return s == BulkFinalized || s == BulkCancelled }

type BulkOrder struct {
	ID             string          `db:"id" json:"id"`
	GroupID        string          `db:"group_id" json:"group_id"`
	ProductID      string          `db:"product_id" json:"product_id"`
	CreatedBy      string          `db:"created_by" json:"created_by"`
	TargetQuantity int             `db:"target_quantity" json:"target_quantity"`
	UnitPrice      decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	Deadline       Timestamp       `db:"deadline" json:"deadline"`
	Status         BulkStatus      `db:"status" json:"status"`
	CreatedAt      Timestamp       `db:"created_at" json:"created_at"`
	UpdatedAt      Timestamp       `db:"updated_at" json:"updated_at"`
	FinalizedAt    Timestamp       `db:"finalized_at" json:"finalized_at,omitzero"`
}

// Open reports whether participations may still change at now.
func (b BulkOrder) Open(now time.Time) bool {
	return b.Status == BulkCollecting && now.Before(b.Deadline.Time)
}

type Participation struct {
	ID            string          `db:"id" json:"id"`
	BulkOrderID   string          `db:"bulk_order_id" json:"bulk_order_id"`
	MemberID      string          `db:"member_id" json:"member_id"`
	Quantity      int             `db:"quantity" json:"quantity"`
	UnitPrice     decimal.Decimal `db:"unit_price" json:"unit_price"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	PaymentStatus PaymentStatus   `db:"payment_status" json:"payment_status"`
	CreatedAt     Timestamp       `db:"created_at" json:"created_at"`
	UpdatedAt     Timestamp       `db:"updated_at" json:"updated_at"`
}

// BulkOrderProgress is a bulk order together with what the ledger has collected.
type BulkOrderProgress struct {
	BulkOrder
	CollectedQuantity int             `json:"collected_quantity"`
	RemainingCapacity int             `json:"remaining_capacity"`
	Participants      int             `json:"participants"`
	TargetReached     bool            `json:"target_reached"`
	Participations    []Participation `json:"participations,omitempty"`
}
