// Package pricing resolves the effective unit price for a quantity against a
// product's volume tier schedule. It has no side effects.
package pricing

import (
	"github.com/shopspring/decimal"

	"agrobulk/internal/domain"
)

// Quote is the outcome of a price resolution.
type Quote struct {
	Quantity       int             `json:"quantity"`
	BasePrice      decimal.Decimal `json:"base_price"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	AppliedTier    *domain.Tier    `json:"applied_tier,omitempty"`
	SavingsPerUnit decimal.Decimal `json:"savings_per_unit"`
}

// Total is UnitPrice × Quantity.
func (q Quote) Total() decimal.Decimal {
	return q.UnitPrice.Mul(decimal.NewFromInt(int64(q.Quantity)))
}

// ResolveUnitPrice walks the schedule from the largest minimum quantity down and
// returns the first tier whose minimum is met. Without a qualifying tier the
// base price applies.
func ResolveUnitPrice(base decimal.Decimal, schedule domain.TierSchedule, quantity int) Quote {
	return ResolveTiers(base, schedule.Sorted(), quantity)
}

// ResolveTiers is ResolveUnitPrice for a schedule given as a list. Duplicate
// minimum quantities resolve to the lowest price.
func ResolveTiers(base decimal.Decimal, tiers []domain.Tier, quantity int) Quote {
	sorted := make([]domain.Tier, 0, len(tiers))
	for _, t := range tiers {
		if t.MinQuantity >= 1 && t.Price.IsPositive() {
			sorted = append(sorted, t)
		}
	}
	domain.SortTiers(sorted)

	q := Quote{Quantity: quantity, BasePrice: base, UnitPrice: base, SavingsPerUnit: decimal.Zero}
	for _, t := range sorted {
		if t.MinQuantity <= quantity {
			tier := t
			q.UnitPrice = t.Price
			q.AppliedTier = &tier
			break
		}
	}
	if savings := base.Sub(q.UnitPrice); savings.IsPositive() {
		q.SavingsPerUnit = savings
	}
	return q
}

// Amount is unitPrice × quantity.
func Amount(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}
