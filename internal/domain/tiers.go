package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Tier is one step of a volume price schedule.
type Tier struct {
	MinQuantity int             `json:"min_quantity"`
	Price       decimal.Decimal `json:"price"`
}

// TierSchedule maps a minimum quantity to the unit price that applies from it.
// It is persisted as a JSON object, e.g. {"10":"90","50":"80"}.
type TierSchedule map[int]decimal.Decimal

// Sorted returns usable tiers ordered by MinQuantity descending. Tiers with a
// minimum below one or a non-positive price are dropped.
func (s TierSchedule) Sorted() []Tier {
	out := make([]Tier, 0, len(s))
	for minQty, price := range s {
		if minQty < 1 || !price.IsPositive() {
			continue
		}
		out = append(out, Tier{MinQuantity: minQty, Price: price})
	}
	SortTiers(out)
	return out
}

// SortTiers orders tiers by MinQuantity descending; equal minimums put the
// lowest price first.
func SortTiers(tiers []Tier) {
	sort.SliceStable(tiers, func(i, j int) bool {
		if tiers[i].MinQuantity != tiers[j].MinQuantity {
			return tiers[i].MinQuantity > tiers[j].MinQuantity
		}
		return tiers[i].Price.LessThan(tiers[j].Price)
	})
}

func (s TierSchedule) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[int]decimal.Decimal(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *TierSchedule) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = TierSchedule{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("tier schedule: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*s = TierSchedule{}
		return nil
	}
	m := map[int]decimal.Decimal{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("tier schedule: %w", err)
	}
	*s = m
	return nil
}
