package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrobulk/internal/domain"
	"agrobulk/internal/pricing"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func schedule() domain.TierSchedule {
	return domain.TierSchedule{10: d("90"), 50: d("80"), 100: d("70")}
}

func TestResolveUnitPrice_TierSelection(t *testing.T) {
	cases := []struct {
		qty     int
		want    string
		tierMin int
		savings string
	}{
		{qty: 5, want: "100", tierMin: 0, savings: "0"},
		{qty: 9, want: "100", tierMin: 0, savings: "0"},
		{qty: 10, want: "90", tierMin: 10, savings: "10"},
		{qty: 49, want: "90", tierMin: 10, savings: "10"},
		{qty: 60, want: "80", tierMin: 50, savings: "20"},
		{qty: 100, want: "70", tierMin: 100, savings: "30"},
		{qty: 150, want: "70", tierMin: 100, savings: "30"},
	}
	for _, tc := range cases {
		q := pricing.ResolveUnitPrice(d("100"), schedule(), tc.qty)
		assert.True(t, q.UnitPrice.Equal(d(tc.want)), "qty %d: got %s want %s", tc.qty, q.UnitPrice, tc.want)
		assert.True(t, q.SavingsPerUnit.Equal(d(tc.savings)), "qty %d savings: got %s", tc.qty, q.SavingsPerUnit)
		if tc.tierMin == 0 {
			assert.Nil(t, q.AppliedTier, "qty %d should not apply a tier", tc.qty)
		} else {
			require.NotNil(t, q.AppliedTier, "qty %d", tc.qty)
			assert.Equal(t, tc.tierMin, q.AppliedTier.MinQuantity)
		}
	}
}

func TestResolveUnitPrice_EmptySchedule(t *testing.T) {
	q := pricing.ResolveUnitPrice(d("12.50"), nil, 1000)
	assert.True(t, q.UnitPrice.Equal(d("12.50")))
	assert.Nil(t, q.AppliedTier)
	assert.True(t, q.Total().Equal(d("12500")))
}

func TestResolveUnitPrice_IgnoresInvalidTiers(t *testing.T) {
	s := domain.TierSchedule{0: d("1"), 5: d("0"), 20: d("95")}
	assert.True(t, pricing.ResolveUnitPrice(d("100"), s, 10).UnitPrice.Equal(d("100")))
	assert.True(t, pricing.ResolveUnitPrice(d("100"), s, 20).UnitPrice.Equal(d("95")))
}

func TestResolveTiers_TieTakesLowestPrice(t *testing.T) {
	tiers := []domain.Tier{
		{MinQuantity: 10, Price: d("90")},
		{MinQuantity: 10, Price: d("85")},
		{MinQuantity: 5, Price: d("95")},
	}
	q := pricing.ResolveTiers(d("100"), tiers, 12)
	assert.True(t, q.UnitPrice.Equal(d("85")))
}

func TestResolveUnitPrice_TierAboveBaseHasNoSavings(t *testing.T) {
	s := domain.TierSchedule{10: d("120")}
	q := pricing.ResolveUnitPrice(d("100"), s, 10)
	assert.True(t, q.UnitPrice.Equal(d("120")))
	assert.True(t, q.SavingsPerUnit.IsZero())
}
