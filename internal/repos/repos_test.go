package repos

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"agrobulk/internal/domain"
)

func memdb(t *testing.T) *ProductRepo {
	t.Helper()
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Seed(db, zap.NewNop()))
	return NewProductRepo(db)
}

func TestSeedIsIdempotentAndDecodesTiers(t *testing.T) {
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Seed(db, zap.NewNop()))
	require.NoError(t, Seed(db, zap.NewNop()))

	p, err := NewProductRepo(db).Get(context.Background(), "dap-50kg")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3500).Equal(p.UnitPrice))
	assert.Len(t, p.Tiers, 3)
	assert.True(t, p.Active)

	members, err := NewGroupRepo(db).Members(context.Background(), "g-kiambu")
	require.NoError(t, err)
	assert.Len(t, members, 4)
}

func TestDecrementNeverGoesNegative(t *testing.T) {
	products := memdb(t)
	ctx := context.Background()
	at := domain.At(time.Now())

	require.NoError(t, products.Decrement(ctx, "can-50kg", "o-1", 200, at))
	err := products.Decrement(ctx, "can-50kg", "o-2", 51, at)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.NoError(t, products.Restore(ctx, "can-50kg", "o-1", 200, at))

	p, err := products.Get(ctx, "can-50kg")
	require.NoError(t, err)
	assert.Equal(t, 250, p.StockQuantity)

	moves, err := products.Movements(ctx, "can-50kg")
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, domain.MovementReserve, moves[0].Reason)
	assert.Equal(t, domain.MovementRestore, moves[1].Reason)

	require.ErrorIs(t, products.Restore(ctx, "missing", "o-3", 1, at), ErrNotFound)
}

func TestGroupMembershipLimit(t *testing.T) {
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	defer db.Close()
	groups := NewGroupRepo(db)
	ctx := context.Background()
	at := domain.At(time.Now())

	require.NoError(t, groups.Create(ctx, domain.Group{ID: "g-1", Name: "Nyeri", AdminID: "u-a", MemberLimit: 2, CreatedAt: at}))
	require.NoError(t, groups.AddMember(ctx, "g-1", "u-a", at))
	require.NoError(t, groups.AddMember(ctx, "g-1", "u-b", at))
	require.ErrorIs(t, groups.AddMember(ctx, "g-1", "u-c", at), ErrGroupFull)

	require.ErrorIs(t, groups.SetAdmin(ctx, "g-1", "u-c"), ErrNotFound)
	require.NoError(t, groups.SetAdmin(ctx, "g-1", "u-b"))
	admin, err := groups.IsAdmin(ctx, "g-1", "u-b")
	require.NoError(t, err)
	assert.True(t, admin)
}

func TestOpenDBFileAppliesPragmas(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "agrobulk.db"))
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.Get(&mode, `PRAGMA journal_mode`))
	assert.Equal(t, "wal", mode)
	var fk int
	require.NoError(t, db.Get(&fk, `PRAGMA foreign_keys`))
	assert.Equal(t, 1, fk)
}
