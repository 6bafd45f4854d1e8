package services_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrobulk/internal/domain"
	"agrobulk/internal/services"
)

func (e *env) bulkOrder(t *testing.T, groupID string, target int) domain.BulkOrder {
	t.Helper()
	b, err := e.bulk.Create(e.ctx, services.CreateBulkOrder{
		GroupID: groupID, ProductID: "dap-50kg", CreatorID: groupAdmin, TargetQuantity: target,
	})
	require.NoError(t, err)
	return b
}

func TestLedgerAdd_PricesAtBulkUnitPrice(t *testing.T) {
	e := newEnv(t)
	e.dap(t, 400)
	g := e.group(t, 10, "u-otieno")
	b := e.bulkOrder(t, g.ID, 60)

	p, err := e.ledger.Add(e.ctx, b.ID, "u-otieno", 5)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3100).Equal(p.UnitPrice), "unit price %s", p.UnitPrice)
	assert.True(t, decimal.NewFromInt(15500).Equal(p.Amount), "amount %s", p.Amount)
	assert.Equal(t, domain.PaymentPending, p.PaymentStatus)
	assert.Contains(t, e.events.Types(), "participation.added")
}

func TestLedgerAdd_DuplicateRejected(t *testing.T) {
	e := newEnv(t)
	e.dap(t, 400)
	g := e.group(t, 10, "u-otieno")
	b := e.bulkOrder(t, g.ID, 60)

	_, err := e.ledger.Add(e.ctx, b.ID, "u-otieno", 5)
	require.NoError(t, err)
	for range 2 {
		_, err = e.ledger.Add(e.ctx, b.ID, "u-otieno", 1)
		require.ErrorIs(t, err, services.ErrDuplicateParticipation)
	}
}

func TestLedgerAdd_CapacityExceededReportsRemaining(t *testing.T) {
	e := newEnv(t)
	e.dap(t, 400)
	g := e.group(t, 10, "u-otieno", "u-kamau")
	b := e.bulkOrder(t, g.ID, 20)

	_, err := e.ledger.Add(e.ctx, b.ID, "u-otieno", 15)
	require.NoError(t, err)

	_, err = e.ledger.Add(e.ctx, b.ID, "u-kamau", 6)
	var capErr *services.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 5, capErr.Remaining)
	assert.Equal(t, 6, capErr.Requested)
	assert.Equal(t, "CapacityExceeded", services.Kind(err))

	_, err = e.ledger.Add(e.ctx, b.ID, "u-kamau", 5)
	require.NoError(t, err)
}

func TestLedgerAdd_ConcurrentCallsNeverExceedTarget(t *testing.T) {
	e := newEnv(t)
	e.dap(t, 400)
	members := make([]string, 10)
	for i := range members {
		members[i] = fmt.Sprintf("u-member-%02d", i)
	}
	g := e.group(t, 20, members...)
	b := e.bulkOrder(t, g.ID, 10)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exceeded  int
	)
	for _, m := range members {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ledger.Add(e.ctx, b.ID, m, 3)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, services.ErrCapacityExceeded):
				exceeded++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 7, exceeded)
	got, err := e.bulk.Get(e.ctx, b.ID, groupAdmin)
	require.NoError(t, err)
	assert.Equal(t, 9, got.CollectedQuantity)
	assert.Equal(t, 1, got.RemainingCapacity)
}

func TestLedgerUpdate_ChecksCapacityExcludingItself(t *testing.T) {
	e := newEnv(t)
	e.dap(t, 400)
	g := e.group(t, 10, "u-otieno", "u-kamau")
	b := e.bulkOrder(t, g.ID, 20)

	mine, err := e.ledger.Add(e.ctx, b.ID, "u-otieno", 10)
	require.NoError(t, err)
	_, err = e.ledger.Add(e.ctx, b.ID, "u-kamau", 8)
	require.NoError(t, err)

	updated, err := e.ledger.Update(e.ctx, mine.ID, "u-otieno", 12)
	require.NoError(t, err)
	assert.Equal(t, 12, updated.Quantity)
	assert.True(t, decimal.NewFromInt(12*3300).Equal(updated.Amount))

	_, err = e.ledger.Update(e.ctx, mine.ID, "u-otieno", 13)
	var capErr *services.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 12, capErr.Remaining)
}

func TestLedger_OwnerAndMembershipChecks(t *testing.T) {
	e := newEnv(t)
	e.dap(t, 400)
	g := e.group(t, 10, "u-otieno", "u-kamau")
	b := e.bulkOrder(t, g.ID, 20)

	p, err := e.ledger.Add(e.ctx, b.ID, "u-otieno", 4)
	require.NoError(t, err)

	_, err = e.ledger.Update(e.ctx, p.ID, "u-kamau", 2)
	require.ErrorIs(t, err, services.ErrNotOwner)
	require.ErrorIs(t, err, services.ErrForbidden)
	require.ErrorIs(t, e.ledger.Remove(e.ctx, p.ID, "u-kamau"), services.ErrForbidden)

	_, err = e.ledger.Add(e.ctx, b.ID, "u-stranger", 1)
	require.ErrorIs(t, err, services.ErrNotMember)

	_, err = e.ledger.Add(e.ctx, b.ID, "u-kamau", 0)
	require.ErrorIs(t, err, services.ErrValidation)

	_, err = e.ledger.Update(e.ctx, "missing", "u-kamau", 1)
	require.ErrorIs(t, err, services.ErrNotFound)
}

func TestLedgerRemove_FreesCapacity(t *testing.T) {
	e := newEnv(t)
	e.dap(t, 400)
	g := e.group(t, 10, "u-otieno", "u-kamau")
	b := e.bulkOrder(t, g.ID, 10)

	p, err := e.ledger.Add(e.ctx, b.ID, "u-otieno", 10)
	require.NoError(t, err)
	require.NoError(t, e.ledger.Remove(e.ctx, p.ID, "u-otieno"))

	_, err = e.ledger.Add(e.ctx, b.ID, "u-kamau", 10)
	require.NoError(t, err)
	assert.Contains(t, e.events.Types(), "participation.removed")
}

func TestLedger_DeadlinePassed(t *testing.T) {
	e := newEnv(t)
	e.dap(t, 400)
	g := e.group(t, 10, "u-otieno", "u-kamau")
	b := e.bulkOrder(t, g.ID, 50)
	p, err := e.ledger.Add(e.ctx, b.ID, "u-otieno", 5)
	require.NoError(t, err)

	e.clock.Advance(services.DefaultCollectionWindow + time.Minute)

	_, err = e.ledger.Add(e.ctx, b.ID, "u-kamau", 1)
	require.ErrorIs(t, err, services.ErrDeadlinePassed)
	_, err = e.ledger.Update(e.ctx, p.ID, "u-otieno", 6)
	require.ErrorIs(t, err, services.ErrDeadlinePassed)
	require.ErrorIs(t, e.ledger.Remove(e.ctx, p.ID, "u-otieno"), services.ErrDeadlinePassed)

	// expiry blocks pledges only; the admin still closes the order explicitly
	final, err := e.bulk.Finalize(e.ctx, b.ID, groupAdmin)
	require.NoError(t, err)
	assert.Equal(t, domain.BulkFinalized, final.Status)
}
