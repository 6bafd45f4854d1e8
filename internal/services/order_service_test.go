package services_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"agrobulk/internal/domain"
	"agrobulk/internal/services"
)

func (e *env) order(t *testing.T, buyer string, qty int) domain.Order {
	t.Helper()
	o, err := e.orderSv.Create(e.ctx, services.CreateOrder{
		BuyerID: buyer, ProductID: "dap-50kg", Quantity: qty, DeliveryAddress: "Kiambu town, stall 4",
	})
	require.NoError(t, err)
	return o
}

func TestOrderCreate_PricesOnOwnQuantity(t *testing.T) {
	e := newEnv(t)
	e.dap(t, 400)

	small := e.order(t, "u-otieno", 5)
	assert.True(t, decimal.NewFromInt(3500).Equal(small.UnitPrice))
	big := e.order(t, "u-otieno", 60)
	assert.True(t, decimal.NewFromInt(3100).Equal(big.UnitPrice))
	assert.True(t, decimal.NewFromInt(3100*60).Equal(big.TotalAmount))
	assert.Equal(t, domain.OrderPending, big.Status)

	// pending orders hold no stock
	assert.Equal(t, 400, e.stock(t, "dap-50kg"))
}

func TestOrderCreate_Rejections(t *testing.T) {
	e := newEnv(t)
	p := e.dap(t, 10)

	_, err := e.orderSv.Create(e.ctx, services.CreateOrder{BuyerID: "u-otieno", ProductID: p.ID, Quantity: 0, DeliveryAddress: "x"})
	require.ErrorIs(t, err, services.ErrValidation)
	_, err = e.orderSv.Create(e.ctx, services.CreateOrder{BuyerID: "u-otieno", ProductID: p.ID, Quantity: 1, DeliveryAddress: "  "})
	var verr *services.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "delivery_address", verr.Field)
	_, err = e.orderSv.Create(e.ctx, services.CreateOrder{BuyerID: "u-otieno", ProductID: p.ID, Quantity: 11, DeliveryAddress: "x"})
	require.ErrorIs(t, err, services.ErrInsufficientStock)
	_, err = e.orderSv.Create(e.ctx, services.CreateOrder{BuyerID: "u-otieno", ProductID: "nope", Quantity: 1, DeliveryAddress: "x"})
	require.ErrorIs(t, err, services.ErrNotFound)

	p.Active = false
	require.NoError(t, e.products.Upsert(e.ctx, p))
	_, err = e.orderSv.Create(e.ctx, services.CreateOrder{BuyerID: "u-otieno", ProductID: p.ID, Quantity: 1, DeliveryAddress: "x"})
	require.ErrorIs(t, err, services.ErrInvalidState)
}

func TestOrder_StockRoundTrip(t *testing.T) {
	e := newEnv(t)
	e.dap(t, 100)
	o := e.order(t, "u-otieno", 30)

	_, err := e.orderSv.UpdateStatus(e.ctx, o.ID, seller, domain.OrderConfirmed)
	require.NoError(t, err)
	assert.Equal(t, 70, e.stock(t, "dap-50kg"))

	cancelled, err := e.orderSv.Cancel(e.ctx, o.ID, "u-otieno")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, cancelled.Status)
	assert.Equal(t, 100, e.stock(t, "dap-50kg"))

	moves, err := e.products.Movements(e.ctx, "dap-50kg")
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, -30, moves[0].Delta)
	assert.Equal(t, 30, moves[1].Delta)

	pending, err := e.orderSv.Unreconciled(e.ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOrder_CancelPendingLeavesStockAlone(t *testing.T) {
	e := newEnv(t)
	e.dap(t, 100)
	o := e.order(t, "u-otieno", 30)

	_, err := e.orderSv.Cancel(e.ctx, o.ID, "u-otieno")
	require.NoError(t, err)
	assert.Equal(t, 100, e.stock(t, "dap-50kg"))
	moves, err := e.products.Movements(e.ctx, "dap-50kg")
	require.NoError(t, err)
	assert.Empty(t, moves)
}

func TestOrder_InvalidTransitions(t *testing.T) {
	e := newEnv(t)
	e.dap(t, 100)
	o := e.order(t, "u-otieno", 3)

	_, err := e.orderSv.UpdateStatus(e.ctx, o.ID, seller, domain.OrderShipped)
	var terr *services.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.OrderPending, terr.From)
	assert.Equal(t, domain.OrderShipped, terr.To)

	for _, next := range []domain.OrderStatus{domain.OrderConfirmed, domain.OrderShipped, domain.OrderDelivered} {
		_, err = e.orderSv.UpdateStatus(e.ctx, o.ID, seller, next)
		require.NoError(t, err)
	}
	_, err = e.orderSv.Cancel(e.ctx, o.ID, "u-otieno")
	require.ErrorIs(t, err, services.ErrInvalidTransition)
	_, err = e.orderSv.UpdateStatus(e.ctx, o.ID, seller, "lost")
	require.ErrorIs(t, err, services.ErrValidation)

	// delivered orders keep their stock
	assert.Equal(t, 97, e.stock(t, "dap-50kg"))
}

func TestOrder_OnlyBuyerOrSellerMayChangeIt(t *testing.T) {
	e := newEnv(t)
	e.dap(t, 100)
	o := e.order(t, "u-otieno", 3)

	_, err := e.orderSv.UpdateStatus(e.ctx, o.ID, "u-kamau", domain.OrderConfirmed)
	require.ErrorIs(t, err, services.ErrForbidden)
	_, err = e.orderSv.Get(e.ctx, o.ID, "u-kamau")
	require.ErrorIs(t, err, services.ErrForbidden)

	got, err := e.orderSv.Get(e.ctx, o.ID, seller)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = e.orderSv.RecordPayment(e.ctx, o.ID, "u-otieno", domain.PaymentPaid)
	require.ErrorIs(t, err, services.ErrForbidden)
	paid, err := e.orderSv.RecordPayment(e.ctx, o.ID, seller, domain.PaymentPaid)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, paid.PaymentStatus)
}

func TestOrder_ConcurrentConfirmsNeverOversell(t *testing.T) {
	e := newEnv(t)
	e.dap(t, 10)
	orders := make([]domain.Order, 5)
	for i := range orders {
		orders[i] = e.order(t, "u-otieno", 3)
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		confirmed    int
		insufficient int
	)
	for _, o := range orders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.orderSv.UpdateStatus(e.ctx, o.ID, seller, domain.OrderConfirmed)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				confirmed++
			case errors.Is(err, services.ErrInsufficientStock):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, confirmed)
	assert.Equal(t, 2, insufficient)
	assert.Equal(t, 1, e.stock(t, "dap-50kg"))

	// losers rolled back and are still pending
	list, err := e.orderSv.ListForUser(e.ctx, "u-otieno", false)
	require.NoError(t, err)
	pending := 0
	for _, o := range list {
		if o.Status == domain.OrderPending {
			pending++
		}
	}
	assert.Equal(t, 2, pending)
}

func TestOrder_RestoreFailureIsSurfacedAndReconciled(t *testing.T) {
	e := newEnv(t)
	e.dap(t, 50)
	o := e.order(t, "u-otieno", 20)
	_, err := e.orderSv.UpdateStatus(e.ctx, o.ID, seller, domain.OrderConfirmed)
	require.NoError(t, err)

	_, err = e.db.Exec(`
		CREATE TRIGGER block_restore BEFORE UPDATE OF stock_quantity ON products
		WHEN NEW.stock_quantity > OLD.stock_quantity
		BEGIN SELECT RAISE(ABORT, 'restore blocked'); END`)
	require.NoError(t, err)

	cancelled, err := e.orderSv.Cancel(e.ctx, o.ID, "u-otieno")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, cancelled.Status)
	assert.Equal(t, 30, e.stock(t, "dap-50kg"))

	warnings := e.logs.FilterLevelExact(zapcore.WarnLevel).FilterField(zap.String("inconsistency", "stock_restore"))
	require.Equal(t, 1, warnings.Len())
	assert.Equal(t, o.ID, warnings.All()[0].ContextMap()["order_id"])

	pending, err := e.orderSv.Unreconciled(e.ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = e.db.Exec(`DROP TRIGGER block_restore`)
	require.NoError(t, err)
	n, err := e.orderSv.Reconcile(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 50, e.stock(t, "dap-50kg"))

	n, err = e.orderSv.Reconcile(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOrderListForUser_SellerView(t *testing.T) {
	e := newEnv(t)
	e.dap(t, 100)
	e.order(t, "u-otieno", 3)
	e.order(t, "u-kamau", 4)

	mine, err := e.orderSv.ListForUser(e.ctx, "u-kamau", false)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	sold, err := e.orderSv.ListForUser(e.ctx, seller, true)
	require.NoError(t, err)
	assert.Len(t, sold, 2)
}
