package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"agrobulk/internal/domain"
	"agrobulk/internal/events"
	"agrobulk/internal/repos"
	"agrobulk/internal/services"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type env struct {
	ctx      context.Context
	db       *sqlx.DB
	clock    *clock
	events   *events.Recorder
	logs     *observer.ObservedLogs
	products *repos.ProductRepo
	orders   *repos.OrderRepo

	groups  *services.GroupService
	bulk    *services.BulkOrderService
	ledger  *services.ParticipationLedger
	orderSv *services.OrderService
	catalog *services.CatalogService
}

const (
	groupAdmin = "u-wanjiku"
	seller     = "u-agrovet"
)

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	core, logs := observer.New(zapcore.InfoLevel)
	e := &env{
		ctx:      context.Background(),
		db:       db,
		clock:    &clock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)},
		events:   &events.Recorder{},
		logs:     logs,
		products: repos.NewProductRepo(db),
		orders:   repos.NewOrderRepo(db),
	}
	opts := services.Options{Log: zap.New(core), Events: e.events, Now: e.clock.Now}

	groupRepo := repos.NewGroupRepo(db)
	bulkRepo := repos.NewBulkOrderRepo(db)
	partRepo := repos.NewParticipationRepo(db)
	e.groups = services.NewGroupService(db, groupRepo, opts)
	e.bulk = services.NewBulkOrderService(db, bulkRepo, partRepo, e.products, e.groups, opts)
	e.ledger = services.NewParticipationLedger(db, bulkRepo, partRepo, e.groups, opts)
	e.orderSv = services.NewOrderService(db, e.orders, e.products, opts)
	e.catalog = services.NewCatalogService(e.products)
	return e
}

// dap is 3500 a bag with tiers at 10, 50 and 100 bags.
func (e *env) dap(t *testing.T, stock int) domain.Product {
	t.Helper()
	p := domain.Product{
		ID:        "dap-50kg",
		SellerID:  seller,
		Name:      "DAP Fertilizer 50kg",
		UnitType:  "bag",
		UnitPrice: decimal.NewFromInt(3500),
		Tiers: domain.TierSchedule{
			10:  decimal.NewFromInt(3300),
			50:  decimal.NewFromInt(3100),
			100: decimal.NewFromInt(2900),
		},
		StockQuantity: stock,
		Active:        true,
	}
	require.NoError(t, e.products.Upsert(e.ctx, p))
	return p
}

// group creates a cooperative administered by groupAdmin with the given
// extra members.
func (e *env) group(t *testing.T, limit int, members ...string) domain.Group {
	t.Helper()
	g, err := e.groups.Create(e.ctx, groupAdmin, "Kiambu SACCO", limit)
	require.NoError(t, err)
	for _, m := range members {
		require.NoError(t, e.groups.Join(e.ctx, g.ID, m))
	}
	return g
}

func (e *env) stock(t *testing.T, productID string) int {
	t.Helper()
	p, err := e.products.Get(e.ctx, productID)
	require.NoError(t, err)
	return p.StockQuantity
}
