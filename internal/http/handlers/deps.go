package handlers

import (
	"github.com/jmoiron/sqlx"

	"agrobulk/internal/repos"
	"agrobulk/internal/services"
)

type Deps struct {
	GroupHandler     *GroupHandler
	BulkOrderHandler *BulkOrderHandler
	OrderHandler     *OrderHandler
	CatalogHandler   *CatalogHandler
}

func NewDeps(db *sqlx.DB, opts services.Options) *Deps {
	groupRepo := repos.NewGroupRepo(db)
	prodRepo := repos.NewProductRepo(db)
	bulkRepo := repos.NewBulkOrderRepo(db)
	partRepo := repos.NewParticipationRepo(db)
	orderRepo := repos.NewOrderRepo(db)

	groupSvc := services.NewGroupService(db, groupRepo, opts)
	bulkSvc := services.NewBulkOrderService(db, bulkRepo, partRepo, prodRepo, groupSvc, opts)
	ledger := services.NewParticipationLedger(db, bulkRepo, partRepo, groupSvc, opts)
	orderSvc := services.NewOrderService(db, orderRepo, prodRepo, opts)
	catalogSvc := services.NewCatalogService(prodRepo)

	return &Deps{
		GroupHandler:     &GroupHandler{Groups: groupSvc},
		BulkOrderHandler: &BulkOrderHandler{Bulk: bulkSvc, Ledger: ledger},
		OrderHandler:     &OrderHandler{Orders: orderSvc},
		CatalogHandler:   &CatalogHandler{Catalog: catalogSvc},
	}
}
