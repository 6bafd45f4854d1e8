package services

import (
	"context"

	"agrobulk/internal/domain"
	"agrobulk/internal/pricing"
	"agrobulk/internal/repos"
)

// lowStockBelow is the quantity under which a product shows as LOW_STOCK.
const lowStockBelow = 50

// CatalogService is the read side of the catalog mirror.
type CatalogService struct {
	Products *repos.ProductRepo
}

func NewCatalogService(products *repos.ProductRepo) *CatalogService {
	return &CatalogService{Products: products}
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.Products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, notFound(err, "product")
	}
	return p, nil
}

// CheckAvailability converts qty to IN_STOCK / LOW_STOCK / OUT_OF_STOCK.
// A missing or inactive product is out of stock.
func (s *CatalogService) CheckAvailability(ctx context.Context, id string) (domain.Availability, error) {
	p, err := s.Products.Get(ctx, id)
	if err != nil {
		if err == repos.ErrNotFound {
			return domain.Availability{Status: domain.OutOfStock}, nil
		}
		return domain.Availability{}, err
	}
	if !p.Active {
		return domain.Availability{Status: domain.OutOfStock}, nil
	}
	status := domain.OutOfStock
	switch {
	case p.StockQuantity >= lowStockBelow:
		status = domain.InStock
	case p.StockQuantity > 0:
		status = domain.LowStock
	}
	return domain.Availability{Status: status, Qty: p.StockQuantity}, nil
}

// Quote prices quantity units of the product without touching stock.
func (s *CatalogService) Quote(ctx context.Context, id string, quantity int) (pricing.Quote, error) {
	if quantity <= 0 {
		return pricing.Quote{}, invalid("quantity", "must be greater than zero")
	}
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return pricing.Quote{}, err
	}
	return pricing.ResolveUnitPrice(p.UnitPrice, p.Tiers, quantity), nil
}

// SellerProducts lists what sellerID has in the catalog.
func (s *CatalogService) SellerProducts(ctx context.Context, sellerID string) ([]domain.Product, error) {
	return s.Products.ListBySeller(ctx, sellerID)
}
