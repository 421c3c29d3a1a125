package product

import (
	"context"
	"fmt"

	"github.com/georgemunganga/stockwatch/internal/obs"
)

// Service defines tenant-scoped product operations.
type Service interface {
	GetProduct(ctx context.Context, tenantID, id string) (*Product, error)
	ListProducts(ctx context.Context, tenantID string) ([]Product, error)
	CreateProduct(ctx context.Context, tenantID string, req NewProduct) (*Product, error)
	UpdateProduct(ctx context.Context, tenantID, id string, patch *Patch) (*Product, error)
	AdjustStock(ctx context.Context, tenantID, id string, req AdjustStockRequest) (*Product, error)
	DeleteProduct(ctx context.Context, tenantID, id string) error
}

// AdjustStockRequest moves stock by Delta. Reason is recorded in the log only.
type AdjustStockRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason,omitempty"`
}

type service struct{ repo Repository }

// NewService creates a new product service.
func NewService(repo Repository) Service { return &service{repo: repo} }

func (s *service) GetProduct(ctx context.Context, tenantID, id string) (*Product, error) {
	p, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *service) ListProducts(ctx context.Context, tenantID string) ([]Product, error) {
	products := []Product{}
	for p, err := range s.repo.List(ctx, tenantID) {
		if err != nil {
			return nil, fmt.Errorf("list products of %s: %w", tenantID, err)
		}
		products = append(products, p)
	}
	return products, nil
}

func (s *service) CreateProduct(ctx context.Context, tenantID string, req NewProduct) (*Product, error) {
	p, err := s.repo.Create(ctx, req.draft(tenantID))
	if err != nil {
		return nil, err
	}
	obs.Logger.Info("product_created", "tenant_id", tenantID, "product_id", p.ProductID)
	return &p, nil
}

func (s *service) UpdateProduct(ctx context.Context, tenantID, id string, patch *Patch) (*Product, error) {
	p, err := s.repo.Update(ctx, tenantID, id, patch)
	if err != nil {
		return nil, err
	}
	obs.Logger.Info("product_updated", "tenant_id", tenantID, "product_id", id, "fields", patch.Fields())
	return &p, nil
}

func (s *service) AdjustStock(ctx context.Context, tenantID, id string, req AdjustStockRequest) (*Product, error) {
	if req.Delta == 0 {
		return nil, fmt.Errorf("%w: delta must not be zero", ErrBadRequest)
	}
	p, err := s.repo.Adjust(ctx, tenantID, id, req.Delta)
	if err != nil {
		return nil, err
	}
	obs.Logger.Info("stock_adjusted",
		"tenant_id", tenantID,
		"product_id", id,
		"delta", req.Delta,
		"reason", req.Reason,
		"stock", p.Stock,
	)
	return &p, nil
}

func (s *service) DeleteProduct(ctx context.Context, tenantID, id string) error {
	if _, err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	obs.Logger.Info("product_deleted", "tenant_id", tenantID, "product_id", id)
	return nil
}
