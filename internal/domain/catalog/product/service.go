package product

import (
	"context"
	"fmt"

	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/core/id"
	"lotkeeper/internal/core/types"
	"lotkeeper/pkg/numerator"
)

// Service provides business logic for the product catalog.
type Service struct {
	repo    Repository
	numbers *numerator.Service
}

func NewService(repo Repository, numbers *numerator.Service) *Service {
	return &Service{repo: repo, numbers: numbers}
}

// Create persists a new product, minting a code when none is given and
// rejecting duplicate barcodes.
func (s *Service) Create(ctx context.Context, p *Product) error {
	if err := p.Validate(ctx); err != nil {
		return err
	}
	if p.Code == "" {
		code, err := s.numbers.Next(ctx, "PRD")
		if err != nil {
			return fmt.Errorf("generate product code: %w", err)
		}
		p.Code = code
	}
	if err := s.checkBarcodeFree(ctx, p); err != nil {
		return err
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) Update(ctx context.Context, p *Product) error {
	if err := p.Validate(ctx); err != nil {
		return err
	}
	if err := s.checkBarcodeFree(ctx, p); err != nil {
		return err
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) Get(ctx context.Context, productID id.ID) (*Product, error) {
	return s.repo.GetByID(ctx, productID)
}

func (s *Service) GetByCode(ctx context.Context, code string) (*Product, error) {
	return s.repo.GetByCode(ctx, code)
}

func (s *Service) FindByBarcode(ctx context.Context, barcode string) (*Product, error) {
	return s.repo.FindByBarcode(ctx, barcode)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Product, error) {
	return s.repo.List(ctx, filter)
}

// DefaultPricing returns the catalog's fallback cost and price for a
// product. Satisfies returns.PricingSource.
func (s *Service) DefaultPricing(ctx context.Context, productID id.ID) (types.Money, types.Money, error) {
	p, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return types.ZeroMoney(), types.ZeroMoney(), err
	}
	return p.DefaultUnitCost, p.DefaultSellingPrice, nil
}

func (s *Service) checkBarcodeFree(ctx context.Context, p *Product) error {
	if p.Barcode == nil || *p.Barcode == "" {
		return nil
	}
	existing, err := s.repo.FindByBarcode(ctx, *p.Barcode)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil
		}
		return err
	}
	if existing.ID != p.ID {
		return apperror.NewConflict("product with this barcode already exists").
			WithDetail("barcode", *p.Barcode)
	}
	return nil
}
