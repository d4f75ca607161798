package location

import (
	"context"
	"fmt"

	"lotkeeper/internal/core/id"
	"lotkeeper/pkg/numerator"
)

// Service provides business logic for the location catalog.
type Service struct {
	repo    Repository
	numbers *numerator.Service
}

func NewService(repo Repository, numbers *numerator.Service) *Service {
	return &Service{repo: repo, numbers: numbers}
}

func (s *Service) Create(ctx context.Context, l *Location) error {
	if err := l.Validate(ctx); err != nil {
		return err
	}
	if l.Code == "" {
		code, err := s.numbers.Next(ctx, "LOC")
		if err != nil {
			return fmt.Errorf("generate location code: %w", err)
		}
		l.Code = code
	}
	return s.repo.Create(ctx, l)
}

func (s *Service) Update(ctx context.Context, l *Location) error {
	if err := l.Validate(ctx); err != nil {
		return err
	}
	return s.repo.Update(ctx, l)
}

func (s *Service) Get(ctx context.Context, locationID id.ID) (*Location, error) {
	return s.repo.GetByID(ctx, locationID)
}

func (s *Service) GetByCode(ctx context.Context, code string) (*Location, error) {
	return s.repo.GetByCode(ctx, code)
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]Location, error) {
	return s.repo.List(ctx, activeOnly)
}
