package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/labflow/labflow/internal/platform/apperr"
)

type Service struct {
	tests TestRepository
}

func NewService(tests TestRepository) *Service {
	return &Service{tests: tests}
}

var validCategories = map[string]bool{
	CategoryBlood: true, CategoryUrine: true, CategoryImaging: true, CategoryOther: true,
}

func (s *Service) CreateTest(ctx context.Context, t *LabTest) error {
	if strings.TrimSpace(t.Code) == "" {
		return apperr.Validation("code is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		return apperr.Validation("name is required")
	}
	if !validCategories[t.Category] {
		return apperr.Validationf("invalid category: %s", t.Category)
	}
	t.Active = true
	return s.tests.Create(ctx, t)
}

func (s *Service) UpdateTest(ctx context.Context, t *LabTest) error {
	if strings.TrimSpace(t.Name) == "" {
		return apperr.Validation("name is required")
	}
	if !validCategories[t.Category] {
		return apperr.Validationf("invalid category: %s", t.Category)
	}
	existing, err := s.tests.GetByID(ctx, t.ID)
	if err != nil {
		return err
	}
	t.Code = existing.Code // code is immutable
	return s.tests.Update(ctx, t)
}

// DeactivateTest retires a catalog entry from new orders. Orders that copied
// the entry are untouched.
func (s *Service) DeactivateTest(ctx context.Context, id uuid.UUID) error {
	t, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return err
	}
	t.Active = false
	return s.tests.Update(ctx, t)
}

func (s *Service) GetTest(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	return s.tests.GetByID(ctx, id)
}

func (s *Service) GetTestsByIDs(ctx context.Context, ids []uuid.UUID) ([]*LabTest, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.tests.GetByIDs(ctx, ids)
}

func (s *Service) ListTests(ctx context.Context, category string, activeOnly bool, limit, offset int) ([]*LabTest, int, error) {
	if category != "" && !validCategories[category] {
		return nil, 0, apperr.Validationf("invalid category: %s", category)
	}
	return s.tests.List(ctx, category, activeOnly, limit, offset)
}
