package catalog

import (
	"context"

	"github.com/google/uuid"
)

type TestRepository interface {
	Create(ctx context.Context, t *LabTest) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabTest, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*LabTest, error)
	Update(ctx context.Context, t *LabTest) error
	List(ctx context.Context, category string, activeOnly bool, limit, offset int) ([]*LabTest, int, error)
}
