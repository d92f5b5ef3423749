package orders

import (
	"context"

	"github.com/google/uuid"
)

// Filter narrows a listing. Zero values mean "no constraint". A non-nil
// DoctorID restricts results to one doctor's orders; Search matches patient
// name or order number case-insensitively as a substring.
type Filter struct {
	Status      string
	Priority    string
	Search      string
	DoctorID    uuid.UUID
	UrgentFirst bool
}

// OrderRepository persists orders and their status history.
//
// Complete and Cancel are compare-and-swap operations: they take effect only
// if the order is still in a state that permits the transition, and report
// whether the swap happened. A false return with a nil error means another
// writer got there first. Both apply the full mutation batch and the history
// row in a single transaction.
type OrderRepository interface {
	Create(ctx context.Context, o *LabOrder, change *StatusChange) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabOrder, error)
	GetByIdempotencyKey(ctx context.Context, doctorID uuid.UUID, key string) (*LabOrder, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*LabOrder, int, error)

	Complete(ctx context.Context, orderID uuid.UUID, results map[uuid.UUID]ResultInput, resultNotes *string, change *StatusChange) (bool, error)
	Cancel(ctx context.Context, orderID uuid.UUID, reason *string, change *StatusChange) (bool, error)

	StatusHistory(ctx context.Context, orderID uuid.UUID) ([]*StatusChange, error)
}
