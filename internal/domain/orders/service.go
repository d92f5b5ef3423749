package orders

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/labflow/labflow/internal/domain/catalog"
	"github.com/labflow/labflow/internal/platform/apperr"
	"github.com/labflow/labflow/internal/platform/auth"
)

// TestSource resolves catalog tests selected on a new order.
type TestSource interface {
	GetTestsByIDs(ctx context.Context, ids []uuid.UUID) ([]*catalog.LabTest, error)
}

// Service owns the order state machine. Every call takes the acting identity
// explicitly; role and ownership checks happen here, never in the transport
// layer alone.
type Service struct {
	orders OrderRepository
	tests  TestSource

	// sharedClinicView lets every doctor see every order. Off, each doctor
	// sees only their own.
	sharedClinicView bool
}

func NewService(orders OrderRepository, tests TestSource, sharedClinicView bool) *Service {
	return &Service{orders: orders, tests: tests, sharedClinicView: sharedClinicView}
}

type CreateOrderInput struct {
	PatientID      string      `json:"patient_id"`
	PatientName    string      `json:"patient_name"`
	TestIDs        []uuid.UUID `json:"test_ids"`
	Priority       string      `json:"priority"`
	Notes          *string     `json:"notes"`
	IdempotencyKey string      `json:"-"`
}

// CreateOrder places a new order for the acting doctor. The selected catalog
// tests are copied onto the order so later catalog edits do not touch it. A
// repeated call with the same idempotency key returns the order created by
// the first call instead of a duplicate.
func (s *Service) CreateOrder(ctx context.Context, actor auth.Identity, in CreateOrderInput) (*LabOrder, error) {
	if actor.Role != auth.RoleDoctor {
		return nil, apperr.Auth("only doctors may create orders")
	}
	if strings.TrimSpace(in.PatientID) == "" {
		return nil, apperr.Validation("patient_id is required")
	}
	if strings.TrimSpace(in.PatientName) == "" {
		return nil, apperr.Validation("patient_name is required")
	}
	if len(in.TestIDs) == 0 {
		return nil, apperr.Validation("at least one test must be selected")
	}
	if in.Priority == "" {
		in.Priority = PriorityNormal
	}
	if in.Priority != PriorityNormal && in.Priority != PriorityUrgent {
		return nil, apperr.Validationf("invalid priority: %s", in.Priority)
	}

	if in.IdempotencyKey != "" {
		if existing, err := s.orders.GetByIdempotencyKey(ctx, actor.ID, in.IdempotencyKey); err == nil {
			return existing, nil
		}
	}

	orderTests, err := s.resolveTests(ctx, in.TestIDs)
	if err != nil {
		return nil, err
	}

	o := &LabOrder{
		PatientID:   in.PatientID,
		PatientName: in.PatientName,
		DoctorID:    actor.ID,
		DoctorName:  actor.Name,
		Status:      StatusPending,
		Priority:    in.Priority,
		Notes:       in.Notes,
		Tests:       orderTests,
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		o.IdempotencyKey = &key
	}

	change := &StatusChange{ToStatus: StatusPending, ChangedBy: actor.ID}
	if err := s.orders.Create(ctx, o, change); err != nil {
		return nil, err
	}
	return o, nil
}

// resolveTests denormalizes the selected catalog entries in selection order,
// rejecting ids that are unknown, duplicated or retired.
func (s *Service) resolveTests(ctx context.Context, testIDs []uuid.UUID) ([]LabOrderTest, error) {
	found, err := s.tests.GetTestsByIDs(ctx, testIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*catalog.LabTest, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}

	var failures []apperr.FieldFailure
	seen := make(map[uuid.UUID]bool, len(testIDs))
	orderTests := make([]LabOrderTest, 0, len(testIDs))
	for _, id := range testIDs {
		if seen[id] {
			failures = append(failures, apperr.FieldFailure{Field: id.String(), Reason: "test selected twice"})
			continue
		}
		seen[id] = true
		t, ok := byID[id]
		switch {
		case !ok:
			failures = append(failures, apperr.FieldFailure{Field: id.String(), Reason: "unknown test"})
		case !t.Active:
			failures = append(failures, apperr.FieldFailure{Field: id.String(), Reason: "test is no longer offered"})
		default:
			orderTests = append(orderTests, LabOrderTest{
				TestID:      t.ID,
				TestName:    t.Name,
				NormalRange: t.NormalRange,
				Unit:        t.Unit,
			})
		}
	}
	if len(failures) > 0 {
		return nil, apperr.Validation("invalid test selection", failures...)
	}
	return orderTests, nil
}

// ListOrders returns the actor's view of the order book. Doctors are scoped
// to their own orders unless the shared clinic view is enabled; lab staff
// see every order. The lab pending queue puts urgent work first, newest
// first within each priority.
func (s *Service) ListOrders(ctx context.Context, actor auth.Identity, f Filter, limit, offset int) ([]*LabOrder, int, error) {
	if f.Status != "" && !validStatus(f.Status) {
		return nil, 0, apperr.Validationf("invalid status: %s", f.Status)
	}
	if f.Priority != "" && f.Priority != PriorityNormal && f.Priority != PriorityUrgent {
		return nil, 0, apperr.Validationf("invalid priority: %s", f.Priority)
	}

	switch actor.Role {
	case auth.RoleDoctor:
		if !s.sharedClinicView {
			f.DoctorID = actor.ID
		}
	case auth.RoleLab:
		f.UrgentFirst = f.Status == StatusPending
	default:
		return nil, 0, apperr.Auth("unknown role")
	}

	return s.orders.List(ctx, f, limit, offset)
}

func validStatus(status string) bool {
	switch status {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// GetOrder loads one order. A doctor asking for an order they do not own
// gets the same not-found answer as for an order that does not exist.
func (s *Service) GetOrder(ctx context.Context, actor auth.Identity, id uuid.UUID) (*LabOrder, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == auth.RoleDoctor && !s.sharedClinicView && o.DoctorID != actor.ID {
		return nil, apperr.NotFound("order not found")
	}
	return o, nil
}

// EnterResults records a value and abnormal flag for every test on a pending
// order and completes it. The batch is validated up front and applied as one
// unit; a rejected batch leaves the order untouched. Of two concurrent
// submissions for the same order, exactly one succeeds and the other gets a
// conflict.
func (s *Service) EnterResults(ctx context.Context, actor auth.Identity, orderID uuid.UUID, results map[uuid.UUID]ResultInput, resultNotes *string) (*LabOrder, error) {
	if actor.Role != auth.RoleLab {
		return nil, apperr.Auth("only lab staff may enter results")
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPending {
		return nil, apperr.Conflict("order is no longer pending")
	}
	if failures := ValidateResults(o, results); len(failures) > 0 {
		return nil, apperr.Validation("incomplete result set", failures...)
	}

	change := &StatusChange{FromStatus: StatusPending, ToStatus: StatusCompleted, ChangedBy: actor.ID}
	swapped, err := s.orders.Complete(ctx, orderID, results, resultNotes, change)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, apperr.Conflict("order is no longer pending")
	}
	return s.orders.GetByID(ctx, orderID)
}

// CancelOrder terminates a pending or processing order. Doctors may cancel
// only their own orders; lab staff may cancel any.
func (s *Service) CancelOrder(ctx context.Context, actor auth.Identity, orderID uuid.UUID, reason *string) (*LabOrder, error) {
	o, err := s.GetOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if actor.Role == auth.RoleDoctor && o.DoctorID != actor.ID {
		return nil, apperr.NotFound("order not found")
	}
	if !o.Open() {
		return nil, apperr.Conflict("order can no longer be cancelled")
	}

	change := &StatusChange{FromStatus: o.Status, ToStatus: StatusCancelled, ChangedBy: actor.ID, Reason: reason}
	swapped, err := s.orders.Cancel(ctx, orderID, reason, change)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, apperr.Conflict("order can no longer be cancelled")
	}
	return s.orders.GetByID(ctx, orderID)
}

// StatusHistory lists an order's transitions oldest first, with the same
// visibility rules as GetOrder.
func (s *Service) StatusHistory(ctx context.Context, actor auth.Identity, orderID uuid.UUID) ([]*StatusChange, error) {
	if _, err := s.GetOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	return s.orders.StatusHistory(ctx, orderID)
}
