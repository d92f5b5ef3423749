package orders

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/labflow/labflow/internal/platform/apperr"
)

// orderRepoMem is a mutex-guarded in-memory repository backing development
// mode when no database is configured. It gives the same compare-and-swap
// guarantees as the Postgres implementation.
type orderRepoMem struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]*LabOrder
	history map[uuid.UUID][]*StatusChange
	seq     int
	created []uuid.UUID
}

func NewOrderRepoMem() OrderRepository {
	return &orderRepoMem{
		orders:  make(map[uuid.UUID]*LabOrder),
		history: make(map[uuid.UUID][]*StatusChange),
	}
}

func copyOrder(o *LabOrder) *LabOrder {
	cp := *o
	cp.Tests = make([]LabOrderTest, len(o.Tests))
	copy(cp.Tests, o.Tests)
	return &cp
}

func (r *orderRepoMem) Create(_ context.Context, o *LabOrder, change *StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	o.ID = uuid.New()
	o.OrderNumber = fmt.Sprintf("LAB-%d-%03d", time.Now().Year(), r.seq)
	o.CreatedAt = time.Now()
	for i := range o.Tests {
		o.Tests[i].OrderID = o.ID
	}

	r.orders[o.ID] = copyOrder(o)
	r.created = append(r.created, o.ID)
	r.appendChange(o.ID, change)
	return nil
}

func (r *orderRepoMem) appendChange(orderID uuid.UUID, change *StatusChange) {
	change.ID = uuid.New()
	change.OrderID = orderID
	change.ChangedAt = time.Now()
	cp := *change
	r.history[orderID] = append(r.history[orderID], &cp)
}

func (r *orderRepoMem) GetByID(_ context.Context, id uuid.UUID) (*LabOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, apperr.NotFound("order not found")
	}
	return copyOrder(o), nil
}

func (r *orderRepoMem) GetByIdempotencyKey(_ context.Context, doctorID uuid.UUID, key string) (*LabOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.DoctorID == doctorID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return copyOrder(o), nil
		}
	}
	return nil, apperr.NotFound("order not found")
}

func matches(o *LabOrder, f Filter) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.Priority != "" && o.Priority != f.Priority {
		return false
	}
	if f.DoctorID != uuid.Nil && o.DoctorID != f.DoctorID {
		return false
	}
	if f.Search != "" {
		term := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(o.PatientName), term) &&
			!strings.Contains(strings.ToLower(o.OrderNumber), term) {
			return false
		}
	}
	return true
}

func (r *orderRepoMem) List(_ context.Context, f Filter, limit, offset int) ([]*LabOrder, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var list []*LabOrder
	for _, id := range r.created {
		if o := r.orders[id]; matches(o, f) {
			list = append(list, copyOrder(o))
		}
	}

	if f.UrgentFirst {
		sort.SliceStable(list, func(i, j int) bool {
			iu, ju := list[i].Priority == PriorityUrgent, list[j].Priority == PriorityUrgent
			if iu != ju {
				return iu
			}
			return list[i].CreatedAt.After(list[j].CreatedAt)
		})
	}

	total := len(list)
	if offset >= total {
		return nil, total, nil
	}
	list = list[offset:]
	if limit < len(list) {
		list = list[:limit]
	}
	return list, total, nil
}

func (r *orderRepoMem) Complete(_ context.Context, orderID uuid.UUID, results map[uuid.UUID]ResultInput, resultNotes *string, change *StatusChange) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return false, apperr.NotFound("order not found")
	}
	if o.Status != StatusPending {
		return false, nil
	}

	now := time.Now()
	o.Status = StatusCompleted
	o.CompletedAt = &now
	o.ResultNotes = resultNotes
	for i := range o.Tests {
		if in, ok := results[o.Tests[i].TestID]; ok {
			result := in.Result
			abnormal := in.IsAbnormal
			o.Tests[i].Result = &result
			o.Tests[i].IsAbnormal = &abnormal
		}
	}
	r.appendChange(orderID, change)
	return true, nil
}

func (r *orderRepoMem) Cancel(_ context.Context, orderID uuid.UUID, reason *string, change *StatusChange) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return false, apperr.NotFound("order not found")
	}
	if !o.Open() {
		return false, nil
	}

	o.Status = StatusCancelled
	o.CancelReason = reason
	r.appendChange(orderID, change)
	return true, nil
}

func (r *orderRepoMem) StatusHistory(_ context.Context, orderID uuid.UUID) ([]*StatusChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[orderID]; !ok {
		return nil, apperr.NotFound("order not found")
	}
	history := make([]*StatusChange, len(r.history[orderID]))
	for i, ch := range r.history[orderID] {
		cp := *ch
		history[i] = &cp
	}
	return history, nil
}
