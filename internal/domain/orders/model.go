package orders

import (
	"time"

	"github.com/google/uuid"
)

// Order lifecycle states. Processing is a reserved intermediate state between
// pending and the terminal states; completed and cancelled are terminal.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

const (
	PriorityNormal = "normal"
	PriorityUrgent = "urgent"
)

// LabOrder maps to the lab_order table. The test selection, priority and
// origin are fixed at creation; only status, per-test results, result notes,
// completed_at and the cancel fields mutate afterwards.
type LabOrder struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	OrderNumber    string         `db:"order_number" json:"order_number"`
	PatientID      string         `db:"patient_id" json:"patient_id"`
	PatientName    string         `db:"patient_name" json:"patient_name"`
	DoctorID       uuid.UUID      `db:"doctor_id" json:"doctor_id"`
	DoctorName     string         `db:"doctor_name" json:"doctor_name"`
	Status         string         `db:"status" json:"status"`
	Priority       string         `db:"priority" json:"priority"`
	Notes          *string        `db:"notes" json:"notes,omitempty"`
	ResultNotes    *string        `db:"result_notes" json:"result_notes,omitempty"`
	CancelReason   *string        `db:"cancel_reason" json:"cancel_reason,omitempty"`
	IdempotencyKey *string        `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	CompletedAt    *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	Tests          []LabOrderTest `db:"-" json:"tests"`
}

// LabOrderTest maps to the lab_order_test table, one row per requested test.
// Name, normal range and unit are copied from the catalog when the order is
// placed so later catalog edits never alter existing orders. Result and
// IsAbnormal stay nil until the order is completed.
type LabOrderTest struct {
	OrderID     uuid.UUID `db:"order_id" json:"-"`
	TestID      uuid.UUID `db:"test_id" json:"test_id"`
	TestName    string    `db:"test_name" json:"test_name"`
	NormalRange *string   `db:"normal_range" json:"normal_range,omitempty"`
	Unit        *string   `db:"unit" json:"unit,omitempty"`
	Result      *string   `db:"result" json:"result,omitempty"`
	IsAbnormal  *bool     `db:"is_abnormal" json:"is_abnormal,omitempty"`
}

// StatusChange maps to the order_status_history table. One row per
// transition, including the initial move into pending at creation.
type StatusChange struct {
	ID         uuid.UUID `db:"id" json:"id"`
	OrderID    uuid.UUID `db:"order_id" json:"order_id"`
	FromStatus string    `db:"from_status" json:"from_status"`
	ToStatus   string    `db:"to_status" json:"to_status"`
	ChangedBy  uuid.UUID `db:"changed_by" json:"changed_by"`
	Reason     *string   `db:"reason" json:"reason,omitempty"`
	ChangedAt  time.Time `db:"changed_at" json:"changed_at"`
}

// Open reports whether the order can still change state.
func (o *LabOrder) Open() bool {
	return o.Status == StatusPending || o.Status == StatusProcessing
}

// TestByID returns the order's entry for a catalog test, or nil if the test
// is not on the order.
func (o *LabOrder) TestByID(testID uuid.UUID) *LabOrderTest {
	for i := range o.Tests {
		if o.Tests[i].TestID == testID {
			return &o.Tests[i]
		}
	}
	return nil
}
