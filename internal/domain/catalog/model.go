package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Test categories. Imaging lives in the same catalog as specimen work so a
// single order can mix both.
const (
	CategoryBlood   = "blood"
	CategoryUrine   = "urine"
	CategoryImaging = "imaging"
	CategoryOther   = "other"
)

// LabTest maps to the lab_test table. Catalog rows are reference data:
// orders copy name, normal range and unit at creation time, so editing or
// deactivating a row never changes orders already placed.
type LabTest struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	Category    string    `db:"category" json:"category"`
	NormalRange *string   `db:"normal_range" json:"normal_range,omitempty"`
	Unit        *string   `db:"unit" json:"unit,omitempty"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
