// Package seed provides the demo data set used by the seed command and by
// development mode when no database is configured.
package seed

import (
	"context"

	"github.com/labflow/labflow/internal/domain/catalog"
	"github.com/labflow/labflow/internal/domain/identity"
	"github.com/labflow/labflow/internal/platform/apperr"
	"github.com/labflow/labflow/internal/platform/auth"
)

// DemoPassword is shared by every seeded account. Demo data only.
const DemoPassword = "labflow-demo"

func strptr(s string) *string { return &s }

// Users returns the demo accounts, two per role.
func Users() []identity.CreateUserInput {
	return []identity.CreateUserInput{
		{Name: "Dr. Somsri Jaidee", Email: "somsri@labflow.test", Password: DemoPassword, Role: auth.RoleDoctor},
		{Name: "Dr. Mana Rakdee", Email: "mana@labflow.test", Password: DemoPassword, Role: auth.RoleDoctor},
		{Name: "Wichian Truatreo", Email: "wichian@labflow.test", Password: DemoPassword, Role: auth.RoleLab},
		{Name: "Nongnuch Maenyam", Email: "nongnuch@labflow.test", Password: DemoPassword, Role: auth.RoleLab},
	}
}

// Tests returns the demo test catalog.
func Tests() []*catalog.LabTest {
	return []*catalog.LabTest{
		{Code: "cbc", Name: "Complete Blood Count (CBC)", Category: catalog.CategoryBlood, NormalRange: strptr("4.5-11.0"), Unit: strptr("x10^9/L")},
		{Code: "glu", Name: "Blood Glucose", Category: catalog.CategoryBlood, NormalRange: strptr("70-100"), Unit: strptr("mg/dL")},
		{Code: "lft", Name: "Liver Function Test", Category: catalog.CategoryBlood, NormalRange: strptr("7-56"), Unit: strptr("U/L")},
		{Code: "ua", Name: "Urine Analysis", Category: catalog.CategoryUrine},
		{Code: "kft", Name: "Kidney Function Test", Category: catalog.CategoryBlood, NormalRange: strptr("0.7-1.3"), Unit: strptr("mg/dL")},
		{Code: "lipid", Name: "Lipid Profile", Category: catalog.CategoryBlood, NormalRange: strptr("<200"), Unit: strptr("mg/dL")},
		{Code: "tft", Name: "Thyroid Function Test", Category: catalog.CategoryBlood, NormalRange: strptr("0.4-4.0"), Unit: strptr("mIU/L")},
		{Code: "cxr", Name: "X-Ray Chest", Category: catalog.CategoryImaging},
		{Code: "ecg", Name: "Electrocardiogram (ECG)", Category: catalog.CategoryOther},
		{Code: "coag", Name: "Coagulation Panel", Category: catalog.CategoryBlood, NormalRange: strptr("11-13.5"), Unit: strptr("s")},
	}
}

// Apply loads the demo users and catalog through the given services. It
// expects an empty store; already-seeded users are skipped.
func Apply(ctx context.Context, users *identity.Service, tests *catalog.Service) error {
	for _, in := range Users() {
		if _, err := users.CreateUser(ctx, in); err != nil && !apperr.IsKind(err, apperr.KindConflict) {
			return err
		}
	}
	for _, t := range Tests() {
		if err := tests.CreateTest(ctx, t); err != nil {
			return err
		}
	}
	return nil
}
