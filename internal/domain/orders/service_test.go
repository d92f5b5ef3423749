package orders

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/labflow/labflow/internal/domain/catalog"
	"github.com/labflow/labflow/internal/platform/apperr"
	"github.com/labflow/labflow/internal/platform/auth"
)

// -- Fixtures --

type stubCatalog struct {
	tests map[uuid.UUID]*catalog.LabTest
}

func (s *stubCatalog) GetTestsByIDs(_ context.Context, ids []uuid.UUID) ([]*catalog.LabTest, error) {
	var out []*catalog.LabTest
	for _, id := range ids {
		if t, ok := s.tests[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

type fixture struct {
	svc     *Service
	cbc     *catalog.LabTest
	glucose *catalog.LabTest
	retired *catalog.LabTest
	doctor  auth.Identity
	doctor2 auth.Identity
	lab     auth.Identity
}

func newFixture(t *testing.T, sharedClinicView bool) *fixture {
	t.Helper()
	rangeStr := "4.5-11.0"
	unit := "x10^9/L"
	f := &fixture{
		cbc:     &catalog.LabTest{ID: uuid.New(), Code: "cbc", Name: "Complete Blood Count (CBC)", Category: catalog.CategoryBlood, NormalRange: &rangeStr, Unit: &unit, Active: true},
		glucose: &catalog.LabTest{ID: uuid.New(), Code: "glu", Name: "Blood Glucose", Category: catalog.CategoryBlood, Active: true},
		retired: &catalog.LabTest{ID: uuid.New(), Code: "old", Name: "Retired Panel", Category: catalog.CategoryOther, Active: false},
		doctor:  auth.Identity{ID: uuid.New(), Name: "Dr. Somying", Role: auth.RoleDoctor},
		doctor2: auth.Identity{ID: uuid.New(), Name: "Dr. Wilson", Role: auth.RoleDoctor},
		lab:     auth.Identity{ID: uuid.New(), Name: "Lab Tech", Role: auth.RoleLab},
	}
	cat := &stubCatalog{tests: map[uuid.UUID]*catalog.LabTest{
		f.cbc.ID: f.cbc, f.glucose.ID: f.glucose, f.retired.ID: f.retired,
	}}
	f.svc = NewService(NewOrderRepoMem(), cat, sharedClinicView)
	return f
}

func (f *fixture) createOrder(t *testing.T, actor auth.Identity, priority string, testIDs ...uuid.UUID) *LabOrder {
	t.Helper()
	o, err := f.svc.CreateOrder(context.Background(), actor, CreateOrderInput{
		PatientID:   "P001",
		PatientName: "Somchai Jaidee",
		TestIDs:     testIDs,
		Priority:    priority,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func (f *fixture) fullResults(o *LabOrder) map[uuid.UUID]ResultInput {
	results := make(map[uuid.UUID]ResultInput, len(o.Tests))
	for _, ot := range o.Tests {
		results[ot.TestID] = ResultInput{Result: "Normal"}
	}
	return results
}

// -- Creation --

func TestCreateOrder(t *testing.T) {
	f := newFixture(t, false)
	o := f.createOrder(t, f.doctor, PriorityNormal, f.cbc.ID, f.glucose.ID)

	if o.Status != StatusPending {
		t.Errorf("expected status pending, got %s", o.Status)
	}
	if len(o.Tests) != 2 {
		t.Fatalf("expected 2 order tests, got %d", len(o.Tests))
	}
	for _, ot := range o.Tests {
		if ot.Result != nil || ot.IsAbnormal != nil {
			t.Errorf("test %s: result fields must be unset at creation", ot.TestName)
		}
	}
	if o.Tests[0].TestName != f.cbc.Name || o.Tests[1].TestName != f.glucose.Name {
		t.Error("expected tests in selection order with catalog names copied")
	}
	if o.Tests[0].NormalRange == nil || *o.Tests[0].NormalRange != "4.5-11.0" {
		t.Error("expected normal range copied from catalog")
	}
	if !strings.HasPrefix(o.OrderNumber, "LAB-") {
		t.Errorf("unexpected order number %s", o.OrderNumber)
	}
	if o.DoctorID != f.doctor.ID || o.DoctorName != f.doctor.Name {
		t.Error("expected creating doctor stamped on order")
	}
	if o.CompletedAt != nil {
		t.Error("completed_at must be unset until completion")
	}
}

func TestCreateOrder_EmptyTestSelection(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.CreateOrder(context.Background(), f.doctor, CreateOrderInput{
		PatientID:   "P001",
		PatientName: "Somchai Jaidee",
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t, false)
	cases := []struct {
		name string
		in   CreateOrderInput
	}{
		{"missing patient id", CreateOrderInput{PatientName: "Somchai", TestIDs: []uuid.UUID{f.cbc.ID}}},
		{"blank patient name", CreateOrderInput{PatientID: "P001", PatientName: "  ", TestIDs: []uuid.UUID{f.cbc.ID}}},
		{"bad priority", CreateOrderInput{PatientID: "P001", PatientName: "Somchai", TestIDs: []uuid.UUID{f.cbc.ID}, Priority: "stat"}},
		{"unknown test", CreateOrderInput{PatientID: "P001", PatientName: "Somchai", TestIDs: []uuid.UUID{uuid.New()}}},
		{"retired test", CreateOrderInput{PatientID: "P001", PatientName: "Somchai", TestIDs: []uuid.UUID{f.retired.ID}}},
		{"duplicate test", CreateOrderInput{PatientID: "P001", PatientName: "Somchai", TestIDs: []uuid.UUID{f.cbc.ID, f.cbc.ID}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(context.Background(), f.doctor, tc.in)
			if !apperr.IsKind(err, apperr.KindValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateOrder_LabActorRejected(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.CreateOrder(context.Background(), f.lab, CreateOrderInput{
		PatientID: "P001", PatientName: "Somchai", TestIDs: []uuid.UUID{f.cbc.ID},
	})
	if !apperr.IsKind(err, apperr.KindAuth) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestCreateOrder_IdempotencyKey(t *testing.T) {
	f := newFixture(t, false)
	in := CreateOrderInput{
		PatientID: "P001", PatientName: "Somchai", TestIDs: []uuid.UUID{f.cbc.ID},
		IdempotencyKey: "retry-abc123",
	}
	first, err := f.svc.CreateOrder(context.Background(), f.doctor, in)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	second, err := f.svc.CreateOrder(context.Background(), f.doctor, in)
	if err != nil {
		t.Fatalf("retried create: %v", err)
	}
	if second.ID != first.ID {
		t.Error("retried create must return the original order")
	}

	list, total, err := f.svc.ListOrders(context.Background(), f.doctor, Filter{}, 20, 0)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Errorf("expected exactly one order, got %d", total)
	}
}

// -- Result entry --

func TestEnterResults(t *testing.T) {
	f := newFixture(t, false)
	o := f.createOrder(t, f.doctor, PriorityNormal, f.cbc.ID, f.glucose.ID)

	notes := "glucose elevated, recommend follow-up"
	got, err := f.svc.EnterResults(context.Background(), f.lab, o.ID, map[uuid.UUID]ResultInput{
		f.cbc.ID:     {Result: "Normal", IsAbnormal: false},
		f.glucose.ID: {Result: "110", IsAbnormal: true},
	}, &notes)
	if err != nil {
		t.Fatalf("enter results: %v", err)
	}

	if got.Status != StatusCompleted {
		t.Errorf("expected status completed, got %s", got.Status)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
	if got.ResultNotes == nil || *got.ResultNotes != notes {
		t.Error("expected result notes stored")
	}
	cbc := got.TestByID(f.cbc.ID)
	if cbc.Result == nil || *cbc.Result != "Normal" || cbc.IsAbnormal == nil || *cbc.IsAbnormal {
		t.Error("cbc result not stored as submitted")
	}
	glu := got.TestByID(f.glucose.ID)
	if glu.Result == nil || *glu.Result != "110" || glu.IsAbnormal == nil || !*glu.IsAbnormal {
		t.Error("glucose result not stored as submitted")
	}
}

func TestEnterResults_SecondSubmissionConflicts(t *testing.T) {
	f := newFixture(t, false)
	o := f.createOrder(t, f.doctor, PriorityNormal, f.cbc.ID)

	first, err := f.svc.EnterResults(context.Background(), f.lab, o.ID, f.fullResults(o), nil)
	if err != nil {
		t.Fatalf("enter results: %v", err)
	}

	_, err = f.svc.EnterResults(context.Background(), f.lab, o.ID, map[uuid.UUID]ResultInput{
		f.cbc.ID: {Result: "overwrite attempt", IsAbnormal: true},
	}, nil)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	got, err := f.svc.GetOrder(context.Background(), f.lab, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if *got.TestByID(f.cbc.ID).Result != *first.TestByID(f.cbc.ID).Result {
		t.Error("order must be unchanged after the rejected second submission")
	}
	if !got.CompletedAt.Equal(*first.CompletedAt) {
		t.Error("completed_at must be unchanged after the rejected second submission")
	}
}

func TestEnterResults_IncompleteBatchLeavesOrderUntouched(t *testing.T) {
	f := newFixture(t, false)
	o := f.createOrder(t, f.doctor, PriorityNormal, f.cbc.ID, f.glucose.ID)

	_, err := f.svc.EnterResults(context.Background(), f.lab, o.ID, map[uuid.UUID]ResultInput{
		f.cbc.ID: {Result: "Normal"},
		// glucose result missing
	}, nil)
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	got, err := f.svc.GetOrder(context.Background(), f.lab, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("expected order still pending, got %s", got.Status)
	}
	for _, ot := range got.Tests {
		if ot.Result != nil {
			t.Errorf("test %s: no result may be stored from a rejected batch", ot.TestName)
		}
	}
	if got.CompletedAt != nil {
		t.Error("completed_at must stay unset")
	}
}

func TestEnterResults_Concurrent(t *testing.T) {
	f := newFixture(t, false)
	o := f.createOrder(t, f.doctor, PriorityUrgent, f.cbc.ID)

	submissions := map[string]map[uuid.UUID]ResultInput{
		"first":  {f.cbc.ID: {Result: "4.8"}},
		"second": {f.cbc.ID: {Result: "9.9", IsAbnormal: true}},
	}

	var wg sync.WaitGroup
	errs := make(map[string]error, len(submissions))
	var mu sync.Mutex
	for name, results := range submissions {
		wg.Add(1)
		go func(name string, results map[uuid.UUID]ResultInput) {
			defer wg.Done()
			_, err := f.svc.EnterResults(context.Background(), f.lab, o.ID, results, nil)
			mu.Lock()
			errs[name] = err
			mu.Unlock()
		}(name, results)
	}
	wg.Wait()

	var winner string
	successes := 0
	for name, err := range errs {
		switch {
		case err == nil:
			successes++
			winner = name
		case apperr.IsKind(err, apperr.KindConflict):
		default:
			t.Fatalf("submission %s: unexpected error %v", name, err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one successful submission, got %d", successes)
	}

	got, err := f.svc.GetOrder(context.Background(), f.lab, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	want := submissions[winner][f.cbc.ID]
	stored := got.TestByID(f.cbc.ID)
	if *stored.Result != want.Result || *stored.IsAbnormal != want.IsAbnormal {
		t.Errorf("committed result %q does not match the winning submission %q", *stored.Result, want.Result)
	}
}

func TestEnterResults_DoctorRejected(t *testing.T) {
	f := newFixture(t, false)
	o := f.createOrder(t, f.doctor, PriorityNormal, f.cbc.ID)
	_, err := f.svc.EnterResults(context.Background(), f.doctor, o.ID, f.fullResults(o), nil)
	if !apperr.IsKind(err, apperr.KindAuth) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestEnterResults_UnknownOrder(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.EnterResults(context.Background(), f.lab, uuid.New(), nil, nil)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

// -- Listing and search --

func TestListOrders_DoctorSeesOnlyOwnOrders(t *testing.T) {
	f := newFixture(t, false)
	mine := f.createOrder(t, f.doctor, PriorityNormal, f.cbc.ID)
	f.createOrder(t, f.doctor2, PriorityNormal, f.glucose.ID)

	list, total, err := f.svc.ListOrders(context.Background(), f.doctor, Filter{}, 20, 0)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if total != 1 || len(list) != 1 || list[0].ID != mine.ID {
		t.Errorf("expected only the doctor's own order, got %d orders", total)
	}
}

func TestListOrders_SharedClinicView(t *testing.T) {
	f := newFixture(t, true)
	f.createOrder(t, f.doctor, PriorityNormal, f.cbc.ID)
	f.createOrder(t, f.doctor2, PriorityNormal, f.glucose.ID)

	_, total, err := f.svc.ListOrders(context.Background(), f.doctor, Filter{}, 20, 0)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if total != 2 {
		t.Errorf("shared clinic view: expected 2 orders, got %d", total)
	}
}

func TestListOrders_Search(t *testing.T) {
	f := newFixture(t, false)
	o := f.createOrder(t, f.doctor, PriorityNormal, f.cbc.ID)

	// case-insensitive substring on patient name
	list, _, err := f.svc.ListOrders(context.Background(), f.doctor, Filter{Search: "somchai"}, 20, 0)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(list) != 1 || list[0].ID != o.ID {
		t.Error("expected search by patient name to match case-insensitively")
	}

	// substring on order number
	list, _, err = f.svc.ListOrders(context.Background(), f.doctor, Filter{Search: o.OrderNumber}, 20, 0)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(list) != 1 {
		t.Error("expected search by order number to match")
	}

	list, _, err = f.svc.ListOrders(context.Background(), f.doctor, Filter{Search: "no such patient"}, 20, 0)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(list) != 0 {
		t.Error("expected no match for unrelated search term")
	}
}

func TestListOrders_PendingQueueUrgentFirst(t *testing.T) {
	f := newFixture(t, false)
	o1 := f.createOrder(t, f.doctor, PriorityUrgent, f.cbc.ID)
	time.Sleep(2 * time.Millisecond)
	o2 := f.createOrder(t, f.doctor, PriorityNormal, f.cbc.ID)
	time.Sleep(2 * time.Millisecond)
	o3 := f.createOrder(t, f.doctor, PriorityUrgent, f.cbc.ID)

	list, _, err := f.svc.ListOrders(context.Background(), f.lab, Filter{Status: StatusPending}, 20, 0)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 pending orders, got %d", len(list))
	}
	want := []uuid.UUID{o3.ID, o1.ID, o2.ID}
	for i, id := range want {
		if list[i].ID != id {
			t.Fatalf("queue position %d: expected %s, got %s", i, id, list[i].ID)
		}
	}
}

func TestListOrders_InvalidStatus(t *testing.T) {
	f := newFixture(t, false)
	_, _, err := f.svc.ListOrders(context.Background(), f.lab, Filter{Status: "archived"}, 20, 0)
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

// -- Visibility --

func TestGetOrder_OtherDoctorGetsNotFound(t *testing.T) {
	f := newFixture(t, false)
	o := f.createOrder(t, f.doctor, PriorityNormal, f.cbc.ID)

	_, err := f.svc.GetOrder(context.Background(), f.doctor2, o.ID)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected not found for another doctor's order, got %v", err)
	}

	// lab staff see every order
	if _, err := f.svc.GetOrder(context.Background(), f.lab, o.ID); err != nil {
		t.Errorf("expected lab actor to see the order, got %v", err)
	}
}

// -- Cancellation --

func TestCancelOrder(t *testing.T) {
	f := newFixture(t, false)
	o := f.createOrder(t, f.doctor, PriorityNormal, f.cbc.ID)

	reason := "duplicate request"
	got, err := f.svc.CancelOrder(context.Background(), f.doctor, o.ID, &reason)
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("expected status cancelled, got %s", got.Status)
	}
	if got.CancelReason == nil || *got.CancelReason != reason {
		t.Error("expected cancel reason stored")
	}

	// cancellation is terminal
	_, err = f.svc.EnterResults(context.Background(), f.lab, o.ID, f.fullResults(o), nil)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("expected conflict entering results on a cancelled order, got %v", err)
	}
}

func TestCancelOrder_CompletedConflicts(t *testing.T) {
	f := newFixture(t, false)
	o := f.createOrder(t, f.doctor, PriorityNormal, f.cbc.ID)
	if _, err := f.svc.EnterResults(context.Background(), f.lab, o.ID, f.fullResults(o), nil); err != nil {
		t.Fatalf("enter results: %v", err)
	}

	_, err := f.svc.CancelOrder(context.Background(), f.lab, o.ID, nil)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("expected conflict cancelling a completed order, got %v", err)
	}
}

func TestCancelOrder_OtherDoctorGetsNotFound(t *testing.T) {
	f := newFixture(t, false)
	o := f.createOrder(t, f.doctor, PriorityNormal, f.cbc.ID)
	_, err := f.svc.CancelOrder(context.Background(), f.doctor2, o.ID, nil)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

// -- Status history --

func TestStatusHistory(t *testing.T) {
	f := newFixture(t, false)
	o := f.createOrder(t, f.doctor, PriorityNormal, f.cbc.ID)
	if _, err := f.svc.EnterResults(context.Background(), f.lab, o.ID, f.fullResults(o), nil); err != nil {
		t.Fatalf("enter results: %v", err)
	}

	history, err := f.svc.StatusHistory(context.Background(), f.doctor, o.ID)
	if err != nil {
		t.Fatalf("status history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(history))
	}
	if history[0].ToStatus != StatusPending || history[0].ChangedBy != f.doctor.ID {
		t.Error("first transition must be the creation into pending by the doctor")
	}
	if history[1].FromStatus != StatusPending || history[1].ToStatus != StatusCompleted || history[1].ChangedBy != f.lab.ID {
		t.Error("second transition must be the completion by the lab actor")
	}
}
