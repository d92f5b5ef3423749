package orders

import (
	"testing"

	"github.com/google/uuid"
)

func orderWithTests(ids ...uuid.UUID) *LabOrder {
	o := &LabOrder{ID: uuid.New(), Status: StatusPending}
	for _, id := range ids {
		o.Tests = append(o.Tests, LabOrderTest{TestID: id, TestName: "test"})
	}
	return o
}

func TestValidateResults_Complete(t *testing.T) {
	t1, t2 := uuid.New(), uuid.New()
	o := orderWithTests(t1, t2)
	results := map[uuid.UUID]ResultInput{
		t1: {Result: "Normal", IsAbnormal: false},
		t2: {Result: "110", IsAbnormal: true},
	}
	if failures := ValidateResults(o, results); len(failures) != 0 {
		t.Errorf("expected no failures, got %v", failures)
	}
}

func TestValidateResults_MissingTest(t *testing.T) {
	t1, t2 := uuid.New(), uuid.New()
	o := orderWithTests(t1, t2)
	results := map[uuid.UUID]ResultInput{
		t1: {Result: "Normal"},
	}
	failures := ValidateResults(o, results)
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %v", failures)
	}
	if failures[0].Field != t2.String() {
		t.Errorf("expected failure for %s, got %s", t2, failures[0].Field)
	}
}

func TestValidateResults_BlankResult(t *testing.T) {
	t1 := uuid.New()
	o := orderWithTests(t1)

	for _, blank := range []string{"", "   ", "\t"} {
		failures := ValidateResults(o, map[uuid.UUID]ResultInput{t1: {Result: blank}})
		if len(failures) != 1 {
			t.Errorf("result %q: expected 1 failure, got %v", blank, failures)
		}
	}
}

func TestValidateResults_UnknownTestRejected(t *testing.T) {
	t1 := uuid.New()
	o := orderWithTests(t1)
	results := map[uuid.UUID]ResultInput{
		t1:         {Result: "Normal"},
		uuid.New(): {Result: "stray"},
	}
	failures := ValidateResults(o, results)
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %v", failures)
	}
	if failures[0].Reason != "test is not part of this order" {
		t.Errorf("unexpected reason: %s", failures[0].Reason)
	}
}
