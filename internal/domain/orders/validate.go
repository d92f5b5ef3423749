package orders

import (
	"strings"

	"github.com/google/uuid"

	"github.com/labflow/labflow/internal/platform/apperr"
)

// ResultInput is the submitted value for a single test on an order.
type ResultInput struct {
	Result     string `json:"result"`
	IsAbnormal bool   `json:"is_abnormal"`
}

// ValidateResults checks a submitted result batch against the order's test
// list: every test on the order needs a non-blank result, and the batch may
// not reference tests the order does not carry. It judges presence only,
// never clinical plausibility. An empty return means the batch is committable
// as a whole; any failure rejects the entire batch.
func ValidateResults(o *LabOrder, results map[uuid.UUID]ResultInput) []apperr.FieldFailure {
	var failures []apperr.FieldFailure

	for _, t := range o.Tests {
		in, ok := results[t.TestID]
		if !ok {
			failures = append(failures, apperr.FieldFailure{
				Field:  t.TestID.String(),
				Reason: "result is missing",
			})
			continue
		}
		if strings.TrimSpace(in.Result) == "" {
			failures = append(failures, apperr.FieldFailure{
				Field:  t.TestID.String(),
				Reason: "result is blank",
			})
		}
	}

	for testID := range results {
		if o.TestByID(testID) == nil {
			failures = append(failures, apperr.FieldFailure{
				Field:  testID.String(),
				Reason: "test is not part of this order",
			})
		}
	}

	return failures
}
