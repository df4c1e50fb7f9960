package harness

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/caseflow/internal/casefile"
	"github.com/roach88/caseflow/internal/engine"
)

var sampleTrace = []TraceEvent{
	{Step: 1, Action: "process", Phase: "intake", Operation: "documents", Result: ResultOK, Attempts: 1},
	{Step: 1, Action: "process", Phase: "collecting", Operation: "credit", Result: "TRANSIENT_EXTERNAL_FAILURE", Attempts: 3},
	{Step: 1, Action: "process", Status: "suspended", WriteCount: 4},
	{Step: 2, Action: "resume", Phase: "collecting", Operation: "credit", Result: ResultOK, Attempts: 1},
	{Step: 2, Action: "resume", Status: "approved", WriteCount: 6},
}

func sampleContext(t *testing.T) *AssertionContext {
	t.Helper()
	rec := casefile.New("loan-0001", time.Unix(0, 0))
	require.NoError(t, rec.SetSection("credit", json.RawMessage(`{"score":750}`)))
	rec.Status = casefile.StatusApproved
	return &AssertionContext{
		Record:     rec,
		Inspection: engine.Inspection{WriteCount: 6, CountedWrites: 6, AuditOrdered: true},
		Audit:      make([]casefile.AuditEntry, 6),
		Calls:      map[string]int{"credit": 4},
	}
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	assertions := []Assertion{
		{Type: AssertFinalStatus, Status: "approved"},
		{Type: AssertWriteCount, Count: 6},
		{Type: AssertAuditLen, Count: 6},
		{Type: AssertSection, Section: "credit"},
		{Type: AssertTraceContains, Operation: "credit"},
		{Type: AssertTraceContains, Operation: "credit", Result: "TRANSIENT_EXTERNAL_FAILURE"},
		{Type: AssertTraceOrder, Operations: []string{"documents", "credit"}},
		{Type: AssertTraceCount, Operation: "credit", Count: 2},
		{Type: AssertServiceCalls, Service: "credit", Count: 4},
	}
	errs := EvaluateAssertions(&Result{Trace: sampleTrace}, assertions, sampleContext(t))
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Fail(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		contains  string
	}{
		{"status", Assertion{Type: AssertFinalStatus, Status: "denied"}, "Actual: approved"},
		{"writes", Assertion{Type: AssertWriteCount, Count: 7}, "persisted 6, counted 6"},
		{"audit", Assertion{Type: AssertAuditLen, Count: 2}, "6 audit entries"},
		{"section", Assertion{Type: AssertSection, Section: "decision"}, "section decision"},
		{"contains result", Assertion{Type: AssertTraceContains, Operation: "credit", Result: "PERMANENT_EXTERNAL_FAILURE"}, "not found in trace"},
		{"contains op", Assertion{Type: AssertTraceContains, Operation: "aus"}, "operation aus"},
		{"order", Assertion{Type: AssertTraceOrder, Operations: []string{"credit", "documents"}}, "should be before"},
		{"order missing", Assertion{Type: AssertTraceOrder, Operations: []string{"documents", "aus"}}, "missing operation: aus"},
		{"count", Assertion{Type: AssertTraceCount, Operation: "credit", Count: 1}, "credit appears 2 times"},
		{"calls", Assertion{Type: AssertServiceCalls, Service: "credit", Count: 1}, "credit called 4 times"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(&Result{Trace: sampleTrace}, []Assertion{tt.assertion}, sampleContext(t))
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], "assertions[0]")
			assert.Contains(t, errs[0], tt.contains)
		})
	}
}

func TestAssertWriteCount_CounterMismatch(t *testing.T) {
	actx := sampleContext(t)
	actx.Inspection.CountedWrites = 5

	errs := EvaluateAssertions(&Result{}, []Assertion{{Type: AssertWriteCount, Count: 6}}, actx)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "persisted 6, counted 5")
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{Type: AssertTraceCount, Expected: "a", Actual: "b", Trace: sampleTrace}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "step 1 collecting/credit TRANSIENT_EXTERNAL_FAILURE")
	assert.Contains(t, msg, "step 2 resume -> approved")
}
