package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/caseflow/internal/casefile"
	"github.com/roach88/caseflow/internal/engine"
)

// AssertionContext is the final state assertions are evaluated against.
type AssertionContext struct {
	Record     *casefile.Record
	Inspection engine.Inspection
	Audit      []casefile.AuditEntry
	Calls      map[string]int
}

// AssertionError is returned when an assertion fails. It carries the
// operation trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			if event.IsOperation() {
				fmt.Fprintf(&buf, "  [%d] step %d %s/%s %s\n", i+1, event.Step, event.Phase, event.Operation, event.Result)
			} else {
				fmt.Fprintf(&buf, "  [%d] step %d %s -> %s %s\n", i+1, event.Step, event.Action, event.Status, event.Result)
			}
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the messages of the
// failed ones.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result.Trace, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertFinalStatus:
		return assertFinalStatus(actx, a)
	case AssertWriteCount:
		return assertWriteCount(actx, a)
	case AssertAuditLen:
		return assertAuditLen(actx, a)
	case AssertSection:
		return assertSection(actx, a)
	case AssertTraceContains:
		return assertTraceContains(trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(trace, a)
	case AssertTraceCount:
		return assertTraceCount(trace, a)
	case AssertServiceCalls:
		return assertServiceCalls(actx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertFinalStatus(actx *AssertionContext, a Assertion) error {
	want, err := casefile.ParseStatus(a.Status)
	if err != nil {
		return err
	}
	if actx.Record.Status != want {
		return &AssertionError{Type: a.Type, Expected: string(want), Actual: string(actx.Record.Status)}
	}
	return nil
}

// assertWriteCount checks the persisted count and the process-local counter.
func assertWriteCount(actx *AssertionContext, a Assertion) error {
	ins := actx.Inspection
	if ins.WriteCount != int64(a.Count) || ins.CountedWrites != int64(a.Count) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d writes", a.Count),
			Actual:   fmt.Sprintf("persisted %d, counted %d", ins.WriteCount, ins.CountedWrites),
		}
	}
	return nil
}

func assertAuditLen(actx *AssertionContext, a Assertion) error {
	if len(actx.Audit) != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d audit entries", a.Count),
			Actual:   fmt.Sprintf("%d audit entries", len(actx.Audit)),
		}
	}
	if !actx.Inspection.AuditOrdered {
		return &AssertionError{Type: a.Type, Expected: "audit trail in order", Actual: "out of order"}
	}
	return nil
}

func assertSection(actx *AssertionContext, a Assertion) error {
	if !actx.Record.HasSection(a.Section) {
		return &AssertionError{
			Type:     a.Type,
			Expected: "section " + a.Section,
			Actual:   "sections " + strings.Join(actx.Record.Sections(), ", "),
		}
	}
	return nil
}

// assertTraceContains checks that the operation appears in the trace, with
// the given result when one is set.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if event.Operation == a.Operation && (a.Result == "" || event.Result == a.Result) {
			return nil
		}
	}
	expected := "operation " + a.Operation
	if a.Result != "" {
		expected += " with result " + a.Result
	}
	return &AssertionError{Type: a.Type, Expected: expected, Actual: "not found in trace", Trace: trace}
}

// assertTraceOrder checks that operations first appear in the given order.
// Intervening operations are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.IsOperation() && positions[event.Operation] == 0 {
			positions[event.Operation] = i + 1
		}
	}

	for _, op := range a.Operations {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("all operations present: %v", a.Operations),
				Actual:   "missing operation: " + op,
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Operations); i++ {
		prev, curr := a.Operations[i-1], a.Operations[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("operations in order: %v", a.Operations),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Operation == a.Operation {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s appears %d times", a.Operation, a.Count),
			Actual:   fmt.Sprintf("%s appears %d times", a.Operation, count),
			Trace:    trace,
		}
	}
	return nil
}

func assertServiceCalls(actx *AssertionContext, a Assertion) error {
	if got := actx.Calls[a.Service]; got != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s called %d times", a.Service, a.Count),
			Actual:   fmt.Sprintf("%s called %d times", a.Service, got),
		}
	}
	return nil
}
