package harness

import (
	"github.com/roach88/caseflow/internal/casefile"
	"github.com/roach88/caseflow/internal/engine"
)

// TraceEvent is one line of a scenario trace: either an operation result
// within a phase, or the outcome of a flow step.
type TraceEvent struct {
	Step       int    `json:"step"`
	Action     string `json:"action"`
	Phase      string `json:"phase,omitempty"`
	Operation  string `json:"operation,omitempty"`
	Result     string `json:"result,omitempty"` // "ok" or an error kind
	Attempts   int    `json:"attempts,omitempty"`
	Status     string `json:"status,omitempty"`
	WriteCount int64  `json:"write_count,omitempty"`
	Noop       bool   `json:"noop,omitempty"`
}

// IsOperation reports whether the event records an operation result.
func (e TraceEvent) IsOperation() bool {
	return e.Operation != ""
}

// ResultOK is the trace result of a successful operation.
const ResultOK = "ok"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists operation results and step outcomes in flow order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// CaseID is the id of the scenario's case.
	CaseID string `json:"case_id"`

	// Record is the case as stored after the last step.
	Record *casefile.Record `json:"-"`

	// Inspection is the observability view after the last step.
	Inspection engine.Inspection `json:"inspection"`

	// Calls counts calls per simulated service.
	Calls map[string]int `json:"calls"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Calls:  map[string]int{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addOutcome appends the operation results of out, phase by phase with
// operations sorted by name, followed by the step outcome.
func (r *Result) addOutcome(step int, action string, out engine.Outcome) {
	for _, p := range out.Phases {
		ops := make([]engine.OperationResult, 0, len(p.Completed)+len(p.Failed))
		ops = append(ops, p.Completed...)
		ops = append(ops, p.Failed...)
		sortByName(ops)
		for _, op := range ops {
			res := ResultOK
			if !op.OK {
				res = string(op.Kind)
			}
			r.Trace = append(r.Trace, TraceEvent{
				Step:      step,
				Action:    action,
				Phase:     p.Phase,
				Operation: op.Name,
				Result:    res,
				Attempts:  op.Attempts,
			})
		}
	}
	r.Trace = append(r.Trace, TraceEvent{
		Step:       step,
		Action:     action,
		Status:     string(out.Status),
		WriteCount: out.WriteCount,
		Noop:       out.Noop,
	})
}

// addStepError records a flow step that failed outright.
func (r *Result) addStepError(step int, action string, kind casefile.ErrorKind) {
	r.Trace = append(r.Trace, TraceEvent{Step: step, Action: action, Result: string(kind)})
}
