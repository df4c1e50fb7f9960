package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/caseflow/internal/casefile"
)

// FetchFunc is the external-collaborator step of an operation. It receives a
// read-only snapshot of the record and may block on network calls. It must be
// safe to call more than once for the same case, since retries repeat it.
type FetchFunc func(ctx context.Context, snapshot *casefile.Record) (any, error)

// ApplyFunc computes the section value from the fetched result. It runs with
// the case lock held, against the freshly loaded record, and must not modify
// rec; the executor performs the write.
type ApplyFunc func(rec *casefile.Record, fetched any) (Mutation, error)

// Mutation is what an operation writes: one section plus an optional status
// change.
type Mutation struct {
	// Value is encoded as JSON into the operation's section.
	Value any

	// Summary is the audit entry text. Empty uses "<op> completed".
	Summary string

	// Status, when set, moves the record to this status in the same write.
	// It must be listed in Operation.Transitions.
	Status casefile.Status
}

// Operation is one lock-protected unit of business work against a case.
type Operation struct {
	// Name identifies the operation in results, audit entries and metrics.
	Name string

	// Actor is recorded on the audit entry. Defaults to Name.
	Actor string

	// Section is the single section this operation writes. Defaults to Name.
	Section string

	// Requires lists sections that must exist before the operation runs.
	Requires []string

	// Required operations halt the case when they fail. Best-effort
	// operations are logged and skipped.
	Required bool

	// From restricts the statuses the operation may run in. Empty allows any
	// non-terminal, non-suspended status.
	From []casefile.Status

	// Transitions lists the statuses Apply may move the record to.
	Transitions []casefile.Status

	Fetch FetchFunc
	Apply ApplyFunc
}

// SectionName returns the section written by the operation.
func (op *Operation) SectionName() string {
	if op.Section != "" {
		return op.Section
	}
	return op.Name
}

func (op *Operation) actor() string {
	if op.Actor != "" {
		return op.Actor
	}
	return op.Name
}

// Validate checks the operation definition.
func (op *Operation) Validate() error {
	if op.Name == "" {
		return fmt.Errorf("operation has empty name")
	}
	if op.Apply == nil {
		return fmt.Errorf("operation %s has no apply func", op.Name)
	}
	for _, st := range op.From {
		if !st.Valid() {
			return fmt.Errorf("operation %s: invalid from status %q", op.Name, st)
		}
	}
	for _, st := range op.Transitions {
		if !st.Valid() {
			return fmt.Errorf("operation %s: invalid transition status %q", op.Name, st)
		}
	}
	return nil
}

// check verifies, against a record loaded under the lock, that the operation
// may run now.
func (op *Operation) check(rec *casefile.Record) error {
	switch {
	case rec.IsTerminal():
		return &casefile.Error{
			Kind:    casefile.KindTerminalState,
			CaseID:  rec.ID,
			Op:      op.Name,
			Message: fmt.Sprintf("case is %s", rec.Status),
		}
	case rec.Status == casefile.StatusSuspended:
		return &casefile.Error{
			Kind:    casefile.KindPrecondition,
			CaseID:  rec.ID,
			Op:      op.Name,
			Message: "case is suspended",
		}
	}
	if len(op.From) > 0 && !slices.Contains(op.From, rec.Status) {
		return &casefile.Error{
			Kind:    casefile.KindPrecondition,
			CaseID:  rec.ID,
			Op:      op.Name,
			Message: fmt.Sprintf("status %s is not one of %v", rec.Status, op.From),
		}
	}
	for _, s := range op.Requires {
		if !rec.HasSection(s) {
			return &casefile.Error{
				Kind:    casefile.KindPrecondition,
				CaseID:  rec.ID,
				Op:      op.Name,
				Message: fmt.Sprintf("required section %q not present", s),
			}
		}
	}
	return nil
}

// OperationResult reports how one operation ended. Failures are values, not
// errors: the runner and orchestrator inspect every result.
type OperationResult struct {
	Name     string             `json:"name"`
	OK       bool               `json:"ok"`
	Section  string             `json:"section,omitempty"`
	Status   casefile.Status    `json:"status,omitempty"`
	Kind     casefile.ErrorKind `json:"kind,omitempty"`
	Error    string             `json:"error,omitempty"`
	Err      error              `json:"-"`
	Attempts int                `json:"attempts"`
	Required bool               `json:"required"`
	Started  time.Time          `json:"started"`
	Finished time.Time          `json:"finished"`
}

// Duration is the wall time spent on the operation, retries included.
func (r OperationResult) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

func (r *OperationResult) fail(err error) {
	r.OK = false
	r.Err = err
	r.Kind = casefile.KindOf(err)
	r.Error = err.Error()
}
