package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/caseflow/internal/casefile"
	"github.com/roach88/caseflow/internal/store"
)

// PhaseComplete is the phase cursor of a case that ran every phase without
// reaching a terminal status.
const PhaseComplete = "complete"

// Failure is a failed required operation surfaced to the caller.
type Failure struct {
	Operation string             `json:"operation"`
	Kind      casefile.ErrorKind `json:"kind"`
	Message   string             `json:"message"`
	Attempts  int                `json:"attempts,omitempty"`
}

// Outcome is what ProcessCase reports.
type Outcome struct {
	CaseID     string          `json:"case_id"`
	Status     casefile.Status `json:"status"`
	Phase      string          `json:"phase,omitempty"`
	Phases     []PhaseResult   `json:"phases,omitempty"`
	Failures   []Failure       `json:"failures,omitempty"`
	Noop       bool            `json:"noop,omitempty"`
	WriteCount int64           `json:"write_count"`
}

// Suspended reports whether the case is halted waiting for Resume.
func (o Outcome) Suspended() bool {
	return o.Status == casefile.StatusSuspended
}

// Inspection is the per-case observability view: persisted and counted
// writes, audit length and ordering.
type Inspection struct {
	CaseID        string          `json:"case_id"`
	Status        casefile.Status `json:"status"`
	Phase         string          `json:"phase,omitempty"`
	SuspendedFrom casefile.Status `json:"suspended_from,omitempty"`
	WriteCount    int64           `json:"write_count"`
	CountedWrites int64           `json:"counted_writes"`
	AuditLen      int             `json:"audit_len"`
	LiveAudit     int             `json:"live_audit"`
	AuditOrdered  bool            `json:"audit_ordered"`
	Sections      []string        `json:"sections"`
	Failures      []Failure       `json:"failures,omitempty"`
}

// historian is implemented by stores that archive audit entries.
type historian interface {
	History(ctx context.Context, id string) ([]casefile.AuditEntry, error)
}

// Orchestrator drives cases through an ordered list of phases.
//
// Between phases it advances the status machine. When a required operation
// fails after its retries, the case is suspended with one failure audit entry
// per failed operation and the next phase is not started.
type Orchestrator struct {
	exec   *Executor
	runner *Runner
	phases []Phase
	ids    IDGenerator
	actor  string
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithIDGenerator sets how Create names cases without an id.
func WithIDGenerator(g IDGenerator) OrchestratorOption {
	return func(o *Orchestrator) { o.ids = g }
}

// WithActor sets the actor recorded on orchestrator audit entries.
func WithActor(actor string) OrchestratorOption {
	return func(o *Orchestrator) { o.actor = actor }
}

// NewOrchestrator validates phases and returns an orchestrator running them
// in order.
func NewOrchestrator(exec *Executor, runner *Runner, phases []Phase, opts ...OrchestratorOption) (*Orchestrator, error) {
	if err := ValidatePhases(phases); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		exec:   exec,
		runner: runner,
		phases: phases,
		ids:    UUIDv7Generator{},
		actor:  "orchestrator",
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ValidatePhases checks names, statuses and operations of a phase list.
func ValidatePhases(phases []Phase) error {
	if len(phases) == 0 {
		return fmt.Errorf("pipeline has no phases")
	}
	seenPhase := make(map[string]bool)
	seenOp := make(map[string]bool)
	for _, p := range phases {
		if p.Name == "" || p.Name == PhaseComplete {
			return fmt.Errorf("invalid phase name %q", p.Name)
		}
		if seenPhase[p.Name] {
			return fmt.Errorf("duplicate phase %q", p.Name)
		}
		seenPhase[p.Name] = true
		for _, st := range []casefile.Status{p.Entry, p.Success} {
			if st != "" && !st.Valid() {
				return fmt.Errorf("phase %s: invalid status %q", p.Name, st)
			}
		}
		for _, op := range p.Operations() {
			if err := op.Validate(); err != nil {
				return fmt.Errorf("phase %s: %w", p.Name, err)
			}
			if seenOp[op.Name] {
				return fmt.Errorf("phase %s: duplicate operation %q", p.Name, op.Name)
			}
			seenOp[op.Name] = true
		}
	}
	return nil
}

// Phases returns the configured phases.
func (o *Orchestrator) Phases() []Phase { return o.phases }

// Executor returns the executor used for all writes.
func (o *Orchestrator) Executor() *Executor { return o.exec }

// Create persists a new case in the initial status with the given sections.
// An empty id is generated. Creation is not a counted write.
func (o *Orchestrator) Create(ctx context.Context, id string, sections map[string]json.RawMessage) (*casefile.Record, error) {
	if id == "" {
		id = o.ids.Generate()
	}
	if err := store.CheckID(id); err != nil {
		return nil, err
	}
	rec := casefile.New(id, o.exec.clock.Now())
	for name, raw := range sections {
		if err := rec.SetSection(name, raw); err != nil {
			return nil, err
		}
	}
	rec.Phase = o.phases[0].Name
	if err := o.exec.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	slog.Info("case created", "case", id, "sections", len(sections))
	return rec, nil
}

// ProcessCase runs the case from its phase cursor until it reaches a terminal
// status, is suspended, or finishes the last phase.
//
// It is a no-op on a terminal case, on a suspended case, and on a case that
// already finished every phase; the stored outcome is returned unchanged.
// The returned error covers infrastructure failures only. Failed operations
// are reported in Outcome.Failures.
func (o *Orchestrator) ProcessCase(ctx context.Context, id string) (Outcome, error) {
	rec, err := o.exec.store.Load(ctx, id)
	if err != nil {
		return Outcome{CaseID: id}, err
	}
	if rec.IsTerminal() || rec.Status == casefile.StatusSuspended || rec.Phase == PhaseComplete {
		out := outcomeOf(rec)
		out.Noop = true
		return out, nil
	}

	start, err := o.phaseIndex(rec)
	if err != nil {
		return outcomeOf(rec), err
	}

	var phases []PhaseResult
	for i := start; i < len(o.phases); i++ {
		if err := ctx.Err(); err != nil {
			return withPhases(outcomeOf(rec), phases), err
		}
		ph := &o.phases[i]

		rec, err = o.enter(ctx, id, ph)
		if err != nil {
			return withPhases(Outcome{CaseID: id}, phases), err
		}

		res := o.runner.Run(ctx, id, ph)
		phases = append(phases, res)

		if failed := res.RequiredFailures(); len(failed) > 0 {
			rec, err = o.suspend(ctx, id, ph, failed)
			if err != nil {
				return withPhases(Outcome{CaseID: id}, phases), err
			}
			out := withPhases(outcomeOf(rec), phases)
			out.Failures = make([]Failure, len(failed))
			for j, f := range failed {
				out.Failures[j] = Failure{Operation: f.Name, Kind: f.Kind, Message: f.Error, Attempts: f.Attempts}
			}
			return out, nil
		}

		next := PhaseComplete
		if i+1 < len(o.phases) {
			next = o.phases[i+1].Name
		}
		rec, err = o.advance(ctx, id, ph, next)
		if err != nil {
			return withPhases(Outcome{CaseID: id}, phases), err
		}
		if rec.IsTerminal() {
			break
		}
	}

	slog.Info("case processed", "case", id, "status", rec.Status, "write_count", rec.WriteCount)
	return withPhases(outcomeOf(rec), phases), nil
}

func (o *Orchestrator) phaseIndex(rec *casefile.Record) (int, error) {
	if rec.Phase == "" {
		return 0, nil
	}
	for i, p := range o.phases {
		if p.Name == rec.Phase {
			return i, nil
		}
	}
	return 0, casefile.NewError(casefile.KindPrecondition, rec.ID, "unknown phase %q", rec.Phase)
}

// enter moves the case into ph: the phase cursor and, when set, the entry
// status. Nothing is written if the case is already there.
func (o *Orchestrator) enter(ctx context.Context, id string, ph *Phase) (*casefile.Record, error) {
	rec, err := o.exec.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Phase == ph.Name && (ph.Entry == "" || rec.Status == ph.Entry) {
		return rec, nil
	}
	return o.exec.Mutate(ctx, id, o.actor, func(rec *casefile.Record, now time.Time) error {
		if ph.Entry != "" && rec.Status != ph.Entry {
			if err := rec.Transition(ph.Entry, o.actor, "entering phase "+ph.Name, now); err != nil {
				return err
			}
		}
		rec.Phase = ph.Name
		return nil
	})
}

// advance records a successful phase: success status, if any, and the cursor
// of the next phase. A case that became terminal during the phase is not
// written again.
func (o *Orchestrator) advance(ctx context.Context, id string, ph *Phase, next string) (*casefile.Record, error) {
	rec, err := o.exec.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.IsTerminal() {
		return rec, nil
	}
	return o.exec.Mutate(ctx, id, o.actor, func(rec *casefile.Record, now time.Time) error {
		if rec.IsTerminal() {
			return casefile.NewError(casefile.KindTerminalState, id, "case became %s while advancing", rec.Status)
		}
		if ph.Success != "" && rec.Status != ph.Success {
			if err := rec.Transition(ph.Success, o.actor, "phase "+ph.Name+" completed", now); err != nil {
				return err
			}
		}
		rec.Phase = next
		return nil
	})
}

// suspend halts the case after failed required operations. The failure
// entries and the status change are one write.
func (o *Orchestrator) suspend(ctx context.Context, id string, ph *Phase, failed []OperationResult) (*casefile.Record, error) {
	names := make([]string, len(failed))
	for i, f := range failed {
		names[i] = f.Name
	}
	rec, err := o.exec.Mutate(ctx, id, o.actor, func(rec *casefile.Record, now time.Time) error {
		for _, f := range failed {
			rec.AppendAudit(casefile.AuditEntry{
				Timestamp: now,
				Actor:     o.actor,
				Action:    casefile.ActionFailure,
				Operation: f.Name,
				ErrorKind: f.Kind,
				Summary:   f.Error,
			})
		}
		reason := fmt.Sprintf("phase %s halted: %s failed", ph.Name, strings.Join(names, ", "))
		return rec.Transition(casefile.StatusSuspended, o.actor, reason, now)
	})
	if err != nil {
		return nil, err
	}
	o.exec.metrics.suspended(ph.Name)
	slog.Error("case suspended", "case", id, "phase", ph.Name, "failed", names)
	return rec, nil
}

// Resume returns a suspended case to the status it was suspended from and
// processes it again from the phase that failed.
func (o *Orchestrator) Resume(ctx context.Context, id string) (Outcome, error) {
	_, err := o.exec.Mutate(ctx, id, o.actor, func(rec *casefile.Record, now time.Time) error {
		if rec.Status != casefile.StatusSuspended {
			return casefile.NewError(casefile.KindPrecondition, id, "case is %s, not suspended", rec.Status)
		}
		return rec.Transition(rec.SuspendedFrom, o.actor, "resumed", now)
	})
	if err != nil {
		return Outcome{CaseID: id}, err
	}
	slog.Info("case resumed", "case", id)
	return o.ProcessCase(ctx, id)
}

// Withdraw moves a non-terminal case to withdrawn.
func (o *Orchestrator) Withdraw(ctx context.Context, id, reason string) (Outcome, error) {
	if reason == "" {
		reason = "withdrawn by request"
	}
	rec, err := o.exec.Mutate(ctx, id, o.actor, func(rec *casefile.Record, now time.Time) error {
		return rec.Transition(casefile.StatusWithdrawn, o.actor, reason, now)
	})
	if err != nil {
		return Outcome{CaseID: id}, err
	}
	slog.Info("case withdrawn", "case", id)
	return outcomeOf(rec), nil
}

// Inspect reports the observable counters of a case.
func (o *Orchestrator) Inspect(ctx context.Context, id string) (Inspection, error) {
	rec, err := o.exec.store.Load(ctx, id)
	if err != nil {
		return Inspection{CaseID: id}, err
	}
	return Inspection{
		CaseID:        rec.ID,
		Status:        rec.Status,
		Phase:         rec.Phase,
		SuspendedFrom: rec.SuspendedFrom,
		WriteCount:    rec.WriteCount,
		CountedWrites: o.exec.counter.Get(id),
		AuditLen:      rec.AuditLen(),
		LiveAudit:     len(rec.AuditTrail),
		AuditOrdered:  rec.AuditOrdered(),
		Sections:      rec.Sections(),
		Failures:      trailingFailures(rec),
	}, nil
}

// Audit returns the full audit trail of a case, archived entries included
// when the store archives them.
func (o *Orchestrator) Audit(ctx context.Context, id string) ([]casefile.AuditEntry, error) {
	if h, ok := o.exec.store.(historian); ok {
		return h.History(ctx, id)
	}
	rec, err := o.exec.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.AuditTrail, nil
}

// List returns a summary of every stored case.
func (o *Orchestrator) List(ctx context.Context) ([]store.Summary, error) {
	return o.exec.store.List(ctx)
}

// Record loads the current state of a case.
func (o *Orchestrator) Record(ctx context.Context, id string) (*casefile.Record, error) {
	return o.exec.store.Load(ctx, id)
}

func outcomeOf(rec *casefile.Record) Outcome {
	if rec == nil {
		return Outcome{}
	}
	return Outcome{
		CaseID:     rec.ID,
		Status:     rec.Status,
		Phase:      rec.Phase,
		Failures:   trailingFailures(rec),
		WriteCount: rec.WriteCount,
	}
}

func withPhases(o Outcome, phases []PhaseResult) Outcome {
	o.Phases = phases
	return o
}

// trailingFailures returns the failure entries written with the current
// suspension. A case that is not suspended has none.
func trailingFailures(rec *casefile.Record) []Failure {
	if rec.Status != casefile.StatusSuspended {
		return nil
	}
	trail := rec.AuditTrail
	i := len(trail) - 1
	if i >= 0 && trail[i].Action == casefile.ActionStatusChange {
		i--
	}
	var out []Failure
	for ; i >= 0 && trail[i].Action == casefile.ActionFailure; i-- {
		out = append(out, Failure{Operation: trail[i].Operation, Kind: trail[i].ErrorKind, Message: trail[i].Summary})
	}
	slices.Reverse(out)
	return out
}
