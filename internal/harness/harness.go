package harness

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/caseflow/internal/casefile"
	"github.com/roach88/caseflow/internal/engine"
	"github.com/roach88/caseflow/internal/lending"
	"github.com/roach88/caseflow/internal/locktable"
	"github.com/roach88/caseflow/internal/pipeline"
	"github.com/roach88/caseflow/internal/store"
	"github.com/roach88/caseflow/internal/testutil"
)

// scenarioRetry keeps retry backoff out of scenario run time.
var scenarioRetry = engine.RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond}

// Harness executes one scenario against a fresh engine.
type Harness struct {
	orch     *engine.Orchestrator
	services *lending.Services
	caseID   string
}

// New builds an in-memory engine for scenario and creates its case.
func New(ctx context.Context, scenario *Scenario) (*Harness, error) {
	var def *pipeline.Definition
	if scenario.Pipeline != "" {
		var err error
		if def, err = pipeline.Load(scenario.Pipeline); err != nil {
			return nil, fmt.Errorf("failed to load pipeline: %w", err)
		}
	}

	svc := lending.NewServices(scenario.behaviors())
	phases, err := lending.Phases(def, svc)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	exec := engine.NewExecutor(store.NewMemoryStore(), locktable.New(),
		engine.WithRetryPolicy(scenarioRetry),
		engine.WithClock(testutil.NewStepClock(time.Time{}, time.Second)),
	)
	orch, err := engine.NewOrchestrator(exec, engine.NewRunner(exec), phases,
		engine.WithIDGenerator(engine.NewSequenceGenerator("loan")))
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(scenario.Application)
	if err != nil {
		return nil, fmt.Errorf("failed to encode application: %w", err)
	}
	rec, err := orch.Create(ctx, "", map[string]json.RawMessage{lending.SectionApplication: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to create case: %w", err)
	}
	return &Harness{orch: orch, services: svc, caseID: rec.ID}, nil
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Build an in-memory engine with deterministic clock and ids
// 2. Create the case from the scenario application
// 3. Execute flow steps, checking each expect clause
// 4. Evaluate assertions against the trace and final case
//
// The returned error covers setup failures only; failed expectations and
// assertions are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	h, err := New(ctx, scenario)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	result.CaseID = h.caseID
	for i, step := range scenario.Flow {
		h.executeStep(ctx, i+1, step, result)
	}

	rec, err := h.orch.Record(ctx, h.caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load final case: %w", err)
	}
	ins, err := h.orch.Inspect(ctx, h.caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect final case: %w", err)
	}
	audit, err := h.orch.Audit(ctx, h.caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit trail: %w", err)
	}
	result.Record = rec
	result.Inspection = ins
	result.Calls = h.services.Calls()

	actx := &AssertionContext{Record: rec, Inspection: ins, Audit: audit, Calls: result.Calls}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, n int, step FlowStep, result *Result) {
	var (
		out engine.Outcome
		err error
	)
	switch step.Action {
	case ActionProcess:
		out, err = h.orch.ProcessCase(ctx, h.caseID)
	case ActionResume:
		out, err = h.orch.Resume(ctx, h.caseID)
	case ActionWithdraw:
		out, err = h.orch.Withdraw(ctx, h.caseID, step.Reason)
	}

	if err != nil {
		kind := casefile.KindOf(err)
		result.addStepError(n, step.Action, kind)
		if step.Expect == nil || step.Expect.Error == "" {
			result.AddError(fmt.Sprintf("flow[%d] %s: unexpected error: %v", n-1, step.Action, err))
		} else if string(kind) != step.Expect.Error {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected error %s, got %s", n-1, step.Action, step.Expect.Error, kind))
		}
		return
	}

	result.addOutcome(n, step.Action, out)
	if step.Expect != nil {
		for _, msg := range checkExpect(step.Expect, out) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", n-1, step.Action, msg))
		}
	}
}

func checkExpect(want *ExpectClause, out engine.Outcome) []string {
	var errs []string
	if want.Error != "" {
		errs = append(errs, fmt.Sprintf("expected error %s, step succeeded", want.Error))
	}
	if want.Status != "" {
		st := casefile.MustParseStatus(want.Status)
		if out.Status != st {
			errs = append(errs, fmt.Sprintf("expected status %s, got %s", st, out.Status))
		}
	}
	if want.WriteCount != nil && *want.WriteCount != out.WriteCount {
		errs = append(errs, fmt.Sprintf("expected write_count %d, got %d", *want.WriteCount, out.WriteCount))
	}
	if want.Failed != nil {
		got := make([]string, len(out.Failures))
		for i, f := range out.Failures {
			got[i] = f.Operation
		}
		wantFailed := slices.Clone(want.Failed)
		slices.Sort(got)
		slices.Sort(wantFailed)
		if !slices.Equal(got, wantFailed) {
			errs = append(errs, fmt.Sprintf("expected failed operations %v, got %v", wantFailed, got))
		}
	}
	return errs
}

func sortByName(ops []engine.OperationResult) {
	slices.SortFunc(ops, func(a, b engine.OperationResult) int {
		return cmp.Compare(a.Name, b.Name)
	})
}

// ErrScenarioFailed is returned by RunWithGolden when a scenario's
// expectations or assertions do not hold.
var ErrScenarioFailed = errors.New("scenario failed")
