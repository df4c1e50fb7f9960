package engine

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/caseflow/internal/casefile"
)

// Phase is one ordered stage of a pipeline.
type Phase struct {
	// Name identifies the phase and is stored as the case's phase cursor.
	Name string

	// Entry is the status the case must be in while the phase runs. The
	// orchestrator transitions to it on entry if needed. Empty leaves the
	// status alone.
	Entry casefile.Status

	// Success is the status set after every required operation succeeded.
	// Empty leaves the status alone.
	Success casefile.Status

	// Concurrent operations run in parallel and must not depend on each other.
	Concurrent []*Operation

	// Dependent operations run one at a time, in declared order, after all
	// concurrent operations have finished.
	Dependent []*Operation
}

// Operations returns concurrent then dependent operations.
func (p *Phase) Operations() []*Operation {
	out := make([]*Operation, 0, len(p.Concurrent)+len(p.Dependent))
	out = append(out, p.Concurrent...)
	return append(out, p.Dependent...)
}

// PhaseResult aggregates the results of one phase run. Completed and Failed
// keep declaration order, which is not completion order.
type PhaseResult struct {
	Phase     string            `json:"phase"`
	Completed []OperationResult `json:"completed"`
	Failed    []OperationResult `json:"failed"`
	Duration  time.Duration     `json:"duration"`
}

// OK reports whether no required operation failed.
func (r PhaseResult) OK() bool {
	return len(r.RequiredFailures()) == 0
}

// RequiredFailures returns the failed operations that halt the case.
func (r PhaseResult) RequiredFailures() []OperationResult {
	var out []OperationResult
	for _, f := range r.Failed {
		if f.Required {
			out = append(out, f)
		}
	}
	return out
}

// Runner fans a phase's operations out and joins them back.
type Runner struct {
	exec     *Executor
	parallel int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithParallelism caps how many concurrent operations of one phase run at
// once. Zero or less is unlimited.
func WithParallelism(n int) RunnerOption {
	return func(r *Runner) { r.parallel = n }
}

// NewRunner creates a runner that executes operations through exec.
func NewRunner(exec *Executor, opts ...RunnerOption) *Runner {
	r := &Runner{exec: exec}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes phase against case id.
//
// All concurrent operations are started together and awaited; a failure in
// one never cancels its siblings. Dependent operations then run in declared
// order. A dependent operation whose required sections are missing fails with
// PRECONDITION_FAILED without calling its collaborator.
func (r *Runner) Run(ctx context.Context, id string, phase *Phase) PhaseResult {
	start := time.Now()
	slog.Info("phase start", "case", id, "phase", phase.Name,
		"concurrent", len(phase.Concurrent), "dependent", len(phase.Dependent))

	results := make([]OperationResult, 0, len(phase.Concurrent)+len(phase.Dependent))
	results = append(results, r.runConcurrent(ctx, id, phase.Concurrent)...)
	for _, op := range phase.Dependent {
		results = append(results, r.exec.Execute(ctx, id, op))
	}

	out := PhaseResult{Phase: phase.Name, Duration: time.Since(start)}
	for _, res := range results {
		if res.OK {
			out.Completed = append(out.Completed, res)
			continue
		}
		out.Failed = append(out.Failed, res)
		if !res.Required {
			slog.Warn("best-effort operation failed",
				"case", id, "phase", phase.Name, "op", res.Name, "kind", res.Kind, "error", res.Error)
		}
	}
	r.exec.metrics.phaseDone(phase.Name, out.Duration)

	slog.Info("phase finished",
		"case", id,
		"phase", phase.Name,
		"completed", len(out.Completed),
		"failed", len(out.Failed),
		"duration", out.Duration)
	return out
}

// runConcurrent executes ops in parallel. The goroutines always return nil;
// the group is only used for joining and the parallelism limit.
func (r *Runner) runConcurrent(ctx context.Context, id string, ops []*Operation) []OperationResult {
	results := make([]OperationResult, len(ops))
	var g errgroup.Group
	if r.parallel > 0 {
		g.SetLimit(r.parallel)
	}
	for i, op := range ops {
		i, op := i, op
		g.Go(func() error {
			results[i] = r.exec.Execute(ctx, id, op)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
