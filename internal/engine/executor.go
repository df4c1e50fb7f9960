package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/caseflow/internal/casefile"
	"github.com/roach88/caseflow/internal/locktable"
	"github.com/roach88/caseflow/internal/store"
)

// LockMode selects how an operation's external call relates to the case lock.
type LockMode string

const (
	// LockOptimistic snapshots the record under the lock, releases it for the
	// external call, then re-acquires, reloads and re-validates before the
	// write. A status change in between is a CONFLICT and is retried. This is
	// the default: concurrent operations of one case overlap their calls.
	LockOptimistic LockMode = "optimistic"

	// LockHeld runs fetch and write inside one critical section. Calls for
	// the same case are serialised, external latency included.
	LockHeld LockMode = "held"
)

// ParseLockMode converts a configuration string to a LockMode. Empty means
// LockOptimistic.
func ParseLockMode(s string) (LockMode, error) {
	switch LockMode(s) {
	case "", LockOptimistic:
		return LockOptimistic, nil
	case LockHeld:
		return LockHeld, nil
	default:
		return "", fmt.Errorf("unknown lock mode %q (want held or optimistic)", s)
	}
}

// RetryPolicy bounds retries of retryable failures.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries int

	// Backoff is the sleep before the first retry; it doubles per retry.
	Backoff time.Duration
}

// DefaultRetryPolicy allows two retries after the first attempt.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 2, Backoff: 250 * time.Millisecond}

func (p RetryPolicy) delay(retry int) time.Duration {
	return p.Backoff << (retry - 1)
}

// Executor runs operations against cases: lock, load, check, fetch, apply,
// save, count.
//
// Thread-safety: Executor is safe for concurrent use. Mutual exclusion per
// case comes from the lock table; the store needs none of its own.
type Executor struct {
	store   store.EntityStore
	locks   *locktable.Table
	retry   RetryPolicy
	mode    LockMode
	clock   Clock
	counter *WriteCounter
	metrics *Metrics
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) ExecutorOption {
	return func(e *Executor) { e.retry = p }
}

// WithLockMode selects optimistic or held locking.
func WithLockMode(m LockMode) ExecutorOption {
	return func(e *Executor) { e.mode = m }
}

// WithClock sets the audit timestamp source.
func WithClock(c Clock) ExecutorOption {
	return func(e *Executor) { e.clock = c }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithWriteCounter shares a counter between executors.
func WithWriteCounter(c *WriteCounter) ExecutorOption {
	return func(e *Executor) { e.counter = c }
}

// NewExecutor creates an executor over s, serialising per case through locks.
func NewExecutor(s store.EntityStore, locks *locktable.Table, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store: s,
		locks: locks,
		retry: DefaultRetryPolicy,
		mode:  LockOptimistic,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = NewClock()
	}
	if e.counter == nil {
		e.counter = NewWriteCounter()
	}
	return e
}

// Store returns the underlying entity store.
func (e *Executor) Store() store.EntityStore { return e.store }

// Counter returns the process-local write counter.
func (e *Executor) Counter() *WriteCounter { return e.counter }

// Mode returns the lock mode in use.
func (e *Executor) Mode() LockMode { return e.mode }

// Execute runs op against case id and reports the outcome. It never returns
// an error: every failure is captured in the result.
//
// Retryable failures (TRANSIENT_EXTERNAL_FAILURE, CONFLICT) are retried up to
// RetryPolicy.MaxRetries times. The lock is released before each backoff
// sleep.
func (e *Executor) Execute(ctx context.Context, id string, op *Operation) OperationResult {
	res := OperationResult{
		Name:     op.Name,
		Section:  op.SectionName(),
		Required: op.Required,
		Started:  time.Now(),
	}
	defer func() {
		res.Finished = time.Now()
		e.metrics.operationDone(res)
	}()

	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		slog.Debug("operation start", "case", id, "op", op.Name, "attempt", attempt)

		status, err := e.attempt(ctx, id, op)
		if err == nil {
			res.OK = true
			res.Status = status
			slog.Debug("operation finished", "case", id, "op", op.Name, "status", status)
			return res
		}
		err = casefile.Wrap(casefile.KindPermanent, id, op.Name, err)

		if !casefile.IsTransient(err) || attempt > e.retry.MaxRetries {
			res.fail(err)
			return res
		}

		wait := e.retry.delay(attempt)
		slog.Warn("operation failed, retrying",
			"case", id,
			"op", op.Name,
			"attempt", attempt,
			"backoff", wait,
			"error", err)
		e.metrics.retry(op.Name)

		if err := sleep(ctx, wait); err != nil {
			res.fail(&casefile.Error{
				Kind:    casefile.KindTransient,
				CaseID:  id,
				Op:      op.Name,
				Message: "cancelled during retry backoff",
				Err:     err,
			})
			return res
		}
	}
}

// attempt performs one try of op and returns the status after the write.
func (e *Executor) attempt(ctx context.Context, id string, op *Operation) (casefile.Status, error) {
	if e.mode != LockHeld {
		return e.attemptOptimistic(ctx, id, op)
	}

	var status casefile.Status
	err := e.locks.Do(ctx, id, func(ctx context.Context) error {
		rec, err := e.store.Load(ctx, id)
		if err != nil {
			return err
		}
		if err := op.check(rec); err != nil {
			return err
		}
		fetched, err := fetch(ctx, op, rec)
		if err != nil {
			return err
		}
		if err := e.commit(ctx, rec, op, fetched); err != nil {
			return err
		}
		status = rec.Status
		return nil
	})
	return status, err
}

func (e *Executor) attemptOptimistic(ctx context.Context, id string, op *Operation) (casefile.Status, error) {
	var snapshot *casefile.Record
	err := e.locks.Do(ctx, id, func(ctx context.Context) error {
		rec, err := e.store.Load(ctx, id)
		if err != nil {
			return err
		}
		if err := op.check(rec); err != nil {
			return err
		}
		snapshot = rec
		return nil
	})
	if err != nil {
		return "", err
	}

	fetched, err := fetch(ctx, op, snapshot)
	if err != nil {
		return "", err
	}

	var status casefile.Status
	err = e.locks.Do(ctx, id, func(ctx context.Context) error {
		rec, err := e.store.Load(ctx, id)
		if err != nil {
			return err
		}
		if rec.Status != snapshot.Status {
			return &casefile.Error{
				Kind:    casefile.KindConflict,
				CaseID:  id,
				Op:      op.Name,
				Message: fmt.Sprintf("status changed from %s to %s during external call", snapshot.Status, rec.Status),
			}
		}
		if err := op.check(rec); err != nil {
			return err
		}
		if err := e.commit(ctx, rec, op, fetched); err != nil {
			return err
		}
		status = rec.Status
		return nil
	})
	return status, err
}

func fetch(ctx context.Context, op *Operation, snapshot *casefile.Record) (any, error) {
	if op.Fetch == nil {
		return nil, nil
	}
	return op.Fetch(ctx, snapshot)
}

// commit applies op to rec, which must have been loaded under the lock, and
// saves it as one counted write with one audit entry.
func (e *Executor) commit(ctx context.Context, rec *casefile.Record, op *Operation, fetched any) error {
	mut, err := op.Apply(rec, fetched)
	if err != nil {
		return err
	}
	if mut.Status != "" && mut.Status != rec.Status && !slices.Contains(op.Transitions, mut.Status) {
		return &casefile.Error{
			Kind:    casefile.KindInvalidTransition,
			CaseID:  rec.ID,
			Op:      op.Name,
			Message: fmt.Sprintf("operation may not move case to %s", mut.Status),
		}
	}

	if err := rec.SetSection(op.SectionName(), mut.Value); err != nil {
		return casefile.Wrap(casefile.KindPermanent, rec.ID, op.Name, err)
	}
	entry := casefile.AuditEntry{
		Timestamp: e.clock.Now(),
		Actor:     op.actor(),
		Operation: op.Name,
		Summary:   mut.Summary,
	}
	if entry.Summary == "" {
		entry.Summary = op.Name + " completed"
	}
	if mut.Status != "" && mut.Status != rec.Status {
		if err := rec.TransitionWith(mut.Status, entry); err != nil {
			return err
		}
	} else {
		entry.Action = casefile.ActionOperation
		rec.AppendAudit(entry)
	}

	return e.save(ctx, rec, op.Name)
}

// save persists rec as one counted write. The caller holds the lock.
func (e *Executor) save(ctx context.Context, rec *casefile.Record, by string) error {
	rec.WriteCount++
	if err := e.store.Save(ctx, rec); err != nil {
		return casefile.Wrap(casefile.KindPersist, rec.ID, by, err)
	}
	e.counter.Inc(rec.ID)
	e.metrics.write()
	slog.Debug("case written", "case", rec.ID, "write_count", rec.WriteCount, "op", by)
	return nil
}

// Mutate loads case id under its lock, applies fn and saves the result as
// one counted write. fn receives the audit timestamp to use. If fn returns
// an error nothing is saved.
func (e *Executor) Mutate(ctx context.Context, id, by string, fn func(rec *casefile.Record, now time.Time) error) (*casefile.Record, error) {
	var out *casefile.Record
	err := e.locks.Do(ctx, id, func(ctx context.Context) error {
		rec, err := e.store.Load(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(rec, e.clock.Now()); err != nil {
			return err
		}
		if err := e.save(ctx, rec, by); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, casefile.Wrap(casefile.KindPermanent, id, by, err)
	}
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
