package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/caseflow/internal/casefile"
	"github.com/roach88/caseflow/internal/locktable"
	"github.com/roach88/caseflow/internal/store"
)

func TestExecute_WritesSectionAndAudit(t *testing.T) {
	for _, mode := range []LockMode{LockOptimistic, LockHeld} {
		t.Run(string(mode), func(t *testing.T) {
			exec, s := newTestExecutor(t, WithLockMode(mode))
			seedCase(t, s, "c1", casefile.StatusCollecting)
			c := &collab{}

			res := exec.Execute(context.Background(), "c1", testOp("credit", c))

			require.True(t, res.OK, "unexpected failure: %s", res.Error)
			assert.Equal(t, 1, res.Attempts)
			assert.Equal(t, "credit", res.Section)
			assert.Equal(t, casefile.StatusCollecting, res.Status)
			assert.Equal(t, 1, c.Calls())

			rec := loadCase(t, s, "c1")
			assert.Equal(t, int64(1), rec.WriteCount)
			assert.Equal(t, int64(1), exec.Counter().Get("c1"))
			assert.JSONEq(t, `{"by":"credit"}`, string(rec.Fields["credit"]))
			last := rec.AuditTrail[len(rec.AuditTrail)-1]
			assert.Equal(t, casefile.ActionOperation, last.Action)
			assert.Equal(t, "credit", last.Operation)
			assert.Equal(t, "credit completed", last.Summary)
		})
	}
}

func TestExecute_TerminalCaseRefused(t *testing.T) {
	exec, s := newTestExecutor(t)
	seedCase(t, s, "c1", casefile.StatusCollecting, casefile.StatusReadyForReview,
		casefile.StatusInReview, casefile.StatusDenied)
	before := loadCase(t, s, "c1")
	c := &collab{}

	res := exec.Execute(context.Background(), "c1", testOp("credit", c))

	assert.False(t, res.OK)
	assert.Equal(t, casefile.KindTerminalState, res.Kind)
	assert.Equal(t, 0, c.Calls(), "collaborator must not be called for a terminal case")
	after := loadCase(t, s, "c1")
	assert.Equal(t, before.WriteCount, after.WriteCount)
	assert.Len(t, after.AuditTrail, len(before.AuditTrail))
}

func TestExecute_MissingSectionIsPrecondition(t *testing.T) {
	exec, s := newTestExecutor(t)
	seedCase(t, s, "c1", casefile.StatusCollecting)
	c := &collab{}

	res := exec.Execute(context.Background(), "c1", testOp("ratios", c, "credit"))

	assert.False(t, res.OK)
	assert.Equal(t, casefile.KindPrecondition, res.Kind)
	assert.Equal(t, 1, res.Attempts, "precondition failures are not retried")
	assert.Equal(t, 0, c.Calls())
	assert.Contains(t, res.Error, `"credit"`)
}

func TestExecute_FromStatusChecked(t *testing.T) {
	exec, s := newTestExecutor(t)
	seedCase(t, s, "c1", casefile.StatusCollecting)
	op := testOp("decision", nil)
	op.From = []casefile.Status{casefile.StatusInReview}

	res := exec.Execute(context.Background(), "c1", op)
	assert.Equal(t, casefile.KindPrecondition, res.Kind)
}

func TestExecute_NotFound(t *testing.T) {
	exec, _ := newTestExecutor(t)
	res := exec.Execute(context.Background(), "missing", testOp("credit", nil))
	assert.Equal(t, casefile.KindNotFound, res.Kind)
}

func TestExecute_RetriesTransientFailures(t *testing.T) {
	exec, s := newTestExecutor(t)
	seedCase(t, s, "c1", casefile.StatusCollecting)
	c := &collab{outcomes: transients(2)}

	res := exec.Execute(context.Background(), "c1", testOp("credit", c))

	require.True(t, res.OK)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, c.Calls())
	assert.Equal(t, int64(1), loadCase(t, s, "c1").WriteCount, "only the successful attempt writes")
}

func TestExecute_ExhaustsRetries(t *testing.T) {
	exec, s := newTestExecutor(t)
	seedCase(t, s, "c1", casefile.StatusCollecting)
	c := &collab{outcomes: transients(3)}

	res := exec.Execute(context.Background(), "c1", testOp("credit", c))

	assert.False(t, res.OK)
	assert.Equal(t, casefile.KindTransient, res.Kind)
	assert.Equal(t, 3, res.Attempts, "first attempt plus two retries")
	assert.Equal(t, 3, c.Calls())
	assert.Equal(t, int64(0), loadCase(t, s, "c1").WriteCount)
}

func TestExecute_PermanentFailureNotRetried(t *testing.T) {
	exec, s := newTestExecutor(t)
	seedCase(t, s, "c1", casefile.StatusCollecting)
	c := &collab{outcomes: []error{casefile.Permanent("applicant not found at bureau")}}

	res := exec.Execute(context.Background(), "c1", testOp("credit", c))

	assert.Equal(t, casefile.KindPermanent, res.Kind)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, c.Calls())
}

func TestExecute_UntypedErrorIsPermanent(t *testing.T) {
	exec, s := newTestExecutor(t)
	seedCase(t, s, "c1", casefile.StatusCollecting)
	op := testOp("credit", nil)
	op.Apply = func(*casefile.Record, any) (Mutation, error) {
		return Mutation{}, errors.New("score out of range")
	}

	res := exec.Execute(context.Background(), "c1", op)
	assert.Equal(t, casefile.KindPermanent, res.Kind)
	assert.Equal(t, "c1", errorCase(res.Err))
}

func errorCase(err error) string {
	var ce *casefile.Error
	if errors.As(err, &ce) {
		return ce.CaseID
	}
	return ""
}

func TestExecute_LockReleasedDuringBackoff(t *testing.T) {
	for _, mode := range []LockMode{LockOptimistic, LockHeld} {
		t.Run(string(mode), func(t *testing.T) {
			locks := locktable.New()
			s := store.NewMemoryStore()
			exec := NewExecutor(s, locks,
				WithLockMode(mode),
				WithRetryPolicy(RetryPolicy{MaxRetries: 1, Backoff: 300 * time.Millisecond}))
			seedCase(t, s, "c1", casefile.StatusCollecting)

			failed := make(chan struct{}, 1)
			op := testOp("credit", nil)
			calls := 0
			op.Fetch = func(context.Context, *casefile.Record) (any, error) {
				calls++
				if calls == 1 {
					failed <- struct{}{}
					return nil, casefile.Transient("maintenance window")
				}
				return "ok", nil
			}

			done := make(chan OperationResult, 1)
			go func() { done <- exec.Execute(context.Background(), "c1", op) }()

			<-failed
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			release, err := locks.Acquire(ctx, "c1")
			require.NoError(t, err, "lock must be free while the executor sleeps between attempts")
			release()

			res := <-done
			assert.True(t, res.OK)
			assert.Equal(t, 2, res.Attempts)
		})
	}
}

func TestExecute_StatusTransition(t *testing.T) {
	exec, s := newTestExecutor(t)
	seedCase(t, s, "c1", casefile.StatusCollecting, casefile.StatusReadyForReview, casefile.StatusInReview)
	op := &Operation{
		Name:        "decision",
		Required:    true,
		From:        []casefile.Status{casefile.StatusInReview},
		Transitions: []casefile.Status{casefile.StatusApproved, casefile.StatusDenied},
		Apply: func(*casefile.Record, any) (Mutation, error) {
			return Mutation{Value: map[string]string{"outcome": "approved"}, Status: casefile.StatusApproved}, nil
		},
	}

	res := exec.Execute(context.Background(), "c1", op)

	require.True(t, res.OK, res.Error)
	assert.Equal(t, casefile.StatusApproved, res.Status)
	rec := loadCase(t, s, "c1")
	assert.Equal(t, casefile.StatusApproved, rec.Status)
	assert.Equal(t, int64(1), rec.WriteCount)
	last := rec.AuditTrail[len(rec.AuditTrail)-1]
	assert.Equal(t, casefile.ActionStatusChange, last.Action)
	assert.Equal(t, "decision", last.Operation)
	assert.Equal(t, casefile.StatusInReview, last.StatusBefore)
	assert.Equal(t, casefile.StatusApproved, last.StatusAfter)
}

func TestExecute_UndeclaredTransitionRejected(t *testing.T) {
	exec, s := newTestExecutor(t)
	seedCase(t, s, "c1", casefile.StatusCollecting)
	op := testOp("credit", nil)
	op.Apply = func(*casefile.Record, any) (Mutation, error) {
		return Mutation{Value: 1, Status: casefile.StatusApproved}, nil
	}

	res := exec.Execute(context.Background(), "c1", op)

	assert.Equal(t, casefile.KindInvalidTransition, res.Kind)
	rec := loadCase(t, s, "c1")
	assert.Equal(t, casefile.StatusCollecting, rec.Status)
	assert.False(t, rec.HasSection("credit"), "a rejected write must not persist the section")
}

func TestExecute_PersistFailure(t *testing.T) {
	exec, s := newTestExecutor(t)
	seedCase(t, s, "c1", casefile.StatusCollecting)
	s.SaveHook = func(*casefile.Record) error { return errors.New("disk full") }

	res := exec.Execute(context.Background(), "c1", testOp("credit", nil))

	assert.Equal(t, casefile.KindPersist, res.Kind)
	assert.Equal(t, int64(0), exec.Counter().Get("c1"))
	s.SaveHook = nil
	assert.Equal(t, int64(0), loadCase(t, s, "c1").WriteCount)
}

func TestExecute_OptimisticReleasesLockForCall(t *testing.T) {
	exec, s := newTestExecutor(t, WithLockMode(LockOptimistic))
	seedCase(t, s, "c1", casefile.StatusCollecting)

	entered := make(chan struct{})
	proceed := make(chan struct{})
	op := testOp("appraisal", nil)
	op.Fetch = func(context.Context, *casefile.Record) (any, error) {
		close(entered)
		<-proceed
		return "ok", nil
	}

	done := make(chan OperationResult, 1)
	go func() { done <- exec.Execute(context.Background(), "c1", op) }()

	<-entered
	// Another writer gets the lock while the call is in flight.
	_, err := exec.Mutate(context.Background(), "c1", "tester", func(rec *casefile.Record, now time.Time) error {
		return rec.SetSection("documents", []string{"w2"})
	})
	require.NoError(t, err)
	close(proceed)

	res := <-done
	require.True(t, res.OK, res.Error)
	rec := loadCase(t, s, "c1")
	assert.Equal(t, int64(2), rec.WriteCount)
	assert.True(t, rec.HasSection("documents"), "the concurrent write must not be lost")
	assert.True(t, rec.HasSection("appraisal"))
}

func TestExecute_OptimisticConflictRetried(t *testing.T) {
	exec, s := newTestExecutor(t, WithLockMode(LockOptimistic))
	seedCase(t, s, "c1", casefile.StatusCollecting)

	calls := 0
	op := testOp("flood", nil)
	op.Fetch = func(ctx context.Context, snap *casefile.Record) (any, error) {
		calls++
		if calls == 1 {
			_, err := exec.Mutate(ctx, "c1", "tester", func(rec *casefile.Record, now time.Time) error {
				return rec.Transition(casefile.StatusReadyForReview, "tester", "", now)
			})
			require.NoError(t, err)
		}
		return snap.Status, nil
	}

	res := exec.Execute(context.Background(), "c1", op)

	require.True(t, res.OK, res.Error)
	assert.Equal(t, 2, res.Attempts, "status change during the call forces one retry")
	assert.Equal(t, casefile.StatusReadyForReview, res.Status)
}

func TestExecute_LockTimeout(t *testing.T) {
	locks := locktable.New(locktable.WithTimeout(20 * time.Millisecond))
	s := store.NewMemoryStore()
	exec := NewExecutor(s, locks, WithRetryPolicy(fastRetry))
	seedCase(t, s, "c1", casefile.StatusCollecting)

	release, err := locks.Acquire(context.Background(), "c1")
	require.NoError(t, err)
	defer release()

	res := exec.Execute(context.Background(), "c1", testOp("credit", nil))
	assert.Equal(t, casefile.KindLockTimeout, res.Kind)
	assert.Equal(t, 1, res.Attempts)
}

func TestMutate_FailureSavesNothing(t *testing.T) {
	exec, s := newTestExecutor(t)
	seedCase(t, s, "c1")

	_, err := exec.Mutate(context.Background(), "c1", "tester", func(rec *casefile.Record, now time.Time) error {
		return rec.Transition(casefile.StatusApproved, "tester", "", now)
	})
	assert.True(t, casefile.IsKind(err, casefile.KindInvalidTransition))
	assert.Equal(t, int64(0), loadCase(t, s, "c1").WriteCount)

	rec, err := exec.Mutate(context.Background(), "c1", "tester", func(rec *casefile.Record, now time.Time) error {
		return rec.Transition(casefile.StatusCollecting, "tester", "", now)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.WriteCount)
}

func TestParseLockMode(t *testing.T) {
	m, err := ParseLockMode("")
	require.NoError(t, err)
	assert.Equal(t, LockOptimistic, m)

	m, err = ParseLockMode("held")
	require.NoError(t, err)
	assert.Equal(t, LockHeld, m)

	_, err = ParseLockMode("pessimistic")
	assert.Error(t, err)
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Backoff: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.delay(1))
	assert.Equal(t, 200*time.Millisecond, p.delay(2))
	assert.Equal(t, 400*time.Millisecond, p.delay(3))
}
