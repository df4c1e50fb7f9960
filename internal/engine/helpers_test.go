package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/caseflow/internal/casefile"
	"github.com/roach88/caseflow/internal/locktable"
	"github.com/roach88/caseflow/internal/store"
	"github.com/roach88/caseflow/internal/testutil"
)

var fastRetry = RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond}

// collab is a scripted external collaborator. Call i returns outcomes[i];
// calls past the end of the script succeed.
type collab struct {
	latency  time.Duration
	outcomes []error

	mu    sync.Mutex
	calls int
	seen  []*casefile.Record
}

func (c *collab) Fetch(ctx context.Context, snap *casefile.Record) (any, error) {
	c.mu.Lock()
	i := c.calls
	c.calls++
	c.seen = append(c.seen, snap)
	c.mu.Unlock()

	if c.latency > 0 {
		if err := sleep(ctx, c.latency); err != nil {
			return nil, casefile.Transient("collaborator call cancelled")
		}
	}
	if i < len(c.outcomes) && c.outcomes[i] != nil {
		return nil, c.outcomes[i]
	}
	return "ok", nil
}

func (c *collab) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *collab) Snapshots() []*casefile.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*casefile.Record(nil), c.seen...)
}

func transients(n int) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = casefile.Transient("bureau timeout")
	}
	return out
}

// testOp builds a required operation that writes {"by": name} into its own
// section.
func testOp(name string, c *collab, requires ...string) *Operation {
	op := &Operation{
		Name:     name,
		Required: true,
		Requires: requires,
		Apply: func(*casefile.Record, any) (Mutation, error) {
			return Mutation{Value: map[string]string{"by": name}}, nil
		},
	}
	if c != nil {
		op.Fetch = c.Fetch
	}
	return op
}

func newTestExecutor(t *testing.T, opts ...ExecutorOption) (*Executor, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	base := []ExecutorOption{
		WithRetryPolicy(fastRetry),
		WithClock(testutil.NewStepClock(time.Time{}, time.Millisecond)),
	}
	return NewExecutor(s, locktable.New(), append(base, opts...)...), s
}

// seedCase stores a new case moved along path.
func seedCase(t *testing.T, s store.EntityStore, id string, path ...casefile.Status) {
	t.Helper()
	rec := casefile.New(id, testutil.Epoch)
	for _, st := range path {
		require.NoError(t, rec.Transition(st, "seed", "", testutil.Epoch))
	}
	require.NoError(t, s.Create(context.Background(), rec))
}

func loadCase(t *testing.T, s store.EntityStore, id string) *casefile.Record {
	t.Helper()
	rec, err := s.Load(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func countAction(rec *casefile.Record, action, op string) int {
	n := 0
	for _, e := range rec.AuditTrail {
		if e.Action == action && (op == "" || e.Operation == op) {
			n++
		}
	}
	return n
}
