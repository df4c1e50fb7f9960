// Package locktable provides one mutual-exclusion lock per case id.
//
// Locks are created lazily on first use. Creation is serialised by a short
// table mutex, so concurrent first access for the same id always observes a
// single lock. Lock entries are never removed; the table grows with the
// number of distinct ids seen by the process.
//
// Each lock is a one-slot channel so that waiting honours context
// cancellation and an optional acquisition timeout.
package locktable

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/caseflow/internal/casefile"
)

type lock struct {
	ch chan struct{}
}

// Table maps case ids to locks.
//
// Thread-safety: all methods are safe for concurrent use.
type Table struct {
	mu      sync.Mutex
	locks   map[string]*lock
	timeout time.Duration
	observe func(wait time.Duration)
}

// Option configures a Table.
type Option func(*Table)

// WithTimeout bounds how long Acquire waits. Zero waits until the context ends.
func WithTimeout(d time.Duration) Option {
	return func(t *Table) { t.timeout = d }
}

// WithWaitObserver registers a callback invoked with the wait duration of
// every successful acquisition.
func WithWaitObserver(fn func(wait time.Duration)) Option {
	return func(t *Table) { t.observe = fn }
}

// New creates an empty lock table.
func New(opts ...Option) *Table {
	t := &Table{locks: make(map[string]*lock)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// lockFor returns the lock for id, creating it under the table mutex.
func (t *Table) lockFor(id string) *lock {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[id]
	if !ok {
		l = &lock{ch: make(chan struct{}, 1)}
		t.locks[id] = l
	}
	return l
}

// Acquire blocks until the lock for id is held, the timeout elapses, or ctx is
// done. The returned release func is idempotent.
//
// A timeout or cancellation returns a casefile.Error of kind LOCK_TIMEOUT that
// wraps the context error.
func (t *Table) Acquire(ctx context.Context, id string) (func(), error) {
	l := t.lockFor(id)

	waitCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	select {
	case l.ch <- struct{}{}:
	case <-waitCtx.Done():
		err := waitCtx.Err()
		msg := "lock acquisition cancelled"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("lock not acquired within %s", t.timeout)
		}
		return nil, &casefile.Error{Kind: casefile.KindLockTimeout, CaseID: id, Message: msg, Err: err}
	}

	if t.observe != nil {
		t.observe(time.Since(start))
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-l.ch })
	}, nil
}

// Do runs fn while holding the lock for id. The lock is released on every
// exit path, including panics in fn.
func (t *Table) Do(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	release, err := t.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Len returns the number of locks created so far.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
