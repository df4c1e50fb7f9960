package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/caseflow/internal/casefile"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new SQLite store in a temp dir.
func createTestStore(t *testing.T) *SQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a record with one section, an operation entry
// and a status change.
func createTestRecord(t *testing.T, id string) *casefile.Record {
	t.Helper()
	rec := casefile.New(id, testTime)
	require.NoError(t, rec.SetSection("borrower", map[string]string{"name": "Ada <Lovelace>"}))
	rec.AppendAudit(casefile.AuditEntry{
		Timestamp: testTime,
		Actor:     "intake",
		Action:    casefile.ActionOperation,
		Operation: "borrower",
		Summary:   "borrower recorded",
	})
	require.NoError(t, rec.Transition(casefile.StatusCollecting, "intake", "", testTime.Add(time.Second)))
	return rec
}

// storeContract runs the behaviour every EntityStore must satisfy.
func storeContract(t *testing.T, s EntityStore) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	assert.True(t, casefile.IsNotFound(err), "missing case should be NOT_FOUND, got %v", err)

	rec := createTestRecord(t, "case-1")
	require.NoError(t, s.Create(ctx, rec))

	err = s.Create(ctx, rec)
	assert.True(t, casefile.IsKind(err, casefile.KindConflict), "duplicate create should conflict, got %v", err)

	loaded, err := s.Load(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, casefile.StatusCollecting, loaded.Status)
	assert.Len(t, loaded.AuditTrail, 2)
	assert.JSONEq(t, `{"name":"Ada <Lovelace>"}`, string(loaded.Fields["borrower"]))
	assert.True(t, loaded.CreatedAt.Equal(testTime))

	// Mutating the loaded copy must not affect the store.
	loaded.Status = casefile.StatusDenied
	again, err := s.Load(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, casefile.StatusCollecting, again.Status)

	require.NoError(t, again.SetSection("credit", map[string]int{"score": 700}))
	again.WriteCount++
	again.Phase = "collecting"
	require.NoError(t, s.Save(ctx, again))

	after, err := s.Load(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), after.WriteCount)
	assert.True(t, after.HasSection("credit"))
	assert.Equal(t, "collecting", after.Phase)

	require.NoError(t, s.Create(ctx, createTestRecord(t, "case-0")))
	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "case-0", list[0].ID)
	assert.Equal(t, "case-1", list[1].ID)
	assert.Equal(t, int64(1), list[1].WriteCount)
	assert.Equal(t, casefile.StatusCollecting, list[1].Status)

	err = s.Save(ctx, casefile.New("../escape", testTime))
	assert.Error(t, err)
}

var errDiskFull = errors.New("disk full")
