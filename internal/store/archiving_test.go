package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/caseflow/internal/archive"
	"github.com/roach88/caseflow/internal/casefile"
)

type failingSink struct{ archive.Sink }

func (failingSink) Append(context.Context, string, []casefile.AuditEntry) error {
	return errors.New("bucket unavailable")
}

func addEntries(rec *casefile.Record, n int) {
	for i := 0; i < n; i++ {
		rec.AppendAudit(casefile.AuditEntry{
			Timestamp: testTime.Add(time.Duration(i) * time.Second),
			Actor:     "tester",
			Action:    casefile.ActionOperation,
			Summary:   fmt.Sprintf("op %d", i),
		})
	}
}

func TestArchiving_RotatesAboveCeiling(t *testing.T) {
	ctx := context.Background()
	sink := archive.NewMemorySink()
	s := NewArchiving(NewMemoryStore(), sink, 10)

	rec := createTestRecord(t, "case-1")
	require.NoError(t, s.Create(ctx, rec))

	addEntries(rec, 13) // 2 existing + 13 = 15
	require.NoError(t, s.Save(ctx, rec))

	assert.Len(t, rec.AuditTrail, 10)
	assert.Equal(t, 5, rec.ArchivedAudit)
	assert.Equal(t, 15, rec.AuditLen())

	archived, err := sink.Load(ctx, "case-1")
	require.NoError(t, err)
	require.Len(t, archived, 5)
	assert.Equal(t, int64(1), archived[0].Seq)
	assert.Equal(t, int64(5), archived[4].Seq)

	loaded, err := s.Load(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), loaded.AuditTrail[0].Seq)

	// The next entry keeps counting across the archive boundary.
	loaded.AppendAudit(casefile.AuditEntry{Timestamp: testTime.Add(time.Hour), Action: "x"})
	assert.Equal(t, int64(16), loaded.AuditTrail[len(loaded.AuditTrail)-1].Seq)
}

func TestArchiving_BelowCeilingUntouched(t *testing.T) {
	ctx := context.Background()
	sink := archive.NewMemorySink()
	s := NewArchiving(NewMemoryStore(), sink, 0)

	rec := createTestRecord(t, "case-1")
	addEntries(rec, DefaultAuditCeiling-2)
	require.NoError(t, s.Save(ctx, rec))

	assert.Len(t, rec.AuditTrail, DefaultAuditCeiling)
	assert.Equal(t, 0, rec.ArchivedAudit)
}

func TestArchiving_History(t *testing.T) {
	ctx := context.Background()
	s := NewArchiving(NewMemoryStore(), archive.NewMemorySink(), 4)

	rec := createTestRecord(t, "case-1")
	addEntries(rec, 3)
	require.NoError(t, s.Save(ctx, rec))
	addEntries(rec, 3)
	require.NoError(t, s.Save(ctx, rec))

	hist, err := s.History(ctx, "case-1")
	require.NoError(t, err)
	require.Len(t, hist, 8)
	for i, e := range hist {
		assert.Equal(t, int64(i+1), e.Seq)
	}
}

func TestArchiving_HistoryDropsDuplicates(t *testing.T) {
	ctx := context.Background()
	sink := archive.NewMemorySink()
	inner := NewMemoryStore()
	s := NewArchiving(inner, sink, 3)

	rec := createTestRecord(t, "case-1")
	require.NoError(t, inner.Save(ctx, rec))

	// Rotation succeeds but the save fails: the stored record keeps its
	// entries while the sink already holds them.
	inner.SaveHook = func(*casefile.Record) error { return errDiskFull }
	addEntries(rec, 3)
	require.Error(t, s.Save(ctx, rec))
	inner.SaveHook = nil

	reloaded, err := s.Load(ctx, "case-1")
	require.NoError(t, err)
	addEntries(reloaded, 3)
	require.NoError(t, s.Save(ctx, reloaded))

	hist, err := s.History(ctx, "case-1")
	require.NoError(t, err)
	for i := 1; i < len(hist); i++ {
		assert.Greater(t, hist[i].Seq, hist[i-1].Seq)
	}
	assert.Len(t, hist, 5)
}

func TestArchiving_SinkFailureIsPersistFailure(t *testing.T) {
	ctx := context.Background()
	s := NewArchiving(NewMemoryStore(), failingSink{}, 1)

	rec := createTestRecord(t, "case-1")
	err := s.Save(ctx, rec)
	assert.True(t, casefile.IsKind(err, casefile.KindPersist))
	assert.Len(t, rec.AuditTrail, 2, "trail must be untouched when archiving fails")
}

func TestArchiving_WithFileStoreAndSink(t *testing.T) {
	ctx := context.Background()
	fs, err := OpenFile(t.TempDir(), WithoutBackups())
	require.NoError(t, err)
	sink, err := archive.NewFileSink(fs.ArchiveDir())
	require.NoError(t, err)
	s := NewArchiving(fs, sink, 2)

	rec := createTestRecord(t, "case-1")
	require.NoError(t, s.Create(ctx, rec))
	addEntries(rec, 2)
	require.NoError(t, s.Save(ctx, rec))

	st, err := fs.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.ArchiveFiles)

	hist, err := s.History(ctx, "case-1")
	require.NoError(t, err)
	assert.Len(t, hist, 4)
}
