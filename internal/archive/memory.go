package archive

import (
	"context"
	"sync"

	"github.com/roach88/caseflow/internal/casefile"
)

// MemorySink keeps archives in process memory.
type MemorySink struct {
	mu      sync.Mutex
	entries map[string][]casefile.AuditEntry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{entries: make(map[string][]casefile.AuditEntry)}
}

func (s *MemorySink) Append(_ context.Context, caseID string, entries []casefile.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[caseID] = append(s.entries[caseID], entries...)
	return nil
}

func (s *MemorySink) Load(_ context.Context, caseID string) ([]casefile.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]casefile.AuditEntry, len(s.entries[caseID]))
	copy(out, s.entries[caseID])
	sortBySeq(out)
	return out, nil
}
