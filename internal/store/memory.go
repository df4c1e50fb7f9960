package store

import (
	"context"
	"sort"
	"sync"

	"github.com/roach88/caseflow/internal/casefile"
)

// MemoryStore keeps deep copies of records in a map.
//
// SaveHook, when set, runs before every Save and may return an error to
// simulate a failing backend.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*casefile.Record

	SaveHook func(rec *casefile.Record) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*casefile.Record)}
}

func (s *MemoryStore) Create(ctx context.Context, rec *casefile.Record) error {
	if err := CheckID(rec.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return alreadyExists(rec.ID)
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*casefile.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistErr(id, "load", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, notFound(id)
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, rec *casefile.Record) error {
	if err := CheckID(rec.ID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return persistErr(rec.ID, "save", err)
	}
	if s.SaveHook != nil {
		if err := s.SaveHook(rec); err != nil {
			return persistErr(rec.ID, "save", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, summarize(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
