package engine

import (
	"sort"
	"sync"
	"sync/atomic"
)

// WriteCounter counts successful saves per case in this process.
//
// It is independent of the persisted Record.WriteCount, so tests and the API
// can compare the two to detect lost or double-counted writes.
type WriteCounter struct {
	counts sync.Map // case id -> *atomic.Int64
}

// NewWriteCounter creates an empty counter.
func NewWriteCounter() *WriteCounter {
	return &WriteCounter{}
}

// Inc records one successful save for id and returns the new count.
func (c *WriteCounter) Inc(id string) int64 {
	v, _ := c.counts.LoadOrStore(id, new(atomic.Int64))
	return v.(*atomic.Int64).Add(1)
}

// Get returns the count for id, zero if none was recorded.
func (c *WriteCounter) Get(id string) int64 {
	v, ok := c.counts.Load(id)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// CaseWrites is one row of a counter snapshot.
type CaseWrites struct {
	CaseID string `json:"case_id"`
	Writes int64  `json:"writes"`
}

// Snapshot returns every counted case sorted by id.
func (c *WriteCounter) Snapshot() []CaseWrites {
	var out []CaseWrites
	c.counts.Range(func(k, v any) bool {
		out = append(out, CaseWrites{CaseID: k.(string), Writes: v.(*atomic.Int64).Load()})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CaseID < out[j].CaseID })
	return out
}
