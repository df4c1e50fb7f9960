package store

import (
	"context"
	"fmt"

	"github.com/roach88/caseflow/internal/archive"
	"github.com/roach88/caseflow/internal/casefile"
)

// DefaultAuditCeiling is the number of audit entries kept on a live record.
const DefaultAuditCeiling = 100

// Archiving moves the oldest audit entries of a record into an archive.Sink
// whenever the live trail exceeds the ceiling, then delegates the save.
//
// Entries are appended to the sink before the record is saved. If the save
// then fails, the next rotation archives the same entries again; History
// drops the duplicates by Seq.
type Archiving struct {
	EntityStore
	sink    archive.Sink
	ceiling int
}

// NewArchiving wraps inner. A ceiling below 1 uses DefaultAuditCeiling.
func NewArchiving(inner EntityStore, sink archive.Sink, ceiling int) *Archiving {
	if ceiling < 1 {
		ceiling = DefaultAuditCeiling
	}
	return &Archiving{EntityStore: inner, sink: sink, ceiling: ceiling}
}

// Save rotates rec's audit trail in place, then saves it.
func (a *Archiving) Save(ctx context.Context, rec *casefile.Record) error {
	if err := a.rotate(ctx, rec); err != nil {
		return persistErr(rec.ID, "archive", err)
	}
	return a.EntityStore.Save(ctx, rec)
}

func (a *Archiving) rotate(ctx context.Context, rec *casefile.Record) error {
	excess := len(rec.AuditTrail) - a.ceiling
	if excess <= 0 {
		return nil
	}
	if err := a.sink.Append(ctx, rec.ID, rec.AuditTrail[:excess]); err != nil {
		return fmt.Errorf("append archive: %w", err)
	}
	rec.AuditTrail = append([]casefile.AuditEntry(nil), rec.AuditTrail[excess:]...)
	rec.ArchivedAudit += excess
	return nil
}

// History returns the complete audit trail of a case: archived entries
// followed by the live trail, ordered by Seq without duplicates.
func (a *Archiving) History(ctx context.Context, id string) ([]casefile.AuditEntry, error) {
	rec, err := a.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	archived, err := a.sink.Load(ctx, id)
	if err != nil {
		return nil, persistErr(id, "history", err)
	}
	out := make([]casefile.AuditEntry, 0, len(archived)+len(rec.AuditTrail))
	var last int64
	for _, e := range append(archived, rec.AuditTrail...) {
		if len(out) > 0 && e.Seq <= last {
			continue
		}
		out = append(out, e)
		last = e.Seq
	}
	return out, nil
}
