package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/caseflow/internal/casefile"
)

// Load returns the stored record for id.
func (s *SQLStore) Load(ctx context.Context, id string) (*casefile.Record, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, s.d.load, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, persistErr(id, "load", fmt.Errorf("query case: %w", err))
	}
	rec, err := unmarshalRecord([]byte(payload))
	if err != nil {
		return nil, persistErr(id, "load", err)
	}
	return rec, nil
}

// List returns a summary of every case, ordered by id.
// Returns an empty slice (not nil) if no cases exist.
func (s *SQLStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, s.d.list)
	if err != nil {
		return nil, persistErr("", "list", fmt.Errorf("query cases: %w", err))
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sum       Summary
			status    string
			updatedAt time.Time
		)
		if err := rows.Scan(&sum.ID, &status, &sum.Phase, &sum.WriteCount, &updatedAt); err != nil {
			return nil, persistErr("", "list", fmt.Errorf("scan case: %w", err))
		}
		st, err := casefile.ParseStatus(status)
		if err != nil {
			return nil, persistErr(sum.ID, "list", err)
		}
		sum.Status = st
		sum.UpdatedAt = updatedAt.UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("", "list", fmt.Errorf("iterate cases: %w", err))
	}
	return out, nil
}
