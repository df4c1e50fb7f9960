package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/caseflow/internal/casefile"
)

// dialect holds the statements that differ between SQLite and PostgreSQL.
type dialect struct {
	name   string
	insert string
	upsert string
	load   string
	list   string
}

var sqliteDialect = dialect{
	name: "sqlite",
	insert: `
		INSERT INTO cases (id, status, phase, payload, write_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
	upsert: `
		INSERT INTO cases (id, status, phase, payload, write_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			phase = excluded.phase,
			payload = excluded.payload,
			write_count = excluded.write_count,
			updated_at = excluded.updated_at`,
	load: `SELECT payload FROM cases WHERE id = ?`,
	list: `
		SELECT id, status, phase, write_count, updated_at
		FROM cases
		ORDER BY id COLLATE BINARY ASC`,
}

var postgresDialect = dialect{
	name: "postgres",
	insert: `
		INSERT INTO cases (id, status, phase, payload, write_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
	upsert: `
		INSERT INTO cases (id, status, phase, payload, write_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			phase = EXCLUDED.phase,
			payload = EXCLUDED.payload,
			write_count = EXCLUDED.write_count,
			updated_at = EXCLUDED.updated_at`,
	load: `SELECT payload::text FROM cases WHERE id = $1`,
	list: `
		SELECT id, status, phase, write_count, updated_at
		FROM cases
		ORDER BY id COLLATE "C" ASC`,
}

// Create inserts a new record. Uses ON CONFLICT DO NOTHING and reports an
// existing id as CONFLICT rather than overwriting it.
func (s *SQLStore) Create(ctx context.Context, rec *casefile.Record) error {
	if err := CheckID(rec.ID); err != nil {
		return err
	}
	n, err := s.exec(ctx, s.d.insert, rec)
	if err != nil {
		return persistErr(rec.ID, "create", err)
	}
	if n == 0 {
		return alreadyExists(rec.ID)
	}
	return nil
}

// Save replaces the stored record in a single upsert.
func (s *SQLStore) Save(ctx context.Context, rec *casefile.Record) error {
	if err := CheckID(rec.ID); err != nil {
		return err
	}
	if _, err := s.exec(ctx, s.d.upsert, rec); err != nil {
		return persistErr(rec.ID, "save", err)
	}
	slog.Debug("case written", "driver", s.d.name, "case", rec.ID, "write_count", rec.WriteCount)
	return nil
}

func (s *SQLStore) exec(ctx context.Context, query string, rec *casefile.Record) (int64, error) {
	payload, err := marshalRecord(rec)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query,
		rec.ID,
		string(rec.Status),
		rec.Phase,
		payload,
		rec.WriteCount,
		rec.CreatedAt.UTC(),
		rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
