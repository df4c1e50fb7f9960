package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/roach88/caseflow/internal/casefile"
)

// EntityStore loads and saves whole case records.
//
// Load returns a copy the caller may mutate freely. A missing id is a
// casefile.Error of kind NOT_FOUND. Save replaces the stored record; any
// failure is reported with kind PERSIST_FAILURE. Create fails with CONFLICT
// when the id already exists.
type EntityStore interface {
	Create(ctx context.Context, rec *casefile.Record) error
	Load(ctx context.Context, id string) (*casefile.Record, error)
	Save(ctx context.Context, rec *casefile.Record) error
	List(ctx context.Context) ([]Summary, error)
	Close() error
}

// Summary is the listing view of a record.
type Summary struct {
	ID         string          `json:"id"`
	Status     casefile.Status `json:"status"`
	Phase      string          `json:"phase,omitempty"`
	WriteCount int64           `json:"write_count"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func summarize(rec *casefile.Record) Summary {
	return Summary{
		ID:         rec.ID,
		Status:     rec.Status,
		Phase:      rec.Phase,
		WriteCount: rec.WriteCount,
		UpdatedAt:  rec.UpdatedAt,
	}
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// CheckID rejects ids that cannot be used as file names or object keys.
func CheckID(id string) error {
	if !idPattern.MatchString(id) || strings.Contains(id, "..") {
		return casefile.NewError(casefile.KindPrecondition, id, "invalid case id %q", id)
	}
	return nil
}

// Open creates a store from a driver name and data source.
//
// Supported drivers:
//   - sqlite: dsn is a database file path
//   - postgres: dsn is a libpq/pgx connection string
//   - file: dsn is a root directory
//   - memory: dsn is ignored
func Open(ctx context.Context, driver, dsn string) (EntityStore, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return OpenSQLite(dsn)
	case "postgres", "pgx":
		return OpenPostgres(ctx, dsn)
	case "file":
		return OpenFile(dsn)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func notFound(id string) error {
	return casefile.NewError(casefile.KindNotFound, id, "case not found")
}

func alreadyExists(id string) error {
	return casefile.NewError(casefile.KindConflict, id, "case already exists")
}

func persistErr(id, op string, err error) error {
	return casefile.Wrap(casefile.KindPersist, id, op, err)
}
