package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/roach88/caseflow/internal/casefile"
)

// FileSink keeps one gzip archive per case under dir.
//
// Append rewrites the whole archive through a temp file and rename, so a
// crash leaves either the previous or the new archive on disk.
type FileSink struct {
	dir string
	mu  sync.Mutex
}

// NewFileSink creates dir if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Path returns the archive file for caseID.
func (s *FileSink) Path(caseID string) string {
	return filepath.Join(s.dir, caseID+"_audit_archive.json.gz")
}

func (s *FileSink) Append(ctx context.Context, caseID string, entries []casefile.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read(caseID)
	if err != nil {
		return err
	}
	data, err := encodeBatch(append(existing, entries...))
	if err != nil {
		return err
	}

	path := s.Path(caseID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	return nil
}

func (s *FileSink) Load(ctx context.Context, caseID string) ([]casefile.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read(caseID)
	if err != nil {
		return nil, err
	}
	sortBySeq(entries)
	return entries, nil
}

func (s *FileSink) read(caseID string) ([]casefile.AuditEntry, error) {
	data, err := os.ReadFile(s.Path(caseID))
	if errors.Is(err, os.ErrNotExist) {
		return []casefile.AuditEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return decodeBatch(bytes.NewReader(data))
}
