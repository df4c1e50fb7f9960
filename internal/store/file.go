package store

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roach88/caseflow/internal/casefile"
)

const (
	// DefaultBackupRetention is how long gzip backups are kept.
	DefaultBackupRetention = 30 * 24 * time.Hour

	// DefaultMaxFileSize triggers a warning when a case document grows past it.
	DefaultMaxFileSize = 10 << 20

	pruneInterval = time.Hour
)

// FileStore keeps one JSON document per case under <root>/active.
//
// Before a document is overwritten a gzip copy is written to <root>/backups.
// Backups older than the retention are pruned at most once an hour during
// Save, or on demand with Prune. <root>/archive is reserved for an
// archive.FileSink so Stats can report the whole tree.
type FileStore struct {
	root      string
	active    string
	backups   string
	archive   string
	retention time.Duration
	maxSize   int64
	noBackup  bool
	now       func() time.Time

	mu        sync.Mutex
	lastPrune time.Time
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithBackupRetention overrides DefaultBackupRetention.
func WithBackupRetention(d time.Duration) FileOption {
	return func(s *FileStore) { s.retention = d }
}

// WithoutBackups disables backup-on-save.
func WithoutBackups() FileOption {
	return func(s *FileStore) { s.noBackup = true }
}

// WithFileClock replaces time.Now for backup names and pruning.
func WithFileClock(now func() time.Time) FileOption {
	return func(s *FileStore) { s.now = now }
}

// OpenFile creates the directory layout under root.
func OpenFile(root string, opts ...FileOption) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("file store root required")
	}
	s := &FileStore{
		root:      root,
		active:    filepath.Join(root, "active"),
		backups:   filepath.Join(root, "backups"),
		archive:   filepath.Join(root, "archive"),
		retention: DefaultBackupRetention,
		maxSize:   DefaultMaxFileSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, dir := range []string{s.active, s.backups, s.archive} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	s.lastPrune = s.now()
	return s, nil
}

// ArchiveDir is the directory intended for an archive.FileSink.
func (s *FileStore) ArchiveDir() string {
	return s.archive
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.active, id+".json")
}

// Create writes a new document. The temp file is hard-linked into place so an
// existing document is never replaced.
func (s *FileStore) Create(ctx context.Context, rec *casefile.Record) error {
	if err := CheckID(rec.ID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return persistErr(rec.ID, "create", err)
	}
	tmp, err := s.writeTemp(rec)
	if err != nil {
		return persistErr(rec.ID, "create", err)
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, s.path(rec.ID)); err != nil {
		if errors.Is(err, os.ErrExist) {
			return alreadyExists(rec.ID)
		}
		return persistErr(rec.ID, "create", err)
	}
	return nil
}

// Save backs up the current document, then atomically replaces it.
func (s *FileStore) Save(ctx context.Context, rec *casefile.Record) error {
	if err := CheckID(rec.ID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return persistErr(rec.ID, "save", err)
	}
	path := s.path(rec.ID)

	if !s.noBackup {
		if _, err := s.backup(rec.ID); err != nil {
			return persistErr(rec.ID, "backup", err)
		}
	}

	tmp, err := s.writeTemp(rec)
	if err != nil {
		return persistErr(rec.ID, "save", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return persistErr(rec.ID, "save", err)
	}

	if info, err := os.Stat(path); err == nil && info.Size() > s.maxSize {
		slog.Warn("case file exceeds size limit", "case", rec.ID, "bytes", info.Size(), "limit", s.maxSize)
	}
	slog.Debug("case written", "driver", "file", "case", rec.ID, "write_count", rec.WriteCount, "path", path)

	s.maybePrune()
	return nil
}

func (s *FileStore) writeTemp(rec *casefile.Record) (string, error) {
	payload, err := marshalRecord(rec)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(s.active, rec.ID+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	if _, err := f.WriteString(payload); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp: %w", err)
	}
	return f.Name(), nil
}

// Load reads the document for id.
func (s *FileStore) Load(ctx context.Context, id string) (*casefile.Record, error) {
	if err := CheckID(id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, persistErr(id, "load", err)
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, persistErr(id, "load", err)
	}
	rec, err := unmarshalRecord(data)
	if err != nil {
		return nil, persistErr(id, "load", err)
	}
	return rec, nil
}

// List decodes every active document. Returns an empty slice (not nil) if
// no cases exist.
func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	matches, err := filepath.Glob(filepath.Join(s.active, "*.json"))
	if err != nil {
		return nil, persistErr("", "list", err)
	}
	out := []Summary{}
	for _, m := range matches {
		id := strings.TrimSuffix(filepath.Base(m), ".json")
		rec, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, summarize(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close is a no-op; FileStore holds no open handles.
func (s *FileStore) Close() error {
	return nil
}

// backup gzips the current document, if any. Returns the backup path or ""
// when there was nothing to back up.
func (s *FileStore) backup(id string) (string, error) {
	src, err := os.Open(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer src.Close()

	name := fmt.Sprintf("%s_backup_%s.json.gz", id, s.now().UTC().Format("20060102_150405.000000000"))
	dst := filepath.Join(s.backups, name)
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		out.Close()
		return "", err
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return "", err
	}
	return dst, out.Close()
}

func (s *FileStore) maybePrune() {
	s.mu.Lock()
	due := s.now().Sub(s.lastPrune) > pruneInterval
	if due {
		s.lastPrune = s.now()
	}
	s.mu.Unlock()
	if !due {
		return
	}
	if n, err := s.Prune(); err != nil {
		slog.Warn("backup prune failed", "error", err)
	} else if n > 0 {
		slog.Info("pruned backups", "removed", n)
	}
}

// Prune deletes backups last modified before now minus the retention.
func (s *FileStore) Prune() (int, error) {
	cutoff := s.now().Add(-s.retention)
	matches, err := filepath.Glob(filepath.Join(s.backups, "*_backup_*.json.gz"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(m); err != nil {
				return removed, fmt.Errorf("remove %s: %w", m, err)
			}
			removed++
		}
	}
	return removed, nil
}

// FileStats reports file counts and sizes per directory.
type FileStats struct {
	ActiveFiles  int   `json:"active_files"`
	ArchiveFiles int   `json:"archive_files"`
	BackupFiles  int   `json:"backup_files"`
	ActiveBytes  int64 `json:"active_bytes"`
	ArchiveBytes int64 `json:"archive_bytes"`
	BackupBytes  int64 `json:"backup_bytes"`
}

// TotalBytes sums all directories.
func (st FileStats) TotalBytes() int64 {
	return st.ActiveBytes + st.ArchiveBytes + st.BackupBytes
}

// Stats walks the store directories.
func (s *FileStore) Stats() (FileStats, error) {
	var st FileStats
	for _, d := range []struct {
		dir   string
		files *int
		bytes *int64
	}{
		{s.active, &st.ActiveFiles, &st.ActiveBytes},
		{s.archive, &st.ArchiveFiles, &st.ArchiveBytes},
		{s.backups, &st.BackupFiles, &st.BackupBytes},
	} {
		entries, err := os.ReadDir(d.dir)
		if err != nil {
			return st, err
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				return st, err
			}
			*d.files++
			*d.bytes += info.Size()
		}
	}
	return st, nil
}
