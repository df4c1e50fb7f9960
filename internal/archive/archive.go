// Package archive stores audit entries rotated out of a case's live trail.
//
// A Sink receives batches of the oldest entries whenever a record's trail grows
// past the configured ceiling. Batches are gzip-compressed JSON. Load returns
// every archived entry for a case in Seq order, so the full history of a case
// is Load(id) followed by the record's live AuditTrail.
//
// Backends:
//   - FileSink: one <id>_audit_archive.json.gz per case on local disk
//   - MinIOSink: one object per batch in a MinIO bucket
//   - S3Sink: one object per batch in an S3 (or S3-compatible) bucket
//   - MemorySink: in-process, for tests
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"

	"github.com/roach88/caseflow/internal/casefile"
)

// Sink persists archived audit entries.
type Sink interface {
	// Append stores entries after any previously archived for caseID.
	Append(ctx context.Context, caseID string, entries []casefile.AuditEntry) error

	// Load returns all archived entries for caseID ordered by Seq.
	// A case with no archive returns an empty slice.
	Load(ctx context.Context, caseID string) ([]casefile.AuditEntry, error)
}

// encodeBatch gzips the JSON encoding of entries.
func encodeBatch(entries []casefile.AuditEntry) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entries); err != nil {
		zw.Close()
		return nil, fmt.Errorf("encode audit batch: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress audit batch: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeBatch reverses encodeBatch.
func decodeBatch(r io.Reader) ([]casefile.AuditEntry, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open audit batch: %w", err)
	}
	defer zr.Close()
	var entries []casefile.AuditEntry
	if err := json.NewDecoder(zr).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode audit batch: %w", err)
	}
	return entries, nil
}

// batchKey names one archived batch. Keys sort by the first Seq they contain.
func batchKey(prefix, caseID string, entries []casefile.AuditEntry) string {
	var first int64
	if len(entries) > 0 {
		first = entries[0].Seq
	}
	return fmt.Sprintf("%saudit/%s/%020d-%s.json.gz", prefix, caseID, first, uuid.NewString())
}

func casePrefix(prefix, caseID string) string {
	return fmt.Sprintf("%saudit/%s/", prefix, caseID)
}

func sortBySeq(entries []casefile.AuditEntry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
}
