package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/caseflow/internal/casefile"
)

// marshalRecord converts a record to JSON TEXT for storage.
// HTML escaping is disabled so stored documents match what the API returns.
func marshalRecord(rec *casefile.Record) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalRecord parses stored JSON and validates the result.
// Status fields pass through casefile.ParseStatus, so legacy spellings in old
// documents load as canonical statuses.
func unmarshalRecord(data []byte) (*casefile.Record, error) {
	var rec casefile.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	if rec.Fields == nil {
		rec.Fields = make(map[string]json.RawMessage)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}
