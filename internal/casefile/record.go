package casefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// AuditEntry is one line of a record's history.
//
// Status changes populate StatusBefore/StatusAfter; failure entries written on
// suspension populate Operation and ErrorKind.
type AuditEntry struct {
	Seq          int64     `json:"seq"`
	Timestamp    time.Time `json:"timestamp"`
	Actor        string    `json:"actor"`
	Action       string    `json:"action"`
	Summary      string    `json:"summary"`
	Operation    string    `json:"operation,omitempty"`
	StatusBefore Status    `json:"status_before,omitempty"`
	StatusAfter  Status    `json:"status_after,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
}

// Audit actions written by the engine.
const (
	ActionStatusChange = "status_change"
	ActionOperation    = "operation"
	ActionFailure      = "operation_failed"
)

// Record is the persisted state of one case.
type Record struct {
	ID            string                     `json:"id"`
	Status        Status                     `json:"status"`
	Phase         string                     `json:"phase,omitempty"`
	SuspendedFrom Status                     `json:"suspended_from,omitempty"`
	Fields        map[string]json.RawMessage `json:"fields"`
	AuditTrail    []AuditEntry               `json:"audit_trail"`
	ArchivedAudit int                        `json:"archived_audit,omitempty"`
	WriteCount    int64                      `json:"write_count"`
	CreatedAt     time.Time                  `json:"created_at"`
	UpdatedAt     time.Time                  `json:"updated_at"`
}

// New returns a record in InitialStatus with no sections, an empty audit
// trail and a zero write count.
func New(id string, now time.Time) *Record {
	return &Record{
		ID:         id,
		Status:     InitialStatus,
		Fields:     make(map[string]json.RawMessage),
		AuditTrail: []AuditEntry{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate checks the invariants every persisted record must hold.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record has empty id")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("record %s has invalid status %q", r.ID, r.Status)
	}
	if r.Status == StatusSuspended && !r.SuspendedFrom.Valid() {
		return fmt.Errorf("record %s is suspended without a resume status", r.ID)
	}
	if !r.AuditOrdered() {
		return fmt.Errorf("record %s has out-of-order audit trail", r.ID)
	}
	return nil
}

// IsTerminal reports whether the record accepts no further mutation.
func (r *Record) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// HasSection reports whether a section has been written.
func (r *Record) HasSection(name string) bool {
	_, ok := r.Fields[name]
	return ok
}

// Sections returns the written section names in sorted order.
func (r *Record) Sections() []string {
	out := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SetSection encodes v as JSON into the named section.
func (r *Record) SetSection(name string, v any) error {
	raw, ok := v.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode section %s: %w", name, err)
		}
		raw = b
	}
	if r.Fields == nil {
		r.Fields = make(map[string]json.RawMessage)
	}
	r.Fields[name] = raw
	return nil
}

// DecodeSection decodes the named section into v. A missing section is a
// precondition failure.
func (r *Record) DecodeSection(name string, v any) error {
	raw, ok := r.Fields[name]
	if !ok {
		return &Error{Kind: KindPrecondition, CaseID: r.ID, Message: fmt.Sprintf("section %q not present", name)}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode section %s: %w", name, err)
	}
	return nil
}

// AppendAudit appends e with the next sequence number. A timestamp earlier
// than the last entry is clamped to it.
func (r *Record) AppendAudit(e AuditEntry) {
	var lastSeq int64
	if n := len(r.AuditTrail); n > 0 {
		last := r.AuditTrail[n-1]
		lastSeq = last.Seq
		if e.Timestamp.Before(last.Timestamp) {
			e.Timestamp = last.Timestamp
		}
	} else {
		lastSeq = int64(r.ArchivedAudit)
	}
	e.Seq = lastSeq + 1
	r.AuditTrail = append(r.AuditTrail, e)
	if e.Timestamp.After(r.UpdatedAt) {
		r.UpdatedAt = e.Timestamp
	}
}

// AuditLen is the number of audit entries ever written, archived included.
func (r *Record) AuditLen() int {
	return r.ArchivedAudit + len(r.AuditTrail)
}

// AuditOrdered reports whether the live trail is non-decreasing in time and
// strictly increasing in Seq.
func (r *Record) AuditOrdered() bool {
	for i := 1; i < len(r.AuditTrail); i++ {
		prev, cur := r.AuditTrail[i-1], r.AuditTrail[i]
		if cur.Timestamp.Before(prev.Timestamp) || cur.Seq <= prev.Seq {
			return false
		}
	}
	return true
}

// Transition moves the record to `to` and records a status_change entry.
// Suspension remembers the current status; leaving suspension is only allowed
// back to that status or to withdrawn.
func (r *Record) Transition(to Status, actor, reason string, now time.Time) error {
	return r.TransitionWith(to, AuditEntry{Timestamp: now, Actor: actor, Summary: reason})
}

// TransitionWith is Transition with a caller-supplied audit entry. Action,
// StatusBefore and StatusAfter are filled in.
func (r *Record) TransitionWith(to Status, entry AuditEntry) error {
	if err := ValidateTransition(r.Status, to); err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			ce.CaseID = r.ID
		}
		return err
	}
	if r.Status == StatusSuspended && to != StatusWithdrawn && to != r.SuspendedFrom {
		return &Error{
			Kind:    KindInvalidTransition,
			CaseID:  r.ID,
			Message: fmt.Sprintf("suspended case may only resume to %s, not %s", r.SuspendedFrom, to),
		}
	}

	before := r.Status
	switch {
	case to == StatusSuspended:
		r.SuspendedFrom = before
	case before == StatusSuspended:
		r.SuspendedFrom = ""
	}
	r.Status = to
	if entry.Summary == "" {
		entry.Summary = fmt.Sprintf("%s -> %s", before, to)
	}
	entry.Action = ActionStatusChange
	entry.StatusBefore = before
	entry.StatusAfter = to
	r.AppendAudit(entry)
	return nil
}

// Clone returns a deep copy safe to mutate independently.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Fields = make(map[string]json.RawMessage, len(r.Fields))
	for k, v := range r.Fields {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		out.Fields[k] = cp
	}
	out.AuditTrail = make([]AuditEntry, len(r.AuditTrail))
	copy(out.AuditTrail, r.AuditTrail)
	return &out
}
