package casefile

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Status is a case lifecycle state. The zero value is not a valid status.
type Status string

const (
	StatusReceived       Status = "received"
	StatusCollecting     Status = "collecting"
	StatusReadyForReview Status = "ready_for_review"
	StatusInReview       Status = "in_review"
	StatusApproved       Status = "approved"
	StatusConditional    Status = "conditional"
	StatusDenied         Status = "denied"
	StatusSuspended      Status = "suspended"
	StatusWithdrawn      Status = "withdrawn"
)

// InitialStatus is the status of every newly created record.
const InitialStatus = StatusReceived

var allowedTransitions = map[Status]map[Status]struct{}{
	StatusReceived: {
		StatusCollecting: {},
		StatusSuspended:  {},
		StatusWithdrawn:  {},
	},
	StatusCollecting: {
		StatusReadyForReview: {},
		StatusSuspended:      {},
		StatusWithdrawn:      {},
	},
	StatusReadyForReview: {
		StatusInReview:  {},
		StatusSuspended: {},
		StatusWithdrawn: {},
	},
	StatusInReview: {
		StatusApproved:    {},
		StatusConditional: {},
		StatusDenied:      {},
		StatusSuspended:   {},
		StatusWithdrawn:   {},
	},
	StatusSuspended: {
		StatusReceived:       {},
		StatusCollecting:     {},
		StatusReadyForReview: {},
		StatusInReview:       {},
		StatusWithdrawn:      {},
	},
	StatusApproved:    {},
	StatusConditional: {},
	StatusDenied:      {},
	StatusWithdrawn:   {},
}

// legacyAliases maps status spellings found in older case files.
var legacyAliases = map[string]Status{
	"application_received":     StatusReceived,
	"documents_collecting":     StatusCollecting,
	"documents_complete":       StatusReadyForReview,
	"submitted":                StatusReadyForReview,
	"underwriting_received":    StatusInReview,
	"underwriting_suspended":   StatusSuspended,
	"approved_with_conditions": StatusConditional,
}

var statusReplacer = strings.NewReplacer("-", "_", " ", "_")

// ParseStatus is the only conversion from text to Status. It trims,
// NFC-normalises and lower-cases the input and resolves legacy spellings.
func ParseStatus(raw string) (Status, error) {
	s := strings.ToLower(strings.TrimSpace(norm.NFC.String(raw)))
	s = statusReplacer.Replace(s)
	if alias, ok := legacyAliases[s]; ok {
		return alias, nil
	}
	st := Status(s)
	if _, ok := allowedTransitions[st]; !ok {
		return "", fmt.Errorf("invalid status: %q", raw)
	}
	return st, nil
}

// MustParseStatus is ParseStatus for constants in configuration and tests.
func MustParseStatus(raw string) Status {
	st, err := ParseStatus(raw)
	if err != nil {
		panic(err)
	}
	return st
}

// Valid reports whether s is a member of the state machine.
func (s Status) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// IsTerminal reports whether no edge leaves s.
func (s Status) IsTerminal() bool {
	edges, ok := allowedTransitions[s]
	return ok && len(edges) == 0
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	_, ok := allowedTransitions[from][to]
	return ok
}

// ValidateTransition returns a typed error for an edge that is not allowed.
func ValidateTransition(from, to Status) error {
	if !from.Valid() {
		return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf("invalid source status %q", from)}
	}
	if !to.Valid() {
		return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf("invalid target status %q", to)}
	}
	if from.IsTerminal() {
		return &Error{Kind: KindTerminalState, Message: fmt.Sprintf("status %s is terminal", from)}
	}
	if !CanTransition(from, to) {
		return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf("invalid transition: %s -> %s", from, to)}
	}
	return nil
}

// Reachable returns every status reachable from InitialStatus.
func Reachable() []Status {
	seen := map[Status]bool{InitialStatus: true}
	queue := []Status{InitialStatus}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range allowedTransitions[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	out := make([]Status, 0, len(seen))
	for st := range seen {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UnmarshalJSON decodes a status through ParseStatus. An empty string decodes
// to the zero Status so optional fields round-trip.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	if raw == "" {
		*s = ""
		return nil
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// UnmarshalYAML decodes a status through ParseStatus.
func (s *Status) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if raw == "" {
		*s = ""
		return nil
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}
