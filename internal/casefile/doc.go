// Package casefile defines the case record: the unit of concurrency control
// processed by the engine.
//
// A Record carries a status from a closed state machine, a set of named
// sections owned by the business layer, an append-only audit trail, and a
// write count that equals the number of successful persisted mutations.
//
// # Status
//
// Status values only enter the program through ParseStatus (directly or via
// JSON decoding), so internal code never compares raw strings:
//
//	received -> collecting -> ready_for_review -> in_review -> approved | conditional | denied
//
// Any non-terminal status may move to suspended or withdrawn. A suspended
// record may only return to the status it was suspended from.
//
// # Audit Trail
//
// AppendAudit assigns a strictly increasing Seq and never stores an entry
// whose timestamp is earlier than the previous entry. Entries are archived in
// bulk (see internal/archive) once the trail grows past a ceiling; Seq keeps
// counting across archives.
package casefile
