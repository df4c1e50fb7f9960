// Package harness runs loan case scenarios against the real engine and
// compares their traces with golden files.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: bureau_outage
//	description: "Credit bureau down for every retry; resume recovers"
//	application:
//	  loan_number: LN-1001
//	  borrower: { name: John Smith, ssn: 123-45-0170, monthly_income: 8500 }
//	  ...
//	services:
//	  credit:
//	    latency: 5ms
//	    outcomes: [transient, transient, transient]
//	flow:
//	  - action: process
//	    expect: { status: suspended, write_count: 7, failed: [credit] }
//	  - action: resume
//	    expect: { status: approved, write_count: 17 }
//	assertions:
//	  - type: service_calls
//	    service: credit
//	    count: 4
//
// Flow actions are process, resume and withdraw. A step whose action fails
// outright must name the error kind in expect.error.
//
// # Assertion Types
//
//   - final_status: the case ends in status
//   - write_count: persisted and counted writes both equal count
//   - audit_len: the audit trail has count entries
//   - section_present: section was written
//   - trace_contains: operation appears in the trace, with result when given
//   - trace_order: operations first appear in the given order
//   - trace_count: operation appears exactly count times
//   - service_calls: the simulated service was called count times
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory store with a step clock,
// sequential case ids and millisecond retry backoff. Operations of a phase
// are listed by name in the trace, so concurrent scheduling never changes
// the golden output.
package harness
