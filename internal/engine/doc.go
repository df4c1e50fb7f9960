// Package engine runs case pipelines.
//
// The engine has three layers:
//
//   - Executor runs one Operation against one case: acquire the case lock,
//     load the record, check status and required sections, call the
//     collaborator, write one section plus one audit entry, save, count the
//     write, release. Retryable failures are retried with the lock released
//     between attempts.
//   - Runner runs one Phase: concurrent operations in parallel, joined
//     without cancelling siblings, then dependent operations in order.
//   - Orchestrator runs the ordered phases of a case, moves its status
//     between phases and suspends it when a required operation fails.
//
// Failures travel as values (OperationResult, PhaseResult, Outcome) up to
// the orchestrator, which alone decides whether a case continues.
//
// Completion order of concurrent operations is unspecified. Audit entries
// are still stored in non-decreasing time order because each is appended
// under the case lock after loading the latest record.
package engine
