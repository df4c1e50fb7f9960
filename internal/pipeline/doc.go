// Package pipeline loads phase and operation definitions from YAML or CUE
// and binds them to handlers, producing the []engine.Phase an orchestrator
// runs.
//
// A definition names sections, not code: each operation declares the
// section it writes and the sections it requires. Validate checks that every
// required section is written by an earlier step (or supplied at creation as
// an input), so a dependent operation can never be scheduled ahead of the
// data it reads.
package pipeline
