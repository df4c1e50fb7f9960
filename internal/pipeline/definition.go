package pipeline

import (
	"errors"
	"fmt"

	"github.com/roach88/caseflow/internal/casefile"
)

// Definition is a pipeline as written in a YAML or CUE file.
type Definition struct {
	Name string `yaml:"name" json:"name"`

	// Inputs are sections supplied when a case is created.
	Inputs []string `yaml:"inputs,omitempty" json:"inputs,omitempty"`

	Phases []PhaseDef `yaml:"phases" json:"phases"`
}

// PhaseDef is one phase of a Definition.
type PhaseDef struct {
	Name       string          `yaml:"name" json:"name"`
	Entry      casefile.Status `yaml:"entry,omitempty" json:"entry,omitempty"`
	Success    casefile.Status `yaml:"success,omitempty" json:"success,omitempty"`
	Concurrent []OpDef         `yaml:"concurrent,omitempty" json:"concurrent,omitempty"`
	Dependent  []OpDef         `yaml:"dependent,omitempty" json:"dependent,omitempty"`
}

// OpDef is one operation of a PhaseDef.
type OpDef struct {
	Name string `yaml:"name" json:"name"`

	// Handler selects the registered implementation. Defaults to Name.
	Handler string `yaml:"handler,omitempty" json:"handler,omitempty"`

	// Section written by the operation. Defaults to Name.
	Section string `yaml:"section,omitempty" json:"section,omitempty"`

	Requires []string `yaml:"requires,omitempty" json:"requires,omitempty"`

	// Optional operations may fail without suspending the case.
	Optional bool `yaml:"optional,omitempty" json:"optional,omitempty"`

	Actor       string            `yaml:"actor,omitempty" json:"actor,omitempty"`
	From        []casefile.Status `yaml:"from,omitempty" json:"from,omitempty"`
	Transitions []casefile.Status `yaml:"transitions,omitempty" json:"transitions,omitempty"`
}

// HandlerName returns the registry key of the operation.
func (o OpDef) HandlerName() string {
	if o.Handler != "" {
		return o.Handler
	}
	return o.Name
}

// SectionName returns the section the operation writes.
func (o OpDef) SectionName() string {
	if o.Section != "" {
		return o.Section
	}
	return o.Name
}

// Operations returns the concurrent then dependent operations of the phase.
func (p PhaseDef) Operations() []OpDef {
	out := make([]OpDef, 0, len(p.Concurrent)+len(p.Dependent))
	out = append(out, p.Concurrent...)
	return append(out, p.Dependent...)
}

// Validate checks the definition and returns every problem found, joined.
//
// Rules:
//   - phase and operation names are unique and non-empty
//   - each section has exactly one writer
//   - statuses are members of the state machine
//   - a concurrent operation requires only inputs or sections written in
//     earlier phases
//   - a dependent operation may additionally require sections written by the
//     concurrent operations of its phase and by dependent operations declared
//     before it
func (d *Definition) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if d.Name == "" {
		add("pipeline has no name")
	}
	if len(d.Phases) == 0 {
		add("pipeline %q has no phases", d.Name)
	}

	available := make(map[string]bool)
	for _, in := range d.Inputs {
		available[in] = true
	}
	writers := make(map[string]string)
	phases := make(map[string]bool)
	ops := make(map[string]bool)

	for _, p := range d.Phases {
		if p.Name == "" {
			add("phase with empty name")
		} else if phases[p.Name] {
			add("duplicate phase %q", p.Name)
		}
		phases[p.Name] = true
		for _, st := range []casefile.Status{p.Entry, p.Success} {
			if st != "" && !st.Valid() {
				add("phase %s: invalid status %q", p.Name, st)
			}
		}
		if len(p.Concurrent)+len(p.Dependent) == 0 {
			add("phase %s has no operations", p.Name)
		}

		for _, op := range p.Operations() {
			if op.Name == "" {
				add("phase %s: operation with empty name", p.Name)
				continue
			}
			if ops[op.Name] {
				add("phase %s: duplicate operation %q", p.Name, op.Name)
			}
			ops[op.Name] = true
			sec := op.SectionName()
			if w, ok := writers[sec]; ok {
				add("phase %s: section %q written by both %s and %s", p.Name, sec, w, op.Name)
			} else if available[sec] {
				add("phase %s: operation %s overwrites input section %q", p.Name, op.Name, sec)
			}
			writers[sec] = op.Name
			for _, st := range append(append([]casefile.Status(nil), op.From...), op.Transitions...) {
				if !st.Valid() {
					add("operation %s: invalid status %q", op.Name, st)
				}
			}
		}

		for _, op := range p.Concurrent {
			for _, req := range op.Requires {
				if !available[req] {
					add("phase %s: concurrent operation %s requires %q, which no earlier phase writes", p.Name, op.Name, req)
				}
			}
		}
		for _, op := range p.Concurrent {
			available[op.SectionName()] = true
		}
		for _, op := range p.Dependent {
			for _, req := range op.Requires {
				if !available[req] {
					add("phase %s: dependent operation %s requires %q, which is not written before it", p.Name, op.Name, req)
				}
			}
			available[op.SectionName()] = true
		}
	}
	return errors.Join(errs...)
}
