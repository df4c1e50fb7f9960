package pipeline

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/caseflow/internal/engine"
)

// Handler is the code behind an operation name.
type Handler struct {
	Fetch engine.FetchFunc
	Apply engine.ApplyFunc
}

// Registry maps handler names to implementations.
type Registry map[string]Handler

// Names returns the registered handler names in sorted order.
func (r Registry) Names() []string {
	out := make([]string, 0, len(r))
	for name := range r {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Build binds every operation of def to its handler in reg. All unknown
// handlers are reported together.
func Build(def *Definition, reg Registry) ([]engine.Phase, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	var errs []error
	bind := func(phase string, defs []OpDef) []*engine.Operation {
		ops := make([]*engine.Operation, 0, len(defs))
		for _, d := range defs {
			h, ok := reg[d.HandlerName()]
			if !ok {
				errs = append(errs, fmt.Errorf("phase %s: operation %s: no handler %q registered", phase, d.Name, d.HandlerName()))
				continue
			}
			if h.Apply == nil {
				errs = append(errs, fmt.Errorf("phase %s: handler %q has no Apply", phase, d.HandlerName()))
				continue
			}
			ops = append(ops, &engine.Operation{
				Name:        d.Name,
				Actor:       d.Actor,
				Section:     d.SectionName(),
				Requires:    slices.Clone(d.Requires),
				Required:    !d.Optional,
				From:        slices.Clone(d.From),
				Transitions: slices.Clone(d.Transitions),
				Fetch:       h.Fetch,
				Apply:       h.Apply,
			})
		}
		return ops
	}

	phases := make([]engine.Phase, 0, len(def.Phases))
	for _, p := range def.Phases {
		phases = append(phases, engine.Phase{
			Name:       p.Name,
			Entry:      p.Entry,
			Success:    p.Success,
			Concurrent: bind(p.Name, p.Concurrent),
			Dependent:  bind(p.Name, p.Dependent),
		})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := engine.ValidatePhases(phases); err != nil {
		return nil, err
	}
	return phases, nil
}
