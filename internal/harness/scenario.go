package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/caseflow/internal/casefile"
	"github.com/roach88/caseflow/internal/lending"
)

// Scenario defines a case scenario: one application, scripted collaborator
// behaviour, a flow of orchestrator actions and assertions on the result.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Pipeline is an optional pipeline file (.yaml or .cue), relative to
	// the scenario file. Empty uses the embedded loan pipeline.
	Pipeline string `yaml:"pipeline,omitempty"`

	// Application is stored as the case's application section.
	Application lending.Application `yaml:"application"`

	// Services scripts the simulated collaborators, keyed by operation
	// name (credit, appraisal, flood, employment, aus).
	Services map[string]ServiceSpec `yaml:"services,omitempty"`

	// Flow is executed in order against the one case.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and case.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ServiceSpec scripts one simulated service. Call n returns Outcomes[n];
// calls past the end succeed.
type ServiceSpec struct {
	Latency  time.Duration `yaml:"latency,omitempty"`
	Outcomes []string      `yaml:"outcomes,omitempty"`
}

// Flow actions.
const (
	ActionProcess  = "process"
	ActionResume   = "resume"
	ActionWithdraw = "withdraw"
)

var flowActions = []string{ActionProcess, ActionResume, ActionWithdraw}

// FlowStep is one orchestrator call.
type FlowStep struct {
	// Action is process, resume or withdraw.
	Action string `yaml:"action"`

	// Reason is recorded by withdraw.
	Reason string `yaml:"reason,omitempty"`

	// Expect, when set, is checked against the step outcome.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Status is the expected case status after the step.
	Status string `yaml:"status,omitempty"`

	// WriteCount is the expected persisted write count after the step.
	WriteCount *int64 `yaml:"write_count,omitempty"`

	// Failed lists the required operations reported as failed, in any order.
	Failed []string `yaml:"failed,omitempty"`

	// Error is the error kind of a step expected to fail outright.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final trace or case.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Status is the expected final status (final_status).
	Status string `yaml:"status,omitempty"`

	// Operation names an operation (trace_contains, trace_count).
	Operation string `yaml:"operation,omitempty"`

	// Result restricts trace_contains to "ok" or an error kind.
	Result string `yaml:"result,omitempty"`

	// Operations is the expected order (trace_order).
	Operations []string `yaml:"operations,omitempty"`

	// Section names a section (section_present).
	Section string `yaml:"section,omitempty"`

	// Service names a simulated service (service_calls).
	Service string `yaml:"service,omitempty"`

	// Count is the expected number (write_count, audit_len, trace_count,
	// service_calls).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalStatus   = "final_status"
	AssertWriteCount    = "write_count"
	AssertAuditLen      = "audit_len"
	AssertSection       = "section_present"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertServiceCalls  = "service_calls"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected, and the pipeline path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.Pipeline != "" && !filepath.IsAbs(s.Pipeline) {
		s.Pipeline = filepath.Join(filepath.Dir(path), s.Pipeline)
	}
	if s.Pipeline != "" {
		if _, err := os.Stat(s.Pipeline); err != nil {
			return nil, fmt.Errorf("invalid scenario: pipeline file not found: %s", s.Pipeline)
		}
	}
	return s, nil
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for name, svc := range s.Services {
		if !slices.Contains(serviceNames, name) {
			return fmt.Errorf("services.%s: unknown service (want one of %v)", name, serviceNames)
		}
		for i, o := range svc.Outcomes {
			if _, err := lending.ParseOutcome(o); err != nil {
				return fmt.Errorf("services.%s.outcomes[%d]: %w", name, i, err)
			}
		}
		if svc.Latency < 0 {
			return fmt.Errorf("services.%s: latency must not be negative", name)
		}
	}

	for i, step := range s.Flow {
		if !slices.Contains(flowActions, step.Action) {
			return fmt.Errorf("flow[%d]: unknown action %q (want one of %v)", i, step.Action, flowActions)
		}
		if step.Expect == nil {
			continue
		}
		if step.Expect.Status != "" {
			if _, err := casefile.ParseStatus(step.Expect.Status); err != nil {
				return fmt.Errorf("flow[%d].expect: %w", i, err)
			}
		}
		if step.Expect.Error != "" && (step.Expect.Status != "" || step.Expect.WriteCount != nil) {
			return fmt.Errorf("flow[%d].expect: error excludes status and write_count", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

var serviceNames = []string{
	lending.SectionCredit,
	lending.SectionAppraisal,
	lending.SectionFlood,
	lending.SectionEmployment,
	lending.SectionAUS,
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalStatus:
		if _, err := casefile.ParseStatus(a.Status); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertWriteCount, AssertAuditLen:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertSection:
		if a.Section == "" {
			return fmt.Errorf("assertions[%d]: section is required for section_present", index)
		}
	case AssertTraceContains:
		if a.Operation == "" {
			return fmt.Errorf("assertions[%d]: operation is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Operations) == 0 {
			return fmt.Errorf("assertions[%d]: operations list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Operation == "" {
			return fmt.Errorf("assertions[%d]: operation is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertServiceCalls:
		if !slices.Contains(serviceNames, a.Service) {
			return fmt.Errorf("assertions[%d]: unknown service %q for service_calls", index, a.Service)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// behaviors converts the service scripts for lending.NewServices.
func (s *Scenario) behaviors() map[string]lending.Behavior {
	out := make(map[string]lending.Behavior, len(s.Services))
	for name, spec := range s.Services {
		b := lending.Behavior{Latency: spec.Latency}
		for _, o := range spec.Outcomes {
			outcome, _ := lending.ParseOutcome(o) // checked by validateScenario
			b.Outcomes = append(b.Outcomes, outcome)
		}
		out[name] = b
	}
	return out
}
