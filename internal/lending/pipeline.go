package lending

import (
	_ "embed"

	"github.com/roach88/caseflow/internal/engine"
	"github.com/roach88/caseflow/internal/pipeline"
)

//go:embed loan.yaml
var loanPipeline []byte

// Definition returns the embedded loan pipeline.
func Definition() (*pipeline.Definition, error) {
	return pipeline.Parse(loanPipeline, pipeline.FormatYAML, "loan.yaml")
}

// Phases builds def against the loan handlers backed by svc. A nil def uses
// the embedded pipeline.
func Phases(def *pipeline.Definition, svc *Services) ([]engine.Phase, error) {
	if def == nil {
		var err error
		if def, err = Definition(); err != nil {
			return nil, err
		}
	}
	return pipeline.Build(def, Registry(svc))
}
