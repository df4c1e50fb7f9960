package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/caseflow/internal/casefile"
)

func validDef() *Definition {
	return &Definition{
		Name:   "t",
		Inputs: []string{"application"},
		Phases: []PhaseDef{
			{
				Name:       "collecting",
				Entry:      casefile.StatusCollecting,
				Concurrent: []OpDef{{Name: "credit", Requires: []string{"application"}}},
				Dependent: []OpDef{
					{Name: "ratios", Requires: []string{"credit"}},
					{Name: "submit", Requires: []string{"ratios"}},
				},
			},
			{
				Name:       "review",
				Concurrent: []OpDef{{Name: "underwriting", Requires: []string{"ratios"}}},
			},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validDef().Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Definition)
		want   string
	}{
		{"no name", func(d *Definition) { d.Name = "" }, "no name"},
		{"no phases", func(d *Definition) { d.Phases = nil }, "no phases"},
		{"duplicate phase", func(d *Definition) { d.Phases[1].Name = "collecting" }, `duplicate phase "collecting"`},
		{"duplicate op", func(d *Definition) { d.Phases[1].Concurrent[0].Name = "credit" }, `duplicate operation "credit"`},
		{"shared section", func(d *Definition) { d.Phases[1].Concurrent[0].Section = "credit" }, `section "credit" written by both`},
		{"overwrites input", func(d *Definition) { d.Phases[0].Concurrent[0].Section = "application" }, "overwrites input"},
		{"bad status", func(d *Definition) { d.Phases[0].Success = "pending" }, `invalid status "pending"`},
		{"empty phase", func(d *Definition) { d.Phases[1].Concurrent = nil }, "has no operations"},
		{
			"concurrent reads sibling",
			func(d *Definition) { d.Phases[0].Concurrent = append(d.Phases[0].Concurrent, OpDef{Name: "aus", Requires: []string{"credit"}}) },
			`concurrent operation aus requires "credit"`,
		},
		{
			"dependent reads later dependent",
			func(d *Definition) { d.Phases[0].Dependent[0].Requires = []string{"submit"} },
			`dependent operation ratios requires "submit"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDef()
			tt.mutate(d)
			err := d.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	d := validDef()
	d.Name = ""
	d.Phases[1].Name = "collecting"

	err := d.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name")
	assert.Contains(t, err.Error(), "duplicate phase")
}

func TestOpDef_Defaults(t *testing.T) {
	op := OpDef{Name: "credit"}
	assert.Equal(t, "credit", op.HandlerName())
	assert.Equal(t, "credit", op.SectionName())

	op = OpDef{Name: "credit", Handler: "bureau", Section: "credit_report"}
	assert.Equal(t, "bureau", op.HandlerName())
	assert.Equal(t, "credit_report", op.SectionName())
}
