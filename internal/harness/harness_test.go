package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/caseflow/internal/casefile"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
	require.NoError(t, err)
	return s
}

func TestRun_CleanApproval(t *testing.T) {
	result, err := Run(loadScenario(t, "clean_approval"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, "loan-0001", result.CaseID)
	assert.Equal(t, casefile.StatusApproved, result.Record.Status)
	assert.Equal(t, int64(12), result.Inspection.WriteCount)
	assert.Equal(t, int64(12), result.Inspection.CountedWrites)
	assert.Len(t, result.Trace, 11)
	for _, n := range result.Calls {
		assert.Equal(t, 1, n)
	}
}

func TestRun_BureauOutageRecovers(t *testing.T) {
	result, err := Run(loadScenario(t, "bureau_outage"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, 4, result.Calls["credit"])
	assert.Equal(t, 2, result.Calls["appraisal"], "resume reruns the whole phase")
	assert.True(t, result.Inspection.AuditOrdered)
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s := loadScenario(t, "clean_approval")
	wrong := int64(11)
	s.Flow[0].Expect.Status = "denied"
	s.Flow[0].Expect.WriteCount = &wrong
	s.Assertions = []Assertion{{Type: AssertServiceCalls, Service: "aus", Count: 2}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "flow[0] process: expected status denied, got approved")
	assert.Contains(t, result.Errors[1], "expected write_count 11, got 12")
	assert.Contains(t, result.Errors[2], "aus called 1 times")
}

func TestRun_UnexpectedStepError(t *testing.T) {
	s := loadScenario(t, "clean_approval")
	s.Flow = []FlowStep{{Action: ActionResume}}
	s.Assertions = nil

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "flow[0] resume: unexpected error")
	assert.Equal(t, []TraceEvent{{Step: 1, Action: ActionResume, Result: string(casefile.KindPrecondition)}}, result.Trace)
}

func TestRun_WrongErrorKind(t *testing.T) {
	s := loadScenario(t, "clean_approval")
	s.Flow = []FlowStep{{Action: ActionResume, Expect: &ExpectClause{Error: "CONFLICT"}}}
	s.Assertions = nil

	result, err := Run(s)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected error CONFLICT, got PRECONDITION_FAILED")
}

func TestRun_BadPipelineFile(t *testing.T) {
	s := loadScenario(t, "clean_approval")
	s.Pipeline = "testdata/scenarios/clean_approval.yaml"

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load pipeline")
}
