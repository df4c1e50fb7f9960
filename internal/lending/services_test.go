package lending

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/caseflow/internal/casefile"
)

func TestScoreFor(t *testing.T) {
	assert.Equal(t, 750, ScoreFor("123-45-0170"))
	assert.Equal(t, 600, ScoreFor("987-65-0020"))
	assert.Equal(t, 580, ScoreFor(""))
	assert.Equal(t, 580+6789%241, ScoreFor("123-45-6789"))
}

func TestParseOutcome(t *testing.T) {
	o, err := ParseOutcome(" Transient ")
	require.NoError(t, err)
	assert.Equal(t, Transient, o)

	_, err = ParseOutcome("flaky")
	require.Error(t, err)
}

func TestService_ScriptedOutcomes(t *testing.T) {
	svc := NewServices(map[string]Behavior{
		SectionCredit: {Outcomes: []Outcome{Transient, Permanent}},
	})
	app := cleanApplication()
	ctx := context.Background()

	_, err := svc.Bureau.Pull(ctx, app)
	assert.Equal(t, casefile.KindTransient, casefile.KindOf(err))
	_, err = svc.Bureau.Pull(ctx, app)
	assert.Equal(t, casefile.KindPermanent, casefile.KindOf(err))

	report, err := svc.Bureau.Pull(ctx, app)
	require.NoError(t, err)
	assert.Equal(t, CreditReport{ReportID: "CR-LN-1001", Score: 750, MonthlyDebt: 500}, report)
	assert.Equal(t, 3, svc.Calls()[SectionCredit])
}

func TestService_LatencyHonoursContext(t *testing.T) {
	svc := NewServices(map[string]Behavior{SectionAppraisal: {Latency: time.Minute}})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := svc.Appraiser.Appraise(ctx, cleanApplication())
	require.Error(t, err)
	assert.True(t, casefile.IsTransient(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestAppraiser_Markdown(t *testing.T) {
	svc := NewServices(nil)
	app := cleanApplication()

	a, err := svc.Appraiser.Appraise(context.Background(), app)
	require.NoError(t, err)
	assert.False(t, a.Low)
	assert.Equal(t, 400000.0, a.Value)

	app.Property.Zip = "60629"
	a, err = svc.Appraiser.Appraise(context.Background(), app)
	require.NoError(t, err)
	assert.True(t, a.Low)
	assert.Equal(t, 372000.0, a.Value)
}

func TestFloodService_Zones(t *testing.T) {
	svc := NewServices(nil)
	tests := []struct {
		zip       string
		zone      string
		insurance bool
	}{
		{"33139", "AE", true},
		{"77551", "VE", true},
		{"23451", "A", true},
		{"62702", "X", false},
	}
	for _, tt := range tests {
		cert, err := svc.Flood.Certify(context.Background(), tt.zip)
		require.NoError(t, err)
		assert.Equal(t, tt.zone, cert.Zone, tt.zip)
		assert.Equal(t, tt.insurance, cert.InsuranceRequired, tt.zip)
	}
}

func TestEmploymentVerifier_NoEmployer(t *testing.T) {
	svc := NewServices(nil)
	b := cleanApplication().Borrower
	b.Employer = " "
	_, err := svc.Employment.Verify(context.Background(), b)
	assert.Equal(t, casefile.KindPermanent, casefile.KindOf(err))
}
