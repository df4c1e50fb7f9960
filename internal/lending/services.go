package lending

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/roach88/caseflow/internal/casefile"
)

// Outcome scripts one call to a simulated service.
type Outcome string

const (
	OK        Outcome = "ok"
	Transient Outcome = "transient"
	Permanent Outcome = "permanent"
)

// ParseOutcome accepts ok, transient or permanent in any case.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToLower(strings.TrimSpace(s))); o {
	case OK, Transient, Permanent:
		return o, nil
	default:
		return "", fmt.Errorf("unknown outcome %q (want ok, transient or permanent)", s)
	}
}

// Behavior controls a simulated service. Call n returns Outcomes[n]; calls
// past the end of the script succeed.
type Behavior struct {
	Latency  time.Duration
	Outcomes []Outcome
}

// service is the shared call machinery of the simulated collaborators.
type service struct {
	name string

	mu       sync.Mutex
	behavior Behavior
	calls    int
}

func newService(name string, b Behavior) *service {
	return &service{name: name, behavior: b}
}

// call blocks for the configured latency and returns the scripted outcome.
func (s *service) call(ctx context.Context) error {
	s.mu.Lock()
	n := s.calls
	s.calls++
	b := s.behavior
	s.mu.Unlock()

	if b.Latency > 0 {
		t := time.NewTimer(b.Latency)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return &casefile.Error{Kind: casefile.KindTransient, Message: s.name + " call cancelled", Err: ctx.Err()}
		}
	}
	if n >= len(b.Outcomes) {
		return nil
	}
	switch b.Outcomes[n] {
	case Transient:
		return casefile.Transient("%s: service timeout", s.name)
	case Permanent:
		return casefile.Permanent("%s: request rejected", s.name)
	}
	return nil
}

// Calls returns how many times the service was called.
func (s *service) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// CreditBureau reports a score derived from the last four digits of the SSN,
// n mod 241 + 580, covering 580 to 820. Reported debt is the declared debt.
type CreditBureau struct{ *service }

func (b *CreditBureau) Pull(ctx context.Context, app *Application) (CreditReport, error) {
	if err := b.call(ctx); err != nil {
		return CreditReport{}, err
	}
	return CreditReport{
		ReportID:    "CR-" + app.LoanNumber,
		Score:       ScoreFor(app.Borrower.SSN),
		MonthlyDebt: app.Borrower.MonthlyDebts,
	}, nil
}

// ScoreFor is the simulated bureau's score for an SSN.
func ScoreFor(ssn string) int {
	var digits []byte
	for i := len(ssn) - 1; i >= 0 && len(digits) < 4; i-- {
		if c := ssn[i]; c >= '0' && c <= '9' {
			digits = append([]byte{c}, digits...)
		}
	}
	n := 0
	for _, c := range digits {
		n = n*10 + int(c-'0')
	}
	return 580 + n%241
}

// Appraiser values the property at the purchase price, reduced by the
// markdown of its zip code if one is configured.
type Appraiser struct {
	*service
	Markdowns map[string]float64
}

// DefaultMarkdowns are zip codes where appraisals come in low.
var DefaultMarkdowns = map[string]float64{
	"60629": 0.93,
	"48205": 0.90,
}

func (a *Appraiser) Appraise(ctx context.Context, app *Application) (Appraisal, error) {
	if err := a.call(ctx); err != nil {
		return Appraisal{}, err
	}
	price := app.Loan.PurchasePrice
	value := price
	if f, ok := a.Markdowns[app.Property.Zip]; ok {
		value = math.Round(price * f)
	}
	return Appraisal{
		OrderID:       "APR-" + app.LoanNumber,
		Value:         value,
		PurchasePrice: price,
		Low:           value < price,
	}, nil
}

// FloodService certifies the FEMA zone of a zip code.
type FloodService struct {
	*service
	Zones map[string]string
}

// DefaultFloodZones are the high-risk zip codes; everything else is zone X.
var DefaultFloodZones = map[string]string{
	"33139": "AE",
	"70117": "AE",
	"77551": "VE",
	"08260": "VE",
	"23451": "A",
}

func (f *FloodService) Certify(ctx context.Context, zip string) (FloodCert, error) {
	if err := f.call(ctx); err != nil {
		return FloodCert{}, err
	}
	zone, ok := f.Zones[zip]
	if !ok {
		zone = "X"
	}
	cert := FloodCert{Zone: zone}
	switch zone {
	case "A", "AE", "V", "VE":
		cert.HighRisk = true
		cert.InsuranceRequired = true
	}
	return cert, nil
}

// EmploymentVerifier confirms the employer named on the application.
type EmploymentVerifier struct{ *service }

func (v *EmploymentVerifier) Verify(ctx context.Context, b Borrower) (EmploymentCheck, error) {
	if err := v.call(ctx); err != nil {
		return EmploymentCheck{}, err
	}
	if strings.TrimSpace(b.Employer) == "" {
		return EmploymentCheck{}, casefile.Permanent("employment: no employer on application")
	}
	return EmploymentCheck{Employer: b.Employer, Verified: true, YearsEmployed: b.YearsEmployed}, nil
}

// UnderwritingSystem is the automated underwriting service.
type UnderwritingSystem struct{ *service }

func (u *UnderwritingSystem) Submit(ctx context.Context, loanNumber string, credit CreditReport, r Ratios) (AUSFindings, error) {
	if err := u.call(ctx); err != nil {
		return AUSFindings{}, err
	}
	return Recommend(loanNumber, credit, r), nil
}

// Services is the set of simulated collaborators used by the loan pipeline.
type Services struct {
	Bureau     *CreditBureau
	Appraiser  *Appraiser
	Flood      *FloodService
	Employment *EmploymentVerifier
	AUS        *UnderwritingSystem
}

// NewServices builds the collaborators. behaviors is keyed by operation name
// (credit, appraisal, flood, employment, aus); missing keys behave
// instantly and always succeed.
func NewServices(behaviors map[string]Behavior) *Services {
	return &Services{
		Bureau:     &CreditBureau{newService(SectionCredit, behaviors[SectionCredit])},
		Appraiser:  &Appraiser{service: newService(SectionAppraisal, behaviors[SectionAppraisal]), Markdowns: DefaultMarkdowns},
		Flood:      &FloodService{service: newService(SectionFlood, behaviors[SectionFlood]), Zones: DefaultFloodZones},
		Employment: &EmploymentVerifier{newService(SectionEmployment, behaviors[SectionEmployment])},
		AUS:        &UnderwritingSystem{newService(SectionAUS, behaviors[SectionAUS])},
	}
}

// Calls reports the number of calls per service.
func (s *Services) Calls() map[string]int {
	return map[string]int{
		SectionCredit:     s.Bureau.Calls(),
		SectionAppraisal:  s.Appraiser.Calls(),
		SectionFlood:      s.Flood.Calls(),
		SectionEmployment: s.Employment.Calls(),
		SectionAUS:        s.AUS.Calls(),
	}
}
