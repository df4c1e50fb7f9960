package lending

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/caseflow/internal/casefile"
	"github.com/roach88/caseflow/internal/engine"
	"github.com/roach88/caseflow/internal/pipeline"
)

// Registry returns the loan handlers backed by svc, keyed by the handler
// names used in loan.yaml.
func Registry(svc *Services) pipeline.Registry {
	return pipeline.Registry{
		"intake":     {Apply: applyIntake},
		"documents":  {Apply: applyDocuments},
		"credit":     {Fetch: svc.fetchCredit, Apply: passThrough(creditSummary)},
		"appraisal":  {Fetch: svc.fetchAppraisal, Apply: passThrough(appraisalSummary)},
		"flood":      {Fetch: svc.fetchFlood, Apply: passThrough(floodSummary)},
		"employment": {Fetch: svc.fetchEmployment, Apply: passThrough(employmentSummary)},
		"ratios":     {Apply: applyRatios},
		"aus":        {Fetch: svc.fetchAUS, Apply: passThrough(ausSummary)},
		"decision":   {Apply: applyDecision},
	}
}

func section[T any](rec *casefile.Record, name string) (T, error) {
	var v T
	err := rec.DecodeSection(name, &v)
	return v, err
}

func application(rec *casefile.Record) (*Application, error) {
	app, err := section[Application](rec, SectionApplication)
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// passThrough stores the fetched value of type T as the section.
func passThrough[T any](summary func(T) string) engine.ApplyFunc {
	return func(_ *casefile.Record, fetched any) (engine.Mutation, error) {
		v, ok := fetched.(T)
		if !ok {
			return engine.Mutation{}, casefile.Permanent("unexpected collaborator result %T", fetched)
		}
		return engine.Mutation{Value: v, Summary: summary(v)}, nil
	}
}

func applyIntake(rec *casefile.Record, _ any) (engine.Mutation, error) {
	app, err := application(rec)
	if err != nil {
		return engine.Mutation{}, err
	}
	if err := app.Validate(); err != nil {
		return engine.Mutation{}, casefile.Permanent("application incomplete: %v", err)
	}
	return engine.Mutation{
		Value:   IntakeReview{LoanNumber: app.LoanNumber, Borrower: app.Borrower.Name, Amount: app.Loan.Amount},
		Summary: fmt.Sprintf("application %s accepted for %s", app.LoanNumber, dollars(app.Loan.Amount)),
	}, nil
}

func applyDocuments(rec *casefile.Record, _ any) (engine.Mutation, error) {
	app, err := application(rec)
	if err != nil {
		return engine.Mutation{}, err
	}
	rev := ReviewDocuments(app)
	if len(rev.Missing) > 0 {
		return engine.Mutation{}, casefile.Permanent("missing documents: %s", strings.Join(rev.Missing, ", "))
	}
	return engine.Mutation{
		Value:   rev,
		Summary: fmt.Sprintf("%d documents verified", len(rev.Received)),
	}, nil
}

func (s *Services) fetchCredit(ctx context.Context, snap *casefile.Record) (any, error) {
	app, err := application(snap)
	if err != nil {
		return nil, err
	}
	return s.Bureau.Pull(ctx, app)
}

func creditSummary(c CreditReport) string {
	return fmt.Sprintf("credit score %d (%s)", c.Score, c.ReportID)
}

func (s *Services) fetchAppraisal(ctx context.Context, snap *casefile.Record) (any, error) {
	app, err := application(snap)
	if err != nil {
		return nil, err
	}
	return s.Appraiser.Appraise(ctx, app)
}

func appraisalSummary(a Appraisal) string {
	return "appraised at " + dollars(a.Value)
}

func (s *Services) fetchFlood(ctx context.Context, snap *casefile.Record) (any, error) {
	app, err := application(snap)
	if err != nil {
		return nil, err
	}
	return s.Flood.Certify(ctx, app.Property.Zip)
}

func floodSummary(f FloodCert) string {
	if f.InsuranceRequired {
		return "flood zone " + f.Zone + ", insurance required"
	}
	return "flood zone " + f.Zone
}

func (s *Services) fetchEmployment(ctx context.Context, snap *casefile.Record) (any, error) {
	app, err := application(snap)
	if err != nil {
		return nil, err
	}
	return s.Employment.Verify(ctx, app.Borrower)
}

func employmentSummary(e EmploymentCheck) string {
	return "employment verified at " + e.Employer
}

func applyRatios(rec *casefile.Record, _ any) (engine.Mutation, error) {
	app, err := application(rec)
	if err != nil {
		return engine.Mutation{}, err
	}
	credit, err := section[CreditReport](rec, SectionCredit)
	if err != nil {
		return engine.Mutation{}, err
	}
	appraisal, err := section[Appraisal](rec, SectionAppraisal)
	if err != nil {
		return engine.Mutation{}, err
	}
	r := ComputeRatios(app, credit, appraisal)
	return engine.Mutation{
		Value:   r,
		Summary: fmt.Sprintf("LTV %.2f%%, DTI %.2f%% (%s)", r.LTV, r.DTI, r.DTIRating),
	}, nil
}

func (s *Services) fetchAUS(ctx context.Context, snap *casefile.Record) (any, error) {
	app, err := application(snap)
	if err != nil {
		return nil, err
	}
	credit, err := section[CreditReport](snap, SectionCredit)
	if err != nil {
		return nil, err
	}
	r, err := section[Ratios](snap, SectionRatios)
	if err != nil {
		return nil, err
	}
	return s.AUS.Submit(ctx, app.LoanNumber, credit, r)
}

func ausSummary(f AUSFindings) string {
	return "AUS recommendation: " + f.Recommendation
}

func applyDecision(rec *casefile.Record, _ any) (engine.Mutation, error) {
	app, err := application(rec)
	if err != nil {
		return engine.Mutation{}, err
	}
	ev := Evidence{Application: app}
	if ev.Credit, err = section[CreditReport](rec, SectionCredit); err != nil {
		return engine.Mutation{}, err
	}
	if ev.Appraisal, err = section[Appraisal](rec, SectionAppraisal); err != nil {
		return engine.Mutation{}, err
	}
	if ev.Employment, err = section[EmploymentCheck](rec, SectionEmployment); err != nil {
		return engine.Mutation{}, err
	}
	if ev.Ratios, err = section[Ratios](rec, SectionRatios); err != nil {
		return engine.Mutation{}, err
	}
	if ev.AUS, err = section[AUSFindings](rec, SectionAUS); err != nil {
		return engine.Mutation{}, err
	}
	if rec.HasSection(SectionFlood) {
		flood, err := section[FloodCert](rec, SectionFlood)
		if err != nil {
			return engine.Mutation{}, err
		}
		ev.Flood = &flood
	}

	d, status := Decide(ev)
	summary := "loan " + d.Outcome
	switch {
	case len(d.Reasons) > 0:
		summary += ": " + strings.Join(d.Reasons, "; ")
	case len(d.Conditions) > 0:
		summary += fmt.Sprintf(" with %d conditions", len(d.Conditions))
	}
	return engine.Mutation{Value: d, Summary: summary, Status: status}, nil
}
