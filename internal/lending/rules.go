package lending

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/roach88/caseflow/internal/casefile"
)

// Underwriting thresholds.
const (
	maxDTI          = 50.0
	preferredDTI    = 43.0
	maxFrontEnd     = 28.0
	pmiLTV          = 80.0
	maxLTV          = 97.0
	ausReferLTV     = 95.0
	minScore        = 620
	preferredScore  = 680
	primeScore      = 740
	minReserves     = 2.0
	minYearsAtJob   = 2.0
	hazardInsurance = 100.0
	taxRate         = 0.012
	pmiRate         = 0.005
	closingCostRate = 0.03
)

// DTI ratings.
const (
	DTIAcceptable = "acceptable"
	DTIElevated   = "elevated"
	DTIHighRisk   = "high_risk"
)

// Decision outcomes. Each maps to the terminal status of the same name.
const (
	OutcomeApproved    = "approved"
	OutcomeConditional = "conditional"
	OutcomeDenied      = "denied"
)

func round2(x float64) float64 { return math.Round(x*100) / 100 }

func dollars(x float64) string { return "$" + humanize.Commaf(math.Round(x)) }

// ReviewDocuments compares the documents on file with RequiredDocuments.
// Names are matched case-insensitively with spaces and dashes as underscores.
func ReviewDocuments(app *Application) DocumentReview {
	have := make(map[string]bool, len(app.Documents))
	var received []string
	for _, d := range app.Documents {
		n := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(d)))
		if n != "" && !have[n] {
			have[n] = true
			received = append(received, n)
		}
	}
	slices.Sort(received)
	rev := DocumentReview{Received: received}
	for _, req := range RequiredDocuments {
		if !have[req] {
			rev.Missing = append(rev.Missing, req)
		}
	}
	return rev
}

// MonthlyPayment is the level principal-and-interest payment of a fully
// amortising loan.
func MonthlyPayment(amount, ratePercent float64, months int) float64 {
	if months <= 0 {
		return 0
	}
	r := ratePercent / 100 / 12
	if r == 0 {
		return amount / float64(months)
	}
	return amount * r / (1 - math.Pow(1+r, -float64(months)))
}

// ComputeRatios derives the qualifying ratios. The property is valued at the
// lower of purchase price and appraisal; the bureau's debt figure wins over
// the declared one when present.
func ComputeRatios(app *Application, credit CreditReport, appraisal Appraisal) Ratios {
	value := app.Loan.PurchasePrice
	if appraisal.Value > 0 && appraisal.Value < value {
		value = appraisal.Value
	}
	amount := app.Loan.Amount

	r := Ratios{
		LTV:               round2(amount / value * 100),
		PrincipalInterest: round2(MonthlyPayment(amount, app.Loan.rate(), app.Loan.term())),
		Taxes:             round2(value * taxRate / 12),
		Insurance:         hazardInsurance,
		CashToClose:       round2(app.Loan.DownPayment + app.Loan.PurchasePrice*closingCostRate),
	}
	if r.LTV > pmiLTV {
		r.PMI = round2(amount * pmiRate / 12)
	}
	r.Housing = round2(r.PrincipalInterest + r.Taxes + r.Insurance + r.PMI)

	debt := app.Borrower.MonthlyDebts
	if credit.ReportID != "" {
		debt = credit.MonthlyDebt
	}
	income := app.Borrower.MonthlyIncome
	r.FrontEnd = round2(r.Housing / income * 100)
	r.DTI = round2((debt + r.Housing) / income * 100)
	r.ReservesMonths = round2(app.Borrower.Assets / r.Housing)

	switch {
	case r.DTI <= preferredDTI:
		r.DTIRating = DTIAcceptable
	case r.DTI <= maxDTI:
		r.DTIRating = DTIElevated
	default:
		r.DTIRating = DTIHighRisk
	}
	return r
}

// Recommend is the automated underwriting system's rule set.
func Recommend(loanNumber string, credit CreditReport, r Ratios) AUSFindings {
	f := AUSFindings{CaseFileID: "CF-" + loanNumber}
	switch {
	case r.DTI > maxDTI:
		f.Recommendation = RecommendRefer
	case credit.Score < minScore:
		f.Recommendation = RecommendCaution
	case r.LTV > ausReferLTV:
		f.Recommendation = RecommendRefer
	case credit.Score >= primeScore && r.DTI <= preferredDTI:
		f.Recommendation = RecommendApprove
	case r.DTI <= preferredDTI+2:
		f.Recommendation = RecommendApprove
	default:
		f.Recommendation = RecommendRefer
	}

	if credit.Score < preferredScore {
		f.Findings = append(f.Findings, fmt.Sprintf("credit score %d below preferred %d", credit.Score, preferredScore))
	}
	if r.DTI > preferredDTI {
		f.Findings = append(f.Findings, fmt.Sprintf("DTI %.2f%% above %.0f%%", r.DTI, preferredDTI))
	}
	if r.FrontEnd > maxFrontEnd {
		f.Findings = append(f.Findings, fmt.Sprintf("front-end ratio %.2f%% above %.0f%%", r.FrontEnd, maxFrontEnd))
	}
	if r.ReservesMonths < minReserves {
		f.Findings = append(f.Findings, fmt.Sprintf("reserves %.1f months below %.0f", r.ReservesMonths, minReserves))
	}
	return f
}

// Evidence is everything the decision reads. Flood is nil when the flood
// certification did not complete.
type Evidence struct {
	Application *Application
	Credit      CreditReport
	Appraisal   Appraisal
	Employment  EmploymentCheck
	Ratios      Ratios
	AUS         AUSFindings
	Flood       *FloodCert
}

// Decide applies the underwriting guidelines. Any denial reason denies the
// loan; otherwise any condition makes it conditional.
func Decide(ev Evidence) (Decision, casefile.Status) {
	var d Decision
	r := ev.Ratios

	if r.DTI > maxDTI {
		d.Reasons = append(d.Reasons, fmt.Sprintf("DTI %.2f%% exceeds %.0f%%", r.DTI, maxDTI))
	}
	if ev.Credit.Score < minScore {
		d.Reasons = append(d.Reasons, fmt.Sprintf("credit score %d below %d", ev.Credit.Score, minScore))
	}
	if r.LTV > maxLTV {
		d.Reasons = append(d.Reasons, fmt.Sprintf("LTV %.2f%% exceeds %.0f%%", r.LTV, maxLTV))
	}
	if len(d.Reasons) > 0 {
		d.Outcome = OutcomeDenied
		return d, casefile.StatusDenied
	}

	if ev.AUS.Recommendation != RecommendApprove {
		d.Conditions = append(d.Conditions, "manual underwriting review of AUS "+ev.AUS.Recommendation)
	}
	if ev.Appraisal.Low {
		d.Conditions = append(d.Conditions, fmt.Sprintf("appraised value %s below purchase price %s",
			dollars(ev.Appraisal.Value), dollars(ev.Appraisal.PurchasePrice)))
	}
	if r.DTI > preferredDTI {
		d.Conditions = append(d.Conditions, "letter of explanation for DTI above 43%")
	}
	if r.PMI > 0 {
		d.Conditions = append(d.Conditions, "private mortgage insurance required")
	}
	if r.ReservesMonths < minReserves {
		d.Conditions = append(d.Conditions, "verify two months of reserves")
	}
	if ev.Employment.YearsEmployed < minYearsAtJob {
		d.Conditions = append(d.Conditions, "verification of employment for the prior two years")
	}
	switch {
	case ev.Flood == nil:
		d.Conditions = append(d.Conditions, "flood certification must be ordered before closing")
	case ev.Flood.InsuranceRequired:
		d.Conditions = append(d.Conditions, "flood insurance required in zone "+ev.Flood.Zone)
	}

	if len(d.Conditions) > 0 {
		d.Outcome = OutcomeConditional
		return d, casefile.StatusConditional
	}
	d.Outcome = OutcomeApproved
	return d, casefile.StatusApproved
}
