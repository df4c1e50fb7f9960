package lending

// Section names written by the loan pipeline.
const (
	SectionIntake     = "intake"
	SectionDocuments  = "documents"
	SectionCredit     = "credit"
	SectionAppraisal  = "appraisal"
	SectionFlood      = "flood"
	SectionEmployment = "employment"
	SectionRatios     = "ratios"
	SectionAUS        = "aus"
	SectionDecision   = "decision"
)

// IntakeReview is written when the application passes validation.
type IntakeReview struct {
	LoanNumber string  `json:"loan_number"`
	Borrower   string  `json:"borrower"`
	Amount     float64 `json:"amount"`
}

// DocumentReview lists the documents on file against the required set.
type DocumentReview struct {
	Received []string `json:"received"`
	Missing  []string `json:"missing,omitempty"`
}

// RequiredDocuments must all be on file before credit is pulled.
var RequiredDocuments = []string{"urla", "paystub", "w2", "bank_statement", "purchase_agreement"}

type CreditReport struct {
	ReportID    string  `json:"report_id"`
	Score       int     `json:"score"`
	MonthlyDebt float64 `json:"monthly_debt"`
}

type Appraisal struct {
	OrderID       string  `json:"order_id"`
	Value         float64 `json:"value"`
	PurchasePrice float64 `json:"purchase_price"`
	Low           bool    `json:"low"`
}

type FloodCert struct {
	Zone              string `json:"zone"`
	HighRisk          bool   `json:"high_risk"`
	InsuranceRequired bool   `json:"insurance_required"`
}

type EmploymentCheck struct {
	Employer      string  `json:"employer"`
	Verified      bool    `json:"verified"`
	YearsEmployed float64 `json:"years_employed"`
}

// Ratios are the qualifying ratios computed from the collected sections.
// Percentages are in points, money in dollars per month unless noted.
type Ratios struct {
	LTV               float64 `json:"ltv"`
	DTI               float64 `json:"dti"`
	FrontEnd          float64 `json:"front_end"`
	PrincipalInterest float64 `json:"principal_interest"`
	Taxes             float64 `json:"taxes"`
	Insurance         float64 `json:"insurance"`
	PMI               float64 `json:"pmi"`
	Housing           float64 `json:"housing"`
	ReservesMonths    float64 `json:"reserves_months"`
	CashToClose       float64 `json:"cash_to_close"`
	DTIRating         string  `json:"dti_rating"`
}

// AUS recommendations.
const (
	RecommendApprove = "approve"
	RecommendRefer   = "refer"
	RecommendCaution = "caution"
)

type AUSFindings struct {
	CaseFileID     string   `json:"case_file_id"`
	Recommendation string   `json:"recommendation"`
	Findings       []string `json:"findings,omitempty"`
}

type Decision struct {
	Outcome    string   `json:"outcome"`
	Reasons    []string `json:"reasons,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
}
