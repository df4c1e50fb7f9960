package lending

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SectionApplication is the input section supplied when a loan case is
// created.
const SectionApplication = "application"

// Application is the borrower's loan application.
type Application struct {
	LoanNumber string    `json:"loan_number" yaml:"loan_number" validate:"required"`
	Borrower   Borrower  `json:"borrower" yaml:"borrower"`
	Property   Property  `json:"property" yaml:"property"`
	Loan       LoanTerms `json:"loan" yaml:"loan"`
	Documents  []string  `json:"documents" yaml:"documents"`
}

type Borrower struct {
	Name          string  `json:"name" yaml:"name" validate:"required"`
	SSN           string  `json:"ssn" yaml:"ssn" validate:"required"`
	MonthlyIncome float64 `json:"monthly_income" yaml:"monthly_income" validate:"gt=0"`
	MonthlyDebts  float64 `json:"monthly_debts" yaml:"monthly_debts" validate:"gte=0"`
	Assets        float64 `json:"assets" yaml:"assets" validate:"gte=0"`
	Employer      string  `json:"employer,omitempty" yaml:"employer,omitempty"`
	YearsEmployed float64 `json:"years_employed,omitempty" yaml:"years_employed,omitempty" validate:"gte=0"`
}

type Property struct {
	Address string `json:"address" yaml:"address" validate:"required"`
	Zip     string `json:"zip" yaml:"zip" validate:"required,len=5,numeric"`
}

type LoanTerms struct {
	Amount        float64 `json:"amount" yaml:"amount" validate:"gt=0"`
	PurchasePrice float64 `json:"purchase_price" yaml:"purchase_price" validate:"gt=0,gtefield=Amount"`
	DownPayment   float64 `json:"down_payment" yaml:"down_payment" validate:"gte=0"`

	// RatePercent is the annual note rate. Zero uses DefaultRatePercent.
	RatePercent float64 `json:"rate_percent,omitempty" yaml:"rate_percent,omitempty" validate:"gte=0,lt=30"`

	// TermMonths zero uses DefaultTermMonths.
	TermMonths int `json:"term_months,omitempty" yaml:"term_months,omitempty" validate:"gte=0,lte=480"`
}

const (
	DefaultRatePercent = 7.0
	DefaultTermMonths  = 360
)

func (t LoanTerms) rate() float64 {
	if t.RatePercent > 0 {
		return t.RatePercent
	}
	return DefaultRatePercent
}

func (t LoanTerms) term() int {
	if t.TermMonths > 0 {
		return t.TermMonths
	}
	return DefaultTermMonths
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate reports every field that fails its constraint, e.g.
// "borrower.monthly_income must be gt 0".
func (a *Application) Validate() error {
	err := validate.Struct(a)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Application.")
		if fe.Param() != "" {
			msgs[i] = fmt.Sprintf("%s must be %s %s", field, fe.Tag(), fe.Param())
		} else {
			msgs[i] = fmt.Sprintf("%s is %s", field, fe.Tag())
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
