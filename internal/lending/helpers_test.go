package lending

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/caseflow/internal/engine"
	"github.com/roach88/caseflow/internal/locktable"
	"github.com/roach88/caseflow/internal/store"
	"github.com/roach88/caseflow/internal/testutil"
)

// cleanApplication scores 750 at the bureau with a DTI of 36.81%.
func cleanApplication() *Application {
	return &Application{
		LoanNumber: "LN-1001",
		Borrower: Borrower{
			Name:          "John Smith",
			SSN:           "123-45-0170",
			MonthlyIncome: 8500,
			MonthlyDebts:  500,
			Assets:        75000,
			Employer:      "Tech Corp",
			YearsEmployed: 5,
		},
		Property: Property{Address: "456 Oak Avenue, Springfield, IL", Zip: "62702"},
		Loan: LoanTerms{
			Amount:        320000,
			PurchasePrice: 400000,
			DownPayment:   80000,
		},
		Documents: []string{"URLA", "paystub", "W2", "bank statement", "purchase_agreement"},
	}
}

type loanEngine struct {
	orch  *engine.Orchestrator
	svc   *Services
	store *store.MemoryStore
}

func newLoanEngine(t *testing.T, behaviors map[string]Behavior) *loanEngine {
	t.Helper()
	svc := NewServices(behaviors)
	phases, err := Phases(nil, svc)
	require.NoError(t, err)

	s := store.NewMemoryStore()
	exec := engine.NewExecutor(s, locktable.New(),
		engine.WithRetryPolicy(engine.RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond}),
		engine.WithClock(testutil.NewStepClock(time.Time{}, time.Second)),
	)
	orch, err := engine.NewOrchestrator(exec, engine.NewRunner(exec), phases,
		engine.WithIDGenerator(engine.NewSequenceGenerator("loan")))
	require.NoError(t, err)
	return &loanEngine{orch: orch, svc: svc, store: s}
}

func (e *loanEngine) create(t *testing.T, app *Application) string {
	t.Helper()
	raw, err := json.Marshal(app)
	require.NoError(t, err)
	rec, err := e.orch.Create(context.Background(), "", map[string]json.RawMessage{SectionApplication: raw})
	require.NoError(t, err)
	return rec.ID
}
