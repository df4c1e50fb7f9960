package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/caseflow/internal/app"
	"github.com/roach88/caseflow/internal/casefile"
	"github.com/roach88/caseflow/internal/config"
	"github.com/roach88/caseflow/internal/engine"
	"github.com/roach88/caseflow/internal/lending"
	"github.com/roach88/caseflow/internal/store"
)

const application = `{
  "loan_number": "LN-3001",
  "borrower": {"name": "Kim Lee", "ssn": "321-54-0170", "monthly_income": 8500,
               "monthly_debts": 500, "assets": 75000, "employer": "Tech Corp", "years_employed": 5},
  "property": {"address": "456 Oak Avenue", "zip": "62702"},
  "loan": {"amount": 320000, "purchase_price": 400000, "down_payment": 80000},
  "documents": ["urla", "paystub", "w2", "bank_statement", "purchase_agreement"]
}`

func setupTestRouter(t *testing.T, services *lending.Services) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Store, cfg.DSN = "memory", ""
	cfg.RetryBackoff = time.Millisecond
	opts := []app.Option{app.WithIDGenerator(engine.NewSequenceGenerator("loan"))}
	if services != nil {
		opts = append(opts, app.WithServices(services))
	}
	a, err := app.New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	return NewRouter(&Handler{Cases: a.Orchestrator, Gatherer: a.Registry})
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, path, nil)
	} else {
		req, _ = http.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createCase(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := do(r, "POST", "/cases", `{"sections": {"application": `+application+`}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rec casefile.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, casefile.StatusReceived, rec.Status)
	assert.Empty(t, rec.AuditTrail)
	return rec.ID
}

func TestCreateAndProcess(t *testing.T) {
	r := setupTestRouter(t, nil)
	id := createCase(t, r)
	assert.Equal(t, "loan-0001", id)

	w := do(r, "POST", "/cases/"+id+"/process", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out engine.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, casefile.StatusApproved, out.Status)
	assert.Equal(t, int64(12), out.WriteCount)

	w = do(r, "POST", "/cases/"+id+"/process", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.True(t, out.Noop, "processing a decided case is a no-op")

	w = do(r, "GET", "/cases/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	var rec casefile.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.True(t, rec.HasSection(lending.SectionDecision))

	w = do(r, "GET", "/cases/"+id+"/writes", "")
	require.Equal(t, http.StatusOK, w.Code)
	var ins engine.Inspection
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ins))
	assert.Equal(t, int64(12), ins.WriteCount)
	assert.Equal(t, int64(12), ins.CountedWrites)
	assert.True(t, ins.AuditOrdered)

	w = do(r, "GET", "/cases/"+id+"/audit", "")
	require.Equal(t, http.StatusOK, w.Code)
	var audit struct {
		Entries []casefile.AuditEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &audit))
	assert.Len(t, audit.Entries, 12)

	w = do(r, "GET", "/writes", "")
	require.Equal(t, http.StatusOK, w.Code)
	var writes []engine.CaseWrites
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &writes))
	assert.Equal(t, []engine.CaseWrites{{CaseID: id, Writes: 12}}, writes)
}

func TestSuspendAndResume(t *testing.T) {
	services := lending.NewServices(map[string]lending.Behavior{
		lending.SectionEmployment: {Outcomes: []lending.Outcome{lending.Permanent}},
	})
	r := setupTestRouter(t, services)
	id := createCase(t, r)

	w := do(r, "POST", "/cases/"+id+"/process", "")
	require.Equal(t, http.StatusOK, w.Code)
	var out engine.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, casefile.StatusSuspended, out.Status)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, "employment", out.Failures[0].Operation)
	assert.Equal(t, casefile.KindPermanent, out.Failures[0].Kind)

	w = do(r, "POST", "/cases/"+id+"/resume", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, casefile.StatusApproved, out.Status)

	w = do(r, "POST", "/cases/"+id+"/resume", "")
	assert.Equal(t, http.StatusConflict, w.Code, "only a suspended case resumes")
}

func TestWithdraw(t *testing.T) {
	r := setupTestRouter(t, nil)
	id := createCase(t, r)

	w := do(r, "POST", "/cases/"+id+"/withdraw", `{"reason": "borrower request"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out engine.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, casefile.StatusWithdrawn, out.Status)

	w = do(r, "POST", "/cases/"+id+"/withdraw", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestErrors(t *testing.T) {
	r := setupTestRouter(t, nil)

	w := do(r, "GET", "/cases/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), string(casefile.KindNotFound))

	w = do(r, "POST", "/cases", `{"id": "x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "sections are required")

	w = do(r, "POST", "/cases", `{"id": "../etc", "sections": {}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, "POST", "/cases/missing/process", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, "GET", "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetrics(t *testing.T) {
	r := setupTestRouter(t, nil)
	id := createCase(t, r)
	do(r, "POST", "/cases/"+id+"/process", "")

	w := do(r, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "caseflow_case_writes_total 12"), body)
	assert.Contains(t, body, `caseflow_operations_total{operation="credit",result="ok"} 1`)
}

func TestListCases(t *testing.T) {
	r := setupTestRouter(t, nil)

	w := do(r, "GET", "/cases", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cases": []}`, w.Body.String())

	first := createCase(t, r)
	second := createCase(t, r)
	do(r, "POST", "/cases/"+first+"/process", "")

	w = do(r, "GET", "/cases", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Cases []store.Summary `json:"cases"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Cases, 2)
	byID := map[string]store.Summary{}
	for _, c := range resp.Cases {
		byID[c.ID] = c
	}
	assert.Equal(t, casefile.StatusApproved, byID[first].Status)
	assert.Equal(t, int64(12), byID[first].WriteCount)
	assert.Equal(t, casefile.StatusReceived, byID[second].Status)
}
