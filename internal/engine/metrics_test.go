package engine

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/caseflow/internal/casefile"
)

func TestMetrics_RecordsOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	exec, s := newTestExecutor(t, WithMetrics(m))
	seedCase(t, s, "c1", casefile.StatusCollecting)

	exec.Execute(context.Background(), "c1", testOp("credit", &collab{outcomes: transients(1)}))
	exec.Execute(context.Background(), "c1", testOp("ratios", nil, "missing"))

	assert.Equal(t, 1.0, promtest.ToFloat64(m.operations.WithLabelValues("credit", "ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.operations.WithLabelValues("ratios", string(casefile.KindPrecondition))))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.retries.WithLabelValues("credit")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.writes))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.write()
		m.retry("x")
		m.suspended("p")
		m.phaseDone("p", 0)
		m.ObserveLockWait(0)
		m.operationDone(OperationResult{Name: "x"})
	})
}
