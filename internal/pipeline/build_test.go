package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/caseflow/internal/casefile"
	"github.com/roach88/caseflow/internal/engine"
)

func stubHandler() Handler {
	return Handler{
		Fetch: func(context.Context, *casefile.Record) (any, error) { return nil, nil },
		Apply: func(*casefile.Record, any) (engine.Mutation, error) { return engine.Mutation{}, nil },
	}
}

func TestBuild(t *testing.T) {
	def, err := Load("testdata/basic.yaml")
	require.NoError(t, err)
	reg := Registry{
		"validate": stubHandler(),
		"credit":   stubHandler(),
		"flood":    stubHandler(),
		"ratios":   stubHandler(),
	}

	phases, err := Build(def, reg)
	require.NoError(t, err)
	require.Len(t, phases, 2)

	collecting := phases[1]
	assert.Equal(t, "collecting", collecting.Name)
	assert.Equal(t, casefile.StatusCollecting, collecting.Entry)
	require.Len(t, collecting.Concurrent, 2)
	assert.True(t, collecting.Concurrent[0].Required)
	assert.False(t, collecting.Concurrent[1].Required, "optional maps to best-effort")
	assert.Equal(t, []string{"credit"}, collecting.Dependent[0].Requires)
	assert.NotNil(t, collecting.Dependent[0].Fetch)
}

func TestBuild_UnknownHandlers(t *testing.T) {
	def, err := Load("testdata/basic.yaml")
	require.NoError(t, err)

	_, err = Build(def, Registry{"validate": stubHandler()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no handler "credit"`)
	assert.Contains(t, err.Error(), `no handler "ratios"`)
}

func TestBuild_HandlerWithoutApply(t *testing.T) {
	def, err := Load("testdata/basic.yaml")
	require.NoError(t, err)
	reg := Registry{"validate": {}, "credit": stubHandler(), "flood": stubHandler(), "ratios": stubHandler()}

	_, err = Build(def, reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no Apply")
}

func TestRegistry_Names(t *testing.T) {
	reg := Registry{"b": stubHandler(), "a": stubHandler()}
	assert.Equal(t, []string{"a", "b"}, reg.Names())
}
