package routine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/domain/yamlimport"
	"github.com/smilemakc/mbflow/internal/plugin"
	"github.com/smilemakc/mbflow/internal/plugin/builtin"
	"github.com/smilemakc/mbflow/internal/state"
	"github.com/smilemakc/mbflow/pkg/routine"
)

const twoNodeYAML = `
id: double-and-greet
name: Double and Greet
nodes:
  - id: double
    plugin: transform
    params:
      expression: "21 * 2"
  - id: greet
    plugin: transform
    params:
      expression: '"hello, " + string(result)'
connections:
  - id: double-to-greet
    from: double
    to: greet
`

func newRegistry(t *testing.T) *plugin.Registry {
	t.Helper()
	registry := plugin.NewRegistry()
	require.NoError(t, builtin.RegisterAll(registry, nil))
	return registry
}

func TestRunner_Execute_RunsTwoNodeRoutineToCompletion(t *testing.T) {
	r, err := yamlimport.Load([]byte(twoNodeYAML))
	require.NoError(t, err)

	registry := newRegistry(t)
	runner := routine.NewRunner(registry, nil)

	var completed []string
	result, err := runner.Execute(context.Background(), r, nil, &routine.Callbacks{
		OnNodeComplete: func(nodeID string, _ state.NodeResult) {
			completed = append(completed, nodeID)
		},
	}, routine.Options{WorkflowID: r.ID, RunID: "test-run"})

	require.NoError(t, err)
	assert.Equal(t, "completed", string(result.Status))
	assert.ElementsMatch(t, []string{"double", "greet"}, completed)

	greetResult, ok := result.NodeResults["greet"]
	require.True(t, ok)
	assert.Equal(t, "hello, 42", greetResult.Outputs.FirstData("result"))
}

func TestExecute_PackageLevelConvenienceWrapper(t *testing.T) {
	r, err := yamlimport.Load([]byte(twoNodeYAML))
	require.NoError(t, err)

	registry := newRegistry(t)
	result, err := routine.Execute(context.Background(), r, registry, nil, nil, nil, routine.Options{WorkflowID: r.ID})

	require.NoError(t, err)
	assert.Equal(t, "completed", string(result.Status))
}
