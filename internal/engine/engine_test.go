package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/domain"
	engerrors "github.com/smilemakc/mbflow/internal/domain/errors"
	"github.com/smilemakc/mbflow/internal/plugin"
)

// fakePlugin is a test double satisfying plugin.Plugin with a caller-
// supplied Execute body and no schema constraints, so arbitrary test
// output shapes pass validateOutputKeys unchecked.
type fakePlugin struct {
	id   string
	exec func(inputs map[string]any, config map[string]any, execCtx plugin.ExecutionContext, nodeState any) (plugin.Output, error)
}

func (f *fakePlugin) ID() string                       { return f.id }
func (f *fakePlugin) Metadata() plugin.Metadata         { return plugin.Metadata{ID: f.id} }
func (f *fakePlugin) DefineSchemas() plugin.Schemas     { return plugin.Schemas{} }
func (f *fakePlugin) Execute(_ context.Context, inputs map[string]any, config map[string]any, execCtx plugin.ExecutionContext, nodeState any) (plugin.Output, error) {
	return f.exec(inputs, config, execCtx, nodeState)
}

func registryWith(plugins ...*fakePlugin) *plugin.Registry {
	reg := plugin.NewRegistry()
	for _, p := range plugins {
		_ = reg.Register(p)
	}
	return reg
}

func constPlugin(id string, out plugin.Output) *fakePlugin {
	return &fakePlugin{id: id, exec: func(map[string]any, map[string]any, plugin.ExecutionContext, any) (plugin.Output, error) {
		return out, nil
	}}
}

func TestExecute_Linear(t *testing.T) {
	r := &domain.Routine{
		Nodes: []domain.Node{
			{ID: "n1", PluginID: "stock-price"},
			{ID: "n2", PluginID: "ai-transform"},
			{ID: "n3", PluginID: "email"},
		},
		Connections: []domain.Connection{
			{ID: "e1", SourceNodeID: "n1", TargetNodeID: "n2"},
			{ID: "e2", SourceNodeID: "n2", TargetNodeID: "n3"},
		},
	}
	reg := registryWith(
		constPlugin("stock-price", plugin.Output{"price": 145}),
		constPlugin("ai-transform", plugin.Output{"summary": "ok"}),
		constPlugin("email", plugin.Output{"success": true}),
	)
	eng := New(reg, nil)

	result, err := eng.Execute(context.Background(), r, nil, nil, Options{})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)

	order := make([]string, len(result.ExecutionPath))
	for i, p := range result.ExecutionPath {
		order[i] = p.NodeID
	}
	assert.Equal(t, []string{"n1", "n2", "n3"}, order)
	assert.Equal(t, 145, result.NodeResults["n1"].Outputs.FirstData("price"))
	assert.Equal(t, true, result.NodeResults["n3"].Outputs.FirstData("success"))
}

func TestExecute_ParallelJoin(t *testing.T) {
	r := &domain.Routine{
		Nodes: []domain.Node{
			{ID: "n1", PluginID: "stock-price"},
			{ID: "n2", PluginID: "http"},
			{ID: "n3", PluginID: "ai-transform"},
		},
		Connections: []domain.Connection{
			{ID: "e1", SourceNodeID: "n1", TargetNodeID: "n3", SourceHandle: "price", TargetHandle: "stockData"},
			{ID: "e2", SourceNodeID: "n2", TargetNodeID: "n3", SourceHandle: "data", TargetHandle: "newsData"},
		},
	}

	var mu sync.Mutex
	var capturedInputs map[string]any
	reg := registryWith(
		constPlugin("stock-price", plugin.Output{"price": 150.5}),
		constPlugin("http", plugin.Output{"data": "API response"}),
		&fakePlugin{id: "ai-transform", exec: func(inputs map[string]any, _ map[string]any, _ plugin.ExecutionContext, _ any) (plugin.Output, error) {
			mu.Lock()
			capturedInputs = inputs
			mu.Unlock()
			return plugin.Output{"ok": true}, nil
		}},
	)
	eng := New(reg, nil)

	result, err := eng.Execute(context.Background(), r, nil, nil, Options{})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)

	n3Index, n1Index, n2Index := -1, -1, -1
	for i, p := range result.ExecutionPath {
		switch p.NodeID {
		case "n1":
			n1Index = i
		case "n2":
			n2Index = i
		case "n3":
			n3Index = i
		}
	}
	assert.Greater(t, n3Index, n1Index)
	assert.Greater(t, n3Index, n2Index)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 150.5, capturedInputs["stockData"])
	assert.Equal(t, "API response", capturedInputs["newsData"])
}

func TestExecute_ConditionalTrueBranch(t *testing.T) {
	r := conditionalRoutine("true")
	reg := registryWith(
		constPlugin("stock-price", plugin.Output{"price": 1}),
		constPlugin("if-else", plugin.Output{"branch": "true"}),
		constPlugin("http", plugin.Output{"ok": true}),
		constPlugin("email", plugin.Output{"sent": true}),
	)
	eng := New(reg, nil)

	result, err := eng.Execute(context.Background(), r, nil, nil, Options{})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)

	executed := map[string]bool{}
	for _, p := range result.ExecutionPath {
		executed[p.NodeID] = true
	}
	assert.True(t, executed["n1"])
	assert.True(t, executed["n2"])
	assert.True(t, executed["n3"])
	assert.False(t, executed["n4"])
}

func TestExecute_UnroutedBranchFails(t *testing.T) {
	r := conditionalRoutine("maybe")
	reg := registryWith(
		constPlugin("stock-price", plugin.Output{"price": 1}),
		constPlugin("if-else", plugin.Output{"branch": "maybe"}),
		constPlugin("http", plugin.Output{"ok": true}),
		constPlugin("email", plugin.Output{"sent": true}),
	)
	eng := New(reg, nil)

	result, err := eng.Execute(context.Background(), r, nil, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)

	found := false
	for _, e := range result.Errors {
		if e.Kind == engerrors.KindUnroutedBranch {
			found = true
		}
	}
	assert.True(t, found, "expected an UNROUTED_BRANCH error")
}

func conditionalRoutine(branch string) *domain.Routine {
	return &domain.Routine{
		Nodes: []domain.Node{
			{ID: "n1", PluginID: "stock-price"},
			{ID: "n2", PluginID: "if-else"},
			{ID: "n3", PluginID: "http"},
			{ID: "n4", PluginID: "email"},
		},
		Connections: []domain.Connection{
			{ID: "e1", SourceNodeID: "n1", TargetNodeID: "n2"},
			{ID: "e2", SourceNodeID: "n2", TargetNodeID: "n3", Condition: &domain.Condition{Type: domain.ConditionBranch, Value: "true"}},
			{ID: "e3", SourceNodeID: "n2", TargetNodeID: "n4", Condition: &domain.Condition{Type: domain.ConditionBranch, Value: "false"}},
		},
	}
}

func TestExecute_LoopWithAccumulator(t *testing.T) {
	r := &domain.Routine{
		Nodes: []domain.Node{
			{ID: "n1", PluginID: "seed"},
			{ID: "n2", PluginID: "counter"},
		},
		Connections: []domain.Connection{
			{ID: "e1", SourceNodeID: "n1", TargetNodeID: "n2"},
			{
				ID: "loop1", SourceNodeID: "n2", TargetNodeID: "n2",
				Condition: &domain.Condition{Type: domain.ConditionLoop, Loop: &domain.LoopConfig{MaxIterations: 3, AccumulatorFields: []string{"total"}}},
			},
		},
	}

	var mu sync.Mutex
	var seenAtIteration3 map[string]any
	call := 0
	reg := registryWith(
		constPlugin("seed", plugin.Output{"start": 0}),
		&fakePlugin{id: "counter", exec: func(_ map[string]any, _ map[string]any, _ plugin.ExecutionContext, nodeState any) (plugin.Output, error) {
			mu.Lock()
			call++
			n := call
			mu.Unlock()

			ns := nodeState.(*plugin.NodeState)
			if n == 3 {
				seenAtIteration3 = ns.GetLoopContext("loop1")
			}
			return plugin.Output{"total": n * 10}, nil
		}},
	)
	eng := New(reg, nil)

	result, err := eng.Execute(context.Background(), r, nil, nil, Options{})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)

	n2Count := 0
	for _, p := range result.ExecutionPath {
		if p.NodeID == "n2" {
			n2Count++
		}
	}
	assert.Equal(t, 3, n2Count)
	assert.Equal(t, map[string]any{"total": 20}, seenAtIteration3)
}

func TestExecute_ValidationFailurePreventsDispatch(t *testing.T) {
	r := &domain.Routine{
		Nodes: []domain.Node{{ID: "n1", PluginID: "stock-price"}},
		Connections: []domain.Connection{
			{ID: "e1", SourceNodeID: "n1", TargetNodeID: "missing"},
		},
	}
	dispatched := false
	reg := registryWith(&fakePlugin{id: "stock-price", exec: func(map[string]any, map[string]any, plugin.ExecutionContext, any) (plugin.Output, error) {
		dispatched = true
		return plugin.Output{}, nil
	}})
	eng := New(reg, nil)

	_, err := eng.Execute(context.Background(), r, nil, nil, Options{})
	require.Error(t, err)
	assert.False(t, dispatched)
}

func TestExecute_ExpressionTypePreservation(t *testing.T) {
	r := &domain.Routine{
		Nodes: []domain.Node{
			{ID: "n1", PluginID: "echo", Parameters: map[string]any{
				"url":   "{{ vars.apiBase }}/u/{{ trigger.userId }}",
				"limit": "{{ vars.maxItems }}",
			}},
		},
		Variables: []domain.Variable{
			{Name: "apiBase", Value: "https://api.example.com"},
			{Name: "maxItems", Value: 100},
		},
	}

	var seenConfig map[string]any
	reg := registryWith(&fakePlugin{id: "echo", exec: func(_ map[string]any, config map[string]any, _ plugin.ExecutionContext, _ any) (plugin.Output, error) {
		seenConfig = config
		return plugin.Output{}, nil
	}})
	eng := New(reg, nil)

	_, err := eng.Execute(context.Background(), r, map[string]any{"userId": "u-1"}, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/u/u-1", seenConfig["url"])
	assert.Equal(t, 100, seenConfig["limit"])
}
