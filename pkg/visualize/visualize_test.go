package visualize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smilemakc/mbflow/internal/domain"
)

func sampleRoutine() *domain.Routine {
	return &domain.Routine{
		ID: "r1",
		Nodes: []domain.Node{
			{ID: "a", PluginID: "transform", Label: "Start"},
			{ID: "b", PluginID: "transform"},
			{ID: "c", PluginID: "transform", Disabled: true},
		},
		Connections: []domain.Connection{
			{ID: "e1", SourceNodeID: "a", TargetNodeID: "b", Condition: &domain.Condition{Type: domain.ConditionBranch, Value: "ok"}},
			{ID: "e2", SourceNodeID: "b", TargetNodeID: "a", Condition: &domain.Condition{
				Type: domain.ConditionLoop,
				Loop: &domain.LoopConfig{MaxIterations: 3},
			}},
		},
	}
}

func TestMermaid_RendersNodesAndEdges(t *testing.T) {
	out := Mermaid(sampleRoutine())
	assert.Contains(t, out, "flowchart TD")
	assert.Contains(t, out, "a[")
	assert.Contains(t, out, `"ok"`)
	assert.Contains(t, out, "loop (max 3)")
}

func TestASCII_IsDeterministicByNodeID(t *testing.T) {
	out := ASCII(sampleRoutine())
	assert.Contains(t, out, "a (Start)")
	assert.Contains(t, out, "c (transform) [disabled]")
	assert.Contains(t, out, "-> b [branch=ok]")
	assert.Contains(t, out, "-> a [loop, max=3]")
}
