package validator

import (
	"github.com/smilemakc/mbflow/internal/domain"
	engerrors "github.com/smilemakc/mbflow/internal/domain/errors"
)

type dfsColor int

const (
	white dfsColor = iota
	gray
	black
)

// detectCycle runs a DFS with a recursion stack over the subgraph
// induced by non-loop edges. Any back-edge into a gray node not marked
// as a loop edge is a cycle; the first one found is reported, matching
// spec §4.1.
func detectCycle(r *domain.Routine, nodeSet map[string]struct{}) (engerrors.ValidationIssue, bool) {
	adj := nonLoopAdjacency(r, nodeSet)
	color := make(map[string]dfsColor, len(nodeSet))

	var issue engerrors.ValidationIssue

	var visit func(id string) bool // returns true to stop (cycle found)
	visit = func(id string) bool {
		color[id] = gray
		for _, next := range adj[id] {
			switch color[next] {
			case gray:
				issue = engerrors.ValidationIssue{
					Kind:    engerrors.KindCycle,
					NodeID:  id,
					Message: "cycle detected: non-loop edge returns to an ancestor node " + next,
				}
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for _, n := range r.Nodes {
		if color[n.ID] == white {
			if visit(n.ID) {
				return issue, true
			}
		}
	}
	return engerrors.ValidationIssue{}, false
}

func nonLoopAdjacency(r *domain.Routine, nodeSet map[string]struct{}) map[string][]string {
	adj := make(map[string][]string)
	for i := range r.Connections {
		c := &r.Connections[i]
		if c.Condition.IsLoop() {
			continue
		}
		if _, ok := nodeSet[c.SourceNodeID]; !ok {
			continue
		}
		if _, ok := nodeSet[c.TargetNodeID]; !ok {
			continue
		}
		adj[c.SourceNodeID] = append(adj[c.SourceNodeID], c.TargetNodeID)
	}
	return adj
}
